package matrix

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MinimumSpecVersion is the oldest client-server API version with spaces.
const MinimumSpecVersion = "1.2"

var ErrUnsupportedHomeserver = errors.New("homeserver does not support client-server API v" + MinimumSpecVersion)

// CheckVersions fails unless the homeserver advertises a spec version with
// spaces support.
func (c *Client) CheckVersions() error {
	res, err := c.cli.Versions()
	if err != nil {
		return errors.Wrap(err, "c.cli.Versions")
	}
	return checkSpecVersions(res.Versions)
}

func checkSpecVersions(versions []string) error {
	constraint, err := semver.NewConstraint(">= " + MinimumSpecVersion)
	if err != nil {
		return err
	}
	for _, v := range versions {
		// r0.x versions predate the v1.x scheme and never support spaces.
		if strings.HasPrefix(v, "r") {
			continue
		}
		parsed, err := semver.NewVersion(v)
		if err != nil {
			logrus.WithField("version", v).Debug("Ignoring unparseable spec version")
			continue
		}
		if constraint.Check(parsed) {
			return nil
		}
	}
	return errors.Wrapf(ErrUnsupportedHomeserver, "advertised %s", strings.Join(versions, ", "))
}
