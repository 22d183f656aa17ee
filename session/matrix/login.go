package matrix

import (
	"github.com/matrix-org/gomatrix"
	"github.com/pkg/errors"
)

// Login exchanges a password for an access token.
func Login(homeserverURL, user, password, deviceID string) (*gomatrix.RespLogin, error) {
	cli, err := gomatrix.NewClient(homeserverURL, "", "")
	if err != nil {
		return nil, errors.Wrap(err, "gomatrix.NewClient")
	}
	res, err := cli.Login(&gomatrix.ReqLogin{
		Type:                     "m.login.password",
		User:                     user,
		Password:                 password,
		DeviceID:                 deviceID,
		InitialDeviceDisplayName: "circles",
	})
	if err != nil {
		return nil, errors.Wrap(err, "cli.Login")
	}
	return res, nil
}
