package config

import (
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

type Session struct {
	// The base URL of the homeserver's client-server API, e.g. https://matrix.example.org
	HomeserverURL string `yaml:"homeserver_url"`

	// The full Matrix user ID of the local user, e.g. @alice:example.org
	UserID string `yaml:"user_id"`

	// Access token for the local user. Either this or access_token_path must be set.
	AccessToken string `yaml:"access_token"`

	// Path to a file containing the access token. Takes priority over access_token.
	AccessTokenPath Path `yaml:"access_token_path"`

	// The device ID the access token belongs to.
	DeviceID string `yaml:"device_id"`

	// The room ID of the user's root circles space. Every child of this space
	// is itself a circle.
	CirclesSpaceID string `yaml:"circles_space_id"`

	// How long the m.ignored_user_list account data is cached for.
	IgnoredUsersTTL time.Duration `yaml:"ignored_users_ttl"`

	// How long to wait before retrying after a failed /sync.
	SyncBackoff time.Duration `yaml:"sync_backoff"`

	// Room avatars larger than this many pixels in either dimension are
	// scaled down before upload.
	AvatarMaxSize int `yaml:"avatar_max_size"`
}

func (c *Session) Defaults(generate bool) {
	c.IgnoredUsersTTL = time.Minute
	c.SyncBackoff = time.Second * 10
	c.AvatarMaxSize = 512
	if generate {
		c.HomeserverURL = "http://localhost:8008"
		c.UserID = "@alice:localhost"
		c.AccessToken = "changeme"
		c.CirclesSpaceID = "!circles:localhost"
	}
}

func (c *Session) Verify(configErrs *ConfigErrors) {
	checkURL(configErrs, "session.homeserver_url", c.HomeserverURL)
	checkNotEmpty(configErrs, "session.user_id", c.UserID)
	if c.UserID != "" {
		if _, err := spec.NewUserID(c.UserID, true); err != nil {
			configErrs.Add("invalid value for config key \"session.user_id\": " + err.Error())
		}
	}
	if c.AccessToken == "" && c.AccessTokenPath == "" {
		configErrs.Add("missing config key \"session.access_token\" or \"session.access_token_path\"")
	}
	checkNotEmpty(configErrs, "session.circles_space_id", c.CirclesSpaceID)
	checkPositive(configErrs, "session.ignored_users_ttl", int64(c.IgnoredUsersTTL))
	checkPositive(configErrs, "session.sync_backoff", int64(c.SyncBackoff))
	if c.AvatarMaxSize <= 0 {
		configErrs.Add("invalid value for config key \"session.avatar_max_size\": must be greater than zero")
	}
}
