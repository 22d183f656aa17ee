// Copyright 2026 The Circles Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Version is the current version of the config format.
// This will change whenever we make breaking changes to the config format.
const Version = 1

// Circles contains all the config used by a circles process.
// Relative paths are resolved relative to the current working directory.
type Circles struct {
	// The version of the configuration file.
	// If the version in a file doesn't match the current config
	// version then we can give a clear error message telling the user
	// to update their config file to the current version.
	Version int `yaml:"version"`

	Global   Global   `yaml:"global"`
	Session  Session  `yaml:"session"`
	Timeline Timeline `yaml:"timeline"`
	FeedAPI  FeedAPI  `yaml:"feed_api"`

	// The config for logging informations. Each hook will be added to logrus.
	Logging []LogrusHook `yaml:"logging"`
}

// A Path on the filesystem.
type Path string

// A DataSource for opening a database, either file:... for SQLite or
// postgres://... for PostgreSQL.
type DataSource string

func (d DataSource) IsSQLite() bool {
	return strings.HasPrefix(string(d), "file:")
}

// IsPostgres also covers lib/pq key=value connection strings, which have no scheme.
func (d DataSource) IsPostgres() bool {
	return d != "" && !d.IsSQLite()
}

// An Address to listen on, e.g. "localhost:8080".
type Address string

// LogrusHook represents a single logrus hook. At this point, only parsing and
// verification of the proper values for type and level are done.
// Validity/integrity checks on the parameters are done when configuring logrus.
type LogrusHook struct {
	// The type of hook: "file", "std" or "syslog".
	Type string `yaml:"type"`

	// The level of the logs to produce. Will output only this level and above.
	Level string `yaml:"level"`

	// The parameters for this hook.
	Params map[string]interface{} `yaml:"params"`
}

// ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

// Add appends an error to the list of errors in this configErrors.
// It is a wrapper to the builtin append and hides pointers from
// the client code.
// This method is safe to use with an uninitialized configErrors because
// if it is nil, it will be properly allocated.
func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

// Error returns a string detailing how many errors were contained within a
// configErrors type.
func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf(
		"%s (and %d other problems)", errs[0], len(errs)-1,
	)
}

// Load a yaml config file
func Load(configPath string) (*Circles, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	basePath, err := filepath.Abs(".")
	if err != nil {
		return nil, err
	}
	// Pass the current working directory and os.ReadFile so that they can
	// be mocked in the tests
	return loadConfig(basePath, configData, os.ReadFile)
}

func loadConfig(
	basePath string,
	configData []byte,
	readFile func(string) ([]byte, error),
) (*Circles, error) {
	var c Circles
	c.Defaults(false)
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return nil, err
	}

	if err := c.check(); err != nil {
		return nil, err
	}

	// An access token kept in a separate file takes priority over the inline one,
	// so the main config can be checked into version control.
	if c.Session.AccessTokenPath != "" {
		tokenPath := absPath(basePath, c.Session.AccessTokenPath)
		tokenData, err := readFile(tokenPath)
		if err != nil {
			return nil, err
		}
		c.Session.AccessToken = strings.TrimSpace(string(tokenData))
	}

	return &c, nil
}

// Defaults sets default config values if they are not explicitly set.
func (c *Circles) Defaults(generate bool) {
	c.Version = Version
	c.Global.Defaults(generate)
	c.Session.Defaults(generate)
	c.Timeline.Defaults(generate)
	c.FeedAPI.Defaults(generate)
	c.Logging = []LogrusHook{
		{
			Type:  "std",
			Level: "info",
		},
	}
	if generate {
		c.Logging = append(c.Logging, LogrusHook{
			Type:   "file",
			Level:  "info",
			Params: map[string]interface{}{"path": "./logs"},
		})
	}
}

func (c *Circles) Verify(configErrs *ConfigErrors) {
	c.Global.Verify(configErrs)
	c.Session.Verify(configErrs)
	c.Timeline.Verify(configErrs)
	c.FeedAPI.Verify(configErrs)
	for i, hook := range c.Logging {
		if _, err := logrus.ParseLevel(hook.Level); err != nil {
			configErrs.Add(fmt.Sprintf("invalid value for config key %q: %s", fmt.Sprintf("logging[%d].level", i), hook.Level))
		}
	}
}

// check returns an error type containing all errors found within the config
// file.
func (c *Circles) check() error {
	var configErrs ConfigErrors

	if c.Version != Version {
		configErrs.Add(fmt.Sprintf(
			"config version is %d, expected %d - this means that the format of the configuration "+
				"file has changed in some significant way, so please revisit the sample config "+
				"and ensure you are not missing any important options that may have been added "+
				"or changed recently!",
			c.Version, Version,
		))
		return configErrs
	}

	c.Verify(&configErrs)

	if configErrs != nil {
		return configErrs
	}
	return nil
}

// absPath returns the absolute path for a given relative or absolute path.
func absPath(dir string, path Path) string {
	if filepath.IsAbs(string(path)) {
		// filepath.Join cleans the path so we should clean the absolute paths as well for consistency.
		return filepath.Clean(string(path))
	}
	return filepath.Join(dir, string(path))
}

// checkNotEmpty verifies the given value is not empty in the configuration.
// If it is, adds an error to the list.
func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkPositive verifies the given value is positive (zero included)
// in the configuration. If it is not, adds an error to the list.
func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}

// checkURL verifies that the parameter is a valid URL
func checkURL(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
		return
	}
	url, err := url.Parse(value)
	if err != nil {
		configErrs.Add(fmt.Sprintf("config key %q contains invalid URL (%s)", key, err.Error()))
		return
	}
	switch url.Scheme {
	case "http":
	case "https":
	default:
		configErrs.Add(fmt.Sprintf("config key %q URL should be http:// or https://", key))
		return
	}
}
