package config

import "time"

type Timeline struct {
	// Posts timestamped further than this into the future are left out of the
	// unified feed, so a skewed or malicious client can't pin a post to the top.
	MaxFutureSkew time.Duration `yaml:"max_future_skew"`

	// Number of events requested per pagination call.
	PaginationLimit int `yaml:"pagination_limit"`

	// Upper bound on a single pagination request made through the feed API.
	PaginationTimeout time.Duration `yaml:"pagination_timeout"`

	// How many rooms are paginated at once when filling empty timelines.
	EmptyTimelineConcurrency int `yaml:"empty_timeline_concurrency"`
}

func (c *Timeline) Defaults(generate bool) {
	c.MaxFutureSkew = 300 * time.Second
	c.PaginationLimit = 25
	c.PaginationTimeout = 30 * time.Second
	c.EmptyTimelineConcurrency = 4
}

func (c *Timeline) Verify(configErrs *ConfigErrors) {
	checkPositive(configErrs, "timeline.max_future_skew", int64(c.MaxFutureSkew))
	if c.PaginationLimit <= 0 {
		configErrs.Add("invalid value for config key \"timeline.pagination_limit\": must be greater than zero")
	}
	checkPositive(configErrs, "timeline.pagination_timeout", int64(c.PaginationTimeout))
	if c.EmptyTimelineConcurrency <= 0 {
		configErrs.Add("invalid value for config key \"timeline.empty_timeline_concurrency\": must be greater than zero")
	}
}
