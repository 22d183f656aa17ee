package config

type FeedAPI struct {
	// Whether the local feed API is served at all.
	Enabled bool `yaml:"enabled"`

	// The address the feed API (and /metrics, if enabled) listens on.
	Listen Address `yaml:"listen"`
}

func (c *FeedAPI) Defaults(generate bool) {
	c.Enabled = true
	c.Listen = "localhost:8765"
}

func (c *FeedAPI) Verify(configErrs *ConfigErrors) {
	if c.Enabled {
		checkNotEmpty(configErrs, "feed_api.listen", string(c.Listen))
	}
}
