package config

import "time"

// Config holds runtime settings for the addon manager CLI.
//
// Fields:
//   - StremioAPIURL: base URL of the third-party addon service API.
//   - SyncServerURL: base URL of the remote sync store.
//   - AutopilotURL: base URL of the failover authority; empty disables
//     remote delegation.
//   - DatabasePath: path of the local SQLite database.
//   - SyncID: identifier of this user's remote snapshot.
//   - CheckInterval: how often the failover engine probes chain members.
//   - PushDebounce: quiet period before an automatic snapshot push.
type Config struct {
	StremioAPIURL string
	SyncServerURL string
	AutopilotURL  string
	DatabasePath  string
	SyncID        string
	CheckInterval time.Duration
	PushDebounce  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.StremioAPIURL = "https://api.strem.io"
	c.SyncServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "aiomanager.db"
	c.CheckInterval = time.Minute
	c.PushDebounce = 1500 * time.Millisecond
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
