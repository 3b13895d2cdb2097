package config

import (
	"encoding/json"
	"os"

	"github.com/Sonicx161/aiomanager/internal/flagx"
	"github.com/Sonicx161/aiomanager/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	StremioAPIURL string         `json:"stremio_api_url"`
	SyncServerURL string         `json:"sync_server_url"`
	AutopilotURL  string         `json:"autopilot_url"`
	DatabasePath  string         `json:"database_path"`
	SyncID        string         `json:"sync_id"`
	CheckInterval timex.Duration `json:"check_interval"`
	PushDebounce  timex.Duration `json:"push_debounce"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags via flagx.JsonConfigFlags; when no
// path is given nothing is loaded. Read or unmarshal errors panic (caller
// should recover if desired). Empty JSON fields leave the defaults alone.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.StremioAPIURL != "" {
		cfg.StremioAPIURL = jc.StremioAPIURL
	}
	if jc.SyncServerURL != "" {
		cfg.SyncServerURL = jc.SyncServerURL
	}
	if jc.AutopilotURL != "" {
		cfg.AutopilotURL = jc.AutopilotURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncID != "" {
		cfg.SyncID = jc.SyncID
	}
	if jc.CheckInterval != 0 {
		cfg.CheckInterval = jc.CheckInterval.Std()
	}
	if jc.PushDebounce != 0 {
		cfg.PushDebounce = jc.PushDebounce.Std()
	}
}
