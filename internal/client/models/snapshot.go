package models

import "time"

// WebhookConfig is carried through the snapshot unchanged; the client does
// not act on it beyond persistence.
type WebhookConfig struct {
	URL     string   `json:"url,omitempty"`
	Events  []string `json:"events,omitempty"`
	Enabled bool     `json:"enabled"`
}

// SyncSnapshot is the full exportable state as stored (encrypted) in the
// remote sync store. SyncedAt is the authoritative logical clock for
// conflict resolution and is always taken from the server's clock on push
// acknowledgement, never from the client.
type SyncSnapshot struct {
	Accounts      []Account      `json:"accounts"`
	Library       []SavedAddon   `json:"library"`
	FailoverRules []FailoverRule `json:"failoverRules"`
	Webhook       *WebhookConfig `json:"webhookConfig,omitempty"`
	Salt          []byte         `json:"salt,omitempty"`
	SyncedAt      time.Time      `json:"syncedAt"`
}
