// Package storage persists server-side state: snapshot metadata, device
// claims, and autopilot rules. Metadata lives in PostgreSQL; snapshot
// ciphertext lives in an S3-compatible blob store. An in-memory
// implementation backs handler tests.
package storage

import (
	"encoding/json"
	"time"
)

// Snapshot is the metadata row for one stored snapshot. The payload itself
// is kept in the blob store under StorageKey; the server never inspects it.
type Snapshot struct {
	ID          string
	TokenHash   string
	StorageKey  string
	IsEncrypted bool
	Salt        string
	SyncedAt    time.Time
}

// Device is a claim on an authority device id. The first login claims the
// id by storing the token hash; later logins must present the same token.
type Device struct {
	ID        string
	TokenHash string
	CreatedAt time.Time
}

// Rule is a failover rule registered with the authority, together with the
// addon list the device reported for the account. Addons is stored verbatim
// for operator visibility; the authority only probes PriorityChain.
type Rule struct {
	ID            string
	DeviceID      string
	AccountID     string
	PriorityChain []string
	IsActive      bool
	IsAutomatic   bool
	Addons        json.RawMessage
	UpdatedAt     time.Time
}
