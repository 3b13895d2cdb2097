package storage

import (
	"context"
	"time"
)

// Store is the persistence surface used by the HTTP handlers and the
// authority service. Implementations return common.ErrNotFound for missing
// entities.
type Store interface {
	// GetSnapshot returns the metadata and the stored payload for id.
	GetSnapshot(ctx context.Context, id string) (*Snapshot, string, error)

	// PutSnapshot upserts the snapshot and its payload, stamping SyncedAt
	// with the server clock. The stamped time is returned.
	PutSnapshot(ctx context.Context, snap Snapshot, payload string) (time.Time, error)

	// DeleteSnapshot removes the snapshot and its payload.
	DeleteSnapshot(ctx context.Context, id string) error

	GetDevice(ctx context.Context, id string) (*Device, error)
	PutDevice(ctx context.Context, d Device) error

	UpsertRule(ctx context.Context, r Rule) error
	RulesForAccount(ctx context.Context, accountID string) ([]Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	DeleteAccountRules(ctx context.Context, accountID string) error
}

// BlobStore holds opaque snapshot payloads keyed by storage key.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}
