package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sonicx161/aiomanager/internal/common"
)

func TestMemoryStore_SnapshotLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _, err := s.GetSnapshot(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return stamp }

	syncedAt, err := s.PutSnapshot(ctx, Snapshot{ID: "u1", TokenHash: "h", IsEncrypted: true, Salt: "abc"}, "ciphertext")
	require.NoError(t, err)
	assert.Equal(t, stamp, syncedAt)

	snap, payload, err := s.GetSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", payload)
	assert.True(t, snap.IsEncrypted)
	assert.Equal(t, "abc", snap.Salt)
	assert.Equal(t, stamp, snap.SyncedAt)

	require.NoError(t, s.DeleteSnapshot(ctx, "u1"))
	assert.ErrorIs(t, s.DeleteSnapshot(ctx, "u1"), common.ErrNotFound)
}

func TestMemoryStore_DeviceClaim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetDevice(ctx, "d1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.PutDevice(ctx, Device{ID: "d1", TokenHash: "h1"}))

	d, err := s.GetDevice(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "h1", d.TokenHash)
}

func TestMemoryStore_Rules(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertRule(ctx, Rule{
		ID:            "r1",
		DeviceID:      "d1",
		AccountID:     "acc1",
		PriorityChain: []string{"https://a.example", "https://b.example"},
		IsActive:      true,
		IsAutomatic:   true,
		Addons:        json.RawMessage(`[{"transportUrl":"https://a.example"}]`),
	}))
	require.NoError(t, s.UpsertRule(ctx, Rule{ID: "r2", AccountID: "acc2", PriorityChain: []string{"https://c.example"}}))

	forAcc1, err := s.RulesForAccount(ctx, "acc1")
	require.NoError(t, err)
	require.Len(t, forAcc1, 1)
	assert.Equal(t, "r1", forAcc1[0].ID)
	assert.False(t, forAcc1[0].UpdatedAt.IsZero())

	all, err := s.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteAccountRules(ctx, "acc1"))
	forAcc1, err = s.RulesForAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.Empty(t, forAcc1)

	require.NoError(t, s.DeleteRule(ctx, "r2"))
	assert.ErrorIs(t, s.DeleteRule(ctx, "r2"), common.ErrNotFound)
}
