package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Sonicx161/aiomanager/internal/common"
)

// MemoryStore is an in-memory Store used in tests and single-node setups.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	payloads  map[string]string
	devices   map[string]Device
	rules     map[string]Rule

	// now is a clock seam for deterministic SyncedAt stamps in tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		payloads:  make(map[string]string),
		devices:   make(map[string]Device),
		rules:     make(map[string]Rule),
		now:       time.Now,
	}
}

func (s *MemoryStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, "", common.ErrNotFound
	}
	return &snap, s.payloads[id], nil
}

func (s *MemoryStore) PutSnapshot(ctx context.Context, snap Snapshot, payload string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.SyncedAt = s.now().UTC()
	s.snapshots[snap.ID] = snap
	s.payloads[snap.ID] = payload
	return snap.SyncedAt, nil
}

func (s *MemoryStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.snapshots, id)
	delete(s.payloads, id)
	return nil
}

func (s *MemoryStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) PutDevice(ctx context.Context, d Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[d.ID] = d
	return nil
}

func (s *MemoryStore) UpsertRule(ctx context.Context, r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.UpdatedAt = s.now().UTC()
	s.rules[r.ID] = r
	return nil
}

func (s *MemoryStore) RulesForAccount(ctx context.Context, accountID string) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Rule
	for _, r := range s.rules {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRules(ctx context.Context) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) DeleteRule(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[ruleID]; !ok {
		return common.ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *MemoryStore) DeleteAccountRules(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.rules {
		if r.AccountID == accountID {
			delete(s.rules, id)
		}
	}
	return nil
}
