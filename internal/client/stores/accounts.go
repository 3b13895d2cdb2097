// Package stores contains the stateful client stores: accounts with their
// ordered addon lists, and the saved-addon library. Each store owns its
// in-memory state, persists it synchronously to local durable storage on
// every mutation, and schedules a debounced push to the sync coordinator.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/merge"
	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/client/repositories/localstore"
	"github.com/Sonicx161/aiomanager/internal/client/stremio"
	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/cryptox"
	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/google/uuid"
)

// PushScheduler requests a debounced snapshot push. Satisfied by the sync
// coordinator; a nil scheduler disables pushing (tests, offline mode).
type PushScheduler interface {
	SchedulePush()
}

// KeySource provides the symmetric key account credentials are sealed with
// before they touch local storage. Satisfied by the vault; a nil source
// keeps credentials in memory only, so they are lost on restart.
type KeySource interface {
	Key() ([]byte, error)
}

// RuleObserver is notified about account-level changes the failover engine
// cares about. It replaces the implicit cross-store side effects of the
// predecessor design with an explicit subscription.
type RuleObserver interface {
	AddonsChanged(accountID string)
	AccountRemoved(accountID string)
}

// ToggleOptions modifies flag mutations. Silent skips the write to the
// third-party addon service (used when the change merely reflects remote
// state). Autopilot suppresses the RuleObserver notification so the
// failover engine does not react to its own writes.
type ToggleOptions struct {
	Silent    bool
	Autopilot bool
}

const (
	defaultRemovalGrace = 5 * time.Second
	defaultManifestTTL  = 30 * time.Minute
)

type manifestCacheEntry struct {
	manifest  models.ManifestRef
	fetchedAt time.Time
}

// AccountStore owns the set of accounts and their ordered addon lists.
// A single mutex serializes every read-modify-write-persist sequence.
type AccountStore struct {
	mu       sync.Mutex
	accounts []models.Account

	repo     localstore.Repository
	service  stremio.Service
	log      logging.Logger
	keys     KeySource
	pusher   PushScheduler
	observer RuleObserver

	pendingRemoval map[string]struct{}
	removalGrace   time.Duration

	manifestCache map[string]manifestCacheEntry
	manifestTTL   time.Duration

	now func() time.Time
}

type AccountStoreOption func(*AccountStore)

func WithPushScheduler(p PushScheduler) AccountStoreOption {
	return func(s *AccountStore) { s.pusher = p }
}

func WithKeySource(k KeySource) AccountStoreOption {
	return func(s *AccountStore) { s.keys = k }
}

func WithRuleObserver(o RuleObserver) AccountStoreOption {
	return func(s *AccountStore) { s.observer = o }
}

func WithRemovalGrace(d time.Duration) AccountStoreOption {
	return func(s *AccountStore) { s.removalGrace = d }
}

func WithClock(now func() time.Time) AccountStoreOption {
	return func(s *AccountStore) { s.now = now }
}

func NewAccountStore(repo localstore.Repository, service stremio.Service, log logging.Logger, opts ...AccountStoreOption) *AccountStore {
	s := &AccountStore{
		repo:           repo,
		service:        service,
		log:            log,
		pendingRemoval: make(map[string]struct{}),
		removalGrace:   defaultRemovalGrace,
		manifestCache:  make(map[string]manifestCacheEntry),
		manifestTTL:    defaultManifestTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPushScheduler wires the sync coordinator after construction; the
// coordinator itself needs the store as an export domain, so one side is
// always attached late.
func (s *AccountStore) SetPushScheduler(p PushScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pusher = p
}

func (s *AccountStore) SetRuleObserver(o RuleObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Load reads the persisted account list from local storage.
func (s *AccountStore) Load(ctx context.Context) error {
	data, err := s.repo.Get(ctx, common.KeyAccounts)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	if data == nil {
		return nil
	}

	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		s.log.Warn(ctx, "stored account list is unreadable, starting empty", "error", err)
		return nil
	}

	s.mu.Lock()
	s.accounts = accounts
	s.mu.Unlock()
	return nil
}

// Accounts returns a copy of the account list.
func (s *AccountStore) Accounts() []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAccounts(s.accounts)
}

// Count reports the number of accounts, for the sync coordinator's
// anti-wipe guard.
func (s *AccountStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Account returns a copy of one account.
func (s *AccountStore) Account(id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.findLocked(id)
	if idx < 0 {
		return models.Account{}, common.ErrNotFound
	}
	return cloneAccount(s.accounts[idx]), nil
}

// Addons returns a copy of one account's addon list. Used by the failover
// engine's self-healing pass.
func (s *AccountStore) Addons(accountID string) ([]models.AddonRecord, error) {
	acc, err := s.Account(accountID)
	if err != nil {
		return nil, err
	}
	return acc.Addons, nil
}

// AddAccountWithCredentials logs into the addon service, stores the
// returned auth key, and fetches the account's current addon list.
func (s *AccountStore) AddAccountWithCredentials(ctx context.Context, email, password string) (models.Account, error) {
	authKey, err := s.service.Login(ctx, email, password)
	if err != nil {
		return models.Account{}, fmt.Errorf("addon service login: %w", err)
	}
	return s.addAccount(ctx, models.Account{ID: uuid.NewString(), Email: email, AuthKey: authKey})
}

// AddAccountWithKey registers an account by direct auth key.
func (s *AccountStore) AddAccountWithKey(ctx context.Context, authKey string) (models.Account, error) {
	return s.addAccount(ctx, models.Account{ID: uuid.NewString(), AuthKey: authKey})
}

func (s *AccountStore) addAccount(ctx context.Context, acc models.Account) (models.Account, error) {
	addons, err := s.service.GetAddons(ctx, acc.AuthKey)
	if err != nil {
		return models.Account{}, fmt.Errorf("fetching addon collection: %w", err)
	}
	acc.Addons = addons
	acc.LastSync = s.now()

	s.mu.Lock()
	s.accounts = append(s.accounts, acc)
	err = s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return models.Account{}, err
	}

	s.schedulePush()
	return cloneAccount(acc), nil
}

// RemoveAccount deletes an account, cascading to any failover rules
// referencing it through the observer.
func (s *AccountStore) RemoveAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.findLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	s.accounts = append(s.accounts[:idx], s.accounts[idx+1:]...)
	err := s.persistLocked(ctx)
	observer := s.observer
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if observer != nil {
		observer.AccountRemoved(id)
	}
	s.schedulePush()
	return nil
}

// Install adds (or refreshes) the addon at url on the account, pushes the
// updated collection to the addon service, and reconciles with the
// service's sanitized result.
func (s *AccountStore) Install(ctx context.Context, accountID, url string) error {
	manifest, err := s.cachedManifest(ctx, url)
	if err != nil {
		return fmt.Errorf("resolving manifest: %w", err)
	}

	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	acc := &s.accounts[idx]

	if i := acc.FindAddon(url); i >= 0 {
		acc.Addons[i].Manifest = manifest
		acc.Addons[i].Meta.LastUpdated = s.now()
	} else {
		acc.Addons = append(acc.Addons, models.AddonRecord{
			TransportURL: url,
			Manifest:     manifest,
			Flags:        models.AddonFlags{Enabled: true},
			Meta:         models.AddonMeta{LastUpdated: s.now()},
		})
	}
	authKey := acc.AuthKey
	toPush := enabledAddons(acc.Addons)
	s.mu.Unlock()

	if err := s.service.SetAddons(ctx, authKey, toPush); err != nil {
		return fmt.Errorf("pushing addon collection: %w", err)
	}

	if err := s.refreshFromService(ctx, accountID, false); err != nil {
		return err
	}

	s.notifyAddonsChanged(accountID, false)
	s.schedulePush()
	return nil
}

// Remove deletes the addon at url. Protected entries refuse removal. The
// URL is marked pending-removal before the remote delete so a concurrent
// refresh started earlier cannot resurrect it; the mark expires a short
// grace window after the delete completes.
func (s *AccountStore) Remove(ctx context.Context, accountID, url string) error {
	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	acc := &s.accounts[idx]

	i := acc.FindAddon(url)
	if i < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	if acc.Addons[i].Flags.Protected {
		s.mu.Unlock()
		return common.ErrProtected
	}

	pending := s.markPendingLocked(accountID, url)
	acc.Addons = append(acc.Addons[:i], acc.Addons[i+1:]...)
	authKey := acc.AuthKey
	toPush := enabledAddons(acc.Addons)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		s.expirePending(pending)
		return err
	}

	// The grace window starts once the remote delete has completed, so a
	// slow remote call cannot let a stale refresh resurrect the entry.
	err = s.service.SetAddons(ctx, authKey, toPush)
	s.expirePending(pending)
	if err != nil {
		return fmt.Errorf("pushing addon collection: %w", err)
	}

	s.notifyAddonsChanged(accountID, false)
	s.schedulePush()
	return nil
}

// RemoveAt deletes the addon at the given list position, with the same
// protection and pending-removal behavior as Remove.
func (s *AccountStore) RemoveAt(ctx context.Context, accountID string, index int) error {
	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	acc := s.accounts[idx]
	if index < 0 || index >= len(acc.Addons) {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	url := acc.Addons[index].TransportURL
	s.mu.Unlock()

	return s.Remove(ctx, accountID, url)
}

// Reorder replaces the addon list order with the given index permutation,
// stamps every moved entry, and pushes the full ordered list to the addon
// service (which only knows "set", not "reorder").
func (s *AccountStore) Reorder(ctx context.Context, accountID string, order []int) error {
	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	acc := &s.accounts[idx]

	if len(order) != len(acc.Addons) {
		s.mu.Unlock()
		return fmt.Errorf("order has %d entries, list has %d", len(order), len(acc.Addons))
	}
	seen := make(map[int]bool, len(order))
	for _, o := range order {
		if o < 0 || o >= len(acc.Addons) || seen[o] {
			s.mu.Unlock()
			return fmt.Errorf("order is not a permutation")
		}
		seen[o] = true
	}

	reordered := make([]models.AddonRecord, len(order))
	for newPos, oldPos := range order {
		reordered[newPos] = acc.Addons[oldPos]
		if newPos != oldPos {
			reordered[newPos].Meta.LastUpdated = s.now()
		}
	}
	acc.Addons = reordered
	authKey := acc.AuthKey
	toPush := enabledAddons(acc.Addons)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.service.SetAddons(ctx, authKey, toPush); err != nil {
		return fmt.Errorf("pushing addon collection: %w", err)
	}

	s.notifyAddonsChanged(accountID, false)
	s.schedulePush()
	return nil
}

// ToggleEnabled flips the enabled flag. The addon service holds only
// enabled entries, so a non-silent toggle rewrites the remote collection.
func (s *AccountStore) ToggleEnabled(ctx context.Context, accountID, url string, opts ToggleOptions) error {
	return s.setFlag(ctx, accountID, url, opts, func(a *models.AddonRecord) {
		a.Flags.Enabled = !a.Flags.Enabled
	}, true)
}

// SetAddonEnabled sets the enabled flag to an explicit value. Used by the
// failover engine, which must be able to converge rather than flip.
func (s *AccountStore) SetAddonEnabled(ctx context.Context, accountID, url string, enabled, silent, autopilot bool) error {
	return s.setFlag(ctx, accountID, url, ToggleOptions{Silent: silent, Autopilot: autopilot}, func(a *models.AddonRecord) {
		a.Flags.Enabled = enabled
	}, true)
}

// ToggleProtected flips the protection flag. Protection is purely local
// policy, so the addon service is never written.
func (s *AccountStore) ToggleProtected(ctx context.Context, accountID, url string, opts ToggleOptions) error {
	opts.Silent = true
	return s.setFlag(ctx, accountID, url, opts, func(a *models.AddonRecord) {
		a.Flags.Protected = !a.Flags.Protected
	}, false)
}

func (s *AccountStore) setFlag(ctx context.Context, accountID, url string, opts ToggleOptions, mutate func(*models.AddonRecord), pushRemote bool) error {
	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	acc := &s.accounts[idx]

	i := acc.FindAddon(url)
	if i < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}

	mutate(&acc.Addons[i])
	acc.Addons[i].Meta.LastUpdated = s.now()
	authKey := acc.AuthKey
	toPush := enabledAddons(acc.Addons)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if pushRemote && !opts.Silent {
		if err := s.service.SetAddons(ctx, authKey, toPush); err != nil {
			return fmt.Errorf("pushing addon collection: %w", err)
		}
	}

	s.notifyAddonsChanged(accountID, opts.Autopilot)
	s.schedulePush()
	return nil
}

// SyncAccount fetches the account's remote addon collection and reconciles
// it with local state. When forceRefresh is set, manifests that look broken
// are re-derived (through a TTL cache to bound network cost) and the
// reconciled list is written back to the service.
func (s *AccountStore) SyncAccount(ctx context.Context, accountID string, forceRefresh bool) error {
	if err := s.refreshFromService(ctx, accountID, forceRefresh); err != nil {
		return err
	}
	s.notifyAddonsChanged(accountID, false)
	s.schedulePush()
	return nil
}

func (s *AccountStore) refreshFromService(ctx context.Context, accountID string, forceRefresh bool) error {
	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	authKey := s.accounts[idx].AuthKey
	s.mu.Unlock()

	remote, err := s.service.GetAddons(ctx, authKey)
	if err != nil {
		return fmt.Errorf("fetching addon collection: %w", err)
	}

	var repaired []models.AddonRecord
	if forceRefresh {
		for i := range remote {
			if !remote[i].Manifest.LooksBroken() {
				continue
			}
			manifest, err := s.cachedManifest(ctx, remote[i].TransportURL)
			if err != nil {
				s.log.Warn(ctx, "manifest re-derivation failed",
					"account", accountID, "url", remote[i].TransportURL, "error", err)
				continue
			}
			remote[i].Manifest = manifest
			repaired = append(repaired, remote[i])
		}
	}

	s.mu.Lock()
	idx = s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	acc := &s.accounts[idx]
	merged := merge.Merge(acc.Addons, remote)
	merged = s.filterPendingLocked(accountID, merged)
	acc.Addons = merged
	acc.LastSync = s.now()
	toPush := enabledAddons(acc.Addons)
	err = s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// Write back only on a forced refresh that actually changed something.
	if forceRefresh && len(repaired) > 0 {
		if err := s.service.SetAddons(ctx, authKey, toPush); err != nil {
			return fmt.Errorf("pushing repaired collection: %w", err)
		}
	}
	return nil
}

// ApplyTemplates layers saved-addon templates onto the account and pushes
// the result to the addon service. Called by the library store's bulk
// apply, once per target account.
func (s *AccountStore) ApplyTemplates(ctx context.Context, accountID string, templates []models.SavedAddon) (merge.ApplyResult, error) {
	s.mu.Lock()
	idx := s.findLocked(accountID)
	if idx < 0 {
		s.mu.Unlock()
		return merge.ApplyResult{}, common.ErrNotFound
	}
	acc := &s.accounts[idx]

	applied, result := merge.Apply(acc.Addons, templates)
	acc.Addons = applied
	for i := range acc.Addons {
		acc.Addons[i].Meta.LastUpdated = s.now()
	}
	authKey := acc.AuthKey
	toPush := enabledAddons(acc.Addons)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return merge.ApplyResult{}, err
	}

	if err := s.service.SetAddons(ctx, authKey, toPush); err != nil {
		return merge.ApplyResult{}, fmt.Errorf("pushing addon collection: %w", err)
	}

	s.notifyAddonsChanged(accountID, false)
	s.schedulePush()
	return result, nil
}

// Export returns the account list for snapshot serialization.
func (s *AccountStore) Export() []models.Account {
	return s.Accounts()
}

// Import applies a snapshot's account list. In mirror mode the remote list
// replaces local state wholesale, though each account still passes through
// the merger so protected and disabled local-only entries survive. In
// passive-merge mode local accounts win and remote-only accounts are
// appended.
func (s *AccountStore) Import(ctx context.Context, incoming []models.Account, mirror bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]*models.Account, len(s.accounts))
	for i := range s.accounts {
		byID[s.accounts[i].ID] = &s.accounts[i]
	}

	if mirror {
		next := make([]models.Account, 0, len(incoming))
		for _, in := range incoming {
			if local, ok := byID[in.ID]; ok {
				in.Addons = merge.Merge(local.Addons, in.Addons)
			}
			next = append(next, in)
		}
		s.accounts = next
		return s.persistLocked(ctx)
	}

	for _, in := range incoming {
		if local, ok := byID[in.ID]; ok {
			local.Addons = merge.Merge(local.Addons, in.Addons)
			if local.AuthKey == "" {
				local.AuthKey = in.AuthKey
			}
			continue
		}
		s.accounts = append(s.accounts, in)
	}
	return s.persistLocked(ctx)
}

func (s *AccountStore) findLocked(id string) int {
	for i, a := range s.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the account list to durable storage. Callers must
// hold the mutex. The local write completing is what commits a mutation;
// the snapshot push that follows is best-effort. Auth keys are stripped
// from the account records and written separately as a sealed blob, so a
// credential never reaches the local store in the clear.
func (s *AccountStore) persistLocked(ctx context.Context) error {
	public := cloneAccounts(s.accounts)
	creds := make(map[string]string, len(public))
	for i := range public {
		if public[i].AuthKey != "" {
			creds[public[i].ID] = public[i].AuthKey
			public[i].AuthKey = ""
		}
	}

	data, err := json.Marshal(public)
	if err != nil {
		return fmt.Errorf("serializing accounts: %w", err)
	}
	if err := s.repo.Set(ctx, common.KeyAccounts, data); err != nil {
		return fmt.Errorf("persisting accounts: %w", err)
	}
	return s.persistCredentialsLocked(ctx, creds)
}

func (s *AccountStore) persistCredentialsLocked(ctx context.Context, creds map[string]string) error {
	if s.keys == nil || len(creds) == 0 {
		return nil
	}
	key, err := s.keys.Key()
	if err != nil {
		return fmt.Errorf("sealing account credentials: %w", err)
	}
	ciphertext, nonce, err := cryptox.EncryptJSON(creds, key)
	if err != nil {
		return fmt.Errorf("sealing account credentials: %w", err)
	}
	sealed := []byte(cryptox.EncodePayload(ciphertext, nonce))
	if err := s.repo.Set(ctx, common.KeyAccountKeys, sealed); err != nil {
		return fmt.Errorf("persisting account credentials: %w", err)
	}
	return nil
}

// LoadCredentials unseals the persisted credential blob and fills in each
// account's auth key. It needs the vault key, so before an unlock it fails
// with common.ErrLocked.
func (s *AccountStore) LoadCredentials(ctx context.Context) error {
	if s.keys == nil {
		return nil
	}
	key, err := s.keys.Key()
	if err != nil {
		return err
	}

	data, err := s.repo.Get(ctx, common.KeyAccountKeys)
	if err != nil {
		return fmt.Errorf("loading account credentials: %w", err)
	}
	if data == nil {
		return nil
	}

	ciphertext, nonce, err := cryptox.DecodePayload(string(data))
	if err != nil {
		return fmt.Errorf("decoding account credentials: %w", err)
	}
	creds := make(map[string]string)
	if err := cryptox.DecryptJSON(ciphertext, nonce, key, &creds); err != nil {
		return fmt.Errorf("unsealing account credentials: %w", err)
	}

	s.mu.Lock()
	for i := range s.accounts {
		if k, ok := creds[s.accounts[i].ID]; ok && s.accounts[i].AuthKey == "" {
			s.accounts[i].AuthKey = k
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *AccountStore) schedulePush() {
	s.mu.Lock()
	pusher := s.pusher
	s.mu.Unlock()
	if pusher != nil {
		pusher.SchedulePush()
	}
}

func (s *AccountStore) notifyAddonsChanged(accountID string, autopilot bool) {
	if autopilot {
		return
	}
	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer.AddonsChanged(accountID)
	}
}

// markPendingLocked records an in-flight removal. The mark has no expiry
// yet; callers arm it with expirePending once the remote delete has
// completed, so a slow remote call cannot outlive the grace window.
func (s *AccountStore) markPendingLocked(accountID, url string) string {
	key := accountID + "|" + models.NormalizeTransportURL(url)
	s.pendingRemoval[key] = struct{}{}
	return key
}

func (s *AccountStore) expirePending(key string) {
	time.AfterFunc(s.removalGrace, func() {
		s.mu.Lock()
		delete(s.pendingRemoval, key)
		s.mu.Unlock()
	})
}

// filterPendingLocked drops entries whose removal is in flight, so a merge
// seeded by a stale fetch cannot resurrect them.
func (s *AccountStore) filterPendingLocked(accountID string, list []models.AddonRecord) []models.AddonRecord {
	if len(s.pendingRemoval) == 0 {
		return list
	}
	out := list[:0]
	for _, a := range list {
		key := accountID + "|" + models.NormalizeTransportURL(a.TransportURL)
		if _, pending := s.pendingRemoval[key]; pending {
			continue
		}
		out = append(out, a)
	}
	return out
}

// enabledAddons returns the subset of the list the addon service should
// hold: the service has no concept of a disabled entry.
func enabledAddons(list []models.AddonRecord) []models.AddonRecord {
	out := make([]models.AddonRecord, 0, len(list))
	for _, a := range list {
		if a.Flags.Enabled {
			out = append(out, a)
		}
	}
	return out
}

func cloneAccounts(in []models.Account) []models.Account {
	out := make([]models.Account, len(in))
	for i, a := range in {
		out[i] = cloneAccount(a)
	}
	return out
}

func cloneAccount(a models.Account) models.Account {
	a.Addons = append([]models.AddonRecord(nil), a.Addons...)
	return a
}
