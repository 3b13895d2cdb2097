// Package syncer implements the sync coordinator: the mediator that owns
// the pull/push lifecycle against the remote sync store. It is the only
// component that talks to the vault, the crypto layer, and the remote store
// together; the domain stores expose narrow export/import hooks and never
// see ciphertext.
package syncer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/client/repositories/localstore"
	"github.com/Sonicx161/aiomanager/internal/client/syncapi"
	"github.com/Sonicx161/aiomanager/internal/client/vault"
	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/cryptox"
	"github.com/Sonicx161/aiomanager/internal/logging"
)

// AccountsDomain is the account store seen from the coordinator.
type AccountsDomain interface {
	Export() []models.Account
	Import(ctx context.Context, incoming []models.Account, mirror bool) error
	Count() int
}

// LibraryDomain is the library store seen from the coordinator.
type LibraryDomain interface {
	Export() []models.SavedAddon
	Import(ctx context.Context, incoming []models.SavedAddon, mirror bool) error
	Count() int
}

// RulesDomain is the failover engine seen from the coordinator.
type RulesDomain interface {
	Export() []models.FailoverRule
	Import(ctx context.Context, incoming []models.FailoverRule, mirror bool) error
	Count() int
}

const (
	defaultDebounce = 1500 * time.Millisecond
	pushTimeout     = 30 * time.Second
)

// Coordinator owns the sync lifecycle for one remote snapshot id.
type Coordinator struct {
	remote syncapi.Client
	vault  *vault.Vault
	repo   localstore.Repository
	log    logging.Logger

	accounts AccountsDomain
	library  LibraryDomain
	rules    RulesDomain

	syncID string

	mu         sync.Mutex
	token      string
	pulled     bool
	lastSynced time.Time
	timer      *time.Timer
	debounce   time.Duration
}

type Option func(*Coordinator)

func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

func NewCoordinator(remote syncapi.Client, v *vault.Vault, repo localstore.Repository, log logging.Logger,
	accounts AccountsDomain, library LibraryDomain, rules RulesDomain, syncID string, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:   remote,
		vault:    v,
		repo:     repo,
		log:      log,
		accounts: accounts,
		library:  library,
		rules:    rules,
		syncID:   syncID,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load restores the cached sync clock from local storage.
func (c *Coordinator) Load(ctx context.Context) error {
	data, err := c.repo.Get(ctx, common.KeyLastSynced)
	if err != nil {
		return fmt.Errorf("loading sync clock: %w", err)
	}
	if data == nil {
		return nil
	}

	ts, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		c.log.Warn(ctx, "cached sync clock is unreadable, ignoring", "error", err)
		return nil
	}

	c.mu.Lock()
	c.lastSynced = ts
	c.mu.Unlock()
	return nil
}

// LastSynced returns the current local sync clock.
func (c *Coordinator) LastSynced() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSynced
}

// Pulled reports whether at least one pull completed this session; a pull
// that found no snapshot counts, since it proves the store is empty. Until
// then automatic pushes are refused, so a half-initialized device can never
// overwrite the remote snapshot.
func (c *Coordinator) Pulled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulled
}

// Pull fetches, decrypts, and applies the remote snapshot. The password
// authenticates against the store (via its derived token) and derives the
// decryption key with the envelope's salt, so a fresh device needs nothing
// but the password. A 404 means no snapshot exists yet; an HTTP auth
// failure is ErrBadCredential, while a payload that decrypts to garbage is
// ErrCorruptRemoteState; the two must never be conflated.
func (c *Coordinator) Pull(ctx context.Context, password string) error {
	token := cryptox.MakePasswordToken([]byte(password))

	env, err := c.remote.Get(ctx, c.syncID, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// The store is definitively empty, so a push cannot wipe
			// anything. Keep the token and count the pull as done: the
			// first push from this device is what creates the snapshot.
			c.mu.Lock()
			c.token = token
			c.pulled = true
			c.mu.Unlock()
		}
		return fmt.Errorf("fetching remote snapshot: %w", err)
	}

	salt, err := c.resolveSalt(ctx, env)
	if err != nil {
		return err
	}

	snap, err := c.decodeSnapshot(env, password, salt)
	if err != nil {
		return err
	}

	if len(snap.Salt) > 0 {
		salt = snap.Salt
	}
	c.vault.Unlock([]byte(password), salt)
	if err := c.repo.Set(ctx, common.KeySalt, salt); err != nil {
		return fmt.Errorf("caching salt: %w", err)
	}

	needPush, err := c.applySnapshot(ctx, snap)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = token
	c.pulled = true
	if snap.SyncedAt.After(c.lastSynced) {
		c.lastSynced = snap.SyncedAt
	}
	c.mu.Unlock()

	if err := c.persistClock(ctx); err != nil {
		return err
	}

	if needPush {
		c.SchedulePush()
	}
	return nil
}

// resolveSalt picks the key-derivation salt: the envelope's own, or the
// locally cached one for legacy snapshots that omit it.
func (c *Coordinator) resolveSalt(ctx context.Context, env *syncapi.Envelope) ([]byte, error) {
	if env.Salt != "" {
		salt, err := base64.StdEncoding.DecodeString(env.Salt)
		if err != nil {
			return nil, fmt.Errorf("%w: undecodable salt", common.ErrCorruptRemoteState)
		}
		return salt, nil
	}

	cached, err := c.repo.Get(ctx, common.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("loading cached salt: %w", err)
	}
	if env.IsEncrypted && len(cached) == 0 {
		return nil, fmt.Errorf("%w: encrypted snapshot carries no salt and none is cached", common.ErrCorruptRemoteState)
	}
	return cached, nil
}

func (c *Coordinator) decodeSnapshot(env *syncapi.Envelope, password string, salt []byte) (models.SyncSnapshot, error) {
	var snap models.SyncSnapshot

	if !env.IsEncrypted {
		// Legacy plaintext snapshot.
		body := []byte(env.Data)
		if len(bytes.TrimSpace(body)) == 0 || string(body) == common.CorruptValueSentinel {
			return snap, common.ErrCorruptRemoteState
		}
		if err := json.Unmarshal(body, &snap); err != nil {
			return snap, fmt.Errorf("%w: %v", common.ErrCorruptRemoteState, err)
		}
		return snap, nil
	}

	ciphertext, nonce, err := cryptox.DecodePayload(env.Data)
	if err != nil {
		return snap, fmt.Errorf("%w: %v", common.ErrCorruptRemoteState, err)
	}

	key := cryptox.DeriveKey([]byte(password), salt)
	if err := cryptox.DecryptJSON(ciphertext, nonce, key, &snap); err != nil {
		// The HTTP auth gate already accepted the token, so a failed
		// decryption means damaged data, not a wrong password.
		return snap, fmt.Errorf("%w: %v", common.ErrCorruptRemoteState, err)
	}
	return snap, nil
}

// applySnapshot resolves each domain against the snapshot and reports
// whether local state diverged in a way that needs pushing back.
func (c *Coordinator) applySnapshot(ctx context.Context, snap models.SyncSnapshot) (bool, error) {
	c.mu.Lock()
	localAt := c.lastSynced
	c.mu.Unlock()

	// Remote-newer mirrors, local-newer merges and pushes, equal clocks
	// merge passively with nothing to push.
	mirror := snap.SyncedAt.After(localAt)
	needPush := localAt.After(snap.SyncedAt)

	type domain struct {
		name        string
		remoteCount int
		localCount  int
		apply       func(mirror bool) error
	}
	domains := []domain{
		{"accounts", len(snap.Accounts), c.accounts.Count(), func(m bool) error {
			return c.accounts.Import(ctx, snap.Accounts, m)
		}},
		{"library", len(snap.Library), c.library.Count(), func(m bool) error {
			return c.library.Import(ctx, snap.Library, m)
		}},
		{"failover rules", len(snap.FailoverRules), c.rules.Count(), func(m bool) error {
			return c.rules.Import(ctx, snap.FailoverRules, m)
		}},
	}

	for _, d := range domains {
		// Anti-wipe: an empty remote domain never erases local data, it
		// gets repaired by the next push instead.
		if d.remoteCount == 0 && d.localCount > 0 {
			c.log.Info(ctx, "remote domain is empty, keeping local data", "domain", d.name)
			needPush = true
			continue
		}
		if err := d.apply(mirror); err != nil {
			return false, fmt.Errorf("applying %s: %w", d.name, err)
		}
	}

	if snap.Webhook != nil {
		data, err := json.Marshal(snap.Webhook)
		if err == nil {
			err = c.repo.Set(ctx, common.KeyWebhookConfig, data)
		}
		if err != nil {
			c.log.Warn(ctx, "storing webhook config failed", "error", err)
		}
	}

	return needPush, nil
}

// Push encrypts the current state and sends it immediately, cancelling any
// pending debounced push.
func (c *Coordinator) Push(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	return c.doPush(ctx)
}

// SchedulePush requests an automatic push after a short quiet period; a new
// request within the window restarts it, so bursts of mutations collapse
// into one upload. Refused until one pull has succeeded.
func (c *Coordinator) SchedulePush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pulled {
		c.log.Debug(context.Background(), "automatic push refused before first pull")
		return
	}

	if c.timer != nil {
		c.timer.Reset(c.debounce)
		return
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		c.timer = nil
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := c.doPush(ctx); err != nil {
			c.log.Error(ctx, "automatic push failed", "error", err)
		}
	})
}

func (c *Coordinator) doPush(ctx context.Context) error {
	key, err := c.vault.Key()
	if err != nil {
		return err
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return common.ErrPullRequired
	}

	snap := models.SyncSnapshot{
		Accounts:      c.accounts.Export(),
		Library:       c.library.Export(),
		FailoverRules: c.rules.Export(),
		Salt:          c.vault.Salt(),
	}
	if data, err := c.repo.Get(ctx, common.KeyWebhookConfig); err == nil && data != nil {
		var webhook models.WebhookConfig
		if json.Unmarshal(data, &webhook) == nil {
			snap.Webhook = &webhook
		}
	}

	// A snapshot that does not serialize to a JSON object must never reach
	// the wire: a corrupted upload poisons every other device.
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSerialization, err)
	}
	if trimmed := bytes.TrimSpace(plain); len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: snapshot did not serialize to an object", common.ErrSerialization)
	}

	ciphertext, nonce, err := cryptox.EncryptJSON(snap, key)
	if err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}

	env := syncapi.Envelope{
		Data:        cryptox.EncodePayload(ciphertext, nonce),
		IsEncrypted: true,
		Salt:        base64.StdEncoding.EncodeToString(snap.Salt),
	}

	syncedAt, err := c.remote.Put(ctx, c.syncID, token, env)
	if err != nil {
		return fmt.Errorf("pushing snapshot: %w", err)
	}

	// The server's clock is the authoritative one.
	c.mu.Lock()
	c.lastSynced = syncedAt
	c.mu.Unlock()
	return c.persistClock(ctx)
}

// Delete removes the remote snapshot. Local state is untouched.
func (c *Coordinator) Delete(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return common.ErrPullRequired
	}

	if err := c.remote.Delete(ctx, c.syncID, token); err != nil {
		return fmt.Errorf("deleting remote snapshot: %w", err)
	}
	return nil
}

func (c *Coordinator) persistClock(ctx context.Context) error {
	c.mu.Lock()
	ts := c.lastSynced
	c.mu.Unlock()
	if err := c.repo.Set(ctx, common.KeyLastSynced, []byte(ts.Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("persisting sync clock: %w", err)
	}
	return nil
}
