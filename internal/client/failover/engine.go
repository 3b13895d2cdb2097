// Package failover implements the per-rule failover state machine: each
// rule watches a priority chain of interchangeable addon configurations on
// one account and keeps exactly one member active, swapping to the next
// healthy member when the active one fails and back when the preferred one
// recovers. When a remote authority session is attached, its decisions
// replace local probing entirely.
package failover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/autopilot"
	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/client/repositories/localstore"
	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/google/uuid"
)

// AccountToggler is the slice of the account store the engine needs: read
// an account's addon list and converge enabled flags. Engine writes always
// pass autopilot=true so the account store does not notify the engine about
// its own mutations.
type AccountToggler interface {
	Addons(accountID string) ([]models.AddonRecord, error)
	SetAddonEnabled(ctx context.Context, accountID, url string, enabled, silent, autopilot bool) error
}

// PushScheduler requests a debounced snapshot push after rule mutations.
type PushScheduler interface {
	SchedulePush()
}

const defaultCheckInterval = time.Minute

// Engine owns the failover rules and runs the periodic check loop.
type Engine struct {
	mu    sync.Mutex
	rules []models.FailoverRule

	repo      localstore.Repository
	toggler   AccountToggler
	checker   HealthChecker
	authority autopilot.Client
	log       logging.Logger
	pusher    PushScheduler

	// delegated is set once the authority session is established; from then
	// on the authority's decisions are applied verbatim and local probing
	// stops.
	delegated bool

	visible  func() bool
	unlocked func() bool

	running atomic.Bool
	now     func() time.Time
}

type Option func(*Engine)

func WithAuthority(c autopilot.Client) Option {
	return func(e *Engine) { e.authority = c }
}

func WithPushScheduler(p PushScheduler) Option {
	return func(e *Engine) { e.pusher = p }
}

// WithVisibility gates the check loop on application visibility: a hidden
// client runs no probes at all.
func WithVisibility(visible func() bool) Option {
	return func(e *Engine) { e.visible = visible }
}

// WithVaultGate gates the check loop on the vault being unlocked.
func WithVaultGate(unlocked func() bool) Option {
	return func(e *Engine) { e.unlocked = unlocked }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo localstore.Repository, toggler AccountToggler, checker HealthChecker, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		toggler:  toggler,
		checker:  checker,
		log:      log,
		visible:  func() bool { return true },
		unlocked: func() bool { return true },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPushScheduler wires the sync coordinator after construction; the
// coordinator needs the engine as an export domain, so one side is always
// attached late.
func (e *Engine) SetPushScheduler(p PushScheduler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pusher = p
}

// Load reads the persisted rules from local storage.
func (e *Engine) Load(ctx context.Context) error {
	data, err := e.repo.Get(ctx, common.KeyFailoverRules)
	if err != nil {
		return fmt.Errorf("loading failover rules: %w", err)
	}
	if data == nil {
		return nil
	}

	var rules []models.FailoverRule
	if err := json.Unmarshal(data, &rules); err != nil {
		e.log.Warn(ctx, "stored failover rules are unreadable, starting empty", "error", err)
		return nil
	}

	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// EnableDelegation switches the engine to remote-delegated mode after the
// authority session is established, registering all current rules.
func (e *Engine) EnableDelegation(ctx context.Context) error {
	if e.authority == nil {
		return fmt.Errorf("no authority client configured")
	}

	e.mu.Lock()
	e.delegated = true
	rules := append([]models.FailoverRule(nil), e.rules...)
	e.mu.Unlock()

	for _, rule := range rules {
		if err := e.registerRule(ctx, rule); err != nil {
			e.log.Warn(ctx, "rule registration with authority failed", "rule", rule.ID, "error", err)
		}
	}
	return nil
}

func (e *Engine) Rules() []models.FailoverRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRules(e.rules)
}

// Count reports the number of rules, for the sync coordinator's anti-wipe
// guard.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

func (e *Engine) Rule(id string) (models.FailoverRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.ID == id {
			return cloneRule(r), nil
		}
	}
	return models.FailoverRule{}, common.ErrNotFound
}

// SetRule creates or replaces a rule. An empty priority chain deletes the
// rule. A new rule with no active member starts on the chain head.
func (e *Engine) SetRule(ctx context.Context, rule models.FailoverRule) (models.FailoverRule, error) {
	if len(rule.PriorityChain) == 0 {
		if rule.ID == "" {
			return models.FailoverRule{}, fmt.Errorf("rule has no chain and no id")
		}
		if err := e.DeleteRule(ctx, rule.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return models.FailoverRule{}, err
		}
		return models.FailoverRule{}, nil
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.ActiveURL == "" || !rule.ChainContains(rule.ActiveURL) {
		rule.ActiveURL = rule.PriorityChain[0]
	}

	e.mu.Lock()
	idx := e.findLocked(rule.ID)
	if idx >= 0 {
		e.rules[idx] = rule
	} else {
		e.rules = append(e.rules, rule)
	}
	delegated := e.delegated
	err := e.persistLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		return models.FailoverRule{}, err
	}

	if delegated {
		if err := e.registerRule(ctx, rule); err != nil {
			e.log.Warn(ctx, "rule registration with authority failed", "rule", rule.ID, "error", err)
		}
	}
	e.schedulePush()
	return cloneRule(rule), nil
}

func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.mu.Lock()
	idx := e.findLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return common.ErrNotFound
	}
	e.rules = append(e.rules[:idx], e.rules[idx+1:]...)
	delegated := e.delegated
	err := e.persistLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if delegated && e.authority != nil {
		if err := e.authority.DeleteRule(ctx, id); err != nil {
			e.log.Warn(ctx, "rule retraction from authority failed", "rule", id, "error", err)
		}
	}
	e.schedulePush()
	return nil
}

// DeleteForAccount removes every rule referencing the account. Cascade
// target of account removal.
func (e *Engine) DeleteForAccount(ctx context.Context, accountID string) error {
	e.mu.Lock()
	kept := e.rules[:0]
	removed := 0
	for _, r := range e.rules {
		if r.AccountID == accountID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	e.rules = kept
	delegated := e.delegated
	var err error
	if removed > 0 {
		err = e.persistLocked(ctx)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}

	if delegated && e.authority != nil {
		if err := e.authority.DeleteAccount(ctx, accountID); err != nil {
			e.log.Warn(ctx, "account retraction from authority failed", "account", accountID, "error", err)
		}
	}
	e.schedulePush()
	return nil
}

// AddonsChanged implements the account store's rule observer: in delegated
// mode the authority needs a fresh snapshot of the account's addon list.
func (e *Engine) AddonsChanged(accountID string) {
	e.mu.Lock()
	delegated := e.delegated
	var affected []models.FailoverRule
	for _, r := range e.rules {
		if r.AccountID == accountID {
			affected = append(affected, cloneRule(r))
		}
	}
	e.mu.Unlock()

	if !delegated || len(affected) == 0 {
		return
	}

	ctx := context.Background()
	for _, rule := range affected {
		if err := e.registerRule(ctx, rule); err != nil {
			e.log.Warn(ctx, "rule re-registration failed", "rule", rule.ID, "error", err)
		}
	}
}

// AccountRemoved implements the account store's rule observer.
func (e *Engine) AccountRemoved(accountID string) {
	if err := e.DeleteForAccount(context.Background(), accountID); err != nil {
		e.log.Warn(context.Background(), "rule cascade failed", "account", accountID, "error", err)
	}
}

// RunLoop runs periodic checks until the context is cancelled.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle runs one check pass over all active automatic rules. Overlapping
// cycles are skipped rather than queued; the check loop is idle when the
// client is hidden or the vault is locked.
func (e *Engine) RunCycle(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	defer e.running.Store(false)

	if !e.visible() || !e.unlocked() {
		return
	}

	e.mu.Lock()
	delegated := e.delegated
	rules := cloneRules(e.rules)
	e.mu.Unlock()

	if delegated {
		e.reconcileRemote(ctx, rules)
		return
	}

	for _, rule := range rules {
		if !rule.IsActive || !rule.IsAutomatic {
			continue
		}
		e.checkRule(ctx, rule)
	}
}

// checkRule probes one rule in local mode: fail over when the active member
// is down and a lower-priority member is healthy, fail back when the chain
// head recovers, and repair any drift between the rule and the account's
// enabled flags.
func (e *Engine) checkRule(ctx context.Context, rule models.FailoverRule) {
	if len(rule.PriorityChain) == 0 {
		return
	}
	active := rule.ActiveURL
	if active == "" {
		active = rule.PriorityChain[0]
	}

	switch {
	case !e.checker.Healthy(ctx, active):
		next, ok := e.nextHealthy(ctx, rule, active)
		if !ok {
			e.log.Warn(ctx, "no healthy failover target",
				"rule", rule.ID, "account", rule.AccountID, "active", active)
			return
		}
		e.switchActive(ctx, rule, next, true)

	case rule.Status() == models.RuleStatusFailedOver && e.checker.Healthy(ctx, rule.PriorityChain[0]):
		e.switchActive(ctx, rule, rule.PriorityChain[0], false)

	default:
		e.selfHeal(ctx, rule)
	}
}

// nextHealthy returns the first healthy chain member after skipping the
// failed one.
func (e *Engine) nextHealthy(ctx context.Context, rule models.FailoverRule, failed string) (string, bool) {
	for _, member := range rule.PriorityChain {
		if models.SameTransportURL(member, failed) {
			continue
		}
		if e.checker.Healthy(ctx, member) {
			return member, true
		}
	}
	return "", false
}

// switchActive converges the account's enabled flags onto the new active
// member and records the decision. failover distinguishes a failover from a
// failback for logging and the LastFailover stamp.
func (e *Engine) switchActive(ctx context.Context, rule models.FailoverRule, newURL string, failover bool) {
	if err := e.convergeFlags(ctx, rule, newURL, false); err != nil {
		e.log.Error(ctx, "failover flag convergence failed", "rule", rule.ID, "error", err)
		return
	}

	e.mu.Lock()
	idx := e.findLocked(rule.ID)
	if idx >= 0 {
		e.rules[idx].ActiveURL = newURL
		if failover {
			e.rules[idx].LastFailover = e.now()
		}
	}
	err := e.persistLocked(ctx)
	e.mu.Unlock()
	if err != nil {
		e.log.Error(ctx, "persisting failover decision failed", "rule", rule.ID, "error", err)
		return
	}

	if failover {
		e.log.Info(ctx, "failed over to backup member",
			"rule", rule.ID, "account", rule.AccountID, "active", newURL)
	} else {
		e.log.Info(ctx, "preferred member recovered, failing back",
			"rule", rule.ID, "account", rule.AccountID, "active", newURL)
	}
	e.schedulePush()
}

// selfHeal enforces the rule invariant on the account: exactly the active
// chain member enabled, every other member disabled. Violations come from
// manual edits or interrupted switches and are repaired as corrective
// actions, not failovers.
func (e *Engine) selfHeal(ctx context.Context, rule models.FailoverRule) {
	addons, err := e.toggler.Addons(rule.AccountID)
	if err != nil {
		e.log.Warn(ctx, "self-heal skipped, account unreadable", "rule", rule.ID, "error", err)
		return
	}

	repaired := false
	for _, addon := range addons {
		if !rule.ChainContains(addon.TransportURL) {
			continue
		}
		want := models.SameTransportURL(addon.TransportURL, rule.ActiveURL)
		if addon.Flags.Enabled == want {
			continue
		}
		if err := e.toggler.SetAddonEnabled(ctx, rule.AccountID, addon.TransportURL, want, false, true); err != nil {
			e.log.Warn(ctx, "corrective toggle failed",
				"rule", rule.ID, "url", addon.TransportURL, "error", err)
			continue
		}
		repaired = true
	}

	if repaired {
		e.log.Info(ctx, "corrected drifted chain member flags",
			"rule", rule.ID, "account", rule.AccountID, "active", rule.ActiveURL)
	}
}

// reconcileRemote applies the authority's decisions in delegated mode. The
// authority's ActiveURL is authoritative; the engine only converges local
// flags onto it and never re-decides.
func (e *Engine) reconcileRemote(ctx context.Context, rules []models.FailoverRule) {
	byAccount := make(map[string][]models.FailoverRule)
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		byAccount[r.AccountID] = append(byAccount[r.AccountID], r)
	}

	for accountID, accountRules := range byAccount {
		states, err := e.authority.State(ctx, accountID)
		if err != nil {
			e.log.Warn(ctx, "fetching authority state failed", "account", accountID, "error", err)
			continue
		}

		byRule := make(map[string]autopilot.RuleState, len(states))
		for _, st := range states {
			byRule[st.RuleID] = st
		}

		for _, rule := range accountRules {
			st, ok := byRule[rule.ID]
			if !ok || st.ActiveURL == "" || !rule.ChainContains(st.ActiveURL) {
				continue
			}
			if models.SameTransportURL(rule.ActiveURL, st.ActiveURL) {
				continue
			}

			if err := e.convergeFlags(ctx, rule, st.ActiveURL, true); err != nil {
				e.log.Warn(ctx, "applying authority decision failed", "rule", rule.ID, "error", err)
				continue
			}

			e.mu.Lock()
			idx := e.findLocked(rule.ID)
			if idx >= 0 {
				e.rules[idx].ActiveURL = st.ActiveURL
				e.rules[idx].LastFailover = st.DecidedAt
			}
			err = e.persistLocked(ctx)
			e.mu.Unlock()
			if err != nil {
				e.log.Error(ctx, "persisting authority decision failed", "rule", rule.ID, "error", err)
				continue
			}

			e.log.Info(ctx, "adopted authority failover decision",
				"rule", rule.ID, "account", accountID, "active", st.ActiveURL)
			e.schedulePush()
		}
	}
}

// convergeFlags enables exactly the target chain member on the account and
// disables the rest. Delegated-mode reconciliation is silent: the authority
// already acts on the addon service, local flags just mirror it.
func (e *Engine) convergeFlags(ctx context.Context, rule models.FailoverRule, activeURL string, silent bool) error {
	for _, member := range rule.PriorityChain {
		enabled := models.SameTransportURL(member, activeURL)
		if err := e.toggler.SetAddonEnabled(ctx, rule.AccountID, member, enabled, silent, true); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return fmt.Errorf("setting %s enabled=%t: %w", member, enabled, err)
		}
	}
	return nil
}

func (e *Engine) registerRule(ctx context.Context, rule models.FailoverRule) error {
	addons, err := e.toggler.Addons(rule.AccountID)
	if err != nil {
		return fmt.Errorf("reading account addons: %w", err)
	}
	return e.authority.SyncRule(ctx, autopilot.SyncRequest{Rule: rule, Addons: addons})
}

// Export returns the rule list for snapshot serialization.
func (e *Engine) Export() []models.FailoverRule {
	return e.Rules()
}

// Import applies a snapshot's rules. Mirror replaces local state; passive
// merge keeps local rules and appends remote-only ones. Incoming rules are
// sanitized first so a malformed peer snapshot cannot break the check loop.
func (e *Engine) Import(ctx context.Context, incoming []models.FailoverRule, mirror bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mirror {
		rules := make([]models.FailoverRule, 0, len(incoming))
		for _, in := range incoming {
			if r, ok := sanitizeImported(in); ok {
				rules = append(rules, r)
			}
		}
		e.rules = rules
		return e.persistLocked(ctx)
	}

	known := make(map[string]struct{}, len(e.rules))
	for _, r := range e.rules {
		known[r.ID] = struct{}{}
	}
	for _, in := range incoming {
		if _, ok := known[in.ID]; ok {
			continue
		}
		r, ok := sanitizeImported(in)
		if !ok {
			continue
		}
		e.rules = append(e.rules, r)
	}
	return e.persistLocked(ctx)
}

// sanitizeImported normalizes a rule arriving from a snapshot or export.
// An empty chain means the rule was deleted, so it is dropped; an active
// URL outside the chain is reset to the chain head.
func sanitizeImported(rule models.FailoverRule) (models.FailoverRule, bool) {
	if len(rule.PriorityChain) == 0 {
		return models.FailoverRule{}, false
	}
	if rule.ActiveURL != "" && !rule.ChainContains(rule.ActiveURL) {
		rule.ActiveURL = rule.PriorityChain[0]
	}
	return rule, true
}

func (e *Engine) findLocked(id string) int {
	for i, r := range e.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(e.rules)
	if err != nil {
		return fmt.Errorf("serializing failover rules: %w", err)
	}
	if err := e.repo.Set(ctx, common.KeyFailoverRules, data); err != nil {
		return fmt.Errorf("persisting failover rules: %w", err)
	}
	return nil
}

func (e *Engine) schedulePush() {
	e.mu.Lock()
	pusher := e.pusher
	e.mu.Unlock()
	if pusher != nil {
		pusher.SchedulePush()
	}
}

func cloneRules(in []models.FailoverRule) []models.FailoverRule {
	out := make([]models.FailoverRule, len(in))
	for i, r := range in {
		out[i] = cloneRule(r)
	}
	return out
}

func cloneRule(r models.FailoverRule) models.FailoverRule {
	r.PriorityChain = append([]string(nil), r.PriorityChain...)
	return r
}
