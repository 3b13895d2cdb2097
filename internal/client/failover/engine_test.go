package failover

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/autopilot"
	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemRepo() *memRepo { return &memRepo{data: make(map[string][]byte)} }

func (r *memRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[key], nil
}

func (r *memRepo) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte(nil), value...)
	return nil
}

func (r *memRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *memRepo) List(_ context.Context) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

func (r *memRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[string][]byte)
	return nil
}

// fakeToggler records flag writes and serves a scripted addon list.
type fakeToggler struct {
	mu      sync.Mutex
	addons  map[string][]models.AddonRecord
	toggles []toggleCall
}

type toggleCall struct {
	accountID, url             string
	enabled, silent, autopilot bool
}

func newFakeToggler() *fakeToggler {
	return &fakeToggler{addons: make(map[string][]models.AddonRecord)}
}

func (f *fakeToggler) Addons(accountID string) ([]models.AddonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list, ok := f.addons[accountID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]models.AddonRecord(nil), list...), nil
}

func (f *fakeToggler) SetAddonEnabled(_ context.Context, accountID, url string, enabled, silent, autopilot bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, toggleCall{accountID, url, enabled, silent, autopilot})
	for i := range f.addons[accountID] {
		if models.SameTransportURL(f.addons[accountID][i].TransportURL, url) {
			f.addons[accountID][i].Flags.Enabled = enabled
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeToggler) callsFor(url string) []toggleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []toggleCall
	for _, c := range f.toggles {
		if models.SameTransportURL(c.url, url) {
			out = append(out, c)
		}
	}
	return out
}

// fakeChecker marks the listed URLs as down.
type fakeChecker struct {
	mu   sync.Mutex
	down map[string]bool
}

func newFakeChecker(down ...string) *fakeChecker {
	f := &fakeChecker{down: make(map[string]bool)}
	for _, u := range down {
		f.down[models.NormalizeTransportURL(u)] = true
	}
	return f
}

func (f *fakeChecker) Healthy(_ context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down[models.NormalizeTransportURL(url)]
}

func (f *fakeChecker) setDown(url string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[models.NormalizeTransportURL(url)] = down
}

// fakeAuthority scripts the remote authority.
type fakeAuthority struct {
	mu       sync.Mutex
	states   map[string][]autopilot.RuleState
	synced   []autopilot.SyncRequest
	deleted  []string
	accounts []string
}

func (f *fakeAuthority) Login(context.Context, string, string) error { return nil }

func (f *fakeAuthority) SyncRule(_ context.Context, req autopilot.SyncRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, req)
	return nil
}

func (f *fakeAuthority) State(_ context.Context, accountID string) ([]autopilot.RuleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[accountID], nil
}

func (f *fakeAuthority) DeleteRule(_ context.Context, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ruleID)
	return nil
}

func (f *fakeAuthority) DeleteAccount(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, accountID)
	return nil
}

func discardLogger() logging.Logger {
	return logging.NewDiscardLogger()
}

const (
	urlPrimary = "https://primary.example/manifest.json"
	urlBackup  = "https://backup.example/manifest.json"
	urlThird   = "https://third.example/manifest.json"
)

func chainRule(id string) models.FailoverRule {
	return models.FailoverRule{
		ID:            id,
		AccountID:     "acc1",
		PriorityChain: []string{urlPrimary, urlBackup, urlThird},
		IsActive:      true,
		IsAutomatic:   true,
		ActiveURL:     urlPrimary,
	}
}

func seedAccount(toggler *fakeToggler, activeURL string) {
	enabled := func(u string) bool { return models.SameTransportURL(u, activeURL) }
	toggler.addons["acc1"] = []models.AddonRecord{
		{TransportURL: urlPrimary, Flags: models.AddonFlags{Enabled: enabled(urlPrimary)}},
		{TransportURL: urlBackup, Flags: models.AddonFlags{Enabled: enabled(urlBackup)}},
		{TransportURL: urlThird, Flags: models.AddonFlags{Enabled: enabled(urlThird)}},
	}
}

func TestEngine_FailoverToNextHealthy(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	checker := newFakeChecker(urlPrimary) // primary is down
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger())

	rule, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)
	require.Equal(t, models.RuleStatusMonitoring, rule.Status())

	engine.RunCycle(context.Background())

	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlBackup, got.ActiveURL)
	assert.Equal(t, models.RuleStatusFailedOver, got.Status())
	assert.False(t, got.LastFailover.IsZero())

	// Flags converged: primary disabled, backup enabled, loud writes with
	// the observer suppressed.
	primaryCalls := toggler.callsFor(urlPrimary)
	require.NotEmpty(t, primaryCalls)
	assert.False(t, primaryCalls[len(primaryCalls)-1].enabled)
	assert.False(t, primaryCalls[len(primaryCalls)-1].silent)
	assert.True(t, primaryCalls[len(primaryCalls)-1].autopilot)

	backupCalls := toggler.callsFor(urlBackup)
	require.NotEmpty(t, backupCalls)
	assert.True(t, backupCalls[len(backupCalls)-1].enabled)
}

func TestEngine_FailoverSkipsUnhealthyBackup(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	checker := newFakeChecker(urlPrimary, urlBackup)
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger())

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)

	engine.RunCycle(context.Background())

	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlThird, got.ActiveURL)
}

func TestEngine_FailbackWhenPrimaryRecovers(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	checker := newFakeChecker(urlPrimary)
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger())

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)
	engine.RunCycle(context.Background())

	before, err := engine.Rule("r1")
	require.NoError(t, err)
	require.Equal(t, urlBackup, before.ActiveURL)
	failedOverAt := before.LastFailover

	checker.setDown(urlPrimary, false)
	engine.RunCycle(context.Background())

	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL)
	assert.Equal(t, models.RuleStatusMonitoring, got.Status())
	assert.Equal(t, failedOverAt, got.LastFailover, "failback does not stamp LastFailover")
}

func TestEngine_SelfHealRepairsDriftedFlags(t *testing.T) {
	toggler := newFakeToggler()
	// Drift: backup is enabled alongside the active primary.
	seedAccount(toggler, urlPrimary)
	toggler.addons["acc1"][1].Flags.Enabled = true
	checker := newFakeChecker() // everything healthy
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger())

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)

	engine.RunCycle(context.Background())

	addons, err := toggler.Addons("acc1")
	require.NoError(t, err)
	assert.True(t, addons[0].Flags.Enabled)
	assert.False(t, addons[1].Flags.Enabled, "drifted backup flag repaired")

	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL, "self-heal is not a failover")
}

func TestEngine_CycleSkippedWhenHiddenOrLocked(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	checker := newFakeChecker(urlPrimary)

	visible := false
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger(),
		WithVisibility(func() bool { return visible }))

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)

	engine.RunCycle(context.Background())
	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL, "hidden client runs no checks")

	visible = true
	engine.RunCycle(context.Background())
	got, err = engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlBackup, got.ActiveURL)
}

func TestEngine_InactiveAndManualRulesSkipped(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	checker := newFakeChecker(urlPrimary)
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger())

	manual := chainRule("manual")
	manual.IsAutomatic = false
	_, err := engine.SetRule(context.Background(), manual)
	require.NoError(t, err)

	inactive := chainRule("inactive")
	inactive.IsActive = false
	_, err = engine.SetRule(context.Background(), inactive)
	require.NoError(t, err)

	engine.RunCycle(context.Background())

	for _, id := range []string{"manual", "inactive"} {
		got, err := engine.Rule(id)
		require.NoError(t, err)
		assert.Equal(t, urlPrimary, got.ActiveURL)
	}
}

func TestEngine_DelegatedModeAdoptsAuthorityDecision(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	checker := newFakeChecker() // local probes must not run at all
	authority := &fakeAuthority{states: map[string][]autopilot.RuleState{
		"acc1": {{RuleID: "r1", ActiveURL: urlBackup, DecidedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}},
	}}
	engine := NewEngine(newMemRepo(), toggler, checker, discardLogger(), WithAuthority(authority))

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)
	require.NoError(t, engine.EnableDelegation(context.Background()))

	authority.mu.Lock()
	assert.Len(t, authority.synced, 1, "delegation registers existing rules")
	authority.mu.Unlock()

	engine.RunCycle(context.Background())

	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlBackup, got.ActiveURL)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), got.LastFailover)

	// Reconciliation is silent: the authority already acted on the addon
	// service, flags are mirrored locally only.
	backupCalls := toggler.callsFor(urlBackup)
	require.NotEmpty(t, backupCalls)
	assert.True(t, backupCalls[len(backupCalls)-1].silent)
	assert.True(t, backupCalls[len(backupCalls)-1].autopilot)
}

func TestEngine_DelegatedIgnoresDecisionOutsideChain(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	authority := &fakeAuthority{states: map[string][]autopilot.RuleState{
		"acc1": {{RuleID: "r1", ActiveURL: "https://rogue.example/manifest.json"}},
	}}
	engine := NewEngine(newMemRepo(), toggler, newFakeChecker(), discardLogger(), WithAuthority(authority))

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)
	require.NoError(t, engine.EnableDelegation(context.Background()))

	engine.RunCycle(context.Background())

	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL, "decision outside the chain is refused")
}

func TestEngine_SetRuleEmptyChainDeletes(t *testing.T) {
	engine := NewEngine(newMemRepo(), newFakeToggler(), newFakeChecker(), discardLogger())

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)
	require.Equal(t, 1, engine.Count())

	_, err = engine.SetRule(context.Background(), models.FailoverRule{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Count())
}

func TestEngine_SetRuleDefaultsActiveToChainHead(t *testing.T) {
	engine := NewEngine(newMemRepo(), newFakeToggler(), newFakeChecker(), discardLogger())

	rule := chainRule("r1")
	rule.ActiveURL = "https://not-in-chain.example/manifest.json"
	got, err := engine.SetRule(context.Background(), rule)
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL)
}

func TestEngine_AccountRemovedCascades(t *testing.T) {
	authority := &fakeAuthority{}
	engine := NewEngine(newMemRepo(), newFakeToggler(), newFakeChecker(), discardLogger(),
		WithAuthority(authority))
	require.NoError(t, engine.EnableDelegation(context.Background()))

	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)
	other := chainRule("r2")
	other.AccountID = "acc2"
	_, err = engine.SetRule(context.Background(), other)
	require.NoError(t, err)

	engine.AccountRemoved("acc1")

	assert.Equal(t, 1, engine.Count())
	_, err = engine.Rule("r1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	authority.mu.Lock()
	defer authority.mu.Unlock()
	assert.Contains(t, authority.accounts, "acc1")
}

func TestEngine_LoadRoundTrip(t *testing.T) {
	repo := newMemRepo()
	engine := NewEngine(repo, newFakeToggler(), newFakeChecker(), discardLogger())
	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)

	fresh := NewEngine(repo, newFakeToggler(), newFakeChecker(), discardLogger())
	require.NoError(t, fresh.Load(context.Background()))
	got, err := fresh.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL)
}

func TestEngine_ImportMirrorAndMerge(t *testing.T) {
	engine := NewEngine(newMemRepo(), newFakeToggler(), newFakeChecker(), discardLogger())
	_, err := engine.SetRule(context.Background(), chainRule("r1"))
	require.NoError(t, err)

	incoming := []models.FailoverRule{chainRule("r1"), chainRule("r2")}
	incoming[0].ActiveURL = urlBackup

	require.NoError(t, engine.Import(context.Background(), incoming, false))
	got, err := engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL, "local rule wins in passive merge")
	assert.Equal(t, 2, engine.Count())

	require.NoError(t, engine.Import(context.Background(), incoming[:1], true))
	assert.Equal(t, 1, engine.Count())
	got, err = engine.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, urlBackup, got.ActiveURL)
}

func TestEngine_ImportSanitizesMalformedRules(t *testing.T) {
	toggler := newFakeToggler()
	seedAccount(toggler, urlPrimary)
	engine := NewEngine(newMemRepo(), toggler, newFakeChecker(), discardLogger())

	empty := models.FailoverRule{ID: "r-empty", AccountID: "acc1", IsActive: true, IsAutomatic: true}
	drifted := chainRule("r-drifted")
	drifted.ActiveURL = "https://gone.example/manifest.json"

	require.NoError(t, engine.Import(context.Background(), []models.FailoverRule{empty, drifted}, true))

	// An empty chain means deletion, so the rule never lands and a check
	// cycle has nothing to trip over.
	_, err := engine.Rule("r-empty")
	assert.ErrorIs(t, err, common.ErrNotFound)
	require.NotPanics(t, func() { engine.RunCycle(context.Background()) })

	got, err := engine.Rule("r-drifted")
	require.NoError(t, err)
	assert.Equal(t, urlPrimary, got.ActiveURL, "active member outside the chain resets to the head")
}
