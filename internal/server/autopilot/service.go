// Package autopilot is the server-side failover authority. Devices register
// their rules and report addon lists; the authority probes each rule's
// priority chain on an interval and publishes the member it has decided is
// active. Clients in delegated mode adopt these decisions verbatim.
package autopilot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/Sonicx161/aiomanager/internal/server/storage"
)

// Decision is the authority's current verdict for one rule. DecidedAt only
// advances when the active member changes, so clients can tell a fresh
// failover from a steady state.
type Decision struct {
	RuleID    string
	AccountID string
	ActiveURL string
	DecidedAt time.Time
}

// Service owns rule registration and the probe loop. Decisions live in
// memory and are recomputed after a restart; rules themselves are durable.
type Service struct {
	store   storage.Store
	checker Checker
	log     logging.Logger

	mu        sync.Mutex
	decisions map[string]Decision

	running atomic.Bool
	now     func() time.Time
}

func NewService(store storage.Store, checker Checker, log logging.Logger) *Service {
	return &Service{
		store:     store,
		checker:   checker,
		log:       log,
		decisions: make(map[string]Decision),
		now:       time.Now,
	}
}

// Register upserts a rule. Until the next probe cycle the decision defaults
// to the chain head, which is always a safe answer for a delegated client.
func (s *Service) Register(ctx context.Context, r storage.Rule) error {
	if err := s.store.UpsertRule(ctx, r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[r.ID]
	if ok && urlInChain(d.ActiveURL, r.PriorityChain) {
		// Keep the standing decision if the new chain still contains it.
		d.AccountID = r.AccountID
		s.decisions[r.ID] = d
		return nil
	}
	if len(r.PriorityChain) == 0 {
		delete(s.decisions, r.ID)
		return nil
	}
	s.decisions[r.ID] = Decision{
		RuleID:    r.ID,
		AccountID: r.AccountID,
		ActiveURL: r.PriorityChain[0],
		DecidedAt: s.now().UTC(),
	}
	return nil
}

// State returns the current decisions for all rules of an account.
func (s *Service) State(ctx context.Context, accountID string) ([]Decision, error) {
	rules, err := s.store.RulesForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Decision, 0, len(rules))
	for _, r := range rules {
		if d, ok := s.decisions[r.ID]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) DeleteRule(ctx context.Context, ruleID string) error {
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.decisions, ruleID)
	s.mu.Unlock()
	return nil
}

func (s *Service) DeleteAccount(ctx context.Context, accountID string) error {
	if err := s.store.DeleteAccountRules(ctx, accountID); err != nil {
		return err
	}
	s.mu.Lock()
	for id, d := range s.decisions {
		if d.AccountID == accountID {
			delete(s.decisions, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// RunLoop probes all registered chains every interval until ctx is done.
func (s *Service) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle probes every active automatic rule once. Overlapping cycles are
// refused so a slow probe pass cannot pile up.
func (s *Service) RunCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		s.log.Error(ctx, "authority rule listing failed", "error", err)
		return
	}

	for _, r := range rules {
		if !r.IsActive || !r.IsAutomatic || len(r.PriorityChain) == 0 {
			continue
		}
		s.decide(ctx, r)
	}
}

// decide picks the first healthy chain member. When nothing responds the
// standing decision is kept: flapping to an equally dead member helps nobody.
func (s *Service) decide(ctx context.Context, r storage.Rule) {
	target := ""
	for _, url := range r.PriorityChain {
		if s.checker.Healthy(ctx, url) {
			target = url
			break
		}
	}
	if target == "" {
		s.log.Warn(ctx, "no healthy chain member", "rule", r.ID, "account", r.AccountID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[r.ID]
	if ok && d.ActiveURL == target {
		return
	}
	s.decisions[r.ID] = Decision{
		RuleID:    r.ID,
		AccountID: r.AccountID,
		ActiveURL: target,
		DecidedAt: s.now().UTC(),
	}
	s.log.Info(ctx, "authority decision changed",
		"rule", r.ID, "account", r.AccountID, "active", target)
}

func urlInChain(url string, chain []string) bool {
	for _, u := range chain {
		if u == url {
			return true
		}
	}
	return false
}
