package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Sonicx161/aiomanager/internal/client/merge"
	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/client/repositories/localstore"
	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/google/uuid"
)

// AccountApplier is the slice of AccountStore the library needs for bulk
// application.
type AccountApplier interface {
	ApplyTemplates(ctx context.Context, accountID string, templates []models.SavedAddon) (merge.ApplyResult, error)
}

// BulkResult is the structured outcome of a bulk apply: per-account merge
// results and per-account errors. One account's failure never aborts the
// remaining set.
type BulkResult struct {
	PerAccount map[string]merge.ApplyResult `json:"perAccount"`
	Errors     map[string]string            `json:"errors,omitempty"`
}

// Failed reports whether any target account failed.
func (r BulkResult) Failed() bool {
	return len(r.Errors) > 0
}

// LibraryStore owns the user-curated saved-addon templates, independent of
// any single account.
type LibraryStore struct {
	mu    sync.Mutex
	items []models.SavedAddon

	repo   localstore.Repository
	log    logging.Logger
	pusher PushScheduler
}

func NewLibraryStore(repo localstore.Repository, log logging.Logger) *LibraryStore {
	return &LibraryStore{repo: repo, log: log}
}

func (s *LibraryStore) SetPushScheduler(p PushScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pusher = p
}

func (s *LibraryStore) Load(ctx context.Context) error {
	data, err := s.repo.Get(ctx, common.KeyLibrary)
	if err != nil {
		return fmt.Errorf("loading library: %w", err)
	}
	if data == nil {
		return nil
	}

	var items []models.SavedAddon
	if err := json.Unmarshal(data, &items); err != nil {
		s.log.Warn(ctx, "stored library is unreadable, starting empty", "error", err)
		return nil
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

func (s *LibraryStore) List() []models.SavedAddon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SavedAddon(nil), s.items...)
}

func (s *LibraryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *LibraryStore) Get(id string) (models.SavedAddon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.SavedAddon{}, common.ErrNotFound
}

// Add saves a template, assigning an ID when none is provided.
func (s *LibraryStore) Add(ctx context.Context, item models.SavedAddon) (models.SavedAddon, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return models.SavedAddon{}, err
	}

	s.schedulePush()
	return item, nil
}

func (s *LibraryStore) Update(ctx context.Context, item models.SavedAddon) error {
	s.mu.Lock()
	idx := -1
	for i, existing := range s.items {
		if existing.ID == item.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	s.items[idx] = item
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.schedulePush()
	return nil
}

func (s *LibraryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := -1
	for i, existing := range s.items {
		if existing.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return common.ErrNotFound
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.schedulePush()
	return nil
}

// GetByTag returns every template carrying the tag, compared in normalized
// form so near-duplicate tags behave as one category.
func (s *LibraryStore) GetByTag(tag string) []models.SavedAddon {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SavedAddon
	for _, item := range s.items {
		if item.HasTag(tag) {
			out = append(out, item)
		}
	}
	return out
}

// RenameTag renames a tag across the whole library. Matching is performed
// on normalized text; the new name is stored as given.
func (s *LibraryStore) RenameTag(ctx context.Context, oldTag, newTag string) error {
	want := models.NormalizeTag(oldTag)

	s.mu.Lock()
	changed := false
	for i := range s.items {
		for j, t := range s.items[i].Tags {
			if models.NormalizeTag(t) == want {
				s.items[i].Tags[j] = newTag
				changed = true
			}
		}
	}
	var err error
	if changed {
		err = s.persistLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if changed {
		s.schedulePush()
	}
	return nil
}

// ApplyToAccounts applies the named templates to every target account.
// Accounts are processed independently; failures are recorded per account
// and never abort the rest.
func (s *LibraryStore) ApplyToAccounts(ctx context.Context, applier AccountApplier, savedIDs, accountIDs []string) BulkResult {
	templates := make([]models.SavedAddon, 0, len(savedIDs))
	for _, id := range savedIDs {
		item, err := s.Get(id)
		if err != nil {
			s.log.Warn(ctx, "saved addon missing, skipping", "id", id)
			continue
		}
		templates = append(templates, item)
	}

	result := BulkResult{
		PerAccount: make(map[string]merge.ApplyResult, len(accountIDs)),
		Errors:     make(map[string]string),
	}

	for _, accountID := range accountIDs {
		res, err := applier.ApplyTemplates(ctx, accountID, templates)
		if err != nil {
			result.Errors[accountID] = err.Error()
			s.log.Warn(ctx, "bulk apply failed for account", "account", accountID, "error", err)
			continue
		}
		result.PerAccount[accountID] = res
	}

	return result
}

// Export returns the template list for snapshot serialization.
func (s *LibraryStore) Export() []models.SavedAddon {
	return s.List()
}

// Import applies a snapshot's library. Mirror replaces local state; passive
// merge keeps local items and appends remote-only ones.
func (s *LibraryStore) Import(ctx context.Context, incoming []models.SavedAddon, mirror bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mirror {
		s.items = append([]models.SavedAddon(nil), incoming...)
		return s.persistLocked(ctx)
	}

	known := make(map[string]struct{}, len(s.items))
	for _, item := range s.items {
		known[item.ID] = struct{}{}
	}
	for _, in := range incoming {
		if _, ok := known[in.ID]; ok {
			continue
		}
		s.items = append(s.items, in)
	}
	return s.persistLocked(ctx)
}

func (s *LibraryStore) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.items)
	if err != nil {
		return fmt.Errorf("serializing library: %w", err)
	}
	if err := s.repo.Set(ctx, common.KeyLibrary, data); err != nil {
		return fmt.Errorf("persisting library: %w", err)
	}
	return nil
}

func (s *LibraryStore) schedulePush() {
	s.mu.Lock()
	pusher := s.pusher
	s.mu.Unlock()
	if pusher != nil {
		pusher.SchedulePush()
	}
}
