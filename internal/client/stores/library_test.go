package stores

import (
	"context"
	"testing"

	"github.com/Sonicx161/aiomanager/internal/client/merge"
	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibraryStore(t *testing.T) (*LibraryStore, *fakeRepo, *fakePusher) {
	t.Helper()
	repo := newFakeRepo()
	pusher := &fakePusher{}
	store := NewLibraryStore(repo, testLogger(t))
	store.SetPushScheduler(pusher)
	return store, repo, pusher
}

func saved(name, url string, tags ...string) models.SavedAddon {
	return models.SavedAddon{
		Name:         name,
		TransportURL: url,
		Manifest:     models.ManifestRef{ID: "org." + name, Version: "1.0.0", Name: name},
		Tags:         tags,
	}
}

func TestLibraryStore_AddAssignsIDAndPersists(t *testing.T) {
	store, repo, pusher := newLibraryStore(t)

	item, err := store.Add(context.Background(), saved("alpha", "https://a.example/m.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 1, pusher.count())

	data, err := repo.Get(context.Background(), common.KeyLibrary)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://a.example/m.json")

	fresh := NewLibraryStore(repo, testLogger(t))
	require.NoError(t, fresh.Load(context.Background()))
	assert.Equal(t, 1, fresh.Count())
}

func TestLibraryStore_UpdateAndDelete(t *testing.T) {
	store, _, _ := newLibraryStore(t)
	item, err := store.Add(context.Background(), saved("alpha", "https://a.example/m.json"))
	require.NoError(t, err)

	item.Name = "renamed"
	require.NoError(t, store.Update(context.Background(), item))

	got, err := store.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, store.Delete(context.Background(), item.ID))
	_, err = store.Get(item.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.Update(context.Background(), item), common.ErrNotFound)
	assert.ErrorIs(t, store.Delete(context.Background(), item.ID), common.ErrNotFound)
}

func TestLibraryStore_TagNormalization(t *testing.T) {
	store, _, _ := newLibraryStore(t)
	_, err := store.Add(context.Background(), saved("alpha", "https://a.example/m.json", "Movies "))
	require.NoError(t, err)
	_, err = store.Add(context.Background(), saved("beta", "https://b.example/m.json", "movies"))
	require.NoError(t, err)
	_, err = store.Add(context.Background(), saved("gamma", "https://c.example/m.json", "series"))
	require.NoError(t, err)

	assert.Len(t, store.GetByTag("MOVIES"), 2, "tag lookup is case and whitespace insensitive")

	require.NoError(t, store.RenameTag(context.Background(), "movies", "Films"))
	assert.Empty(t, store.GetByTag("movies"))
	films := store.GetByTag("films")
	require.Len(t, films, 2)
	assert.Equal(t, []string{"Films"}, films[0].Tags, "new tag stored as given")
}

type fakeApplier struct {
	failFor map[string]error
	calls   map[string][]models.SavedAddon
}

func (f *fakeApplier) ApplyTemplates(_ context.Context, accountID string, templates []models.SavedAddon) (merge.ApplyResult, error) {
	if f.calls == nil {
		f.calls = make(map[string][]models.SavedAddon)
	}
	f.calls[accountID] = templates
	if err := f.failFor[accountID]; err != nil {
		return merge.ApplyResult{}, err
	}
	return merge.ApplyResult{Added: len(templates)}, nil
}

func TestLibraryStore_ApplyToAccountsPartialFailure(t *testing.T) {
	store, _, _ := newLibraryStore(t)
	a, err := store.Add(context.Background(), saved("alpha", "https://a.example/m.json"))
	require.NoError(t, err)
	b, err := store.Add(context.Background(), saved("beta", "https://b.example/m.json"))
	require.NoError(t, err)

	applier := &fakeApplier{failFor: map[string]error{"acc2": common.ErrUnavailable}}
	result := store.ApplyToAccounts(context.Background(), applier,
		[]string{a.ID, "missing", b.ID}, []string{"acc1", "acc2", "acc3"})

	assert.True(t, result.Failed())
	assert.Len(t, result.PerAccount, 2)
	assert.Equal(t, 2, result.PerAccount["acc1"].Added, "missing template skipped, not fatal")
	assert.Contains(t, result.Errors, "acc2")
	assert.Equal(t, 2, result.PerAccount["acc3"].Added, "failure on acc2 does not abort acc3")
	assert.Len(t, applier.calls, 3)
}

func TestLibraryStore_ImportMirrorReplaces(t *testing.T) {
	store, _, _ := newLibraryStore(t)
	_, err := store.Add(context.Background(), saved("alpha", "https://a.example/m.json"))
	require.NoError(t, err)

	incoming := []models.SavedAddon{{ID: "r1", Name: "remote", TransportURL: "https://r.example/m.json"}}
	require.NoError(t, store.Import(context.Background(), incoming, true))

	items := store.List()
	require.Len(t, items, 1)
	assert.Equal(t, "r1", items[0].ID)
}

func TestLibraryStore_ImportMergeKeepsLocal(t *testing.T) {
	store, _, _ := newLibraryStore(t)
	local, err := store.Add(context.Background(), saved("alpha", "https://a.example/m.json"))
	require.NoError(t, err)

	incoming := []models.SavedAddon{
		{ID: local.ID, Name: "remote-version", TransportURL: "https://a.example/m.json"},
		{ID: "r1", Name: "remote-only", TransportURL: "https://r.example/m.json"},
	}
	require.NoError(t, store.Import(context.Background(), incoming, false))

	assert.Equal(t, 2, store.Count())
	got, err := store.Get(local.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name, "local item wins in passive merge")
}
