package merge

import (
	"testing"

	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addon(url string, enabled, protected bool) models.AddonRecord {
	return models.AddonRecord{
		TransportURL: url,
		Manifest:     models.ManifestRef{ID: "org." + url, Version: "1.0.0", Name: url},
		Flags:        models.AddonFlags{Enabled: enabled, Protected: protected},
	}
}

func urls(list []models.AddonRecord) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.TransportURL
	}
	return out
}

func TestMerge_DisabledLocalOnlySurvives(t *testing.T) {
	// Local has A (disabled) and B; remote returns only B.
	local := []models.AddonRecord{addon("https://a.example/m.json", false, false), addon("https://b.example/m.json", true, false)}
	remote := []models.AddonRecord{addon("https://b.example/m.json", true, false)}

	got := Merge(local, remote)

	require.Equal(t, []string{"https://a.example/m.json", "https://b.example/m.json"}, urls(got))
	assert.False(t, got[0].Flags.Enabled)
}

func TestMerge_EnabledLocalOnlyDropped(t *testing.T) {
	// Local has A (enabled, unprotected); remote returns only B.
	local := []models.AddonRecord{addon("https://a.example/m.json", true, false)}
	remote := []models.AddonRecord{addon("https://b.example/m.json", true, false)}

	got := Merge(local, remote)

	assert.Equal(t, []string{"https://b.example/m.json"}, urls(got))
}

func TestMerge_ProtectedSurvivesEvenWhenEnabled(t *testing.T) {
	local := []models.AddonRecord{addon("https://a.example/m.json", true, true)}
	remote := []models.AddonRecord{}

	got := Merge(local, remote)

	require.Len(t, got, 1)
	assert.True(t, got[0].Flags.Protected)
}

func TestMerge_RemoteManifestLocalFlagsWin(t *testing.T) {
	l := addon("https://a.example/m.json", false, true)
	l.Meta.CustomName = "My Addon"

	r := addon("https://a.example/m.json", true, false)
	r.Manifest.Version = "2.0.0"

	got := Merge([]models.AddonRecord{l}, []models.AddonRecord{r})

	require.Len(t, got, 1)
	assert.Equal(t, "2.0.0", got[0].Manifest.Version) // fresher manifest
	assert.False(t, got[0].Flags.Enabled)             // local policy kept
	assert.True(t, got[0].Flags.Protected)
	assert.Equal(t, "My Addon", got[0].Meta.CustomName)
}

func TestMerge_NewRemoteAppendedInRemoteOrder(t *testing.T) {
	local := []models.AddonRecord{addon("https://a.example/m.json", true, false)}
	remote := []models.AddonRecord{
		addon("https://c.example/m.json", true, false),
		addon("https://a.example/m.json", true, false),
		addon("https://d.example/m.json", true, false),
	}

	got := Merge(local, remote)

	assert.Equal(t, []string{
		"https://a.example/m.json",
		"https://c.example/m.json",
		"https://d.example/m.json",
	}, urls(got))
}

func TestMerge_OrderPreservation(t *testing.T) {
	local := []models.AddonRecord{
		addon("https://a.example/m.json", true, false),
		addon("https://b.example/m.json", true, false),
		addon("https://c.example/m.json", true, false),
	}
	remote := []models.AddonRecord{
		addon("https://c.example/m.json", true, false),
		addon("https://a.example/m.json", true, false),
		addon("https://b.example/m.json", true, false),
	}

	got := Merge(local, remote)

	// Entries present on both sides keep their local positions.
	assert.Equal(t, urls(local), urls(got))
}

func TestMerge_Idempotence(t *testing.T) {
	local := []models.AddonRecord{
		addon("https://a.example/m.json", false, false),
		addon("https://b.example/m.json", true, true),
		addon("https://c.example/m.json", true, false),
	}
	remote := []models.AddonRecord{
		addon("https://c.example/m.json", true, false),
		addon("https://d.example/m.json", true, false),
	}

	once := Merge(local, remote)
	twice := Merge(once, remote)

	assert.Equal(t, once, twice)
}

func TestMerge_DuplicateURLsMatchedGreedily(t *testing.T) {
	l1 := addon("https://a.example/m.json", true, false)
	l1.Meta.CustomName = "first"
	l2 := addon("https://a.example/m.json", false, false)
	l2.Meta.CustomName = "second"

	r1 := addon("https://a.example/m.json", true, false)
	r1.Manifest.Version = "1.1.0"
	r2 := addon("https://a.example/m.json", true, false)
	r2.Manifest.Version = "1.2.0"

	got := Merge([]models.AddonRecord{l1, l2}, []models.AddonRecord{r1, r2})

	require.Len(t, got, 2)
	// First local slot is claimed by the first remote duplicate.
	assert.Equal(t, "1.1.0", got[0].Manifest.Version)
	assert.Equal(t, "first", got[0].Meta.CustomName)
	assert.Equal(t, "1.2.0", got[1].Manifest.Version)
	assert.Equal(t, "second", got[1].Meta.CustomName)
}

func TestMerge_EmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, []string{"https://a.example/m.json"},
		urls(Merge(nil, []models.AddonRecord{addon("https://a.example/m.json", true, false)})))
}

func TestApply_CountsPerOutcome(t *testing.T) {
	current := []models.AddonRecord{
		addon("https://a.example/m.json", true, false), // will be updated
		addon("https://b.example/m.json", true, true),  // protected
		addon("https://c.example/m.json", true, false), // identical, skipped
	}

	templates := []models.SavedAddon{
		{TransportURL: "https://a.example/m.json", Manifest: models.ManifestRef{ID: "org.https://a.example/m.json", Version: "2.0.0"}},
		{TransportURL: "https://b.example/m.json", Manifest: models.ManifestRef{ID: "org.b", Version: "9.9.9"}},
		{TransportURL: "https://c.example/m.json", Manifest: models.ManifestRef{ID: "org.https://c.example/m.json", Version: "1.0.0"}},
		{TransportURL: "https://d.example/m.json", Manifest: models.ManifestRef{ID: "org.d", Version: "1.0.0"}},
	}

	got, res := Apply(current, templates)

	assert.Equal(t, ApplyResult{Added: 1, Updated: 1, Skipped: 1, Protected: 1}, res)
	require.Len(t, got, 4)
	assert.Equal(t, "2.0.0", got[0].Manifest.Version)
	assert.Equal(t, "9.9.9", templates[1].Manifest.Version) // protected target untouched
	assert.NotEqual(t, "9.9.9", got[1].Manifest.Version)
	assert.True(t, got[3].Flags.Enabled) // new entries arrive enabled
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	current := []models.AddonRecord{addon("https://a.example/m.json", true, false)}
	templates := []models.SavedAddon{
		{TransportURL: "https://a.example/m.json", Manifest: models.ManifestRef{ID: "x", Version: "2.0.0"}},
	}

	_, _ = Apply(current, templates)

	assert.Equal(t, "1.0.0", current[0].Manifest.Version)
}
