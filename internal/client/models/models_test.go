package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTransportURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims space", "  https://x.example/manifest.json ", "https://x.example/manifest.json"},
		{"strips trailing slash", "https://x.example/addon/", "https://x.example/addon"},
		{"lowercases scheme and host only", "HTTPS://X.Example/Path/Manifest.JSON", "https://x.example/Path/Manifest.JSON"},
		{"host without path", "HTTPS://X.EXAMPLE", "https://x.example"},
		{"no scheme left alone", "x.example/manifest.json", "x.example/manifest.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTransportURL(tt.input))
		})
	}
}

func TestSameTransportURL(t *testing.T) {
	assert.True(t, SameTransportURL("https://A.example/m.json/", " https://a.example/m.json"))
	assert.False(t, SameTransportURL("https://a.example/m.json", "https://a.example/other.json"))
}

func TestFailoverRule_Status(t *testing.T) {
	chain := []string{"https://p.example/m.json", "https://q.example/m.json"}

	tests := []struct {
		name     string
		rule     FailoverRule
		expected RuleStatus
	}{
		{"no active url", FailoverRule{PriorityChain: chain}, RuleStatusIdle},
		{"empty chain", FailoverRule{ActiveURL: chain[0]}, RuleStatusIdle},
		{"active is chain head", FailoverRule{PriorityChain: chain, ActiveURL: chain[0]}, RuleStatusMonitoring},
		{"active is fallback", FailoverRule{PriorityChain: chain, ActiveURL: chain[1]}, RuleStatusFailedOver},
		{"case-insensitive head match", FailoverRule{PriorityChain: chain, ActiveURL: "HTTPS://P.EXAMPLE/m.json"}, RuleStatusMonitoring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.rule.Status())
		})
	}
}

func TestManifestRef_LooksBroken(t *testing.T) {
	ok := ManifestRef{ID: "org.addon", Version: "1.0.0", Name: "Addon"}
	assert.False(t, ok.LooksBroken())
	assert.True(t, ManifestRef{ID: "org.addon", Version: "1.0.0"}.LooksBroken())
	assert.True(t, ManifestRef{Name: "Addon", Version: "1.0.0"}.LooksBroken())
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "movies", NormalizeTag("  Movies "))
	assert.Equal(t, "late night", NormalizeTag("Late   Night"))

	s := SavedAddon{Tags: []string{"Movies "}}
	assert.True(t, s.HasTag("movies"))
	assert.False(t, s.HasTag("series"))
}

func TestAccount_FindAddon(t *testing.T) {
	acc := Account{Addons: []AddonRecord{
		{TransportURL: "https://a.example/m.json"},
		{TransportURL: "https://b.example/m.json"},
	}}
	assert.Equal(t, 1, acc.FindAddon("HTTPS://B.example/m.json/"))
	assert.Equal(t, -1, acc.FindAddon("https://c.example/m.json"))
}
