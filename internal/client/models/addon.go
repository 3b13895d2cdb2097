// Package models defines the addon, account, library, and failover types
// shared across client components, plus the full sync snapshot.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ManifestRef is the externally supplied addon descriptor. Apart from the
// identity and version fields it is treated as opaque: Extra carries
// whatever else the source returned so round-trips do not lose data.
type ManifestRef struct {
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Logo        string          `json:"logo,omitempty"`
	Types       []string        `json:"types,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// Key returns the deduplication key used by the export format.
func (m ManifestRef) Key() string {
	return m.ID + ":" + m.Version
}

// LooksBroken reports whether the cached manifest is missing data that a
// healthy fetch always provides, and should be re-derived on a forced
// refresh.
func (m ManifestRef) LooksBroken() bool {
	return m.ID == "" || m.Name == "" || m.Version == ""
}

// AddonFlags is purely local policy, never supplied by the remote source.
type AddonFlags struct {
	Enabled   bool `json:"enabled"`
	Protected bool `json:"protected"`
}

// AddonMeta holds local overrides and the last local edit time, which
// shields recent edits from being clobbered by a remote-origin merge.
type AddonMeta struct {
	CustomName        string    `json:"customName,omitempty"`
	CustomLogo        string    `json:"customLogo,omitempty"`
	CustomDescription string    `json:"customDescription,omitempty"`
	LastUpdated       time.Time `json:"lastUpdated,omitempty"`
}

// AddonRecord is one configuration entry installed on one account.
// Identity is the transport URL; duplicates are allowed and distinguished
// by list position.
type AddonRecord struct {
	TransportURL string      `json:"transportUrl"`
	Manifest     ManifestRef `json:"manifest"`
	Flags        AddonFlags  `json:"flags"`
	Meta         AddonMeta   `json:"metadata"`
}

// DisplayName prefers the local custom name over the manifest name.
func (a AddonRecord) DisplayName() string {
	if a.Meta.CustomName != "" {
		return a.Meta.CustomName
	}
	return a.Manifest.Name
}

// NormalizeTransportURL canonicalizes a transport URL for identity
// comparison: whitespace trimmed, scheme and host lowercased, trailing
// slashes stripped. The stored URL keeps its original form; only
// comparisons use the normalized one.
func NormalizeTransportURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")

	// Lowercase scheme://host, leave the path alone.
	if i := strings.Index(s, "://"); i >= 0 {
		rest := s[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			s = strings.ToLower(s[:i+3]+rest[:j]) + rest[j:]
		} else {
			s = strings.ToLower(s)
		}
	}
	return s
}

// SameTransportURL reports whether two raw URLs identify the same addon.
func SameTransportURL(a, b string) bool {
	return NormalizeTransportURL(a) == NormalizeTransportURL(b)
}
