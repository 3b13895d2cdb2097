package models

import "strings"

// SavedAddon is a reusable named template, decoupled from any account.
type SavedAddon struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	TransportURL string      `json:"transportUrl"`
	Manifest     ManifestRef `json:"manifest"`
	Tags         []string    `json:"tags,omitempty"`
	ProfileID    string      `json:"profileId,omitempty"`
}

// NormalizeTag canonicalizes tag text so near-duplicate tags ("Movies ",
// "movies") behave as one category.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.Join(strings.Fields(tag), " "))
}

// HasTag reports whether the template carries the given tag, compared in
// normalized form.
func (s SavedAddon) HasTag(tag string) bool {
	want := NormalizeTag(tag)
	for _, t := range s.Tags {
		if NormalizeTag(t) == want {
			return true
		}
	}
	return false
}
