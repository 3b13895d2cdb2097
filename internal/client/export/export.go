// Package export implements the portable file format: a single JSON
// document holding accounts, saved addons, and failover rules, with
// manifests deduplicated into a shared table keyed by "id:version" and
// referenced by key. Import tolerates every historical shape of the file
// and skips malformed entries instead of failing.
package export

import (
	"encoding/json"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/models"
)

// FormatVersion is the version written into new export documents.
const FormatVersion = 3

// Document is the current export shape. Accounts and addons reference the
// manifest table by key instead of embedding the full manifest.
type Document struct {
	Version    int                           `json:"version"`
	ExportedAt time.Time                     `json:"exportedAt"`
	Manifests  map[string]models.ManifestRef `json:"manifests"`
	Accounts   []ExportedAccount             `json:"accounts"`
	Addons     []ExportedSavedAddon          `json:"addons,omitempty"`
	Failover   []models.FailoverRule         `json:"failover,omitempty"`
	Webhook    *models.WebhookConfig         `json:"webhookConfig,omitempty"`
	Profiles   []Profile                     `json:"profiles,omitempty"`
}

// Profile is an opaque grouping label carried through export round-trips.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExportedAccount mirrors models.Account with manifest references.
type ExportedAccount struct {
	ID       string          `json:"id"`
	Email    string          `json:"email,omitempty"`
	AuthKey  string          `json:"authKey"`
	Addons   []ExportedAddon `json:"addons"`
	LastSync time.Time       `json:"lastSync,omitempty"`
}

// ExportedAddon is an addon record with its manifest replaced by a table
// key.
type ExportedAddon struct {
	TransportURL string            `json:"transportUrl"`
	ManifestKey  string            `json:"manifestKey,omitempty"`
	Flags        models.AddonFlags `json:"flags"`
	Meta         models.AddonMeta  `json:"metadata"`
}

// ExportedSavedAddon is a library template with a manifest table key.
type ExportedSavedAddon struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	TransportURL string   `json:"transportUrl"`
	ManifestKey  string   `json:"manifestKey,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ProfileID    string   `json:"profileId,omitempty"`
}

// Export builds a document from live state, deduplicating manifests.
func Export(accounts []models.Account, library []models.SavedAddon, rules []models.FailoverRule, webhook *models.WebhookConfig) Document {
	doc := Document{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC(),
		Manifests:  make(map[string]models.ManifestRef),
		Failover:   rules,
		Webhook:    webhook,
	}

	intern := func(m models.ManifestRef) string {
		if m.LooksBroken() {
			return ""
		}
		key := m.Key()
		if _, ok := doc.Manifests[key]; !ok {
			doc.Manifests[key] = m
		}
		return key
	}

	for _, acc := range accounts {
		out := ExportedAccount{
			ID:       acc.ID,
			Email:    acc.Email,
			AuthKey:  acc.AuthKey,
			LastSync: acc.LastSync,
			Addons:   make([]ExportedAddon, 0, len(acc.Addons)),
		}
		for _, addon := range acc.Addons {
			out.Addons = append(out.Addons, ExportedAddon{
				TransportURL: addon.TransportURL,
				ManifestKey:  intern(addon.Manifest),
				Flags:        addon.Flags,
				Meta:         addon.Meta,
			})
		}
		doc.Accounts = append(doc.Accounts, out)
	}

	for _, item := range library {
		doc.Addons = append(doc.Addons, ExportedSavedAddon{
			ID:           item.ID,
			Name:         item.Name,
			TransportURL: item.TransportURL,
			ManifestKey:  intern(item.Manifest),
			Tags:         item.Tags,
			ProfileID:    item.ProfileID,
		})
	}

	return doc
}

// Marshal serializes a document with indentation for hand inspection.
func Marshal(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
