package export

import (
	"encoding/json"
	"errors"

	"github.com/Sonicx161/aiomanager/internal/client/models"
)

// ImportResult is the normalized outcome of parsing an export file in any
// of its historical shapes. Skipped counts entries that were recognized but
// too malformed to restore; partial corruption never fails an import.
type ImportResult struct {
	Accounts []models.Account
	Library  []models.SavedAddon
	Rules    []models.FailoverRule
	Webhook  *models.WebhookConfig
	Skipped  int
}

var errNoMatch = errors.New("shape does not match")

// parser is one recognizer in the chain. Each either claims the document
// and returns a result, or reports errNoMatch so the next one gets a try.
type parser func(data []byte) (*ImportResult, error)

// Import parses an export file, trying each known shape in order: the
// current keyed-manifest document, a bare array of rules, an object-wrapped
// rule list, and the legacy field naming.
func Import(data []byte) (*ImportResult, error) {
	chain := []parser{
		parseCurrent,
		parseRuleArray,
		parseWrapped,
		parseLegacy,
	}

	for _, parse := range chain {
		result, err := parse(data)
		if errors.Is(err, errNoMatch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, errors.New("unrecognized export format")
}

// parseCurrent handles the versioned document with a manifest table.
func parseCurrent(data []byte) (*ImportResult, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errNoMatch
	}
	if doc.Version == 0 || doc.Manifests == nil {
		return nil, errNoMatch
	}

	result := &ImportResult{Rules: doc.Failover, Webhook: doc.Webhook}

	lookup := func(key string) models.ManifestRef {
		if key == "" {
			return models.ManifestRef{}
		}
		return doc.Manifests[key]
	}

	for _, acc := range doc.Accounts {
		if acc.ID == "" {
			result.Skipped++
			continue
		}
		restored := models.Account{
			ID:       acc.ID,
			Email:    acc.Email,
			AuthKey:  acc.AuthKey,
			LastSync: acc.LastSync,
		}
		for _, addon := range acc.Addons {
			if addon.TransportURL == "" {
				result.Skipped++
				continue
			}
			restored.Addons = append(restored.Addons, models.AddonRecord{
				TransportURL: addon.TransportURL,
				Manifest:     lookup(addon.ManifestKey),
				Flags:        addon.Flags,
				Meta:         addon.Meta,
			})
		}
		result.Accounts = append(result.Accounts, restored)
	}

	for _, item := range doc.Addons {
		if item.TransportURL == "" {
			result.Skipped++
			continue
		}
		result.Library = append(result.Library, models.SavedAddon{
			ID:           item.ID,
			Name:         item.Name,
			TransportURL: item.TransportURL,
			Manifest:     lookup(item.ManifestKey),
			Tags:         item.Tags,
			ProfileID:    item.ProfileID,
		})
	}

	return result, nil
}

// parseRuleArray handles the oldest backup shape: a bare JSON array of
// failover rules.
func parseRuleArray(data []byte) (*ImportResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errNoMatch
	}

	result := &ImportResult{}
	for _, entry := range raw {
		var rule models.FailoverRule
		if err := json.Unmarshal(entry, &rule); err != nil || rule.ID == "" || len(rule.PriorityChain) == 0 {
			result.Skipped++
			continue
		}
		result.Rules = append(result.Rules, rule)
	}
	if len(result.Rules) == 0 && result.Skipped == 0 {
		return nil, errNoMatch
	}
	return result, nil
}

// parseWrapped handles `{"rules": [...]}` and `{"failoverRules": [...]}`.
func parseWrapped(data []byte) (*ImportResult, error) {
	var wrapper struct {
		Rules         []json.RawMessage `json:"rules"`
		FailoverRules []json.RawMessage `json:"failoverRules"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, errNoMatch
	}

	raw := wrapper.Rules
	if raw == nil {
		raw = wrapper.FailoverRules
	}
	if raw == nil {
		return nil, errNoMatch
	}

	result := &ImportResult{}
	for _, entry := range raw {
		var rule models.FailoverRule
		if err := json.Unmarshal(entry, &rule); err != nil || rule.ID == "" || len(rule.PriorityChain) == 0 {
			result.Skipped++
			continue
		}
		result.Rules = append(result.Rules, rule)
	}
	return result, nil
}

// legacyAccount is the pre-versioning account shape with embedded
// manifests and flat flag fields.
type legacyAccount struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	AuthKey string `json:"authKey"`
	Addons  []struct {
		TransportURL string             `json:"transportUrl"`
		Manifest     models.ManifestRef `json:"manifest"`
		Disabled     bool               `json:"disabled"`
		Protected    bool               `json:"protected"`
	} `json:"addons"`
}

// parseLegacy handles the pre-versioning document: embedded manifests,
// "disabled" instead of flags.enabled, library under "savedAddons".
func parseLegacy(data []byte) (*ImportResult, error) {
	var doc struct {
		Accounts    []json.RawMessage `json:"accounts"`
		SavedAddons []json.RawMessage `json:"savedAddons"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errNoMatch
	}
	if doc.Accounts == nil && doc.SavedAddons == nil {
		return nil, errNoMatch
	}

	result := &ImportResult{}

	for _, entry := range doc.Accounts {
		var acc legacyAccount
		if err := json.Unmarshal(entry, &acc); err != nil || acc.ID == "" {
			result.Skipped++
			continue
		}
		restored := models.Account{ID: acc.ID, Email: acc.Email, AuthKey: acc.AuthKey}
		for _, addon := range acc.Addons {
			if addon.TransportURL == "" {
				result.Skipped++
				continue
			}
			restored.Addons = append(restored.Addons, models.AddonRecord{
				TransportURL: addon.TransportURL,
				Manifest:     addon.Manifest,
				Flags:        models.AddonFlags{Enabled: !addon.Disabled, Protected: addon.Protected},
			})
		}
		result.Accounts = append(result.Accounts, restored)
	}

	for _, entry := range doc.SavedAddons {
		var item models.SavedAddon
		if err := json.Unmarshal(entry, &item); err != nil || item.TransportURL == "" {
			result.Skipped++
			continue
		}
		result.Library = append(result.Library, item)
	}

	return result, nil
}
