// Package merge implements the addon list reconciliation policy: merging a
// locally-known addon list with a freshly-fetched remote list without losing
// local-only flags or silently reviving removed entries. It is pure and does
// no I/O.
package merge

import "github.com/Sonicx161/aiomanager/internal/client/models"

// Merge reconciles local and remote ordered addon lists.
//
// Local order is authoritative. An entry present on both sides takes the
// remote manifest (fresher capability data) and the local flags and
// metadata (local policy always wins). A local-only entry survives only if
// it is disabled or protected; otherwise the user removed it through the
// external source directly and it is dropped. Remote-only entries are
// appended at the end in their remote order.
//
// Duplicate URLs on either side are matched greedily in order: the first
// unconsumed remote entry with the same URL claims the slot.
func Merge(local, remote []models.AddonRecord) []models.AddonRecord {
	// Queue of unconsumed remote indices per normalized URL.
	pending := make(map[string][]int, len(remote))
	for i, r := range remote {
		key := models.NormalizeTransportURL(r.TransportURL)
		pending[key] = append(pending[key], i)
	}
	consumed := make([]bool, len(remote))

	result := make([]models.AddonRecord, 0, len(local)+len(remote))

	for _, l := range local {
		key := models.NormalizeTransportURL(l.TransportURL)
		if queue := pending[key]; len(queue) > 0 {
			idx := queue[0]
			pending[key] = queue[1:]
			consumed[idx] = true

			merged := remote[idx]
			merged.Flags = l.Flags
			merged.Meta = l.Meta
			result = append(result, merged)
			continue
		}

		if !l.Flags.Enabled || l.Flags.Protected {
			result = append(result, l)
		}
	}

	for i, r := range remote {
		if !consumed[i] {
			result = append(result, r)
		}
	}

	return result
}

// ApplyResult summarizes one account's outcome of a template application.
type ApplyResult struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Protected int `json:"protected"`
}

// Apply layers saved templates onto an account's current addon list, using
// the same identity rules as Merge. An absent template is appended enabled;
// a present one has its manifest refreshed unless the target is protected.
// A present entry whose manifest already matches the template is counted as
// skipped and left untouched.
func Apply(current []models.AddonRecord, templates []models.SavedAddon) ([]models.AddonRecord, ApplyResult) {
	result := make([]models.AddonRecord, len(current))
	copy(result, current)

	var res ApplyResult

	for _, tpl := range templates {
		idx := -1
		for i, a := range result {
			if models.SameTransportURL(a.TransportURL, tpl.TransportURL) {
				idx = i
				break
			}
		}

		if idx < 0 {
			result = append(result, models.AddonRecord{
				TransportURL: tpl.TransportURL,
				Manifest:     tpl.Manifest,
				Flags:        models.AddonFlags{Enabled: true},
			})
			res.Added++
			continue
		}

		if result[idx].Flags.Protected {
			res.Protected++
			continue
		}

		if result[idx].Manifest.Key() == tpl.Manifest.Key() {
			res.Skipped++
			continue
		}

		result[idx].Manifest = tpl.Manifest
		res.Updated++
	}

	return result, res
}
