package stores

import (
	"context"

	"github.com/Sonicx161/aiomanager/internal/client/models"
)

// cachedManifest resolves a transport URL to its manifest through a
// time-boxed cache, bounding repeated network cost when many entries need
// re-derivation in one refresh pass.
func (s *AccountStore) cachedManifest(ctx context.Context, url string) (models.ManifestRef, error) {
	key := models.NormalizeTransportURL(url)

	s.mu.Lock()
	if entry, ok := s.manifestCache[key]; ok && s.now().Sub(entry.fetchedAt) < s.manifestTTL {
		s.mu.Unlock()
		return entry.manifest, nil
	}
	s.mu.Unlock()

	manifest, err := s.service.FetchManifest(ctx, url)
	if err != nil {
		return models.ManifestRef{}, err
	}

	s.mu.Lock()
	s.manifestCache[key] = manifestCacheEntry{manifest: manifest, fetchedAt: s.now()}
	s.mu.Unlock()
	return manifest, nil
}
