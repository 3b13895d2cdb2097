package stores

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/logging"
)

// fakeRepo is an in-memory localstore.Repository.
type fakeRepo struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{data: make(map[string][]byte)}
}

func (r *fakeRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[key], nil
}

func (r *fakeRepo) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte(nil), value...)
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *fakeRepo) List(_ context.Context) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[string][]byte)
	return nil
}

// fakeService is a scriptable stremio.Service.
type fakeService struct {
	mu        sync.Mutex
	authKeys  map[string]string // email -> key
	remote    map[string][]models.AddonRecord
	manifests map[string]models.ManifestRef
	setCalls  []string // authKeys of SetAddons calls
	getErr    error
	setErr    error
	setDelay  time.Duration
}

func newFakeService() *fakeService {
	return &fakeService{
		authKeys:  make(map[string]string),
		remote:    make(map[string][]models.AddonRecord),
		manifests: make(map[string]models.ManifestRef),
	}
}

func (f *fakeService) Login(_ context.Context, email, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key, ok := f.authKeys[email]; ok {
		return key, nil
	}
	return "key-" + email, nil
}

func (f *fakeService) GetAddons(_ context.Context, authKey string) ([]models.AddonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return append([]models.AddonRecord(nil), f.remote[authKey]...), nil
}

func (f *fakeService) SetAddons(_ context.Context, authKey string, addons []models.AddonRecord) error {
	f.mu.Lock()
	delay := f.setDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, authKey)
	f.remote[authKey] = append([]models.AddonRecord(nil), addons...)
	return nil
}

func (f *fakeService) FetchManifest(_ context.Context, url string) (models.ManifestRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.manifests[models.NormalizeTransportURL(url)]; ok {
		return m, nil
	}
	return models.ManifestRef{ID: "org.generic", Version: "1.0.0", Name: "Generic"}, nil
}

// fakePusher counts push scheduling requests.
type fakePusher struct {
	mu    sync.Mutex
	calls int
}

func (p *fakePusher) SchedulePush() {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeObserver records rule-observer notifications.
type fakeObserver struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (o *fakeObserver) AddonsChanged(accountID string) {
	o.mu.Lock()
	o.changed = append(o.changed, accountID)
	o.mu.Unlock()
}

func (o *fakeObserver) AccountRemoved(accountID string) {
	o.mu.Lock()
	o.removed = append(o.removed, accountID)
	o.mu.Unlock()
}

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	return logging.NewDiscardLogger()
}

func record(url string, enabled, protected bool) models.AddonRecord {
	return models.AddonRecord{
		TransportURL: url,
		Manifest:     models.ManifestRef{ID: "org.x", Version: "1.0.0", Name: url},
		Flags:        models.AddonFlags{Enabled: enabled, Protected: protected},
	}
}
