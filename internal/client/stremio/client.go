// Package stremio is the thin HTTP client for the third-party addon
// service: login, fetching and replacing an account's addon collection,
// and resolving individual addon manifests.
package stremio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/common"
)

// Service abstracts the addon service so stores can be tested with fakes.
type Service interface {
	Login(ctx context.Context, email, password string) (authKey string, err error)
	GetAddons(ctx context.Context, authKey string) ([]models.AddonRecord, error)
	SetAddons(ctx context.Context, authKey string, addons []models.AddonRecord) error
	FetchManifest(ctx context.Context, transportURL string) (models.ManifestRef, error)
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("addon service: http %d: %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

type wireAddon struct {
	TransportURL string             `json:"transportUrl"`
	Manifest     models.ManifestRef `json:"manifest"`
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		AuthKey string `json:"authKey"`
	}
	err := c.doJSON(ctx, "/api/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return "", err
	}
	if out.AuthKey == "" {
		return "", common.ErrBadCredential
	}
	return out.AuthKey, nil
}

func (c *HTTPClient) GetAddons(ctx context.Context, authKey string) ([]models.AddonRecord, error) {
	var out struct {
		Addons []wireAddon `json:"addons"`
	}
	err := c.doJSON(ctx, "/api/addonCollectionGet", map[string]string{"authKey": authKey}, &out)
	if err != nil {
		return nil, err
	}

	return sanitize(out.Addons), nil
}

func (c *HTTPClient) SetAddons(ctx context.Context, authKey string, addons []models.AddonRecord) error {
	wire := make([]wireAddon, 0, len(addons))
	for _, a := range addons {
		wire = append(wire, wireAddon{TransportURL: a.TransportURL, Manifest: a.Manifest})
	}
	body := struct {
		AuthKey string      `json:"authKey"`
		Addons  []wireAddon `json:"addons"`
	}{AuthKey: authKey, Addons: wire}

	return c.doJSON(ctx, "/api/addonCollectionSet", body, nil)
}

// FetchManifest resolves a transport URL to its manifest document.
func (c *HTTPClient) FetchManifest(ctx context.Context, transportURL string) (models.ManifestRef, error) {
	var manifest models.ManifestRef

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transportURL, nil)
	if err != nil {
		return manifest, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return manifest, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return manifest, &HTTPError{StatusCode: resp.StatusCode, Message: "manifest fetch failed"}
	}

	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return manifest, fmt.Errorf("decoding manifest: %w", err)
	}
	return manifest, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return common.ErrBadCredential
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(b)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// sanitize converts fetched wire entries into records: entries with an
// empty transport URL are dropped, and every fetched entry starts enabled
// since the remote source has no concept of local flags.
func sanitize(wire []wireAddon) []models.AddonRecord {
	out := make([]models.AddonRecord, 0, len(wire))
	for _, w := range wire {
		if strings.TrimSpace(w.TransportURL) == "" {
			continue
		}
		out = append(out, models.AddonRecord{
			TransportURL: w.TransportURL,
			Manifest:     w.Manifest,
			Flags:        models.AddonFlags{Enabled: true},
		})
	}
	return out
}
