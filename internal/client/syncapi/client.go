// Package syncapi is the JSON-over-HTTP client for the remote sync store.
// Snapshots travel as opaque ciphertext in an envelope; the store only
// authenticates the password-derived token, it never sees plaintext.
package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Sonicx161/aiomanager/internal/common"
)

// Envelope is the wire form of a stored snapshot. Salt travels in the
// clear so a fresh device can derive the decryption key before it has any
// local state. Legacy deployments may return plaintext JSON instead, which
// callers detect via IsEncrypted.
type Envelope struct {
	Data        string `json:"data"`
	IsEncrypted bool   `json:"isEncrypted"`
	Salt        string `json:"salt,omitempty"`
}

// Client abstracts the remote store for the sync coordinator.
type Client interface {
	Get(ctx context.Context, id, token string) (*Envelope, error)
	Put(ctx context.Context, id, token string, env Envelope) (syncedAt time.Time, err error)
	Delete(ctx context.Context, id, token string) error
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) Get(ctx context.Context, id, token string) (*Envelope, error) {
	resp, err := c.do(ctx, http.MethodGet, id, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data == "" {
		// Legacy payload: the body itself is the (plaintext) snapshot.
		return &Envelope{Data: string(body), IsEncrypted: false}, nil
	}
	return &env, nil
}

func (c *HTTPClient) Put(ctx context.Context, id, token string, env Envelope) (time.Time, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return time.Time{}, err
	}

	resp, err := c.do(ctx, http.MethodPost, id, token, bytes.NewReader(payload))
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return time.Time{}, err
	}

	var out struct {
		SyncedAt time.Time `json:"syncedAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return time.Time{}, fmt.Errorf("decoding push response: %w", err)
	}
	return out.SyncedAt, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id, token string) error {
	resp, err := c.do(ctx, http.MethodDelete, id, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return mapStatus(resp.StatusCode)
}

func (c *HTTPClient) do(ctx context.Context, method, id, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/sync/"+id, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.SyncTokenHeaderName, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return resp, nil
}

func mapStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return common.ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrBadCredential
	case code >= 500:
		return common.ErrUnavailable
	case code >= 400:
		return fmt.Errorf("sync store: http %d", code)
	}
	return nil
}
