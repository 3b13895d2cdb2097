// Package autopilot is the client for the remote failover authority. The
// authority receives each rule's chain plus a snapshot of the account's
// current addon list, runs its own health checks, and publishes the active
// member it has decided on.
package autopilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Sonicx161/aiomanager/internal/client/models"
	"github.com/Sonicx161/aiomanager/internal/common"
)

// RuleState is the authority's current decision for one rule.
type RuleState struct {
	RuleID    string    `json:"ruleId"`
	ActiveURL string    `json:"activeUrl"`
	DecidedAt time.Time `json:"decidedAt"`
}

// SyncRequest registers or updates a rule with the authority.
type SyncRequest struct {
	Rule   models.FailoverRule  `json:"rule"`
	Addons []models.AddonRecord `json:"addons"`
}

// Client abstracts the authority for the failover engine.
type Client interface {
	Login(ctx context.Context, deviceID, token string) error
	SyncRule(ctx context.Context, req SyncRequest) error
	State(ctx context.Context, accountID string) ([]RuleState, error)
	DeleteRule(ctx context.Context, ruleID string) error
	DeleteAccount(ctx context.Context, accountID string) error
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	session string
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

// Login exchanges the derived token for a short-lived session token used as
// a bearer on subsequent authority calls.
func (c *HTTPClient) Login(ctx context.Context, deviceID, token string) error {
	body, _ := json.Marshal(map[string]string{"deviceId": deviceID, "token": token})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/autopilot/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return common.ErrBadCredential
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("autopilot login: http %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = out.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) SyncRule(ctx context.Context, syncReq SyncRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/autopilot/sync", syncReq, nil)
}

func (c *HTTPClient) State(ctx context.Context, accountID string) ([]RuleState, error) {
	var out []RuleState
	if err := c.doJSON(ctx, http.MethodGet, "/autopilot/state/"+accountID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteRule(ctx context.Context, ruleID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/autopilot/"+ruleID, nil, nil)
}

func (c *HTTPClient) DeleteAccount(ctx context.Context, accountID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/autopilot/account/"+accountID, nil, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return common.ErrBadCredential
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("autopilot: http %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
