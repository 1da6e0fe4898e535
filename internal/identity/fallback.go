package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wordgrove/groveapi/internal/db/models"
)

// EnsureRequest is the privileged upsert request for a role record.
type EnsureRequest struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	Name   string      `json:"name,omitempty"`
}

// FallbackClient escalates reconciliation conflicts to the privileged ensure
// endpoint, which writes with elevated privileges the request-scoped engine
// does not have. Its success is terminal for the conflict: the engine re-runs
// record reconciliation and must then observe the repaired row.
type FallbackClient interface {
	EnsureUser(ctx context.Context, req EnsureRequest) error
}

// HTTPFallbackClient posts conflicts to POST {baseURL}/api/users/ensure.
type HTTPFallbackClient struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewHTTPFallbackClient creates a fallback client. serviceKey authenticates
// the call against the privileged endpoint.
func NewHTTPFallbackClient(baseURL, serviceKey string) *HTTPFallbackClient {
	return &HTTPFallbackClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureUser implements FallbackClient.
func (c *HTTPFallbackClient) EnsureUser(ctx context.Context, req EnsureRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode ensure payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/users/ensure", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ensure request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ensure call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ensure call: status %d", resp.StatusCode)
	}
	return nil
}
