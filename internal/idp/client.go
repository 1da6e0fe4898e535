package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUnauthenticated is returned when the provider rejects the supplied
	// credentials (missing, expired, or revoked token).
	ErrUnauthenticated = errors.New("idp: unauthenticated")
)

// Client is the identity provider boundary consumed by the snapshot reader
// and the signup handlers. Implementations must be side-effect free on reads.
type Client interface {
	// GetUser fetches the authoritative principal for an access token.
	// This is a real round trip, not a session read: it observes revocation.
	GetUser(ctx context.Context, accessToken string) (*Principal, error)

	// SignUp registers a new principal with the provider. The metadata map is
	// stored verbatim as provider-issued claims (role, display name).
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Principal, error)
}

// HTTPClient talks to a GoTrue-compatible identity provider REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a provider client for the given base URL.
// apiKey is the provider's public (anon) API key sent on every request.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// gotrueUser mirrors the provider's user payload.
type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u *gotrueUser) principal() *Principal {
	return &Principal{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// GetUser implements Client.
func (c *HTTPClient) GetUser(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build get user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get user: unexpected status %d", resp.StatusCode)
	}

	var user gotrueUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user payload: %w", err)
	}
	if user.ID == "" {
		return nil, ErrUnauthenticated
	}
	return user.principal(), nil
}

// SignUp implements Client.
func (c *HTTPClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Principal, error) {
	payload, err := json.Marshal(map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode signup payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/signup", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build signup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("signup: status %d: %s", resp.StatusCode, body)
	}

	// The provider returns either the user directly or a wrapper with a
	// "user" field depending on confirmation settings.
	var direct gotrueUser
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read signup response: %w", err)
	}
	if err := json.Unmarshal(raw, &direct); err == nil && direct.ID != "" {
		return direct.principal(), nil
	}

	var wrapped struct {
		User gotrueUser `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.User.ID == "" {
		return nil, fmt.Errorf("signup: provider returned no user")
	}
	return wrapped.User.principal(), nil
}
