package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/credlens/coordinator/pkg/models"
)

// Provider abstracts the host's token grant. Acquire runs the interactive
// flow; AcquireSilent is the non-interactive path used to rehydrate the
// credential after the coordinator is restarted by its host.
type Provider interface {
	Acquire(ctx context.Context) (string, error)
	AcquireSilent(ctx context.Context) (string, error)
}

// IdentityClient talks to the identity service: bearer-token profile
// fetch and token revocation.
type IdentityClient interface {
	FetchProfile(ctx context.Context, token string) (models.Profile, error)
	Revoke(ctx context.Context, token string) error
}

// HTTPIdentityClient is the standard userinfo/revoke implementation
type HTTPIdentityClient struct {
	userInfoURL string
	revokeURL   string
	client      *http.Client
}

// NewHTTPIdentityClient creates a client against the given endpoints
func NewHTTPIdentityClient(userInfoURL, revokeURL string, timeout time.Duration) *HTTPIdentityClient {
	return &HTTPIdentityClient{
		userInfoURL: userInfoURL,
		revokeURL:   revokeURL,
		client:      &http.Client{Timeout: timeout},
	}
}

// FetchProfile resolves the token to its identity profile
func (c *HTTPIdentityClient) FetchProfile(ctx context.Context, token string) (models.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return models.Profile{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return models.Profile{}, fmt.Errorf("token rejected by identity service (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Profile{}, fmt.Errorf("userinfo returned HTTP %d", resp.StatusCode)
	}

	var profile models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return models.Profile{}, fmt.Errorf("decode userinfo response: %w", err)
	}
	if profile.ID == "" {
		return models.Profile{}, fmt.Errorf("userinfo response missing user id")
	}
	if profile.Tier == "" {
		profile.Tier = "free"
	}
	return profile, nil
}

// Revoke invalidates the token at the identity service
func (c *HTTPIdentityClient) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned HTTP %d", resp.StatusCode)
	}
	return nil
}
