// Package remote wraps the analysis services. Every call carries a
// timeout, competes for a bounded number of outbound slots, and comes
// back either with a decoded result or a classified RequestError.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/credlens/coordinator/pkg/models"
)

// Config holds the endpoints and call policy for the analysis services
type Config struct {
	TextURL  string
	ImageURL string
	VideoURL string
	AudioURL string

	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int64

	// Initial backoff interval; zero means the default 500ms
	RetryInterval time.Duration
}

// Client issues analysis calls. Transient failures (network errors,
// timeouts, 5xx) are retried with exponential backoff up to MaxRetries;
// auth failures are never retried.
type Client struct {
	cfg   Config
	http  *http.Client
	slots *semaphore.Weighted
}

const factCheckClaimLimit = 3

// NewClient creates a client with the given policy
func NewClient(cfg Config) *Client {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		slots: semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

type textRequest struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type textResponse struct {
	Label      string                  `json:"label"`
	Score      float64                 `json:"score"`
	Highlights []string                `json:"highlights"`
	FactCheck  []models.FactCheckClaim `json:"fact_check"`
	Error      string                  `json:"error"`
}

// AnalyzeText submits article text and returns the credibility verdict
func (c *Client) AnalyzeText(ctx context.Context, token, pageURL, text string) (*models.TextResult, *models.RequestError) {
	var out textResponse
	if rerr := c.postJSON(ctx, c.cfg.TextURL, token, textRequest{URL: pageURL, Text: text}, &out); rerr != nil {
		return nil, rerr
	}
	if out.Error != "" {
		return nil, models.NewError(models.ErrCodeInvalidResponse, "text analysis failed: %s", out.Error)
	}
	if out.Label == "" {
		log.Printf("remote: text analysis response missing label: %+v", out)
		return nil, models.NewError(models.ErrCodeInvalidResponse, "text analysis response missing label")
	}

	if len(out.FactCheck) > factCheckClaimLimit {
		out.FactCheck = out.FactCheck[:factCheckClaimLimit]
	}
	return &models.TextResult{
		Label:      out.Label,
		Score:      out.Score,
		Highlights: out.Highlights,
		FactCheck:  out.FactCheck,
	}, nil
}

type mediaRequest struct {
	MediaURL string `json:"mediaUrl"`
}

type mediaResponse struct {
	Summary    string  `json:"analysis_summary"`
	Confidence float64 `json:"manipulation_confidence"`
	Error      string  `json:"error"`
}

// AnalyzeMedia submits one media item to the endpoint for its kind
func (c *Client) AnalyzeMedia(ctx context.Context, token string, kind models.MediaKind, locator string) (string, float64, *models.RequestError) {
	var endpoint string
	switch kind {
	case models.MediaImage:
		endpoint = c.cfg.ImageURL
	case models.MediaVideo:
		endpoint = c.cfg.VideoURL
	case models.MediaAudio:
		endpoint = c.cfg.AudioURL
	default:
		return "", 0, models.NewError(models.ErrCodeUnsupportedMedia, "unsupported media kind %q", kind)
	}

	var out mediaResponse
	if rerr := c.postJSON(ctx, endpoint, token, mediaRequest{MediaURL: locator}, &out); rerr != nil {
		return "", 0, rerr
	}
	if out.Error != "" {
		return "", 0, models.NewError(models.ErrCodeInvalidResponse, "media analysis failed: %s", out.Error)
	}
	if out.Summary == "" {
		log.Printf("remote: media analysis response missing summary: %+v", out)
		return "", 0, models.NewError(models.ErrCodeInvalidResponse, "media analysis response missing summary")
	}
	return out.Summary, out.Confidence, nil
}

// postJSON runs one logical call: acquire an outbound slot, then retry
// the attempt on transient classification until the bound is hit.
func (c *Client) postJSON(ctx context.Context, endpoint, token string, payload, out interface{}) *models.RequestError {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return models.NewError(models.ErrCodeTransient, "outbound slot: %v", err)
	}
	defer c.slots.Release(1)

	body, err := json.Marshal(payload)
	if err != nil {
		return models.NewError(models.ErrCodeValidation, "encode request: %v", err)
	}

	var result *models.RequestError
	attempt := func() error {
		result = c.attempt(ctx, endpoint, token, body, out)
		if result == nil {
			return nil
		}
		if result.Code == models.ErrCodeTransient {
			return result
		}
		return backoff.Permanent(result)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval
	retrier := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(attempt, retrier); err != nil {
		if result != nil {
			return result
		}
		return models.NewError(models.ErrCodeTransient, "remote call: %v", err)
	}
	return nil
}

// attempt performs a single HTTP exchange and classifies the outcome
func (c *Client) attempt(ctx context.Context, endpoint, token string, body []byte, out interface{}) *models.RequestError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.NewError(models.ErrCodeValidation, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// network failures and timeouts are transient
		return models.NewError(models.ErrCodeTransient, "request to %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewError(models.ErrCodeTransient, "read response from %s: %v", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.NewError(models.ErrCodeAuthExpired, "credential rejected (HTTP 401)")
	case resp.StatusCode == http.StatusForbidden:
		// tier/quota denial: surface the service's message verbatim
		return models.NewError(models.ErrCodeAuthorizationDenied, "%s", remoteMessage(raw))
	case resp.StatusCode >= 500:
		return models.NewError(models.ErrCodeTransient, "%s returned HTTP %d", endpoint, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return models.NewError(models.ErrCodeInvalidResponse, "%s returned HTTP %d: %s", endpoint, resp.StatusCode, remoteMessage(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("remote: undecodable response from %s: %s", endpoint, raw)
		return models.NewError(models.ErrCodeInvalidResponse, "undecodable response from %s: %v", endpoint, err)
	}
	return nil
}

// remoteMessage extracts the error field from a service reply, falling
// back to the raw body
func remoteMessage(raw []byte) string {
	var wrapper struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Error != "" {
		return wrapper.Error
	}
	if len(raw) == 0 {
		return "request denied"
	}
	return fmt.Sprintf("%s", bytes.TrimSpace(raw))
}
