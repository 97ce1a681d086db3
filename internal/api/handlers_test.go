package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credlens/coordinator/internal/auth"
	"github.com/credlens/coordinator/internal/bus"
	"github.com/credlens/coordinator/internal/dispatch"
	"github.com/credlens/coordinator/internal/ratelimit"
	"github.com/credlens/coordinator/internal/store"
	"github.com/credlens/coordinator/pkg/models"
)

type staticProvider struct {
	token string
	err   error
}

func (p *staticProvider) Acquire(ctx context.Context) (string, error)       { return p.token, p.err }
func (p *staticProvider) AcquireSilent(ctx context.Context) (string, error) { return p.token, p.err }

type staticIdentity struct{}

func (staticIdentity) FetchProfile(ctx context.Context, token string) (models.Profile, error) {
	return models.Profile{ID: "user-1", Email: "user@example.com", Tier: "free"}, nil
}

func (staticIdentity) Revoke(ctx context.Context, token string) error { return nil }

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzeText(ctx context.Context, token, pageURL, text string) (*models.TextResult, *models.RequestError) {
	return &models.TextResult{Label: "LABEL_0", Score: 0.91}, nil
}

func (stubAnalyzer) AnalyzeMedia(ctx context.Context, token string, kind models.MediaKind, locator string) (string, float64, *models.RequestError) {
	return "no manipulation detected", 0.05, nil
}

func newTestHandler(t *testing.T, burst int) (*Handler, *auth.Manager) {
	t.Helper()

	notifier := bus.New()
	sessions := store.New(notifier)
	authMgr := auth.NewManager(&staticProvider{token: "tok-1"}, staticIdentity{}, notifier, time.Second)
	dispatcher := dispatch.New(dispatch.Config{
		MinTextChars: 10,
		MaxTextChars: 1000,
		CallTimeout:  time.Second,
	}, sessions, stubAnalyzer{}, authMgr, notifier)
	limiter := ratelimit.NewLimiter(60, burst)

	return NewHandler(dispatcher, authMgr, notifier, limiter), authMgr
}

func signIn(t *testing.T, mgr *auth.Manager) {
	t.Helper()
	_, rerr := mgr.SignIn(context.Background())
	require.Nil(t, rerr)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) models.Response {
	t.Helper()
	var resp models.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestPing(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, models.StatusOK, resp.Status)
}

func TestSubmitTextAccepted(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	router := h.SetupRoutes()

	body := bytes.NewBufferString(`{"url":"https://example.com","text":"this is a long enough article body"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/text", body))

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, models.StatusOK, resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tab-1", data["contextId"])
	assert.NotEmpty(t, data["fingerprint"])
}

func TestSubmitTextSignedOut(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	router := h.SetupRoutes()

	body := bytes.NewBufferString(`{"url":"https://example.com","text":"this is a long enough article body"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/text", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, models.StatusAuthError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeAuthRequired, resp.Error.Code)
}

func TestSubmitTextTooShort(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	router := h.SetupRoutes()

	body := bytes.NewBufferString(`{"url":"https://example.com","text":"tiny"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/text", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "Content too short", resp.Error.Message)
}

func TestSubmitTextInvalidBody(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/text", bytes.NewBufferString("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMediaUnsupportedKind(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	router := h.SetupRoutes()

	body := bytes.NewBufferString(`{"itemId":"img-1","kind":"hologram","locator":"https://example.com/x"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/media", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeUnsupportedMedia, resp.Error.Code)
}

func TestQueryContextNotFound(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/contexts/no-such-tab", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeNotFound, resp.Error.Code)
}

func TestCloseContextNoContent(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/v1/contexts/tab-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/auth/state", nil))
	resp := decodeBody(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["signedIn"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/auth/signin", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody(t, rec)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["signedIn"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/auth/signout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody(t, rec)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["signedIn"])
}

func TestRateLimitOnSubmissions(t *testing.T) {
	h, mgr := newTestHandler(t, 1)
	signIn(t, mgr)
	router := h.SetupRoutes()

	body := `{"url":"https://example.com","text":"this is a long enough article body"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/text", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-1/text", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodeBody(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeRateLimited, resp.Error.Code)

	// a different context has its own budget
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/contexts/tab-2/text", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPingNotRateLimited(t *testing.T) {
	h, _ := newTestHandler(t, 1)
	router := h.SetupRoutes()

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	router := h.SetupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/v1/auth/signin", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
