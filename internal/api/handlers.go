package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/credlens/coordinator/internal/auth"
	"github.com/credlens/coordinator/internal/bus"
	"github.com/credlens/coordinator/internal/dispatch"
	"github.com/credlens/coordinator/internal/ratelimit"
	"github.com/credlens/coordinator/pkg/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	dispatcher *dispatch.Dispatcher
	authMgr    *auth.Manager
	notifier   *bus.Bus
	limiter    *ratelimit.Limiter
}

// NewHandler creates a new HTTP handler
func NewHandler(dispatcher *dispatch.Dispatcher, authMgr *auth.Manager, notifier *bus.Bus, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		authMgr:    authMgr,
		notifier:   notifier,
		limiter:    limiter,
	}
}

// Ping handles GET /v1/ping - the liveness probe target
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, models.Response{
		Kind:   string(models.KindPing),
		Status: models.StatusOK,
		Data:   map[string]string{"status": "ready"},
	})
}

// SubmitText handles POST /v1/contexts/{id}/text
func (h *Handler) SubmitText(w http.ResponseWriter, r *http.Request) {
	var payload models.SubmitTextPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, string(models.KindSubmitText), models.NewError(models.ErrCodeValidation, "invalid request body: %v", err))
		return
	}
	payload.ContextID = mux.Vars(r)["id"]

	ack, rerr := h.dispatcher.SubmitText(payload)
	if rerr != nil {
		writeError(w, string(models.KindSubmitText), rerr)
		return
	}
	writeResponse(w, http.StatusAccepted, models.Response{
		Kind:   string(models.KindSubmitText),
		Status: models.StatusOK,
		Data:   ack,
	})
}

// SubmitMediaItem handles POST /v1/contexts/{id}/media
func (h *Handler) SubmitMediaItem(w http.ResponseWriter, r *http.Request) {
	var payload models.SubmitMediaItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, string(models.KindSubmitMediaItem), models.NewError(models.ErrCodeValidation, "invalid request body: %v", err))
		return
	}
	payload.ContextID = mux.Vars(r)["id"]

	ack, rerr := h.dispatcher.SubmitMediaItem(payload)
	if rerr != nil {
		writeError(w, string(models.KindSubmitMediaItem), rerr)
		return
	}
	writeResponse(w, http.StatusAccepted, models.Response{
		Kind:   string(models.KindSubmitMediaItem),
		Status: models.StatusOK,
		Data:   ack,
	})
}

// QueryContext handles GET /v1/contexts/{id}
func (h *Handler) QueryContext(w http.ResponseWriter, r *http.Request) {
	session, rerr := h.dispatcher.QueryContext(mux.Vars(r)["id"])
	if rerr != nil {
		writeError(w, string(models.KindQueryContext), rerr)
		return
	}
	writeResponse(w, http.StatusOK, models.Response{
		Kind:   string(models.KindQueryContext),
		Status: models.StatusOK,
		Data:   session,
	})
}

// CloseContext handles DELETE /v1/contexts/{id}
func (h *Handler) CloseContext(w http.ResponseWriter, r *http.Request) {
	contextID := mux.Vars(r)["id"]
	h.dispatcher.CloseContext(contextID)
	h.limiter.Forget(contextID)
	w.WriteHeader(http.StatusNoContent)
}

// SignIn handles POST /v1/auth/signin
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	status, rerr := h.authMgr.SignIn(r.Context())
	if rerr != nil {
		writeError(w, string(models.KindSignIn), rerr)
		return
	}
	writeResponse(w, http.StatusOK, models.Response{
		Kind:   string(models.KindSignIn),
		Status: models.StatusOK,
		Data:   status,
	})
}

// SignOut handles POST /v1/auth/signout
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.authMgr.SignOut(r.Context())
	writeResponse(w, http.StatusOK, models.Response{
		Kind:   string(models.KindSignOut),
		Status: models.StatusOK,
		Data:   h.authMgr.Status(),
	})
}

// GetAuthState handles GET /v1/auth/state
func (h *Handler) GetAuthState(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, models.Response{
		Kind:   string(models.KindGetAuthState),
		Status: models.StatusOK,
		Data:   h.authMgr.Status(),
	})
}

// writeResponse serializes a response envelope
func writeResponse(w http.ResponseWriter, code int, resp models.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// writeError maps a RequestError to an envelope plus HTTP status
func writeError(w http.ResponseWriter, kind string, rerr *models.RequestError) {
	writeResponse(w, httpStatusFor(rerr), models.Response{
		Kind:   kind,
		Status: models.StatusFor(rerr),
		Error:  rerr,
	})
}

// httpStatusFor picks the HTTP status for an error code
func httpStatusFor(rerr *models.RequestError) int {
	switch rerr.Code {
	case models.ErrCodeValidation, models.ErrCodeUnsupportedMedia, models.ErrCodeUnknownKind:
		return http.StatusBadRequest
	case models.ErrCodeAuthRequired, models.ErrCodeAuthExpired, models.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case models.ErrCodeAuthorizationDenied:
		return http.StatusForbidden
	case models.ErrCodeNotFound:
		return http.StatusNotFound
	case models.ErrCodeAlreadyInFlight, models.ErrCodeAuthInProgress:
		return http.StatusConflict
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeTransient, models.ErrCodeInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
