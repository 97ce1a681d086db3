package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Liveness probe target (never rate limited - frequent polling)
	api.HandleFunc("/ping", h.Ping).Methods("GET")

	// Submission endpoints (rate limited per context)
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(h.limiter))
	limited.HandleFunc("/contexts/{id}/text", h.SubmitText).Methods("POST", "OPTIONS")
	limited.HandleFunc("/contexts/{id}/media", h.SubmitMediaItem).Methods("POST", "OPTIONS")

	// Session endpoints
	api.HandleFunc("/contexts/{id}", h.QueryContext).Methods("GET")
	api.HandleFunc("/contexts/{id}", h.CloseContext).Methods("DELETE")

	// Identity endpoints
	api.HandleFunc("/auth/signin", h.SignIn).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/signout", h.SignOut).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/state", h.GetAuthState).Methods("GET")

	// Message channel for extraction agents and UI surfaces
	api.HandleFunc("/channel", h.HandleChannel).Methods("GET")

	// CORS middleware (extension pages are cross-origin)
	r.Use(corsMiddleware)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
