package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/credlens/coordinator/internal/ratelimit"
	"github.com/credlens/coordinator/pkg/models"
)

// RateLimitMiddleware throttles submission endpoints per page context
func RateLimitMiddleware(limiter *ratelimit.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "OPTIONS" {
				next.ServeHTTP(w, r)
				return
			}

			contextID := mux.Vars(r)["id"]
			if contextID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(contextID) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeError(w, "", models.NewError(models.ErrCodeRateLimited,
					"too many submissions for context %s, slow down", contextID))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", limiter.Tokens(contextID)))
			next.ServeHTTP(w, r)
		})
	}
}
