package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-identity-service/internal/model"
)

const codeRequestTimeout = "REQUEST_TIMEOUT"

// Timeout puts a deadline on the request context. Handlers still running when
// it passes are abandoned and the client gets 503 REQUEST_TIMEOUT.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: codeRequestTimeout, Message: "Request timed out"},
	})

	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, limit, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			bounded.ServeHTTP(w, r)
		})
	}
}
