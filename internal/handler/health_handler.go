package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go-identity-service/pkg/apierror"
)

type HealthHandler struct {
	check func(ctx context.Context) error
}

// NewHealthHandler reports healthy when check succeeds. A nil check always
// succeeds.
func NewHealthHandler(check func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{check: check}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.check(ctx); err != nil {
			slog.Warn("health check failed", "error", err)
			writeError(w, apierror.New("UNAVAILABLE", "store unavailable", "", http.StatusServiceUnavailable))
			return
		}
	}

	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}
