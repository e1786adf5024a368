package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	ping func(ctx context.Context) error
}

// NewHealthHandler reports readiness through ping, typically the database PingContext.
func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}

	if err := writeJSON(w, code, jsonResponse{"status": status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
