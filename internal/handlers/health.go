package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursewire/coursewire/internal/database"
)

// healthCheckTimeout bounds the database ping on the health probe.
const healthCheckTimeout = 5 * time.Second

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// HealthHandler handles GET /api/healthz.
// Health responses are never cached so probes see current state.
func HealthHandler(db *database.DB, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := healthStatus{
			Status:   "healthy",
			Database: "ok",
			Uptime:   time.Since(startTime).Round(time.Second).String(),
		}

		httpStatus := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check database ping failed", "error", err)
			status.Status = "unhealthy"
			status.Database = "unreachable"
			httpStatus = http.StatusServiceUnavailable
		}

		sendData(w, status, httpStatus)
	}
}
