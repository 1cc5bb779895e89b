package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (mode, storage, optional
// integrations) for dashboards.
type StatusHandler struct {
	Mode         string
	StoreBackend string
	RedisEnabled bool
	S3Enabled    bool
	StartedAt    time.Time
}

// GetStatus responds with the current backend configuration and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"store_backend":  h.StoreBackend,
		"redis_enabled":  h.RedisEnabled,
		"s3_enabled":     h.S3Enabled,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
