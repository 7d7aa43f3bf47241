package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time once.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
	Error   string `json:"error,omitempty"`
}

// HealthHandler returns a health check handler. When check is non-nil and
// fails, the handler reports "degraded" with status 503.
func HealthHandler(version string, check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Version: version}
		if !startTime.IsZero() {
			resp.Uptime = int64(time.Since(startTime).Seconds())
		}

		status := http.StatusOK
		if check != nil {
			if err := check(r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		SendJSON(w, status, resp)
	}
}
