package http

import (
	"context"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs every dependency check; any failure answers 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.deps.Ready)+1)

	for _, c := range s.deps.Ready {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}
	checks["draft_sessions"] = "ok"

	writeJSON(w, httpStatus, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"checks":         checks,
		"draftSessions":  s.sessions.Size(),
		"rateLimitedIPs": s.limiter.ActiveClients(),
	})
}
