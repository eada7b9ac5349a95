package server

import (
	"encoding/json"
	"net/http"

	"github.com/groupline/feedsim/backend/history"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with per-check detail.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"store", func() error { return h.deps.Store.Ping(r.Context()) }},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports the live state of the simulation.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	members, online := h.deps.Presence.Counts()
	out := map[string]any{
		"engine_running": h.deps.Engine.IsRunning(),
		"joiner_running": h.deps.Joiner.IsRunning(),
		"pool_size":      h.deps.Pool.Size(),
		"rendered_nodes": h.deps.View.Len(),
		"unseen":         h.deps.View.UnseenCount(),
		"indicator":      h.deps.View.IndicatorLabel(),
		"members":        members,
		"online":         online,
		"fingerprints":   h.deps.Prints.Size(),
		"seeded":         history.IsSeeded(r.Context(), h.deps.Store),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
