package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HandleAdminPost posts messages from the pool immediately. Params: count
// (default 1, max 50).
func (h *Handlers) HandleAdminPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	count := parseIntQuery(r, "count", 1)
	if count <= 0 || count > 50 {
		count = 1
	}
	h.deps.Engine.PostFromPool(r.Context(), count)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"posted": count})
}

// HandleAdminEngineStart starts the posting scheduler.
func (h *Handlers) HandleAdminEngineStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.deps.Engine.Start(h.ctx)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"running": h.deps.Engine.IsRunning()})
}

// HandleAdminEngineStop stops the posting scheduler.
func (h *Handlers) HandleAdminEngineStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.deps.Engine.Stop()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"running": h.deps.Engine.IsRunning()})
}

// HandleAdminJoinerStart starts the join simulator.
func (h *Handlers) HandleAdminJoinerStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.deps.Joiner.Start(h.ctx)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"running": h.deps.Joiner.IsRunning()})
}

// HandleAdminJoinerStop stops the join simulator.
func (h *Handlers) HandleAdminJoinerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.deps.Joiner.Stop()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"running": h.deps.Joiner.IsRunning()})
}

// HandleAdminJoinNow stages immediate joins. Params: count (default 1, max 20).
func (h *Handlers) HandleAdminJoinNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	count := parseIntQuery(r, "count", 1)
	if count <= 0 || count > 20 {
		count = 1
	}
	h.deps.Joiner.JoinNow(h.ctx, count)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"staged": count})
}

// HandleAdminPoolEnsure synchronously tops the pool up. Params: min
// (default configured minimum).
func (h *Handlers) HandleAdminPoolEnsure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	min := parseIntQuery(r, "min", h.deps.Pool.Config().Min)
	h.deps.Pool.EnsureMinimum(r.Context(), min)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"size": h.deps.Pool.Size()})
}

// HandleAdminPoolRefill starts an asynchronous refill to the target depth.
func (h *Handlers) HandleAdminPoolRefill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.deps.Pool.RefillToTarget(h.ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"size": h.deps.Pool.Size(), "target": h.deps.Pool.Config().Target})
}

// HandleAdminPoolSnapshot returns the head of the pool without consuming it.
// Params: limit (default 20, max 200).
func (h *Handlers) HandleAdminPoolSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.deps.Pool.Snapshot(limit))
}

// HandleAdminJoins returns recent join history, newest first. Params: limit.
func (h *Handlers) HandleAdminJoins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.deps.Joiner.HistorySnapshot(limit))
}

// HandleAdminSeed runs the synthetic history seeder across a date range.
// Body: start, end (RFC3339, end defaults to now), minPerDay, maxPerDay.
func (h *Handlers) HandleAdminSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Start     string `json:"start"`
		End       string `json:"end,omitempty"`
		MinPerDay int    `json:"minPerDay,omitempty"`
		MaxPerDay int    `json:"maxPerDay,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, body.Start)
	if err != nil {
		http.Error(w, "start must be RFC3339", http.StatusBadRequest)
		return
	}
	end := time.Now()
	if body.End != "" {
		end, err = time.Parse(time.RFC3339, body.End)
		if err != nil {
			http.Error(w, "end must be RFC3339", http.StatusBadRequest)
			return
		}
	}
	minPerDay := body.MinPerDay
	if minPerDay <= 0 {
		minPerDay = h.deps.Config.SeedMinPerDay
	}
	maxPerDay := body.MaxPerDay
	if maxPerDay < minPerDay {
		maxPerDay = h.deps.Config.SeedMaxPerDay
	}

	posted, err := h.deps.Seeder.Seed(r.Context(), h.deps.View, start, end, minPerDay, maxPerDay)
	if err != nil {
		slog.Warn("admin seed failed", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"posted": posted})
}
