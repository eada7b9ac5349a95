package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// HandleFeed returns the rendered feed, newest nodes last. Params: limit
// (default 200, max 2000).
func (h *Handlers) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 200)
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.deps.View.Snapshot(limit))
}

// HandleFeedSSE streams newly rendered nodes as server-sent events. An
// optional tail parameter replays the most recent nodes first.
func (h *Handlers) HandleFeedSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	tail := parseIntQuery(r, "tail", 0)
	if tail > 500 {
		tail = 500
	}

	ch, cancel := h.deps.View.Subscribe(128)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	write := func(v any) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			slog.Warn("sse marshal failed", slog.Any("err", err))
			return true
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if _, err := w.Write(payload); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if tail > 0 {
		for _, n := range h.deps.View.Snapshot(tail) {
			if !write(n) {
				return
			}
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-ch:
			if !open {
				return
			}
			if !write(n) {
				return
			}
		}
	}
}

// HandleResolveReply fuzzy-matches a reply preview's text against the feed
// and scrolls the first match into view. Params: text.
func (h *Handlers) HandleResolveReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	id, found := h.deps.View.ResolveReply(body.Text)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"found": found, "id": id})
}

// HandleScroll records the viewer's scroll position so the unseen indicator
// can clear when they return near the bottom. Params: top.
func (h *Handlers) HandleScroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Top *int `json:"top"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Top == nil {
		http.Error(w, "top required", http.StatusBadRequest)
		return
	}
	h.deps.View.SetScroll(*body.Top)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"unseen":    h.deps.View.UnseenCount(),
		"indicator": h.deps.View.IndicatorLabel(),
	})
}

// HandleSeen bumps a message's seen counter. Params: id.
func (h *Handlers) HandleSeen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	count, ok := h.deps.View.MarkSeen(body.ID)
	if !ok {
		http.Error(w, "unknown message", http.StatusNotFound)
		return
	}
	if err := h.deps.Store.SetKV(r.Context(), "seen:"+body.ID, strconv.Itoa(count)); err != nil {
		slog.Warn("persisting seen count failed", slog.Any("err", err), slog.String("id", body.ID))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"id": body.ID, "seen": count})
}
