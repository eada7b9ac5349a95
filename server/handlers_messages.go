package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/persona"
)

// HandleMessages ingests a manually posted message. Outgoing posts render as
// the operator's own bubble; broadcast posts render under the admin persona
// and usually carry an image. Either may draw a reaction cascade.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Name    string `json:"name,omitempty"`
		Text    string `json:"text"`
		Kind    string `json:"kind"`
		Image   string `json:"image,omitempty"`
		Caption string `json:"caption,omitempty"`
		ReplyTo string `json:"replyTo,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Text) == "" && body.Image == "" {
		http.Error(w, "text or image required", http.StatusBadRequest)
		return
	}

	kind := feed.KindOutgoing
	p := persona.Persona{Name: "You"}
	if body.Name != "" {
		p.Name = body.Name
	}
	switch body.Kind {
	case "", "outgoing":
	case "broadcast":
		kind = feed.KindBroadcast
		p = persona.Persona{Name: h.adminName, Avatar: h.adminAvatar}
		if body.Text == "" && body.Caption != "" {
			body.Text, _, _ = strings.Cut(body.Caption, "\n")
		}
	default:
		http.Error(w, "kind must be outgoing or broadcast", http.StatusBadRequest)
		return
	}

	id, err := h.deps.View.AppendOne(p, body.Text, feed.AppendOptions{
		Kind:        kind,
		Image:       body.Image,
		Caption:     body.Caption,
		ReplyToText: body.ReplyTo,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if body.Text != "" {
		h.deps.Engine.ReactTo(r.Context(), body.Text)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}
