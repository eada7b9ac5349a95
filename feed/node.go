package feed

// NodeType distinguishes rendered entries in the view.
type NodeType string

const (
	// NodeDate is a date-separator line.
	NodeDate NodeType = "date"
	// NodeMessage is a rendered chat message (bubble or system line).
	NodeMessage NodeType = "message"
)

// Estimated pixel heights per rendered element. The view has no real layout
// engine; these keep scroll geometry consistent and testable.
const (
	heightDate    = 36
	heightSystem  = 32
	heightBubble  = 66
	heightImage   = 180
	heightCaption = 22
	heightReply   = 30
)

// Node is one rendered entry in the view, owned by the view after insertion.
type Node struct {
	ID        string  `json:"id"`
	Type      NodeType `json:"type"`
	DateKey   string  `json:"date_key,omitempty"`
	Label     string  `json:"label,omitempty"`
	Message   Message `json:"message,omitzero"`
	TimeLabel string  `json:"time_label,omitempty"`
	SeenCount int     `json:"seen_count,omitempty"`
	Height    int     `json:"height"`
	Highlight bool    `json:"highlight,omitempty"`
}

// nodeHeight estimates the rendered height of a message.
func nodeHeight(m Message) int {
	if m.Kind == KindSystem {
		return heightSystem
	}
	h := heightBubble
	if m.Image != "" {
		h += heightImage
	}
	if m.Caption != "" {
		h += heightCaption
	}
	if m.ReplyToText != "" {
		h += heightReply
	}
	return h
}
