// Package feed implements the live message view: the data model for chat
// messages and the batched rendering pipeline that inserts them while
// preserving reading position.
package feed

import (
	"fmt"
	"time"

	"github.com/groupline/feedsim/backend/persona"
)

// Kind classifies how a message renders.
type Kind string

const (
	KindIncoming  Kind = "incoming"
	KindOutgoing  Kind = "outgoing"
	KindSystem    Kind = "system"
	KindBroadcast Kind = "broadcast"
)

// Message is a chat message before (or as) it is rendered. Immutable after
// insertion; only the per-node seen count changes, and that is owned by the
// view-tracking collaborator.
type Message struct {
	ID          string          `json:"id"`
	Persona     persona.Persona `json:"persona"`
	Text        string          `json:"text"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        Kind            `json:"kind"`
	Image       string          `json:"image,omitempty"`
	Caption     string          `json:"caption,omitempty"`
	ReplyToText string          `json:"reply_to_text,omitempty"`
}

// DateKey buckets a timestamp into its calendar day, used to decide
// date-separator placement. One key is inserted at most once per view.
func DateKey(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
}

// dateLabel is the human-readable date separator text.
func dateLabel(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

// timeLabel is the in-bubble time text.
func timeLabel(t time.Time) string {
	return t.Format("15:04")
}
