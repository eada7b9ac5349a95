package feed

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/telemetry"
)

// Config holds view geometry knobs.
type Config struct {
	// ViewportHeight is the visible height of the message area in pixels.
	ViewportHeight int
	// NearBottomPx is the distance from the bottom within which an insertion
	// auto-scrolls instead of accumulating unseen messages.
	NearBottomPx int
	// ScrollHidePx is the distance from the bottom within which a manual
	// scroll clears the unseen indicator.
	ScrollHidePx int
}

// LoadConfig reads view knobs from the environment.
func LoadConfig() Config {
	return Config{
		ViewportHeight: config.EnvInt("VIEWPORT_HEIGHT", 600),
		NearBottomPx:   config.EnvInt("NEAR_BOTTOM_PX", 120),
		ScrollHidePx:   config.EnvInt("SCROLL_HIDE_PX", 100),
	}
}

// AppendOptions carry the optional fields of a single-message append.
type AppendOptions struct {
	ID          string
	Timestamp   time.Time
	Kind        Kind
	Image       string
	Caption     string
	ReplyToText string
}

// View is the live scrolling message view. All mutation happens under one
// lock, preserving the single-writer model the rendering contract assumes.
type View struct {
	cfg Config

	mu            sync.Mutex
	nodes         []*Node
	byID          map[string]*Node
	insertedDates map[string]struct{}
	contentHeight int
	scrollTop     int
	unseen        int

	subMu sync.Mutex
	subs  map[int]chan Node
	subID int

	nowFn func() time.Time
}

// NewView builds an empty view.
func NewView(cfg Config) *View {
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 600
	}
	if cfg.NearBottomPx <= 0 {
		cfg.NearBottomPx = 120
	}
	if cfg.ScrollHidePx <= 0 {
		cfg.ScrollHidePx = 100
	}
	return &View{
		cfg:           cfg,
		byID:          make(map[string]*Node),
		insertedDates: make(map[string]struct{}),
		subs:          make(map[int]chan Node),
		nowFn:         time.Now,
	}
}

// AppendOne renders a single message and returns its node id.
func (v *View) AppendOne(p persona.Persona, text string, opts AppendOptions) (string, error) {
	m := Message{
		ID:          opts.ID,
		Persona:     p,
		Text:        text,
		Timestamp:   opts.Timestamp,
		Kind:        opts.Kind,
		Image:       opts.Image,
		Caption:     opts.Caption,
		ReplyToText: opts.ReplyToText,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = v.nowFn()
	}
	if m.Kind == "" {
		m.Kind = KindIncoming
	}
	if err := v.AppendBatch([]Message{m}); err != nil {
		return "", err
	}
	return m.ID, nil
}

// AppendBatch sorts messages ascending by timestamp and inserts them in one
// combined operation: date separators where the calendar day changes, a
// near-bottom snapshot taken before mutation, and either an auto-scroll or an
// unseen-count bump after. A single bad message is logged and skipped, never
// aborting the batch.
func (v *View) AppendBatch(messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	v.mu.Lock()
	nearBottom := v.nearBottomLocked()

	var appended []Node
	inserted := 0
	prevDateKey := ""
	for _, m := range sorted {
		if err := validate(m); err != nil {
			slog.Warn("skipping unrenderable message", slog.Any("err", err), slog.String("id", m.ID))
			telemetry.Inc(telemetry.RenderErrors)
			continue
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = v.nowFn()
		}
		if m.Kind == "" {
			m.Kind = KindIncoming
		}
		if m.Persona.Name == "" {
			m.Persona.Name = "User"
		}

		key := DateKey(m.Timestamp)
		if key != prevDateKey {
			if _, done := v.insertedDates[key]; !done {
				sep := &Node{
					ID:      "date_" + key,
					Type:    NodeDate,
					DateKey: key,
					Label:   dateLabel(m.Timestamp),
					Height:  heightDate,
				}
				v.nodes = append(v.nodes, sep)
				v.contentHeight += sep.Height
				v.insertedDates[key] = struct{}{}
				appended = append(appended, *sep)
			}
		}
		prevDateKey = key

		node := &Node{
			ID:        m.ID,
			Type:      NodeMessage,
			DateKey:   key,
			Message:   m,
			TimeLabel: timeLabel(m.Timestamp),
			Height:    nodeHeight(m),
		}
		if m.Kind == KindOutgoing || m.Kind == KindBroadcast {
			node.SeenCount = 1
		}
		v.nodes = append(v.nodes, node)
		v.byID[node.ID] = node
		v.contentHeight += node.Height
		inserted++
		appended = append(appended, *node)
		telemetry.CountRendered(string(m.Kind))
	}

	if inserted > 0 {
		if nearBottom {
			v.scrollToBottomLocked()
			v.unseen = 0
		} else {
			v.unseen += inserted
		}
		telemetry.SetUnseen(v.unseen)
	}
	v.mu.Unlock()

	for _, n := range appended {
		v.publish(n)
	}
	return nil
}

func validate(m Message) error {
	if strings.TrimSpace(m.Text) == "" && m.Image == "" {
		return fmt.Errorf("message has neither text nor image")
	}
	return nil
}

func (v *View) nearBottomLocked() bool {
	return v.scrollTop+v.cfg.ViewportHeight > v.contentHeight-v.cfg.NearBottomPx
}

func (v *View) scrollToBottomLocked() {
	v.scrollTop = v.contentHeight - v.cfg.ViewportHeight
	if v.scrollTop < 0 {
		v.scrollTop = 0
	}
}

// ScrollToBottom jumps to the newest message and clears the unseen counter
// (the jump-indicator click).
func (v *View) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollToBottomLocked()
	v.unseen = 0
	telemetry.SetUnseen(0)
}

// SetScroll records a manual scroll position. Scrolling back to within the
// hide threshold of the bottom clears the unseen indicator.
func (v *View) SetScroll(top int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	max := v.contentHeight - v.cfg.ViewportHeight
	if max < 0 {
		max = 0
	}
	if top < 0 {
		top = 0
	}
	if top > max {
		top = max
	}
	v.scrollTop = top
	if v.contentHeight-v.scrollTop-v.cfg.ViewportHeight <= v.cfg.ScrollHidePx {
		v.unseen = 0
		telemetry.SetUnseen(0)
	}
}

// ScrollTop returns the current scroll offset.
func (v *View) ScrollTop() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop
}

// ContentHeight returns the summed height of all rendered nodes.
func (v *View) ContentHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.contentHeight
}

// UnseenCount returns how many inserted messages the viewer has not seen.
func (v *View) UnseenCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unseen
}

// IndicatorLabel returns the jump-indicator text, or "" when hidden.
func (v *View) IndicatorLabel() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case v.unseen == 0:
		return ""
	case v.unseen == 1:
		return "New messages"
	default:
		return fmt.Sprintf("New messages · %d", v.unseen)
	}
}

// Len returns the number of rendered nodes (separators included).
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.nodes)
}

// Snapshot copies up to limit most-recent nodes in insertion order.
// limit <= 0 returns everything.
func (v *View) Snapshot(limit int) []Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	nodes := v.nodes
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[len(nodes)-limit:]
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = *n
	}
	return out
}

// MarkSeen increments a message node's seen count, returning the new value.
// The counter is owned by the external view-tracking collaborator; the view
// only stores it.
func (v *View) MarkSeen(id string) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.byID[id]
	if !ok || n.Type != NodeMessage {
		return 0, false
	}
	n.SeenCount++
	return n.SeenCount, true
}

// normalizeForMatch case-folds and strips punctuation and digits, the
// leniency used for reply-preview resolution.
func normalizeForMatch(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ResolveReply fuzzy-matches a reply-preview's referenced text against the
// rendered messages, scrolls the first match into view center, highlights it,
// and returns its id. A miss is not an error: it returns ok=false and the
// view is untouched.
func (v *View) ResolveReply(replyText string) (string, bool) {
	norm := normalizeForMatch(replyText)
	if norm == "" {
		return "", false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	offset := 0
	for _, n := range v.nodes {
		if n.Type == NodeMessage {
			if strings.Contains(normalizeForMatch(n.Message.Text), norm) {
				top := offset - (v.cfg.ViewportHeight-n.Height)/2
				max := v.contentHeight - v.cfg.ViewportHeight
				if max < 0 {
					max = 0
				}
				if top < 0 {
					top = 0
				}
				if top > max {
					top = max
				}
				v.scrollTop = top
				n.Highlight = true
				return n.ID, true
			}
		}
		offset += n.Height
	}
	return "", false
}

// Subscribe registers a listener for rendered nodes, returning the channel
// and a cancel function. Slow listeners drop events rather than blocking the
// render path.
func (v *View) Subscribe(buffer int) (<-chan Node, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Node, buffer)
	v.subMu.Lock()
	v.subID++
	id := v.subID
	v.subs[id] = ch
	v.subMu.Unlock()
	cancel := func() {
		v.subMu.Lock()
		if c, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(c)
		}
		v.subMu.Unlock()
	}
	return ch, cancel
}

func (v *View) publish(n Node) {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	for _, ch := range v.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
