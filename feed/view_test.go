package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/groupline/feedsim/backend/persona"
)

var testBase = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func testMessage(i int, ts time.Time) Message {
	return Message{
		ID:        fmt.Sprintf("m%d", i),
		Persona:   persona.Persona{Name: fmt.Sprintf("User %d", i)},
		Text:      fmt.Sprintf("message number %d", i),
		Timestamp: ts,
		Kind:      KindIncoming,
	}
}

func newTestView() *View {
	v := NewView(Config{ViewportHeight: 600, NearBottomPx: 120, ScrollHidePx: 100})
	v.nowFn = func() time.Time { return testBase }
	return v
}

// fill appends enough messages that the content is much taller than the
// viewport, then parks the scroll position at the top.
func fill(t *testing.T, v *View, n int) {
	t.Helper()
	msgs := make([]Message, n)
	for i := range msgs {
		msgs[i] = testMessage(i, testBase.Add(time.Duration(i)*time.Minute))
	}
	if err := v.AppendBatch(msgs); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
}

func TestAppendBatchSortsByTimestamp(t *testing.T) {
	v := newTestView()
	err := v.AppendBatch([]Message{
		testMessage(2, testBase.Add(2*time.Minute)),
		testMessage(0, testBase),
		testMessage(1, testBase.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	nodes := v.Snapshot(0)
	var ids []string
	for _, n := range nodes {
		if n.Type == NodeMessage {
			ids = append(ids, n.ID)
		}
	}
	want := []string{"m0", "m1", "m2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestDateSeparatorOncePerLifetime(t *testing.T) {
	v := newTestView()
	day1 := time.Date(2025, time.June, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

	if err := v.AppendBatch([]Message{
		testMessage(0, day1),
		testMessage(1, day1.Add(time.Hour)),
		testMessage(2, day2),
	}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	countDates := func() int {
		n := 0
		for _, node := range v.Snapshot(0) {
			if node.Type == NodeDate {
				n++
			}
		}
		return n
	}
	if got := countDates(); got != 2 {
		t.Fatalf("date separators = %d, want 2", got)
	}

	// a later batch on an already-seen day adds no separator
	if err := v.AppendBatch([]Message{testMessage(3, day2.Add(2 * time.Hour))}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if got := countDates(); got != 2 {
		t.Fatalf("date separators after second batch = %d, want 2", got)
	}
}

func TestNearBottomAutoScroll(t *testing.T) {
	v := newTestView()
	fill(t, v, 30)

	// filled while near bottom: pinned, nothing unseen
	if v.UnseenCount() != 0 {
		t.Fatalf("unseen = %d, want 0", v.UnseenCount())
	}
	wantTop := v.ContentHeight() - 600
	if v.ScrollTop() != wantTop {
		t.Fatalf("scrollTop = %d, want %d", v.ScrollTop(), wantTop)
	}
}

func TestScrolledUpAccumulatesUnseen(t *testing.T) {
	v := newTestView()
	fill(t, v, 30)
	v.SetScroll(0)

	for i := 100; i < 103; i++ {
		if err := v.AppendBatch([]Message{testMessage(i, testBase.Add(time.Hour))}); err != nil {
			t.Fatalf("AppendBatch: %v", err)
		}
	}
	if v.UnseenCount() != 3 {
		t.Fatalf("unseen = %d, want 3", v.UnseenCount())
	}
	if got := v.IndicatorLabel(); got != "New messages · 3" {
		t.Fatalf("indicator = %q", got)
	}
	// scroll position untouched
	if v.ScrollTop() != 0 {
		t.Fatalf("scrollTop = %d, want 0", v.ScrollTop())
	}
}

func TestIndicatorLabels(t *testing.T) {
	v := newTestView()
	fill(t, v, 30)
	v.SetScroll(0)

	if got := v.IndicatorLabel(); got != "" {
		t.Fatalf("indicator with nothing unseen = %q", got)
	}
	if err := v.AppendBatch([]Message{testMessage(100, testBase.Add(time.Hour))}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if got := v.IndicatorLabel(); got != "New messages" {
		t.Fatalf("indicator with one unseen = %q", got)
	}
}

func TestScrollBackToBottomClearsUnseen(t *testing.T) {
	v := newTestView()
	fill(t, v, 30)
	v.SetScroll(0)
	if err := v.AppendBatch([]Message{testMessage(100, testBase.Add(time.Hour))}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if v.UnseenCount() != 1 {
		t.Fatalf("unseen = %d, want 1", v.UnseenCount())
	}

	v.SetScroll(v.ContentHeight() - 600)
	if v.UnseenCount() != 0 {
		t.Fatalf("unseen after returning to bottom = %d, want 0", v.UnseenCount())
	}
}

func TestScrollToBottomJump(t *testing.T) {
	v := newTestView()
	fill(t, v, 30)
	v.SetScroll(0)
	if err := v.AppendBatch([]Message{testMessage(100, testBase.Add(time.Hour))}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	v.ScrollToBottom()
	if v.UnseenCount() != 0 {
		t.Fatalf("unseen after jump = %d, want 0", v.UnseenCount())
	}
	if v.ScrollTop() != v.ContentHeight()-600 {
		t.Fatalf("scrollTop = %d, want bottom", v.ScrollTop())
	}
}

func TestUnrenderableMessageSkippedNotFatal(t *testing.T) {
	v := newTestView()
	err := v.AppendBatch([]Message{
		testMessage(0, testBase),
		{ID: "bad", Timestamp: testBase.Add(time.Second)}, // no text, no image
		testMessage(1, testBase.Add(2 * time.Second)),
	})
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	count := 0
	for _, n := range v.Snapshot(0) {
		if n.Type == NodeMessage {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("rendered messages = %d, want 2", count)
	}
}

func TestEmptyPersonaGetsPlaceholderName(t *testing.T) {
	v := newTestView()
	if err := v.AppendBatch([]Message{{
		ID:        "anon",
		Text:      "hello",
		Timestamp: testBase,
		Kind:      KindIncoming,
	}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	for _, n := range v.Snapshot(0) {
		if n.ID == "anon" && n.Message.Persona.Name != "User" {
			t.Fatalf("placeholder name = %q, want User", n.Message.Persona.Name)
		}
	}
}

func TestResolveReplyFuzzyMatch(t *testing.T) {
	v := newTestView()
	fill(t, v, 30)
	if err := v.AppendBatch([]Message{{
		ID:        "target",
		Persona:   persona.Persona{Name: "Trader"},
		Text:      "Took BTC/USD H1 — tp hit 🔥",
		Timestamp: testBase.Add(31 * time.Minute),
		Kind:      KindIncoming,
	}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	id, ok := v.ResolveReply("Took BTC/USD H1 — tp hit")
	if !ok || id != "target" {
		t.Fatalf("ResolveReply = (%q, %v), want (target, true)", id, ok)
	}

	// the match is highlighted
	for _, n := range v.Snapshot(0) {
		if n.ID == "target" && !n.Highlight {
			t.Fatalf("matched node not highlighted")
		}
	}
}

func TestResolveReplyFirstMatchWins(t *testing.T) {
	v := newTestView()
	if err := v.AppendBatch([]Message{
		{ID: "first", Text: "gold looking strong", Timestamp: testBase, Kind: KindIncoming, Persona: persona.Persona{Name: "A"}},
		{ID: "second", Text: "gold looking strong again", Timestamp: testBase.Add(time.Minute), Kind: KindIncoming, Persona: persona.Persona{Name: "B"}},
	}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	id, ok := v.ResolveReply("GOLD looking strong")
	if !ok || id != "first" {
		t.Fatalf("ResolveReply = (%q, %v), want (first, true)", id, ok)
	}
}

func TestResolveReplyMiss(t *testing.T) {
	v := newTestView()
	fill(t, v, 5)
	if _, ok := v.ResolveReply("text that was never posted anywhere"); ok {
		t.Fatalf("ResolveReply matched nonexistent text")
	}
}

func TestOutgoingStartsSeen(t *testing.T) {
	v := newTestView()
	id, err := v.AppendOne(persona.Persona{Name: "You"}, "my own message", AppendOptions{Kind: KindOutgoing})
	if err != nil {
		t.Fatalf("AppendOne: %v", err)
	}
	for _, n := range v.Snapshot(0) {
		if n.ID == id && n.SeenCount != 1 {
			t.Fatalf("outgoing SeenCount = %d, want 1", n.SeenCount)
		}
	}
	count, ok := v.MarkSeen(id)
	if !ok || count != 2 {
		t.Fatalf("MarkSeen = (%d, %v), want (2, true)", count, ok)
	}
}

func TestSubscribeReceivesNodes(t *testing.T) {
	v := newTestView()
	ch, cancel := v.Subscribe(8)
	defer cancel()

	if err := v.AppendBatch([]Message{testMessage(0, testBase)}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	select {
	case n := <-ch:
		if n.Type != NodeDate && n.ID != "m0" {
			t.Fatalf("unexpected node %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("no node delivered to subscriber")
	}
}

func TestSystemNodeHeight(t *testing.T) {
	v := newTestView()
	if err := v.AppendBatch([]Message{{
		ID:        "sys",
		Persona:   persona.Persona{Name: "System"},
		Text:      "Somebody joined the group",
		Timestamp: testBase,
		Kind:      KindSystem,
	}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	for _, n := range v.Snapshot(0) {
		if n.ID == "sys" && n.Height != heightSystem {
			t.Fatalf("system node height = %d, want %d", n.Height, heightSystem)
		}
	}
}
