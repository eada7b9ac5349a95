package joiner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/store"
	"github.com/groupline/feedsim/backend/testutil"
)

type recordingRenderer struct {
	mu   sync.Mutex
	msgs []feed.Message
}

func (r *recordingRenderer) AppendBatch(messages []feed.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, messages...)
	return nil
}

func (r *recordingRenderer) snapshot() []feed.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]feed.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func fastConfig() Config {
	return Config{
		MinInterval:    time.Millisecond,
		MaxInterval:    2 * time.Millisecond,
		BurstChance:    0,
		BurstMin:       2,
		BurstMax:       6,
		SingleChance:   1,
		BurstCooldown:  time.Second,
		CooldownJitter: time.Millisecond,
		PerJoinStagger: time.Millisecond,
		StaggerJitter:  time.Millisecond,
		WelcomeDelay:   time.Millisecond,
		WelcomeJitter:  time.Millisecond,
		HistoryKeep:    2000,
		AdminName:      "Profit Hunter 🌐",
		AdminAvatar:    "assets/admin.jpg",
	}
}

func TestJoinNowRendersSystemAndWelcome(t *testing.T) {
	r := &recordingRenderer{}
	presence := NewPresence(PresenceConfig{Members: 100, Online: 50})
	sim := New(fastConfig(), r, nil, presence, store.NewMemory())

	sim.JoinNow(context.Background(), 1)

	testutil.WaitFor(t, 2*time.Second, func() bool { return len(r.snapshot()) >= 2 })
	msgs := r.snapshot()

	var sawSystem, sawWelcome bool
	for _, m := range msgs {
		if m.Kind == feed.KindSystem && strings.HasSuffix(m.Text, "joined the group") {
			sawSystem = true
		}
		if m.Kind == feed.KindIncoming && strings.HasPrefix(m.Text, "Welcome @") {
			sawWelcome = true
			if m.Persona.Name != "Profit Hunter 🌐" {
				t.Fatalf("welcome persona = %q", m.Persona.Name)
			}
		}
	}
	if !sawSystem || !sawWelcome {
		t.Fatalf("missing join output: system=%v welcome=%v", sawSystem, sawWelcome)
	}

	members, _ := presence.Counts()
	if members != 101 {
		t.Fatalf("members = %d, want 101", members)
	}
}

func TestJoinRecordsHistory(t *testing.T) {
	r := &recordingRenderer{}
	st := store.NewMemory()
	sim := New(fastConfig(), r, nil, NewPresence(PresenceConfig{}), st)

	sim.JoinNow(context.Background(), 2)
	testutil.WaitFor(t, 2*time.Second, func() bool { return len(sim.HistorySnapshot(10)) >= 2 })

	recs, err := st.RecentJoins(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentJoins: %v", err)
	}
	if len(recs) < 2 {
		t.Fatalf("persisted joins = %d, want >= 2", len(recs))
	}
}

func TestHistoryCap(t *testing.T) {
	cfg := fastConfig()
	cfg.HistoryKeep = 5
	sim := New(cfg, nil, nil, nil, nil)

	for i := 0; i < 10; i++ {
		sim.record(context.Background(), store.JoinRecord{ID: "x", Name: "n", Time: time.Now()})
	}
	sim.mu.Lock()
	n := len(sim.history)
	sim.mu.Unlock()
	if n != 5 {
		t.Fatalf("history length = %d, want 5", n)
	}
}

func TestHistorySnapshotNewestFirst(t *testing.T) {
	sim := New(fastConfig(), nil, nil, nil, nil)
	base := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		sim.record(context.Background(), store.JoinRecord{
			ID:   string(rune('a' + i)),
			Name: "n",
			Time: base.Add(time.Duration(i) * time.Minute),
		})
	}
	snap := sim.HistorySnapshot(10)
	if len(snap) != 3 || snap[0].ID != "c" || snap[2].ID != "a" {
		t.Fatalf("snapshot order wrong: %+v", snap)
	}
}

func TestSeedRangePostsPerDay(t *testing.T) {
	r := &recordingRenderer{}
	sim := New(fastConfig(), r, nil, nil, nil)

	start := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	posted, err := sim.SeedRange(context.Background(), start, end, 3, 3, 120)
	if err != nil {
		t.Fatalf("SeedRange: %v", err)
	}
	if posted != 3 {
		t.Fatalf("posted = %d, want 3", posted)
	}
	// each seeded join renders a system message and an inline welcome
	if got := len(r.snapshot()); got != 6 {
		t.Fatalf("rendered messages = %d, want 6", got)
	}
	for _, m := range r.snapshot() {
		if m.Kind == feed.KindSystem {
			if m.Timestamp.Before(start) || !m.Timestamp.Before(end) {
				t.Fatalf("seeded join outside day: %s", m.Timestamp)
			}
		}
	}
}

func TestSimulatorStartStop(t *testing.T) {
	r := &recordingRenderer{}
	sim := New(fastConfig(), r, nil, NewPresence(PresenceConfig{}), nil)
	ctx := context.Background()

	sim.Start(ctx)
	if !sim.IsRunning() {
		t.Fatalf("not running after Start")
	}
	testutil.WaitFor(t, 2*time.Second, func() bool { return len(r.snapshot()) >= 1 })
	sim.Stop()
	if sim.IsRunning() {
		t.Fatalf("running after Stop")
	}
}

func TestPresenceWalkStaysInBand(t *testing.T) {
	p := NewPresence(PresenceConfig{
		Members:      864,
		Online:       86,
		OnlineMin:    60,
		OnlineMax:    340,
		WalkInterval: time.Millisecond,
		WalkJitter:   time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.StartWalk(ctx)
	defer p.StopWalk()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, online := p.Counts()
		if online < 60 || online > 340 {
			t.Fatalf("online = %d, outside [60, 340]", online)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPresenceRestore(t *testing.T) {
	p := NewPresence(PresenceConfig{Members: 864, Online: 86})
	p.Restore(900, 120)
	members, online := p.Counts()
	if members != 900 || online != 120 {
		t.Fatalf("counts = (%d, %d), want (900, 120)", members, online)
	}
}
