package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/fingerprint"
	"github.com/groupline/feedsim/backend/generate"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/pool"
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

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
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
		IntervalBase:   5 * time.Millisecond,
		IntervalJitter: time.Millisecond,
		WarmDelay:      time.Millisecond,
		BurstChance:    0,
		BurstMax:       3,
		ReactionChance: 0,
		ClusterMax:     5,
		TypingDelayMin: time.Millisecond,
		TypingDelayMax: 2 * time.Millisecond,
		ReplyDelayMin:  time.Millisecond,
		ReplyDelayMax:  2 * time.Millisecond,
		QuietHourStart: 0,
		QuietHourEnd:   0, // disabled
		QuietFactor:    1.8,
		TickFloor:      5,
	}
}

func newTestEngine(cfg Config, r Renderer) *Engine {
	fp := fingerprint.NewStore(context.Background(), nil, fingerprint.Options{})
	gen := generate.NewGenerator(fp, persona.NewGenerator(testutil.SeededRand(1)), testutil.SeededRand(2))
	p := pool.New(gen, pool.Config{Min: 10, Target: 20, TickFloor: 5})
	return New(cfg, p, gen, r)
}

func TestStartStopIdempotent(t *testing.T) {
	r := &recordingRenderer{}
	e := newTestEngine(fastConfig(), r)
	ctx := context.Background()

	e.Start(ctx)
	e.Start(ctx)
	if !e.IsRunning() {
		t.Fatalf("engine not running after Start")
	}
	e.Stop()
	e.Stop()
	if e.IsRunning() {
		t.Fatalf("engine running after Stop")
	}
}

func TestEnginePostsMessages(t *testing.T) {
	r := &recordingRenderer{}
	e := newTestEngine(fastConfig(), r)
	ctx := context.Background()

	e.Start(ctx)
	defer e.Stop()
	testutil.WaitFor(t, 2*time.Second, func() bool { return r.count() >= 3 })
}

func TestStopCancelsPendingTicks(t *testing.T) {
	r := &recordingRenderer{}
	cfg := fastConfig()
	cfg.IntervalBase = time.Hour // one warm tick, then park
	e := newTestEngine(cfg, r)

	e.Start(context.Background())
	testutil.WaitFor(t, 2*time.Second, func() bool { return r.count() >= 1 })
	e.Stop()

	before := r.count()
	time.Sleep(50 * time.Millisecond)
	// typing timers already scheduled may still land, but no new ticks fire
	after := r.count()
	if after > before+1 {
		t.Fatalf("messages kept arriving after Stop: %d -> %d", before, after)
	}
}

func TestNilRendererSkipsSilently(t *testing.T) {
	e := newTestEngine(fastConfig(), nil)
	// must not panic
	e.PostFromPool(context.Background(), 3)
}

func TestPostFromPool(t *testing.T) {
	r := &recordingRenderer{}
	e := newTestEngine(fastConfig(), r)
	e.PostFromPool(context.Background(), 2)
	testutil.WaitFor(t, 2*time.Second, func() bool { return r.count() >= 2 })
}

func TestCascadeRepliesReferenceBase(t *testing.T) {
	r := &recordingRenderer{}
	cfg := fastConfig()
	cfg.ReactionChance = 1 // always react
	cfg.ClusterMax = 1
	e := newTestEngine(cfg, r)

	e.ReactTo(context.Background(), "original message text")
	testutil.WaitFor(t, 2*time.Second, func() bool { return r.count() >= 1 })
	for _, m := range r.snapshot() {
		if m.ReplyToText != "original message text" {
			t.Fatalf("reply does not reference base: %+v", m)
		}
	}
}

func TestNextDelayQuietHours(t *testing.T) {
	cfg := fastConfig()
	cfg.IntervalBase = 6 * time.Second
	cfg.IntervalJitter = 0
	cfg.QuietHourStart = 0
	cfg.QuietHourEnd = 6
	cfg.QuietFactor = 1.8
	e := newTestEngine(cfg, nil)

	e.nowFn = func() time.Time { return time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC) }
	if got := e.nextDelay(); got != time.Duration(float64(6*time.Second)*1.8) {
		t.Fatalf("quiet-hours delay = %s, want 10.8s", got)
	}

	e.nowFn = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	if got := e.nextDelay(); got != 6*time.Second {
		t.Fatalf("daytime delay = %s, want 6s", got)
	}
}
