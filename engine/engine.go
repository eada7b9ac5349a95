// Package engine drives the live posting cadence: jittered ticks pull
// pre-generated messages from the pool and render them with human-looking
// typing delays, occasional bursts, and reaction cascades.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/generate"
	"github.com/groupline/feedsim/backend/pool"
	"github.com/groupline/feedsim/backend/telemetry"
)

// Renderer is the sink the engine posts into.
type Renderer interface {
	AppendBatch(messages []feed.Message) error
}

// Config holds the posting cadence knobs.
type Config struct {
	IntervalBase   time.Duration
	IntervalJitter time.Duration
	WarmDelay      time.Duration

	BurstChance    float64
	BurstMax       int
	ReactionChance float64
	ClusterMax     int

	TypingDelayMin time.Duration
	TypingDelayMax time.Duration
	ReplyDelayMin  time.Duration
	ReplyDelayMax  time.Duration

	QuietHourStart int
	QuietHourEnd   int
	QuietFactor    float64

	TickFloor int
}

// LoadConfig reads cadence knobs from the environment.
func LoadConfig() Config {
	return Config{
		IntervalBase:   config.EnvDuration("POST_INTERVAL_BASE", 6*time.Second),
		IntervalJitter: config.EnvDuration("POST_INTERVAL_JITTER", 25*time.Second),
		WarmDelay:      config.EnvDuration("POST_WARM_DELAY", 1500*time.Millisecond),
		BurstChance:    config.EnvFloat("BURST_CHANCE", 0.25),
		BurstMax:       config.EnvInt("BURST_MAX", 3),
		ReactionChance: config.EnvFloat("REACTION_CHANCE", 0.38),
		ClusterMax:     config.EnvInt("CLUSTER_MAX", 5),
		TypingDelayMin: config.EnvDuration("TYPING_DELAY_MIN", 400*time.Millisecond),
		TypingDelayMax: config.EnvDuration("TYPING_DELAY_MAX", 1200*time.Millisecond),
		ReplyDelayMin:  config.EnvDuration("REPLY_DELAY_MIN", 600*time.Millisecond),
		ReplyDelayMax:  config.EnvDuration("REPLY_DELAY_MAX", 2400*time.Millisecond),
		QuietHourStart: config.EnvInt("QUIET_HOURS_START", 0),
		QuietHourEnd:   config.EnvInt("QUIET_HOURS_END", 6),
		QuietFactor:    config.EnvFloat("QUIET_FACTOR", 1.8),
		TickFloor:      config.EnvInt("POOL_TICK_FLOOR", 100),
	}
}

// Engine is the posting scheduler. Start/Stop are idempotent; a stopped
// engine cancels only its pending tick, letting in-flight typing and
// cascade timers fire.
type Engine struct {
	cfg  Config
	pool *pool.Pool
	gen  *generate.Generator

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	renderer Renderer
	nowFn    func() time.Time
}

// New wires the scheduler. A nil renderer is tolerated: the engine runs but
// skips posting until one exists.
func New(cfg Config, p *pool.Pool, gen *generate.Generator, r Renderer) *Engine {
	return &Engine{
		cfg:      cfg,
		pool:     p,
		gen:      gen,
		renderer: r,
		nowFn:    time.Now,
	}
}

// IsRunning reports whether the tick loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start launches the tick loop after the warm delay. Calling Start on a
// running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stop := e.stopCh
	e.mu.Unlock()

	slog.Info("posting engine starting", slog.Duration("warm_delay", e.cfg.WarmDelay))
	go e.loop(ctx, stop)
}

// Stop cancels the pending tick. Already-scheduled typing and reply timers
// still fire.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	slog.Info("posting engine stopped")
}

func (e *Engine) loop(ctx context.Context, stop chan struct{}) {
	timer := time.NewTimer(e.cfg.WarmDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-stop:
			return
		case <-timer.C:
		}
		e.tick(ctx)
		timer.Reset(e.nextDelay())
	}
}

func (e *Engine) tick(ctx context.Context) {
	telemetry.Inc(telemetry.EngineTicks)
	e.post(ctx, 1)
	if maybe(e.cfg.BurstChance) {
		e.post(ctx, 1+intn(e.cfg.BurstMax))
	}
}

// nextDelay is the base interval plus uniform jitter, stretched during the
// configured quiet hours.
func (e *Engine) nextDelay() time.Duration {
	d := e.cfg.IntervalBase
	if e.cfg.IntervalJitter > 0 {
		d += time.Duration(intn(int(e.cfg.IntervalJitter)))
	}
	hour := e.nowFn().Hour()
	if hour >= e.cfg.QuietHourStart && hour < e.cfg.QuietHourEnd {
		d = time.Duration(float64(d) * e.cfg.QuietFactor)
	}
	return d
}

// post dequeues count messages and schedules each behind a typing delay.
// Each rendered message may trigger a reaction cascade.
func (e *Engine) post(ctx context.Context, count int) {
	if e.renderer == nil {
		return
	}
	e.pool.EnsureMinimum(ctx, e.cfg.TickFloor)
	for _, m := range e.pool.Dequeue(count) {
		msg := m
		delay := between(e.cfg.TypingDelayMin, e.cfg.TypingDelayMax)
		time.AfterFunc(delay, func() {
			if err := e.renderer.AppendBatch([]feed.Message{msg}); err != nil {
				slog.Warn("render failed", slog.Any("err", err), slog.String("id", msg.ID))
				return
			}
			if maybe(e.cfg.ReactionChance) {
				e.cascade(ctx, msg.Text)
			}
		})
	}
}

// cascade schedules 1..ClusterMax staggered replies quoting baseText.
func (e *Engine) cascade(ctx context.Context, baseText string) {
	replies := 1 + intn(e.cfg.ClusterMax)
	for i := 0; i < replies; i++ {
		delay := between(e.cfg.ReplyDelayMin, e.cfg.ReplyDelayMax)
		time.AfterFunc(delay, func() {
			if e.renderer == nil {
				return
			}
			reply := e.gen.Reply(ctx, baseText)
			if err := e.renderer.AppendBatch([]feed.Message{reply}); err != nil {
				slog.Warn("cascade render failed", slog.Any("err", err))
			}
		})
		telemetry.Inc(telemetry.CascadeReplies)
	}
}

// PostFromPool posts count messages immediately, bypassing the tick loop.
// Used by the admin surface.
func (e *Engine) PostFromPool(ctx context.Context, count int) {
	if count <= 0 {
		count = 1
	}
	e.post(ctx, count)
}

// ReactTo schedules a reaction cascade against arbitrary text, so manually
// posted messages can draw the same replies pooled ones do.
func (e *Engine) ReactTo(ctx context.Context, text string) {
	if maybe(e.cfg.ReactionChance) {
		e.cascade(ctx, text)
	}
}

func maybe(p float64) bool {
	return rand.Float64() < p //nolint:gosec // G404: simulation randomness, not security
}

func intn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.Intn(n) //nolint:gosec // G404: simulation randomness, not security
}

func between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(intn(int(max-min)))
}
