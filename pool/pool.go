// Package pool maintains a FIFO reservoir of pre-generated messages so the
// posting scheduler never waits on composition.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/telemetry"
)

// Config holds pool sizing knobs.
type Config struct {
	// Min is the floor EnsureMinimum tops the pool up to before posting.
	Min int
	// Target is the depth an asynchronous refill fills to.
	Target int
	// TickFloor is the small synchronous top-up done on every scheduler tick.
	TickFloor int
}

// LoadConfig reads pool sizing from the environment.
func LoadConfig() Config {
	return Config{
		Min:       config.EnvInt("POOL_MIN", 800),
		Target:    config.EnvInt("POOL_TARGET", 2500),
		TickFloor: config.EnvInt("POOL_TICK_FLOOR", 100),
	}
}

// Generator produces one novel message per call.
type Generator interface {
	Generate(ctx context.Context) feed.Message
}

// Pool is the message reservoir. Dequeue never blocks; a drained pool
// returns a short count and the caller tops up on the next tick.
type Pool struct {
	cfg Config
	gen Generator

	mu    sync.Mutex
	items []feed.Message

	refilling atomic.Bool
}

// New builds an empty pool over gen.
func New(gen Generator, cfg Config) *Pool {
	if cfg.Min <= 0 {
		cfg.Min = 800
	}
	if cfg.Target < cfg.Min {
		cfg.Target = 2500
	}
	if cfg.TickFloor <= 0 {
		cfg.TickFloor = 100
	}
	return &Pool{cfg: cfg, gen: gen}
}

// Size returns the current pool depth.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Config returns the sizing knobs the pool was built with.
func (p *Pool) Config() Config {
	return p.cfg
}

// EnsureMinimum synchronously generates until the pool holds at least n
// messages. Generation happens outside the pool lock so consumers are not
// stalled behind composition.
func (p *Pool) EnsureMinimum(ctx context.Context, n int) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		short := n - len(p.items)
		p.mu.Unlock()
		if short <= 0 {
			return
		}
		m := p.gen.Generate(ctx)
		p.mu.Lock()
		p.items = append(p.items, m)
		telemetry.SetPoolSize(len(p.items))
		p.mu.Unlock()
	}
}

// RefillToTarget starts an asynchronous fill to the target depth. A second
// call while a refill is running is a no-op.
func (p *Pool) RefillToTarget(ctx context.Context) {
	if !p.refilling.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.refilling.Store(false)
		p.fill(ctx, p.cfg.Target)
	}()
}

func (p *Pool) fill(ctx context.Context, target int) {
	before := p.Size()
	p.EnsureMinimum(ctx, target)
	added := p.Size() - before
	if added > 0 {
		telemetry.Inc(telemetry.PoolRefills)
		slog.Debug("pool refilled", slog.Int("added", added), slog.Int("size", p.Size()))
	}
}

// Dequeue removes and returns up to n messages in generation order. A
// drained pool returns fewer, never blocking.
func (p *Pool) Dequeue(n int) []feed.Message {
	if n <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.items) {
		n = len(p.items)
	}
	out := make([]feed.Message, n)
	copy(out, p.items[:n])
	p.items = p.items[n:]
	telemetry.SetPoolSize(len(p.items))
	return out
}

// Snapshot copies up to limit messages from the head of the pool without
// consuming them. limit <= 0 returns everything.
func (p *Pool) Snapshot(limit int) []feed.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]feed.Message, n)
	copy(out, p.items[:n])
	return out
}
