package joiner

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/telemetry"
)

// PresenceConfig holds the member/online counter knobs.
type PresenceConfig struct {
	Members      int
	Online       int
	OnlineMin    int
	OnlineMax    int
	WalkInterval time.Duration
	WalkJitter   time.Duration
}

// LoadPresenceConfig reads presence knobs from the environment.
func LoadPresenceConfig() PresenceConfig {
	return PresenceConfig{
		Members:      config.EnvInt("PRESENCE_MEMBERS", 864),
		Online:       config.EnvInt("PRESENCE_ONLINE", 86),
		OnlineMin:    config.EnvInt("PRESENCE_ONLINE_MIN", 60),
		OnlineMax:    config.EnvInt("PRESENCE_ONLINE_MAX", 340),
		WalkInterval: config.EnvDuration("PRESENCE_WALK_INTERVAL", 11*time.Second),
		WalkJitter:   config.EnvDuration("PRESENCE_WALK_JITTER", 4*time.Second),
	}
}

// Presence tracks the simulated member and online counts. The online count
// random-walks within a clamped band so the header looks alive.
type Presence struct {
	cfg PresenceConfig

	mu      sync.Mutex
	members int
	online  int
	stopCh  chan struct{}
	running bool
}

// NewPresence starts from the configured baseline counts.
func NewPresence(cfg PresenceConfig) *Presence {
	if cfg.Members <= 0 {
		cfg.Members = 864
	}
	if cfg.Online <= 0 {
		cfg.Online = 86
	}
	if cfg.OnlineMin <= 0 {
		cfg.OnlineMin = 60
	}
	if cfg.OnlineMax <= cfg.OnlineMin {
		cfg.OnlineMax = 340
	}
	if cfg.WalkInterval <= 0 {
		cfg.WalkInterval = 11 * time.Second
	}
	p := &Presence{cfg: cfg, members: cfg.Members, online: cfg.Online}
	telemetry.SetPresence(p.members, p.online)
	return p
}

// Counts returns the current member and online counts.
func (p *Presence) Counts() (members, online int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.members, p.online
}

// AddMember bumps the member count by one, for a simulated join.
func (p *Presence) AddMember() {
	p.mu.Lock()
	p.members++
	m, o := p.members, p.online
	p.mu.Unlock()
	telemetry.SetPresence(m, o)
}

// Restore overrides the counters, used when reloading persisted state.
func (p *Presence) Restore(members, online int) {
	p.mu.Lock()
	if members > 0 {
		p.members = members
	}
	if online > 0 {
		p.online = online
	}
	m, o := p.members, p.online
	p.mu.Unlock()
	telemetry.SetPresence(m, o)
}

// StartWalk launches the online-count random walk. Each step multiplies the
// count by a factor around 1.0 and clamps it into the configured band.
func (p *Presence) StartWalk(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	go func() {
		timer := time.NewTimer(p.nextWalkDelay())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-timer.C:
			}
			p.step()
			timer.Reset(p.nextWalkDelay())
		}
	}()
}

// StopWalk halts the random walk.
func (p *Presence) StopWalk() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
}

func (p *Presence) step() {
	p.mu.Lock()
	factor := 0.88 + rand.Float64()*0.26 //nolint:gosec // G404: simulation randomness, not security
	next := int(float64(p.online) * factor)
	if next < p.cfg.OnlineMin {
		next = p.cfg.OnlineMin
	}
	if next > p.cfg.OnlineMax {
		next = p.cfg.OnlineMax
	}
	p.online = next
	m, o := p.members, p.online
	p.mu.Unlock()
	telemetry.SetPresence(m, o)
}

func (p *Presence) nextWalkDelay() time.Duration {
	d := p.cfg.WalkInterval
	if p.cfg.WalkJitter > 0 {
		d += time.Duration(rand.Intn(int(p.cfg.WalkJitter))) //nolint:gosec // G404: simulation randomness, not security
	}
	return d
}
