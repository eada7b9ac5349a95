// Package joiner simulates members joining the group: timed join events with
// bursts, system messages, admin welcomes, and a persisted join history.
package joiner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/store"
	"github.com/groupline/feedsim/backend/telemetry"
)

// historySnapshotMax caps what HistorySnapshot returns regardless of limit.
const historySnapshotMax = 200

// Renderer is the sink join messages are rendered into.
type Renderer interface {
	AppendBatch(messages []feed.Message) error
}

// Config holds the join simulation knobs.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration

	BurstChance float64
	BurstMin    int
	BurstMax    int
	// SingleChance is the probability of a lone join on a non-burst tick.
	SingleChance    float64
	BurstCooldown   time.Duration
	CooldownJitter  time.Duration
	PerJoinStagger  time.Duration
	StaggerJitter   time.Duration
	WelcomeDelay    time.Duration
	WelcomeJitter   time.Duration
	HistoryKeep     int
	AdminName       string
	AdminAvatar     string
}

// LoadConfig reads join knobs from the environment.
func LoadConfig() Config {
	return Config{
		MinInterval:    config.EnvDuration("JOIN_INTERVAL_MIN", 4500*time.Millisecond),
		MaxInterval:    config.EnvDuration("JOIN_INTERVAL_MAX", 22*time.Second),
		BurstChance:    config.EnvFloat("JOIN_BURST_CHANCE", 0.16),
		BurstMin:       config.EnvInt("JOIN_BURST_MIN", 2),
		BurstMax:       config.EnvInt("JOIN_BURST_MAX", 6),
		SingleChance:   config.EnvFloat("JOIN_SINGLE_CHANCE", 0.22),
		BurstCooldown:  config.EnvDuration("JOIN_BURST_COOLDOWN", 18*time.Second),
		CooldownJitter: config.EnvDuration("JOIN_COOLDOWN_JITTER", 12*time.Second),
		PerJoinStagger: config.EnvDuration("JOIN_STAGGER", 420*time.Millisecond),
		StaggerJitter:  config.EnvDuration("JOIN_STAGGER_JITTER", 900*time.Millisecond),
		WelcomeDelay:   config.EnvDuration("JOIN_WELCOME_DELAY", 600*time.Millisecond),
		WelcomeJitter:  config.EnvDuration("JOIN_WELCOME_JITTER", 900*time.Millisecond),
		HistoryKeep:    config.EnvInt("JOIN_HISTORY_KEEP", 2000),
		AdminName:      config.EnvString("ADMIN_NAME", "Profit Hunter 🌐"),
		AdminAvatar:    config.EnvString("ADMIN_AVATAR", "assets/admin.jpg"),
	}
}

// Simulator produces join events. Start/Stop control the background tick;
// JoinNow and SeedRange are usable whether or not the loop runs.
type Simulator struct {
	cfg      Config
	renderer Renderer
	identity persona.Provider
	presence *Presence
	st       store.Store

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	cooldown bool
	history  []store.JoinRecord

	nowFn func() time.Time
}

// New wires the simulator. The store is optional; a nil store keeps history
// in memory only.
func New(cfg Config, r Renderer, identity persona.Provider, presence *Presence, st store.Store) *Simulator {
	if identity == nil {
		identity = persona.NewGenerator(nil)
	}
	if cfg.HistoryKeep <= 0 {
		cfg.HistoryKeep = 2000
	}
	s := &Simulator{
		cfg:      cfg,
		renderer: r,
		identity: identity,
		presence: presence,
		st:       st,
		nowFn:    time.Now,
	}
	s.loadHistory()
	return s
}

func (s *Simulator) loadHistory() {
	if s.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := s.st.RecentJoins(ctx, s.cfg.HistoryKeep)
	if err != nil {
		slog.Warn("loading join history failed", slog.Any("err", err))
		return
	}
	// RecentJoins is newest-first; history is kept oldest-first.
	for i := len(recs) - 1; i >= 0; i-- {
		s.history = append(s.history, recs[i])
	}
}

// IsRunning reports whether the background tick loop is active.
func (s *Simulator) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the join tick loop. Idempotent.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	slog.Info("join simulator starting")
	go s.loop(ctx, stop)
}

// Stop cancels the pending tick. Staggered joins already scheduled still
// land.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	slog.Info("join simulator stopped")
}

func (s *Simulator) loop(ctx context.Context, stop chan struct{}) {
	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-stop:
			return
		case <-timer.C:
		}
		s.tick(ctx)
		timer.Reset(s.nextDelay())
	}
}

func (s *Simulator) tick(ctx context.Context) {
	s.mu.Lock()
	cooling := s.cooldown
	s.mu.Unlock()

	if !cooling && maybe(s.cfg.BurstChance) {
		count := s.cfg.BurstMin + intn(s.cfg.BurstMax-s.cfg.BurstMin+1)
		s.JoinNow(ctx, count)
		s.mu.Lock()
		s.cooldown = true
		s.mu.Unlock()
		cool := s.cfg.BurstCooldown + time.Duration(intn(int(s.cfg.CooldownJitter)))
		time.AfterFunc(cool, func() {
			s.mu.Lock()
			s.cooldown = false
			s.mu.Unlock()
		})
	} else if maybe(s.cfg.SingleChance) {
		s.JoinNow(ctx, 1)
	}
}

func (s *Simulator) nextDelay() time.Duration {
	span := s.cfg.MaxInterval - s.cfg.MinInterval
	if span <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(intn(int(span)))
}

// JoinNow stages count joins with a small per-join stagger. Each join posts
// a system message, bumps the member count, records history, and schedules
// an admin welcome shortly after.
func (s *Simulator) JoinNow(ctx context.Context, count int) {
	if count <= 0 {
		count = 1
	}
	stagger := s.cfg.PerJoinStagger + time.Duration(intn(int(s.cfg.StaggerJitter)))
	for i := 0; i < count; i++ {
		delay := time.Duration(i) * stagger
		time.AfterFunc(delay, func() {
			s.join(ctx, s.identity.RandomPersona(), s.nowFn(), true)
		})
	}
}

// join renders one join event at ts. welcomeDelayed controls whether the
// admin welcome is scheduled behind the live delay or rendered inline a
// minute later (seeding).
func (s *Simulator) join(ctx context.Context, p persona.Persona, ts time.Time, welcomeDelayed bool) {
	sys := feed.Message{
		ID:        "sys_" + uuid.NewString(),
		Persona:   persona.Persona{Name: "System"},
		Text:      fmt.Sprintf("%s joined the group", p.Name),
		Timestamp: ts,
		Kind:      feed.KindSystem,
	}
	if s.renderer != nil {
		if err := s.renderer.AppendBatch([]feed.Message{sys}); err != nil {
			slog.Warn("join render failed", slog.Any("err", err))
		}
	}
	if s.presence != nil {
		s.presence.AddMember()
	}
	telemetry.Inc(telemetry.Joins)
	s.record(ctx, store.JoinRecord{
		ID:   "j_" + uuid.NewString(),
		Name: p.Name,
		Time: ts,
	})

	if welcomeDelayed {
		delay := s.cfg.WelcomeDelay + time.Duration(intn(int(s.cfg.WelcomeJitter)))
		time.AfterFunc(delay, func() {
			s.welcome(p, s.nowFn())
		})
	} else {
		s.welcome(p, ts.Add(time.Minute))
	}
}

func (s *Simulator) welcome(p persona.Persona, ts time.Time) {
	if s.renderer == nil {
		return
	}
	first, _, _ := strings.Cut(p.Name, " ")
	msg := feed.Message{
		ID:        "welcome_" + uuid.NewString(),
		Persona:   persona.Persona{Name: s.cfg.AdminName, Avatar: s.cfg.AdminAvatar},
		Text:      fmt.Sprintf("Welcome @%s — please verify using the Contact Admin button", first),
		Timestamp: ts,
		Kind:      feed.KindIncoming,
	}
	if err := s.renderer.AppendBatch([]feed.Message{msg}); err != nil {
		slog.Warn("welcome render failed", slog.Any("err", err))
	}
}

func (s *Simulator) record(ctx context.Context, rec store.JoinRecord) {
	s.mu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > s.cfg.HistoryKeep {
		s.history = s.history[len(s.history)-s.cfg.HistoryKeep:]
	}
	s.mu.Unlock()
	if s.st != nil {
		if err := s.st.AppendJoin(ctx, rec); err != nil {
			slog.Warn("persisting join failed", slog.Any("err", err))
		}
	}
}

// SeedRange renders historical join events across [start, end), minPerDay to
// maxPerDay joins per day at random times, yielding periodically so seeding
// does not monopolize the process. Returns the number of joins posted.
func (s *Simulator) SeedRange(ctx context.Context, start, end time.Time, minPerDay, maxPerDay, chunkSize int) (int, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("join seed range inverted: %s after %s", start, end)
	}
	if minPerDay <= 0 {
		minPerDay = 1
	}
	if maxPerDay < minPerDay {
		maxPerDay = minPerDay
	}
	if chunkSize <= 0 {
		chunkSize = 120
	}
	posted := 0
	batch := 0
	for day := start; day.Before(end); day = day.Add(24 * time.Hour) {
		perDay := minPerDay + intn(maxPerDay-minPerDay+1)
		for i := 0; i < perDay; i++ {
			if ctx.Err() != nil {
				return posted, ctx.Err()
			}
			ts := day.Add(time.Duration(intn(int(24 * time.Hour))))
			s.join(ctx, s.identity.RandomPersona(), ts, false)
			posted++
			batch++
			if batch >= chunkSize {
				batch = 0
				select {
				case <-ctx.Done():
					return posted, ctx.Err()
				case <-time.After(120 * time.Millisecond):
				}
			}
		}
	}
	slog.Info("join seeding done", slog.Int("posted", posted))
	return posted, nil
}

// HistorySnapshot returns up to limit recent joins, newest first, capped at
// 200 regardless of limit.
func (s *Simulator) HistorySnapshot(limit int) []store.JoinRecord {
	if limit <= 0 || limit > historySnapshotMax {
		limit = historySnapshotMax
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit < n {
		n = limit
	}
	out := make([]store.JoinRecord, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out
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
