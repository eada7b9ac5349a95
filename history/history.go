// Package history backfills the feed on startup: an external history file is
// preferred, with a synthetic day-by-day seeder as fallback.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/generate"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/store"
	"github.com/groupline/feedsim/backend/telemetry"
)

// seededFlagKey marks in the key-value store that history was already
// backfilled, so restarts do not duplicate it.
const seededFlagKey = "seeded:history"

// Record is one entry of an external history file.
type Record struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	Text    string `json:"text"`
	Time    string `json:"time"`
	IsOwn   bool   `json:"isOwn,omitempty"`
	Type    string `json:"type,omitempty"`
	Image   string `json:"image,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Renderer is the sink history is loaded into.
type Renderer interface {
	AppendBatch(messages []feed.Message) error
}

// Loader reads an external history file (local path or http URL) and renders
// it in chunks.
type Loader struct {
	Path      string
	ChunkSize int
	Client    *http.Client
}

// Load renders the history at l.Path. Returns the number of messages
// rendered. A missing or malformed file is an error; callers fall back to
// synthetic seeding.
func (l *Loader) Load(ctx context.Context, r Renderer) (int, error) {
	if l.Path == "" {
		return 0, fmt.Errorf("no history path configured")
	}
	raw, err := l.read(ctx)
	if err != nil {
		return 0, err
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, fmt.Errorf("parsing history: %w", err)
	}

	chunk := l.ChunkSize
	if chunk <= 0 {
		chunk = 160
	}
	total := 0
	batch := make([]feed.Message, 0, chunk)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.AppendBatch(batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for _, rec := range records {
		m, err := rec.toMessage()
		if err != nil {
			slog.Warn("skipping history record", slog.Any("err", err), slog.String("id", rec.ID))
			continue
		}
		batch = append(batch, m)
		if len(batch) >= chunk {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	slog.Info("history loaded", slog.String("path", l.Path), slog.Int("messages", total))
	return total, nil
}

func (l *Loader) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(l.Path, "http://") || strings.HasPrefix(l.Path, "https://") {
		client := l.Client
		if client == nil {
			client = &http.Client{Timeout: 15 * time.Second}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("building history request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching history: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching history: status %d", resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading history body: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	return raw, nil
}

func (r Record) toMessage() (feed.Message, error) {
	ts, err := time.Parse(time.RFC3339, r.Time)
	if err != nil {
		// some exports carry millisecond precision without a zone
		ts, err = time.Parse("2006-01-02T15:04:05.999", r.Time)
		if err != nil {
			return feed.Message{}, fmt.Errorf("parsing time %q: %w", r.Time, err)
		}
	}
	kind := feed.KindIncoming
	switch {
	case r.IsOwn:
		kind = feed.KindOutgoing
	case r.Type == "system":
		kind = feed.KindSystem
	case r.Type == "broadcast":
		kind = feed.KindBroadcast
	}
	return feed.Message{
		ID:        r.ID,
		Persona:   persona.Persona{Name: r.Name, Avatar: r.Avatar},
		Text:      r.Text,
		Timestamp: ts,
		Kind:      kind,
		Image:     r.Image,
		Caption:   r.Caption,
	}, nil
}

// Seeder backfills the feed with synthetic messages when no external history
// exists.
type Seeder struct {
	Gen       *generate.Generator
	ChunkSize int
	Yield     time.Duration
}

// Seed renders minPerDay..maxPerDay messages per day across [start, end),
// timestamps randomized within each day, yielding between chunks. Returns
// the number of messages posted.
func (s *Seeder) Seed(ctx context.Context, r Renderer, start, end time.Time, minPerDay, maxPerDay int) (int, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("seed range inverted: %s after %s", start, end)
	}
	if minPerDay <= 0 {
		minPerDay = 1
	}
	if maxPerDay < minPerDay {
		maxPerDay = minPerDay
	}
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = 160
	}
	yield := s.Yield
	if yield <= 0 {
		yield = 110 * time.Millisecond
	}

	posted := 0
	var err error
	telemetry.TimeFunc(telemetry.SeedDuration, func() {
		batch := 0
		for day := start; day.Before(end); day = day.Add(24 * time.Hour) {
			perDay := minPerDay + intn(maxPerDay-minPerDay+1)
			for i := 0; i < perDay; i++ {
				if ctx.Err() != nil {
					err = ctx.Err()
					return
				}
				m := s.Gen.Generate(ctx)
				m.Timestamp = day.Add(time.Duration(intn(int(24 * time.Hour))))
				if renderErr := r.AppendBatch([]feed.Message{m}); renderErr != nil {
					slog.Warn("seed render failed", slog.Any("err", renderErr))
					continue
				}
				telemetry.Inc(telemetry.SeededMessages)
				posted++
				batch++
				if batch >= chunk {
					batch = 0
					select {
					case <-ctx.Done():
						err = ctx.Err()
						return
					case <-time.After(yield):
					}
				}
			}
		}
	})
	if err != nil {
		return posted, err
	}
	slog.Info("synthetic history seeded", slog.Int("messages", posted))
	return posted, nil
}

// SeedIfNeeded runs the startup backfill: skip when the seeded flag is set,
// prefer the external history file, fall back to the synthetic seeder, and
// set the flag on success.
func SeedIfNeeded(ctx context.Context, st store.Store, loader *Loader, seeder *Seeder, r Renderer, start, end time.Time, minPerDay, maxPerDay int) error {
	if st != nil {
		if _, ok, err := st.GetKV(ctx, seededFlagKey); err == nil && ok {
			slog.Debug("history already seeded, skipping")
			return nil
		}
	}

	if loader != nil && loader.Path != "" {
		if n, err := loader.Load(ctx, r); err == nil && n > 0 {
			markSeeded(ctx, st)
			return nil
		} else if err != nil {
			slog.Warn("history load failed, falling back to synthetic seed", slog.Any("err", err))
		}
	}

	if seeder == nil {
		return fmt.Errorf("no history source available")
	}
	if _, err := seeder.Seed(ctx, r, start, end, minPerDay, maxPerDay); err != nil {
		return fmt.Errorf("seeding history: %w", err)
	}
	markSeeded(ctx, st)
	return nil
}

// IsSeeded reports whether the startup backfill already ran.
func IsSeeded(ctx context.Context, st store.Store) bool {
	if st == nil {
		return false
	}
	_, ok, err := st.GetKV(ctx, seededFlagKey)
	return err == nil && ok
}

func markSeeded(ctx context.Context, st store.Store) {
	if st == nil {
		return
	}
	if err := st.SetKV(ctx, seededFlagKey, "1"); err != nil {
		slog.Warn("recording seeded flag failed", slog.Any("err", err))
	}
}

func intn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.Intn(n) //nolint:gosec // G404: simulation randomness, not security
}
