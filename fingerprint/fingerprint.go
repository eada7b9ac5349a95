// Package fingerprint tracks hashes of previously generated message text so
// the generator never re-emits near-identical messages within a durable
// horizon. Equality is by hash of a truncated prefix, not by exact string:
// texts that differ only after the truncation point count as the same
// fingerprint. That leniency is intentional.
package fingerprint

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/store"
)

const (
	// DefaultPrefixLen is how many characters of the text feed the hash.
	DefaultPrefixLen = 300
	// DefaultCap bounds the durable horizon; oldest fingerprints beyond the
	// cap are silently dropped, trading a bounded false-negative rate for
	// bounded memory over very long runtimes.
	DefaultCap = 10000
)

// Hash returns a 32-bit rolling hash (djb2) of the first prefixLen characters
// of text, formatted as a decimal string. Not cryptographic; collision
// tolerance is acceptable for novelty checking.
func Hash(text string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultPrefixLen
	}
	var h uint32 = 5381
	n := 0
	for _, r := range text {
		if n >= prefixLen {
			break
		}
		h = (h << 5) + h + uint32(r)
		n++
	}
	return strconv.FormatUint(uint64(h), 10)
}

// Store is the capped, durable fingerprint set. Persistence is best-effort:
// storage errors are logged and the in-memory set keeps working.
type Store struct {
	mu        sync.Mutex
	set       map[string]struct{}
	order     []string
	cap       int
	prefixLen int
	persist   store.Store
}

// Options configure a Store; zero values take defaults.
type Options struct {
	Cap       int
	PrefixLen int
}

// LoadOptions reads fingerprint knobs from the environment.
func LoadOptions() Options {
	return Options{
		Cap:       config.EnvInt("FINGERPRINT_CAP", DefaultCap),
		PrefixLen: config.EnvInt("FINGERPRINT_PREFIX", DefaultPrefixLen),
	}
}

// NewStore builds a fingerprint store backed by st (nil disables persistence)
// and loads any previously persisted horizon.
func NewStore(ctx context.Context, st store.Store, opts Options) *Store {
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}
	if opts.PrefixLen <= 0 {
		opts.PrefixLen = DefaultPrefixLen
	}
	s := &Store{
		set:       make(map[string]struct{}),
		cap:       opts.Cap,
		prefixLen: opts.PrefixLen,
		persist:   st,
	}
	if st != nil {
		hashes, err := st.LoadFingerprints(ctx, opts.Cap)
		if err != nil {
			slog.Warn("fingerprint load failed, starting empty", slog.Any("err", err))
		} else {
			for _, h := range hashes {
				if _, ok := s.set[h]; ok {
					continue
				}
				s.set[h] = struct{}{}
				s.order = append(s.order, h)
			}
			slog.Info("fingerprint horizon loaded", slog.Int("count", len(s.order)))
		}
	}
	return s
}

// IsDuplicate reports whether text's fingerprint is already recorded.
func (s *Store) IsDuplicate(text string) bool {
	h := Hash(text, s.prefixLen)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[h]
	return ok
}

// Record adds text's fingerprint. Idempotent; evicts the oldest entries when
// the cap is exceeded. The durable append never fails the call.
func (s *Store) Record(ctx context.Context, text string) {
	h := Hash(text, s.prefixLen)
	s.mu.Lock()
	if _, ok := s.set[h]; ok {
		s.mu.Unlock()
		return
	}
	s.set[h] = struct{}{}
	s.order = append(s.order, h)
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.AppendFingerprint(ctx, h); err != nil {
			slog.Warn("fingerprint persist failed", slog.Any("err", err))
		}
	}
}

// Size returns the current horizon size.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Compact trims the durable horizon to the cap. Run periodically by the
// maintenance job; the in-memory set already self-trims on Record.
func (s *Store) Compact(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist.TrimFingerprints(ctx, s.cap)
}
