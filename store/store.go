// Package store provides durable persistence for the simulator's small local
// caches: the fingerprint horizon, join history, and a generic key/value
// bucket (seed flags, counters). Three backends implement the same interface:
// SQLite (default, single local file), Postgres, and an in-memory fallback
// used when no durable backend can be opened. Persistence is best-effort by
// contract; callers log and continue on error.
package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// JoinRecord is one append-only join history entry.
type JoinRecord struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

// Store is the durable storage contract shared by all backends.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// Key/value bucket.
	GetKV(ctx context.Context, key string) (value string, ok bool, err error)
	SetKV(ctx context.Context, key, value string) error

	// Fingerprint horizon. LoadFingerprints returns the most recent limit
	// hashes in insertion order (oldest first).
	LoadFingerprints(ctx context.Context, limit int) ([]string, error)
	AppendFingerprint(ctx context.Context, hash string) error
	TrimFingerprints(ctx context.Context, keep int) error

	// Join history (capped, replay/debug only).
	AppendJoin(ctx context.Context, rec JoinRecord) error
	RecentJoins(ctx context.Context, limit int) ([]JoinRecord, error)
	TrimJoins(ctx context.Context, keep int) error
}

// Open selects a backend from the DSN: Postgres for postgres:// DSNs, SQLite
// under dataDir otherwise. On any open or migration failure it degrades to the
// in-memory backend rather than failing; the simulator must keep functioning
// without durable storage.
func Open(ctx context.Context, dsn, dataDir string) Store {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		st, err := OpenPostgres(ctx, dsn)
		if err == nil {
			slog.Info("store opened", slog.String("backend", "postgres"))
			return st
		}
		slog.Warn("postgres store unavailable, degrading to memory", slog.Any("err", err))
		return NewMemory()
	}
	st, err := OpenSQLite(ctx, dataDir)
	if err == nil {
		slog.Info("store opened", slog.String("backend", "sqlite"), slog.String("data_dir", dataDir))
		return st
	}
	slog.Warn("sqlite store unavailable, degrading to memory", slog.Any("err", err))
	return NewMemory()
}
