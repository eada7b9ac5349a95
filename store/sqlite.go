package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/groupline/feedsim/backend/db"
)

// SQLiteStore implements Store on a single local SQLite file. This is the
// default backend: the simulator's persistence needs are a small local cache,
// not a shared database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file under dataDir and
// applies the embedded schema.
func OpenSQLite(ctx context.Context, dataDir string) (*SQLiteStore, error) {
	database, err := db.ConnectSQLite(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := db.Migrate(ctx, database, "sqlite"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: database}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

func (s *SQLiteStore) GetKV(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

func (s *SQLiteStore) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, key, value)
	return err
}

func (s *SQLiteStore) LoadFingerprints(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM (
			SELECT id, hash FROM fingerprints ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendFingerprint(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fingerprints(hash) VALUES(?)`, hash)
	return err
}

func (s *SQLiteStore) TrimFingerprints(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE id NOT IN (
			SELECT id FROM fingerprints ORDER BY id DESC LIMIT ?
		 )`, keep)
	return err
}

func (s *SQLiteStore) AppendJoin(ctx context.Context, rec JoinRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO join_events(join_id, persona_name, joined_at) VALUES(?,?,?)`,
		rec.ID, rec.Name, rec.Time)
	return err
}

func (s *SQLiteStore) RecentJoins(ctx context.Context, limit int) ([]JoinRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT join_id, persona_name, joined_at FROM join_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJoins(rows)
}

func (s *SQLiteStore) TrimJoins(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM join_events WHERE id NOT IN (
			SELECT id FROM join_events ORDER BY id DESC LIMIT ?
		 )`, keep)
	return err
}
