package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/groupline/feedsim/backend/db"
)

// PostgresStore implements Store on a Postgres database via the pgx stdlib
// driver. Used for deployments that already run Postgres; the SQLite backend
// is the local default.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection, and applies the embedded
// schema. Versioned migrations (db.RunMigrations) are attempted first with
// the embedded schema as fallback, mirroring main's dual-path approach.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	database, err := db.ConnectPostgres(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		if err := db.Migrate(ctx, database, "postgres"); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return &PostgresStore{db: database}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresStore) Close() error                   { return s.db.Close() }

func (s *PostgresStore) GetKV(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

func (s *PostgresStore) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

func (s *PostgresStore) LoadFingerprints(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM (
			SELECT id, hash FROM fingerprints ORDER BY id DESC LIMIT $1
		 ) recent ORDER BY id ASC`, limit)
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

func (s *PostgresStore) AppendFingerprint(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints(hash) VALUES($1) ON CONFLICT(hash) DO NOTHING`, hash)
	return err
}

func (s *PostgresStore) TrimFingerprints(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE id NOT IN (
			SELECT id FROM fingerprints ORDER BY id DESC LIMIT $1
		 )`, keep)
	return err
}

func (s *PostgresStore) AppendJoin(ctx context.Context, rec JoinRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO join_events(join_id, persona_name, joined_at) VALUES($1,$2,$3)`,
		rec.ID, rec.Name, rec.Time)
	return err
}

func (s *PostgresStore) RecentJoins(ctx context.Context, limit int) ([]JoinRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT join_id, persona_name, joined_at FROM join_events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJoins(rows)
}

func (s *PostgresStore) TrimJoins(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM join_events WHERE id NOT IN (
			SELECT id FROM join_events ORDER BY id DESC LIMIT $1
		 )`, keep)
	return err
}

func scanJoins(rows *sql.Rows) ([]JoinRecord, error) {
	var out []JoinRecord
	for rows.Next() {
		var rec JoinRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Time); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
