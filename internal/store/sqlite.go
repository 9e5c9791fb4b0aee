package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS threat_models (
	id           TEXT PRIMARY KEY,
	application  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	threat_count INTEGER NOT NULL DEFAULT 0,
	complete     BOOLEAN NOT NULL DEFAULT 0,
	snapshot     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS threat_models_created_at ON threat_models (created_at);`

// SQLite keeps history in a local database file
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "threatc.db"
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(ctx context.Context, m *threatmodel.ThreatModel) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	r := recordOf(m)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threat_models (id, application, created_at, threat_count, complete, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			application = excluded.application,
			threat_count = excluded.threat_count,
			complete = excluded.complete,
			snapshot = excluded.snapshot`,
		r.ID, r.Application, r.CreatedAt.UTC(), r.ThreatCount, r.Complete, string(data))
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*threatmodel.ThreatModel, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM threat_models WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	return decode(id, []byte(snapshot))
}

func (s *SQLite) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application, created_at, threat_count, complete
		FROM threat_models ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created time.Time
		if err := rows.Scan(&r.ID, &r.Application, &created, &r.ThreatCount, &r.Complete); err != nil {
			return nil, fmt.Errorf("failed to scan model record: %w", err)
		}
		r.CreatedAt = created.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threat_models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
