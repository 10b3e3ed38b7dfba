// Package datastore provides persistence for the linechat presence audit log.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/linechat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05.000000"

// SQLStore is the SQLite-backed EventStore.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (or creates) a SQLite database and runs migrations.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS presence_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       INTEGER NOT NULL CHECK(kind >= 0 AND kind <= 2),
		name       TEXT    NOT NULL CHECK(length(name) > 0 AND length(name) <= 20),
		old_name   TEXT    NOT NULL DEFAULT '',
		conn_id    TEXT    NOT NULL DEFAULT '',
		remote     TEXT    NOT NULL DEFAULT '',
		reason     TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_presence_events_name ON presence_events(name)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// RecordEvent validates and inserts a presence event.
func (s *SQLStore) RecordEvent(ctx context.Context, event *model.Event) error {
	if err := validateEvent(event); err != nil {
		return fmt.Errorf("datastore: record event: %w", err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO presence_events (kind, name, old_name, conn_id, remote, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		int(event.Kind), event.Name, event.OldName, event.ConnID, event.Remote, event.Reason, formatDBTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("datastore: record event: %w", err)
	}
	id, _ := res.LastInsertId()
	event.ID = id
	return nil
}

// ListEvents returns presence events newest first.
func (s *SQLStore) ListEvents(ctx context.Context, filters model.EventFilters) ([]model.Event, error) {
	query := `
		SELECT id, kind, name, old_name, conn_id, remote, reason, created_at
		FROM presence_events
		WHERE (? IS NULL OR name = ?)
		AND (? IS NULL OR kind = ?)
		ORDER BY id DESC
		LIMIT COALESCE(?, 100)
		OFFSET COALESCE(?, 0)
	`

	var name, kind, limit, offset any
	if filters.LimitToName != nil {
		name = *filters.LimitToName
	}
	if filters.LimitToKind != nil {
		kind = int64(*filters.LimitToKind)
	}
	if filters.PageSize != nil {
		limit = *filters.PageSize
	}
	if filters.Offset != nil {
		offset = *filters.Offset
	}

	rows, err := s.db.QueryContext(ctx, query, name, name, kind, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("datastore: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var kind int
		var createdAt string
		if err := rows.Scan(&e.ID, &kind, &e.Name, &e.OldName, &e.ConnID, &e.Remote, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan event: %w", err)
		}
		e.CreatedAt = parsed
		events = append(events, e)
	}
	return events, rows.Err()
}
