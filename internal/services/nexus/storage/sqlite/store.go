package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/autonexus/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/autonexus/internal/services/nexus/storage"
	"github.com/louisbranch/autonexus/internal/services/nexus/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed dispatch journaling.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a journal SQLite store and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordDispatch persists one dispatch outcome.
func (s *Store) RecordDispatch(ctx context.Context, record storage.DispatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	record.Target = strings.TrimSpace(record.Target)
	record.Command = strings.TrimSpace(record.Command)
	record.Sender = strings.TrimSpace(record.Sender)
	record.Mode = strings.TrimSpace(record.Mode)
	record.Outcome = strings.TrimSpace(record.Outcome)
	record.Error = strings.TrimSpace(record.Error)
	if record.Target == "" {
		return fmt.Errorf("target is required")
	}
	if record.Command == "" {
		return fmt.Errorf("command is required")
	}
	if record.Mode == "" {
		return fmt.Errorf("mode is required")
	}
	if record.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO nexus_dispatches (
	target,
	command,
	sender,
	mode,
	outcome,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		record.Target,
		record.Command,
		record.Sender,
		record.Mode,
		record.Outcome,
		record.Error,
		record.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// ListDispatches lists newest-first dispatch records.
func (s *Store) ListDispatches(ctx context.Context, limit int) ([]storage.DispatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	target,
	command,
	sender,
	mode,
	outcome,
	last_error,
	created_at
FROM nexus_dispatches
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	records := make([]storage.DispatchRecord, 0, limit)
	for rows.Next() {
		var record storage.DispatchRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.Target,
			&record.Command,
			&record.Sender,
			&record.Mode,
			&record.Outcome,
			&record.Error,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return records, nil
}

var _ storage.DispatchStore = (*Store)(nil)
