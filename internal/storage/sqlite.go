package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/jwebster45206/scene-engine/internal/storage/migrations"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// SQLiteBackend stores sessions in a single SQLite table.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens (or creates) the database at path and applies the
// embedded migrations.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite session store ready", "path", path)
	return &SQLiteBackend{db: db, logger: logger}, nil
}

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Load(ctx context.Context, id uuid.UUID) (Record, error) {
	rec := Record{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM sessions WHERE id = ?`, id.String(),
	).Scan(&rec.Version, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, state.NotFoundf("session %s", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	return rec, nil
}

func (s *SQLiteBackend) Create(ctx context.Context, rec Record) error {
	now := time.Now().UTC().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, version, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Version, rec.Data, now, now,
	)
	if isPrimaryKeyViolation(err) {
		return state.Statef("session %s already exists", rec.ID)
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Save(ctx context.Context, rec Record, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET version = ?, data = ?, updated_at = ? WHERE id = ? AND version = ?`,
		rec.Version, rec.Data, time.Now().UTC().UnixMilli(), rec.ID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current int64
	err = s.db.QueryRowContext(ctx, `SELECT version FROM sessions WHERE id = ?`, rec.ID.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return state.NotFoundf("session %s", rec.ID)
	}
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return state.Statef("session %s is at version %d, expected %d", rec.ID, current, expectedVersion)
}

func (s *SQLiteBackend) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func isPrimaryKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

const migrationTable = "schema_migrations"

// applyMigrations runs each embedded *.sql file once, in name order.
func applyMigrations(db *sql.DB, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		up := string(content)
		if i := strings.Index(up, "-- +migrate Up"); i >= 0 {
			up = up[i+len("-- +migrate Up"):]
		}
		if i := strings.Index(up, "-- +migrate Down"); i >= 0 {
			up = up[:i]
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}
