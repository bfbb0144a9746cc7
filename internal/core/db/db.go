package db

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/errors"
	"github.com/seckatie/arkive/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the Arkive domain store. Every read and write is scoped to an
// owner; rows belonging to anyone else behave as if they did not exist.
type DB struct {
	db  *sqlx.DB
	log logger.Logger

	// writeMu serializes write transactions so events leave in commit order.
	writeMu sync.Mutex

	listenersMu    sync.RWMutex
	eventListeners map[EventKind][]EventListener

	deriver     core.Deriver
	searcher    Searcher
	recentLimit int
	now         func() time.Time
}

// NewSQLiteDB opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteDB(path string, log logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Nop()
	}
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")

	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000"
	if !memory {
		dsn += "&_journal_mode=WAL"
	}

	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Each connection to :memory: is its own database.
		conn.SetMaxOpenConns(1)
	}

	return &DB{
		db:             conn,
		log:            log,
		eventListeners: make(map[EventKind][]EventListener),
		deriver:        core.Deriver{FaviconURL: core.DefaultFaviconURL},
		recentLimit:    core.RecentLimit,
		now:            time.Now,
	}, nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// SetDeriver replaces the metadata deriver used by CreateBookmark.
func (db *DB) SetDeriver(d core.Deriver) {
	db.deriver = d
}

// SetRecentLimit caps the "recent" filter.
func (db *DB) SetRecentLimit(n int) {
	if n > 0 {
		db.recentLimit = n
	}
}

func (db *DB) Close() error {
	return db.db.Close()
}

// MigrationStep is the outcome of one migration file.
type MigrationStep struct {
	Version string
	Skipped bool
	Err     error
}

// MigrationReport lists every migration in the order it was considered.
type MigrationReport struct {
	Steps []MigrationStep
}

// Failed returns the steps that did not apply.
func (r MigrationReport) Failed() []MigrationStep {
	var out []MigrationStep
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err joins all step failures, or returns nil.
func (r MigrationReport) Err() error {
	var errs []error
	for _, s := range r.Failed() {
		errs = append(errs, fmt.Errorf("migration %s: %w", s.Version, s.Err))
	}
	return stderrors.Join(errs...)
}

// Migrate applies pending migrations, each in its own transaction. A
// failing step is recorded in the report and the run moves on to the next
// one; the returned error is reserved for problems that stop the whole run.
func (db *DB) Migrate(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	if _, err := db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return report, fmt.Errorf("failed to create schema migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return report, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)

	for _, migration := range migrations {
		version := strings.TrimSuffix(migration, ".sql")
		step := MigrationStep{Version: version}

		var exists bool
		if err := db.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = ?)
		`, version).Scan(&exists); err != nil {
			step.Err = fmt.Errorf("failed to check if migration has been applied: %w", err)
		} else if exists {
			step.Skipped = true
			db.log.Debug("migration already applied", logger.String("version", version))
		} else {
			step.Err = db.applyMigration(ctx, migration, version)
			if step.Err != nil {
				db.log.Error("migration failed", logger.String("version", version), logger.Error(step.Err))
			} else {
				db.log.Info("migration applied", logger.String("version", version))
			}
		}
		report.Steps = append(report.Steps, step)
	}

	return report, nil
}

func (db *DB) applyMigration(ctx context.Context, file, version string) error {
	content, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("failed to mark migration as applied: %w", err)
		}
		return nil
	})
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err := tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
			db.log.Warn("rollback failed", logger.Error(err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// write runs fn in a transaction under the write lock and emits the
// returned events once the transaction has committed.
func (db *DB) write(ctx context.Context, fn func(tx *sqlx.Tx) ([]Event, error)) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	var events []Event
	if err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		events, err = fn(tx)
		return err
	}); err != nil {
		return err
	}
	for _, ev := range events {
		db.emit(ev)
	}
	return nil
}

func (db *DB) timestamp() Timestamp {
	return NewTimestamp(db.now())
}

// classify maps driver errors onto the error taxonomy. Errors that already
// carry a code pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Transient(op+" interrupted", err)
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		msg := sqErr.Error()
		switch {
		case sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked:
			return errors.Transient("database is busy", err)
		case sqErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			if strings.Contains(msg, "bookmarks.") {
				return errors.ErrDuplicateBookmark.WithCause(err)
			}
			return errors.Duplicate("record already exists").WithCause(err)
		case sqErr.ExtendedCode == sqlite3.ErrConstraintCheck || sqErr.ExtendedCode == sqlite3.ErrConstraintNotNull:
			return errors.Validation("required field is empty").WithCause(err)
		case sqErr.ExtendedCode == sqlite3.ErrConstraintTrigger && strings.Contains(msg, "collection does not belong"):
			return errors.Forbidden("collection does not belong to owner").WithCause(err)
		case sqErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return errors.NotFound("referenced record not found").WithCause(err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
