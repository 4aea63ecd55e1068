package buildlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// BatchRecord is one packaging batch attempt as stored.
type BatchRecord struct {
	ID              string     `json:"id"`
	Trigger         string     `json:"trigger"`
	Status          string     `json:"status"`
	Components      int        `json:"components"`
	FailedComponent *string    `json:"failed_component,omitempty"`
	Error           *string    `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Store is a SQLite-backed build log. It implements packaging.Recorder.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a store writing to the database file at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &Store{path: path}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open build log: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping build log: %w", err)
	}

	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate applies the embedded migrations.
func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// BatchStarted records the start of a packaging batch attempt. Retries of
// the same batch chain upsert the existing row back to running.
func (s *Store) BatchStarted(ctx context.Context, batchID, trigger string, components int) error {
	query := `
		INSERT INTO batches (id, trigger_kind, status, components, started_at)
		VALUES (?, ?, 'running', ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = 'running',
			trigger_kind = excluded.trigger_kind,
			failed_component = NULL,
			error = NULL,
			completed_at = NULL
	`
	if _, err := s.db.ExecContext(ctx, query, batchID, trigger, components, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record batch start: %w", err)
	}
	return nil
}

// BatchFinished records a batch attempt's terminal outcome.
func (s *Store) BatchFinished(ctx context.Context, batchID, status, failedComponent string, failure error) error {
	var failedCol, errCol *string
	if failedComponent != "" {
		failedCol = &failedComponent
	}
	if failure != nil {
		msg := failure.Error()
		errCol = &msg
	}

	query := `
		UPDATE batches
		SET status = ?, failed_component = ?, error = ?, completed_at = ?
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, status, failedCol, errCol, time.Now().UTC(), batchID); err != nil {
		return fmt.Errorf("failed to record batch outcome: %w", err)
	}
	return nil
}

// RecentBatches returns the most recent batch records, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, trigger_kind, status, components, failed_component, error, started_at, completed_at
		FROM batches
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var records []BatchRecord
	for rows.Next() {
		var rec BatchRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Trigger,
			&rec.Status,
			&rec.Components,
			&rec.FailedComponent,
			&rec.Error,
			&rec.StartedAt,
			&rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
