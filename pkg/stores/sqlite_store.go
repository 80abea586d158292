package stores

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

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// The index is touched by one CLI process at a time; a small pool
	// is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

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

// CreateEnvironment inserts a new environment record.
func (s *SQLiteStore) CreateEnvironment(ctx context.Context, env *Environment) error {
	query := `
		INSERT INTO environments (
			id, project, region, status, manifest, variables, outputs,
			access, cost, state_file, env_dir, created_at, updated_at, destroyed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		env.ID,
		env.Project,
		env.Region,
		env.Status,
		env.Manifest,
		env.Variables,
		env.Outputs,
		env.Access,
		env.Cost,
		env.StateFile,
		env.EnvDir,
		env.CreatedAt,
		env.UpdatedAt,
		env.DestroyedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}

	return nil
}

// GetEnvironment retrieves an environment by ID.
func (s *SQLiteStore) GetEnvironment(ctx context.Context, id string) (*Environment, error) {
	query := `
		SELECT id, project, region, status, manifest, variables, outputs,
			   access, cost, state_file, env_dir, created_at, updated_at, destroyed_at
		FROM environments
		WHERE id = ?
	`

	env := &Environment{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&env.ID,
		&env.Project,
		&env.Region,
		&env.Status,
		&env.Manifest,
		&env.Variables,
		&env.Outputs,
		&env.Access,
		&env.Cost,
		&env.StateFile,
		&env.EnvDir,
		&env.CreatedAt,
		&env.UpdatedAt,
		&env.DestroyedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("environment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}

	return env, nil
}

// UpdateEnvironment rewrites the mutable fields of an environment
// record and bumps updated_at.
func (s *SQLiteStore) UpdateEnvironment(ctx context.Context, env *Environment) error {
	query := `
		UPDATE environments
		SET status = ?, variables = ?, outputs = ?, access = ?, cost = ?,
			state_file = ?, env_dir = ?, updated_at = ?
		WHERE id = ?
	`

	env.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		env.Status,
		env.Variables,
		env.Outputs,
		env.Access,
		env.Cost,
		env.StateFile,
		env.EnvDir,
		env.UpdatedAt,
		env.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update environment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("environment not found: %s", env.ID)
	}

	return nil
}

// UpdateEnvironmentStatus moves an environment to a new lifecycle
// status.
func (s *SQLiteStore) UpdateEnvironmentStatus(ctx context.Context, id string, status EnvironmentStatus) error {
	query := `UPDATE environments SET status = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update environment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("environment not found: %s", id)
	}

	return nil
}

// MarkDestroyed records the terminal state of an environment. The row
// is kept for the audit trail; ListEnvironments hides it by default.
func (s *SQLiteStore) MarkDestroyed(ctx context.Context, id string) error {
	query := `UPDATE environments SET status = ?, destroyed_at = ?, updated_at = ? WHERE id = ?`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, StatusDestroyed, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark environment destroyed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("environment not found: %s", id)
	}

	return nil
}

// ListEnvironments lists environments, newest first. Destroyed
// environments are excluded unless requested.
func (s *SQLiteStore) ListEnvironments(ctx context.Context, includeDestroyed bool) ([]*Environment, error) {
	query := `
		SELECT id, project, region, status, manifest, variables, outputs,
			   access, cost, state_file, env_dir, created_at, updated_at, destroyed_at
		FROM environments
		WHERE (? OR destroyed_at IS NULL)
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, includeDestroyed)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	envs := []*Environment{}
	for rows.Next() {
		env := &Environment{}
		err := rows.Scan(
			&env.ID,
			&env.Project,
			&env.Region,
			&env.Status,
			&env.Manifest,
			&env.Variables,
			&env.Outputs,
			&env.Access,
			&env.Cost,
			&env.StateFile,
			&env.EnvDir,
			&env.CreatedAt,
			&env.UpdatedAt,
			&env.DestroyedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan environment: %w", err)
		}
		envs = append(envs, env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating environments: %w", err)
	}

	return envs, nil
}

// DeleteEnvironment removes an environment record and its operations.
func (s *SQLiteStore) DeleteEnvironment(ctx context.Context, id string) error {
	query := `DELETE FROM environments WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete environment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("environment not found: %s", id)
	}

	return nil
}

// RecordOperation appends an up/down audit row.
func (s *SQLiteStore) RecordOperation(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO operations (env_id, kind, outcome, error, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		op.EnvID,
		op.Kind,
		op.Outcome,
		op.Error,
		op.StartedAt,
		op.CompletedAt,
		op.Duration.Milliseconds(),
	)

	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation ID: %w", err)
	}

	op.ID = id
	return nil
}

// ListOperations lists audit rows for an environment, newest first.
func (s *SQLiteStore) ListOperations(ctx context.Context, envID string, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, env_id, kind, outcome, error, started_at, completed_at, duration_ms
		FROM operations
		WHERE env_id = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, envID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*Operation{}
	for rows.Next() {
		op := &Operation{}
		var durationMS int64
		err := rows.Scan(
			&op.ID,
			&op.EnvID,
			&op.Kind,
			&op.Outcome,
			&op.Error,
			&op.StartedAt,
			&op.CompletedAt,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Duration = time.Duration(durationMS) * time.Millisecond
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
