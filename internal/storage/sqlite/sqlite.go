package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// DB returns the underlying database connection.
func (r *Repository) DB() *sql.DB { return r.db }

const operationColumns = `
	id, name, operation_type, status,
	progress, current_step,
	parent_operation_id, parameters, workdir, error,
	created_at, started_at, ended_at
`

// CreateOperation creates a new operation in the repository.
func (r *Repository) CreateOperation(ctx context.Context, op model.Operation) error {
	params, err := json.Marshal(op.Parameters)
	if err != nil {
		return fmt.Errorf("could not encode parameters: %w", err)
	}

	query := `
		INSERT INTO operations (` + operationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		op.ID,
		op.Name,
		op.Type,
		op.Status,
		op.Progress,
		op.CurrentStep,
		op.ParentID,
		string(params),
		op.Workdir,
		op.Error,
		op.CreatedAt.Unix(),
		unixOrNil(op.StartedAt),
		unixOrNil(op.EndedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: operations.") {
			return fmt.Errorf("operation already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert operation: %w", err)
	}

	r.logger.Debugf("Created operation in repository: %s", op.ID)
	return nil
}

// GetOperation retrieves an operation by ID.
func (r *Repository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`

	op, err := r.scanOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query operation: %w", err)
	}

	return op, nil
}

// GetOperationByName retrieves an operation by name.
func (r *Repository) GetOperationByName(ctx context.Context, name string) (*model.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE name = ?`

	op, err := r.scanOne(ctx, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation with name %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query operation: %w", err)
	}

	return op, nil
}

// ListOperations returns operations matching the filter.
func (r *Repository) ListOperations(ctx context.Context, filter storage.ListFilter) ([]model.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations`

	var conds []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, s)
		}
		conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.ParentID != "" {
		conds = append(conds, "parent_operation_id = ?")
		args = append(args, filter.ParentID)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query operations: %w", err)
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		op, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ops, nil
}

// DeleteOperation deletes an operation. Children of the deleted operation
// keep their parent reference as-is, the link is allowed to dangle.
func (r *Repository) DeleteOperation(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted operation from repository: %s", id)
	return nil
}

// UpdateStatus transitions an operation's status. The read and write run in
// one transaction so concurrent readers never observe a partial update.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status model.OperationStatus, cause string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current model.OperationStatus
	var startedAt sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT status, started_at FROM operations WHERE id = ?`, id).Scan(&current, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("could not query operation status: %w", err)
	}

	if current.Terminal() {
		r.logger.Warningf("Ignoring status command %s on terminal operation %s (status %s)", status, id, current)
		return nil
	}

	if !current.CanTransition(status) {
		return fmt.Errorf("invalid status transition %s -> %s: %w", current, status, model.ErrNotValid)
	}

	now := time.Now().UTC().Unix()
	newStartedAt := startedAt
	if status == model.OperationStatusRunning && !startedAt.Valid {
		newStartedAt = sql.NullInt64{Int64: now, Valid: true}
	}
	var endedAt sql.NullInt64
	if status.Terminal() {
		endedAt = sql.NullInt64{Int64: now, Valid: true}
	}

	query := `
		UPDATE operations
		SET status = ?, started_at = ?, ended_at = ?,
		    error = CASE WHEN ? != '' THEN ? ELSE error END
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query, status, newStartedAt, endedAt, cause, cause, id); err != nil {
		return fmt.Errorf("could not update operation status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Updated operation %s status to %s", id, status)
	return nil
}

// UpdateProgress records a progress snapshot for an operation. The stored
// fraction is clamped to [0,1] and never lowered.
func (r *Repository) UpdateProgress(ctx context.Context, id string, fraction float64, step string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current model.OperationStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM operations WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("could not query operation status: %w", err)
	}

	if current != model.OperationStatusRunning && current != model.OperationStatusPaused {
		r.logger.Warningf("Ignoring progress command on operation %s in status %s", id, current)
		return nil
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	query := `
		UPDATE operations
		SET progress = MAX(progress, ?), current_step = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query, fraction, step, id); err != nil {
		return fmt.Errorf("could not update operation progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (*model.Operation, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	op, err := r.scanRow(row)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.Operation, error) {
	var op model.Operation
	var params string
	var createdAt, startedAt, endedAt sql.NullInt64

	err := s.Scan(
		&op.ID,
		&op.Name,
		&op.Type,
		&op.Status,
		&op.Progress,
		&op.CurrentStep,
		&op.ParentID,
		&params,
		&op.Workdir,
		&op.Error,
		&createdAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return model.Operation{}, err
	}

	if err := json.Unmarshal([]byte(params), &op.Parameters); err != nil {
		return model.Operation{}, fmt.Errorf("could not decode parameters: %w", err)
	}

	if !createdAt.Valid {
		return model.Operation{}, fmt.Errorf("created_at is required")
	}
	op.CreatedAt = timeFromUnix(createdAt.Int64)
	if startedAt.Valid {
		t := timeFromUnix(startedAt.Int64)
		op.StartedAt = &t
	}
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Int64)
		op.EndedAt = &t
	}

	return op, nil
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
