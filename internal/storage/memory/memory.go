package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	operations map[string]model.Operation
	mu         sync.RWMutex
	logger     log.Logger
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		operations: make(map[string]model.Operation),
		logger:     cfg.Logger,
	}, nil
}

// CreateOperation creates a new operation in the repository.
func (r *Repository) CreateOperation(ctx context.Context, op model.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operations[op.ID]; ok {
		return fmt.Errorf("operation with id %s: %w", op.ID, model.ErrAlreadyExists)
	}

	for _, existing := range r.operations {
		if existing.Name == op.Name {
			return fmt.Errorf("operation with name %s: %w", op.Name, model.ErrAlreadyExists)
		}
	}

	r.operations[op.ID] = op
	r.logger.Debugf("Created operation in repository: %s", op.ID)

	return nil
}

// GetOperation retrieves an operation by ID.
func (r *Repository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operations[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
	}

	opCopy := op
	return &opCopy, nil
}

// GetOperationByName retrieves an operation by name.
func (r *Repository) GetOperationByName(ctx context.Context, name string) (*model.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, op := range r.operations {
		if op.Name == name {
			opCopy := op
			return &opCopy, nil
		}
	}

	return nil, fmt.Errorf("operation with name %s: %w", name, model.ErrNotFound)
}

// ListOperations returns operations matching the filter.
func (r *Repository) ListOperations(ctx context.Context, filter storage.ListFilter) ([]model.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]model.Operation, 0, len(r.operations))
	for _, op := range r.operations {
		if !matchesFilter(op, filter) {
			continue
		}
		ops = append(ops, op)
	}

	return ops, nil
}

// DeleteOperation deletes an operation. Children of the deleted operation
// keep their parent reference as-is, the link is allowed to dangle.
func (r *Repository) DeleteOperation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operations[id]; !ok {
		return fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
	}

	delete(r.operations, id)
	r.logger.Debugf("Deleted operation from repository: %s", id)

	return nil
}

// UpdateStatus transitions an operation's status.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status model.OperationStatus, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operations[id]
	if !ok {
		return fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
	}

	if op.Status.Terminal() {
		r.logger.Warningf("Ignoring status command %s on terminal operation %s (status %s)", status, id, op.Status)
		return nil
	}

	if !op.Status.CanTransition(status) {
		return fmt.Errorf("invalid status transition %s -> %s: %w", op.Status, status, model.ErrNotValid)
	}

	now := time.Now().UTC()
	op.Status = status
	if status == model.OperationStatusRunning && op.StartedAt == nil {
		op.StartedAt = &now
	}
	if status.Terminal() {
		op.EndedAt = &now
	}
	if cause != "" {
		op.Error = cause
	}

	r.operations[id] = op
	r.logger.Debugf("Updated operation %s status to %s", id, status)

	return nil
}

// UpdateProgress records a progress snapshot for an operation.
func (r *Repository) UpdateProgress(ctx context.Context, id string, fraction float64, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operations[id]
	if !ok {
		return fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
	}

	if op.Status.Terminal() {
		r.logger.Warningf("Ignoring progress command on terminal operation %s (status %s)", id, op.Status)
		return nil
	}

	if op.Status != model.OperationStatusRunning && op.Status != model.OperationStatusPaused {
		r.logger.Warningf("Ignoring progress command on operation %s in status %s", id, op.Status)
		return nil
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	// Progress is monotonically non-decreasing while running.
	if fraction > op.Progress {
		op.Progress = fraction
	}
	op.CurrentStep = step

	r.operations[id] = op

	return nil
}

func matchesFilter(op model.Operation, filter storage.ListFilter) bool {
	if filter.ParentID != "" && op.ParentID != filter.ParentID {
		return false
	}

	if len(filter.Statuses) == 0 {
		return true
	}
	for _, s := range filter.Statuses {
		if op.Status == s {
			return true
		}
	}

	return false
}
