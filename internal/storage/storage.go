package storage

import (
	"context"

	"github.com/cementlab/simops/internal/model"
)

// ListFilter narrows the operations returned by Repository.ListOperations.
type ListFilter struct {
	// Statuses limits the result to operations in any of these statuses.
	// Empty means all statuses.
	Statuses []model.OperationStatus
	// ParentID limits the result to children of this operation.
	ParentID string
}

// Repository is the single source of truth for operation persistence.
//
// It is the only component allowed to persist status, progress and
// current-step transitions: the supervisor, monitor and registrar issue
// UpdateStatus/UpdateProgress commands and re-query instead of caching.
// Status/progress commands on a record in a terminal status are logged
// no-ops, never errors.
type Repository interface {
	CreateOperation(ctx context.Context, op model.Operation) error
	GetOperation(ctx context.Context, id string) (*model.Operation, error)
	GetOperationByName(ctx context.Context, name string) (*model.Operation, error)
	ListOperations(ctx context.Context, filter ListFilter) ([]model.Operation, error)
	DeleteOperation(ctx context.Context, id string) error

	// UpdateStatus transitions an operation's status, recording StartedAt on
	// the first transition to running, EndedAt on terminal transitions and
	// cause as the failure message where relevant.
	UpdateStatus(ctx context.Context, id string, status model.OperationStatus, cause string) error

	// UpdateProgress records a progress snapshot for a running or paused
	// operation. The stored fraction is clamped to [0,1] and never lowered.
	UpdateProgress(ctx context.Context, id string, fraction float64, step string) error
}
