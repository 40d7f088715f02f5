package lib

import (
	"errors"
	"time"

	"github.com/cementlab/simops/internal/model"
)

// Backend identifies the process backend implementation.
type Backend string

const (
	// BackendExec runs simulation programs as local OS processes.
	BackendExec Backend = "exec"

	// BackendDocker runs simulation images as containers.
	BackendDocker Backend = "docker"

	// BackendFake simulates process lifecycle in memory (no real programs).
	// Use this for unit testing without installed simulation programs.
	BackendFake Backend = "fake"
)

// OperationType identifies which external simulation program an operation runs.
type OperationType string

const (
	// OperationTypeMicrostructure generates a starting microstructure.
	OperationTypeMicrostructure OperationType = "microstructure"
	// OperationTypeHydration runs the hydration solver.
	OperationTypeHydration OperationType = "hydration"
	// OperationTypeElasticModuli computes effective elastic properties.
	OperationTypeElasticModuli OperationType = "elastic_moduli"
)

// OperationStatus represents the lifecycle state of an operation.
//
// The typical lifecycle is:
//
//	queued -> running -> completed
//
// with running <-> paused excursions, and failed/cancelled as the other
// terminal states. An operation whose process could never be bound to its
// record becomes unregistered and awaits manual disposal.
type OperationStatus string

const (
	OperationStatusQueued       OperationStatus = "queued"
	OperationStatusRunning      OperationStatus = "running"
	OperationStatusPaused       OperationStatus = "paused"
	OperationStatusCompleted    OperationStatus = "completed"
	OperationStatusFailed       OperationStatus = "failed"
	OperationStatusCancelled    OperationStatus = "cancelled"
	OperationStatusUnregistered OperationStatus = "unregistered"
)

// Operation is a read-only snapshot of an operation's state at the time of
// the API call. Use [Client.Get] to fetch the latest state.
type Operation struct {
	// ID is the unique identifier (ULID) assigned at submission.
	ID string
	// Name is the user-chosen unique name.
	Name string
	// Type selects the external simulation program.
	Type OperationType
	// Status is the current lifecycle state.
	Status OperationStatus
	// Progress is the completed fraction in [0,1].
	Progress float64
	// CurrentStep is the free-text label of the current phase.
	CurrentStep string
	// ParentID is the operation this one derives from, empty for roots. The
	// reference may dangle after the parent is removed.
	ParentID string
	// Parameters is the deep-frozen snapshot of all submission inputs.
	Parameters map[string]any
	// Workdir is the operation's working directory.
	Workdir string
	// Error is the failure cause, non-empty on failed operations.
	Error string
	// CreatedAt is when the operation was submitted.
	CreatedAt time.Time
	// StartedAt is when the process was bound to the record. Nil while queued.
	StartedAt *time.Time
	// EndedAt is when the operation reached a terminal status. Nil before.
	EndedAt *time.Time
}

// SubmitOpts configures an operation submission.
//
// Name, Type and Parameters are required (a parent's parameters count).
// When Parent is set, the parent's parameters are used as the template and
// Parameters act as overrides; the merged result is frozen at submission.
type SubmitOpts struct {
	// Name is the operation name (required). Must be unique.
	Name string
	// Type selects the simulation program (required).
	Type OperationType
	// Parent is the name of the operation to derive from. An unknown parent
	// drops the link with a warning, it never blocks the submission.
	Parent string
	// Parameters are the submission inputs (template overrides with Parent).
	Parameters map[string]any
}

// ListOpts filters the operations returned by [Client.List].
// Pass nil for all operations.
type ListOpts struct {
	// Status limits the result to operations in this status.
	Status *OperationStatus
}

// Lineage is the parent/children view of one operation.
type Lineage struct {
	Operation Operation
	// Parent is nil when the operation has no parent or the link dangles.
	Parent *Operation
	// ParentDangling is true when the operation references a parent that no
	// longer exists.
	ParentDangling bool
	Children []Operation
}

// SDK sentinel errors. Returned errors wrap these, branch with errors.Is.
var (
	// ErrNotFound marks a missing operation.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a name or process collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid marks a request invalid for the operation's current state.
	ErrNotValid = errors.New("not valid")
	// ErrNotRunning marks a control request for an operation without a live
	// process handle.
	ErrNotRunning = errors.New("not running")
)

func fromInternalOperation(op model.Operation) Operation {
	return Operation{
		ID:          op.ID,
		Name:        op.Name,
		Type:        OperationType(op.Type),
		Status:      OperationStatus(op.Status),
		Progress:    op.Progress,
		CurrentStep: op.CurrentStep,
		ParentID:    op.ParentID,
		Parameters:  op.Parameters,
		Workdir:     op.Workdir,
		Error:       op.Error,
		CreatedAt:   op.CreatedAt,
		StartedAt:   op.StartedAt,
		EndedAt:     op.EndedAt,
	}
}

func fromInternalOperationList(ops []model.Operation) []Operation {
	result := make([]Operation, len(ops))
	for i, op := range ops {
		result[i] = fromInternalOperation(op)
	}
	return result
}

// mapError translates internal sentinels into the SDK's public ones while
// keeping the original error chain intact.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound):
		return errors.Join(err, ErrNotFound)
	case errors.Is(err, model.ErrAlreadyExists):
		return errors.Join(err, ErrAlreadyExists)
	case errors.Is(err, model.ErrNotValid):
		return errors.Join(err, ErrNotValid)
	case errors.Is(err, model.ErrNotRunning):
		return errors.Join(err, ErrNotRunning)
	default:
		return err
	}
}
