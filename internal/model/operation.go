package model

import (
	"fmt"
	"time"
)

// OperationType identifies which external simulation program an operation wraps.
type OperationType string

const (
	// OperationTypeMicrostructure generates a 3D starting microstructure.
	OperationTypeMicrostructure OperationType = "microstructure"
	// OperationTypeHydration runs the hydration solver on a microstructure.
	OperationTypeHydration OperationType = "hydration"
	// OperationTypeElasticModuli computes effective elastic moduli.
	OperationTypeElasticModuli OperationType = "elastic_moduli"
)

// OperationTypes is the closed set of supported operation types.
var OperationTypes = []OperationType{
	OperationTypeMicrostructure,
	OperationTypeHydration,
	OperationTypeElasticModuli,
}

// OperationStatus represents the status of an operation.
type OperationStatus string

const (
	// OperationStatusQueued indicates the operation is created but its process not spawned yet.
	OperationStatusQueued OperationStatus = "queued"
	// OperationStatusRunning indicates the external process is running.
	OperationStatusRunning OperationStatus = "running"
	// OperationStatusPaused indicates the external process is suspended.
	OperationStatusPaused OperationStatus = "paused"
	// OperationStatusCompleted indicates the operation finished successfully.
	OperationStatusCompleted OperationStatus = "completed"
	// OperationStatusFailed indicates the operation failed.
	OperationStatusFailed OperationStatus = "failed"
	// OperationStatusCancelled indicates the operation was cancelled by the user.
	OperationStatusCancelled OperationStatus = "cancelled"
	// OperationStatusUnregistered indicates the process spawned but could not be
	// bound to its stored record. The process may still be running headless, so
	// this is kept distinct from failed.
	OperationStatusUnregistered OperationStatus = "unregistered"
)

// Terminal returns true when the status locks the record against further
// status or progress writes.
func (s OperationStatus) Terminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	}
	return false
}

// validStatusTransitions holds the allowed operation status transitions.
var validStatusTransitions = map[OperationStatus][]OperationStatus{
	OperationStatusQueued:       {OperationStatusRunning, OperationStatusUnregistered, OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled},
	OperationStatusRunning:      {OperationStatusPaused, OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled},
	OperationStatusPaused:       {OperationStatusRunning, OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled},
	OperationStatusUnregistered: {OperationStatusFailed, OperationStatusCancelled},
}

// CanTransition returns true if moving from s to next is a valid status
// transition. Transitions out of terminal statuses are never valid.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	for _, allowed := range validStatusTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Operation represents one tracked unit of work wrapping an external
// simulation process.
type Operation struct {
	ID          string
	Name        string
	Type        OperationType
	Status      OperationStatus
	Progress    float64 // Fraction in [0,1].
	CurrentStep string
	// ParentID references the operation this one was derived from. It is
	// advisory metadata: it may dangle after the parent is deleted and is
	// never rewritten.
	ParentID string
	// Parameters is the point-in-time snapshot of every submission input.
	// It never changes after creation.
	Parameters Parameters
	Workdir    string
	// Error holds the human-readable failure cause on failed operations.
	Error     string
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

// SubmissionConfig is the user-provided configuration for a new operation.
// Validation runs entirely in memory, before any file or process side effect.
type SubmissionConfig struct {
	Name       string
	Type       OperationType
	ParentName string
	Parameters Parameters
}

// Validate validates the submission configuration.
func (c *SubmissionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}

	validType := false
	for _, t := range OperationTypes {
		if c.Type == t {
			validType = true
			break
		}
	}
	if !validType {
		return fmt.Errorf("unknown operation type %q: %w", c.Type, ErrNotValid)
	}

	if len(c.Parameters) == 0 {
		return fmt.Errorf("parameters are required: %w", ErrNotValid)
	}

	return nil
}
