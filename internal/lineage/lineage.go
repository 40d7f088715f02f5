package lineage

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
)

// TrackerConfig is the configuration for the lineage tracker.
type TrackerConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *TrackerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lineage.Tracker"})
	return nil
}

// Tracker records and navigates parent/child links between operations. Links
// are plain references: deleting a parent leaves children with a dangling
// parent ID, which is legal and surfaced as such when navigating.
type Tracker struct {
	repo   storage.Repository
	logger log.Logger
}

// NewTracker creates a new lineage tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Tracker{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Resolve maps a parent operation name to its ID at submission time. A parent
// that cannot be found is not fatal for the submission, the link is simply
// dropped with a warning.
func (t *Tracker) Resolve(ctx context.Context, parentName string) (string, error) {
	if parentName == "" {
		return "", nil
	}

	parent, err := t.repo.GetOperationByName(ctx, parentName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			t.logger.Warningf("Parent operation %q not found, submitting without lineage link", parentName)
			return "", nil
		}
		return "", fmt.Errorf("could not resolve parent operation %q: %w", parentName, err)
	}

	return parent.ID, nil
}

// Freeze produces the parameter set a child operation is created with: a deep
// copy of the parent's parameters with the submission overrides merged on top.
// The result shares no state with either input, later edits to the parent
// never reach the child.
func (t *Tracker) Freeze(template, overrides model.Parameters) (model.Parameters, error) {
	frozen, err := template.Clone()
	if err != nil {
		return nil, fmt.Errorf("could not copy template parameters: %w", err)
	}

	overridesCopy, err := overrides.Clone()
	if err != nil {
		return nil, fmt.Errorf("could not copy override parameters: %w", err)
	}

	if frozen == nil {
		return overridesCopy, nil
	}
	if overridesCopy == nil {
		return frozen, nil
	}

	dst := map[string]any(frozen)
	if err := mergo.Merge(&dst, map[string]any(overridesCopy), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("could not merge parameter overrides: %w", err)
	}

	return model.Parameters(dst), nil
}

// ParentOf returns the parent of an operation. ErrNotFound with a non-empty
// parent ID means the link dangles (the parent record was deleted).
func (t *Tracker) ParentOf(ctx context.Context, op model.Operation) (*model.Operation, error) {
	if op.ParentID == "" {
		return nil, nil
	}

	parent, err := t.repo.GetOperation(ctx, op.ParentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("parent operation %s no longer exists: %w", op.ParentID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get parent operation: %w", err)
	}

	return parent, nil
}

// ChildrenOf returns the operations derived from the given one.
func (t *Tracker) ChildrenOf(ctx context.Context, operationID string) ([]model.Operation, error) {
	children, err := t.repo.ListOperations(ctx, storage.ListFilter{ParentID: operationID})
	if err != nil {
		return nil, fmt.Errorf("could not list child operations: %w", err)
	}

	return children, nil
}
