package lineagequery

import (
	"context"
	"errors"
	"fmt"

	"github.com/cementlab/simops/internal/lineage"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
)

// ServiceConfig is the configuration for the lineage query service.
type ServiceConfig struct {
	Repository storage.Repository
	Lineage    *lineage.Tracker
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Lineage == nil {
		return fmt.Errorf("lineage tracker is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service answers parent/children questions about an operation.
type Service struct {
	repo    storage.Repository
	lineage *lineage.Tracker
	logger  log.Logger
}

// NewService creates a new lineage query service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:    cfg.Repository,
		lineage: cfg.Lineage,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the lineage query parameters.
type Request struct {
	// NameOrID is the operation name or ID whose lineage to show.
	NameOrID string
}

// Response is the lineage of one operation.
type Response struct {
	Operation model.Operation
	// Parent is nil when the operation has no parent or its link dangles.
	Parent *model.Operation
	// ParentDangling is true when the operation references a parent that no
	// longer exists.
	ParentDangling bool
	Children       []model.Operation
}

// Run resolves the parent and children of an operation by name or ID.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	s.logger.Debugf("getting lineage for operation: %s", req.NameOrID)

	op, err := getByNameOrID(ctx, s.repo, req.NameOrID)
	if err != nil {
		return nil, err
	}

	resp := &Response{Operation: *op}

	parent, err := s.lineage.ParentOf(ctx, *op)
	switch {
	case err == nil:
		resp.Parent = parent
	case errors.Is(err, model.ErrNotFound):
		resp.ParentDangling = true
	default:
		return nil, fmt.Errorf("could not resolve parent: %w", err)
	}

	children, err := s.lineage.ChildrenOf(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list children: %w", err)
	}
	resp.Children = children

	return resp, nil
}

func getByNameOrID(ctx context.Context, repo storage.Repository, nameOrID string) (*model.Operation, error) {
	op, err := repo.GetOperationByName(ctx, nameOrID)
	if errors.Is(err, model.ErrNotFound) && looksLikeULID(nameOrID) {
		op, err = repo.GetOperation(ctx, nameOrID)
	}
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("operation not found: %s: %w", nameOrID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get operation: %w", err)
	}
	return op, nil
}

// looksLikeULID checks if a string looks like a ULID (26 characters, alphanumeric uppercase).
func looksLikeULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
