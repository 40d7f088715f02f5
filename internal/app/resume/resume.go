package resume

import (
	"context"
	"errors"
	"fmt"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// ServiceConfig is the configuration for the resume service.
type ServiceConfig struct {
	Supervisor supervisor.Supervisor
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor is required")
	}

	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service continues a paused operation's process.
type Service struct {
	superv supervisor.Supervisor
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new resume service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		superv: cfg.Supervisor,
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the resume request parameters.
type Request struct {
	// NameOrID is the operation name or ID to resume.
	NameOrID string
}

// Run resumes an operation by name or ID. Only paused operations can be
// resumed.
func (s *Service) Run(ctx context.Context, req Request) (*model.Operation, error) {
	s.logger.Debugf("resuming operation: %s", req.NameOrID)

	op, err := getByNameOrID(ctx, s.repo, req.NameOrID)
	if err != nil {
		return nil, err
	}

	if op.Status != model.OperationStatusPaused {
		return nil, fmt.Errorf("cannot resume operation in status %s: %w", op.Status, model.ErrNotValid)
	}

	if err := s.superv.Resume(ctx, op.ID); err != nil {
		return nil, fmt.Errorf("could not resume operation: %w", err)
	}

	op, err = s.repo.GetOperation(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get operation: %w", err)
	}

	s.logger.Infof("resumed operation: %s (ID: %s)", op.Name, op.ID)
	return op, nil
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
