package cancel

import (
	"context"
	"errors"
	"fmt"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// ServiceConfig is the configuration for the cancel service.
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

// Service cancels a live operation: graceful terminate request first, forced
// kill after the supervisor's grace period.
type Service struct {
	superv supervisor.Supervisor
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new cancel service.
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

// Request represents the cancel request parameters.
type Request struct {
	// NameOrID is the operation name or ID to cancel.
	NameOrID string
	// Wait blocks until the process has actually been reaped.
	Wait bool
}

// Run cancels an operation by name or ID. Cancelling an operation that is
// already terminal is an error, cancelling one twice is not.
func (s *Service) Run(ctx context.Context, req Request) (*model.Operation, error) {
	s.logger.Debugf("cancelling operation: %s", req.NameOrID)

	op, err := getByNameOrID(ctx, s.repo, req.NameOrID)
	if err != nil {
		return nil, err
	}

	if op.Status.Terminal() {
		return nil, fmt.Errorf("cannot cancel operation in status %s: %w", op.Status, model.ErrNotValid)
	}

	if err := s.superv.Cancel(ctx, op.ID); err != nil {
		return nil, fmt.Errorf("could not cancel operation: %w", err)
	}

	if req.Wait {
		if err := s.superv.Wait(ctx, op.ID); err != nil {
			return nil, fmt.Errorf("could not wait for operation to finish: %w", err)
		}
	}

	op, err = s.repo.GetOperation(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get operation: %w", err)
	}

	s.logger.Infof("cancelled operation: %s (ID: %s)", op.Name, op.ID)
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
