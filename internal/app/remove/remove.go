package remove

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// ServiceConfig is the configuration for the remove service.
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

// Service removes an operation record. Children of the removed operation keep
// their parent reference, the link is allowed to dangle.
type Service struct {
	superv supervisor.Supervisor
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new remove service.
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

// Request represents the remove request parameters.
type Request struct {
	// NameOrID is the operation name or ID to remove.
	NameOrID string
	// Force cancels a live operation before removal.
	Force bool
	// KeepFiles leaves the operation's working directory in place.
	KeepFiles bool
}

// Run removes an operation by name or ID.
// If the operation's process is still live and Force is false, it returns an
// error. With Force it cancels the process first, then removes the record.
func (s *Service) Run(ctx context.Context, req Request) (*model.Operation, error) {
	s.logger.Debugf("removing operation: %s (force: %v)", req.NameOrID, req.Force)

	op, err := getByNameOrID(ctx, s.repo, req.NameOrID)
	if err != nil {
		return nil, err
	}

	if s.superv.Alive(op.ID) {
		if !req.Force {
			return nil, fmt.Errorf("cannot remove live operation without --force: %w", model.ErrNotValid)
		}

		// Cancel first, best effort.
		s.logger.Infof("force removing live operation, cancelling first: %s", op.ID)
		_ = s.superv.Cancel(ctx, op.ID)
		_ = s.superv.Wait(ctx, op.ID)
	}

	if err := s.repo.DeleteOperation(ctx, op.ID); err != nil {
		return nil, fmt.Errorf("could not delete operation: %w", err)
	}

	if !req.KeepFiles && op.Workdir != "" {
		if err := os.RemoveAll(op.Workdir); err != nil {
			s.logger.Warningf("could not remove working directory %s: %v", op.Workdir, err)
		}
	}

	s.logger.Infof("removed operation: %s (ID: %s)", op.Name, op.ID)
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
