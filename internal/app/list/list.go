package list

import (
	"context"
	"fmt"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists operations with optional filtering.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// StatusFilter is an optional filter to only show operations with this status.
	StatusFilter *model.OperationStatus
}

// Run lists all operations, optionally filtered by status.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Operation, error) {
	s.logger.Debugf("listing operations with filter: %v", req.StatusFilter)

	filter := storage.ListFilter{}
	if req.StatusFilter != nil {
		filter.Statuses = []model.OperationStatus{*req.StatusFilter}
	}

	operations, err := s.repo.ListOperations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("could not list operations: %w", err)
	}

	s.logger.Debugf("found %d operations", len(operations))
	return operations, nil
}
