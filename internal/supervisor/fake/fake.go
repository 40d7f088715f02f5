package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// SupervisorConfig is the configuration for the fake supervisor.
type SupervisorConfig struct {
	Repository storage.Repository
	// SpawnErr makes Spawn fail, to exercise spawn-failure paths.
	SpawnErr error
	Logger    log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "supervisor.Fake"})
	return nil
}

// Supervisor is a fake implementation of supervisor.Supervisor. It simulates
// process lifecycle without spawning anything: tests drive exits through
// FinishProcess.
type Supervisor struct {
	repo     storage.Repository
	spawnErr error
	logger   log.Logger

	mu      sync.Mutex
	handles map[string]*fakeHandle
	spawned []model.Operation
}

var _ supervisor.Supervisor = (*Supervisor)(nil)

type fakeHandle struct {
	op        model.Operation
	cancelled bool
	done      chan struct{}
}

// NewSupervisor creates a new fake supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		repo:     cfg.Repository,
		spawnErr: cfg.SpawnErr,
		logger:   cfg.Logger,
		handles:  map[string]*fakeHandle{},
	}, nil
}

// Spawn registers a fake live handle for the operation.
func (s *Supervisor) Spawn(ctx context.Context, op model.Operation) error {
	if s.spawnErr != nil {
		return s.spawnErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handles[op.ID]; ok {
		return fmt.Errorf("operation %s already has a live process: %w", op.ID, model.ErrAlreadyExists)
	}

	s.handles[op.ID] = &fakeHandle{op: op, done: make(chan struct{})}
	s.spawned = append(s.spawned, op)
	s.logger.Debugf("Spawned fake process for operation %s", op.ID)

	return nil
}

// Pause marks the operation paused through the store.
func (s *Supervisor) Pause(ctx context.Context, operationID string) error {
	if _, err := s.handleFor(operationID); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, operationID, model.OperationStatusPaused, "")
}

// Resume marks the operation running through the store.
func (s *Supervisor) Resume(ctx context.Context, operationID string) error {
	if _, err := s.handleFor(operationID); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, operationID, model.OperationStatusRunning, "")
}

// Cancel marks the handle cancelled and finishes it immediately.
func (s *Supervisor) Cancel(ctx context.Context, operationID string) error {
	s.mu.Lock()
	h, ok := s.handles[operationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("operation %s: %w", operationID, model.ErrNotRunning)
	}
	alreadyCancelled := h.cancelled
	h.cancelled = true
	s.mu.Unlock()

	if alreadyCancelled {
		return nil
	}

	return s.finish(ctx, operationID, model.OperationStatusCancelled, "")
}

// Wait blocks until the fake process has been finished.
func (s *Supervisor) Wait(ctx context.Context, operationID string) error {
	h, err := s.handleFor(operationID)
	if err != nil {
		return nil
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether a fake live handle exists for the operation.
func (s *Supervisor) Alive(operationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[operationID]
	return ok
}

// Spawned returns the operations spawned so far, in order.
func (s *Supervisor) Spawned() []model.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Operation{}, s.spawned...)
}

// FinishProcess simulates the external process exiting with the given status.
func (s *Supervisor) FinishProcess(ctx context.Context, operationID string, status model.OperationStatus, cause string) error {
	return s.finish(ctx, operationID, status, cause)
}

func (s *Supervisor) finish(ctx context.Context, operationID string, status model.OperationStatus, cause string) error {
	s.mu.Lock()
	h, ok := s.handles[operationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("operation %s: %w", operationID, model.ErrNotRunning)
	}
	delete(s.handles, operationID)
	s.mu.Unlock()

	err := s.repo.UpdateStatus(ctx, operationID, status, cause)
	close(h.done)

	return err
}

func (s *Supervisor) handleFor(operationID string) (*fakeHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[operationID]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", operationID, model.ErrNotRunning)
	}
	return h, nil
}
