package registrar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// RegistrarConfig is the configuration for the registrar.
type RegistrarConfig struct {
	Repository storage.Repository
	Supervisor supervisor.Supervisor
	// MaxAttempts bounds the retry chain per operation.
	MaxAttempts int
	// Interval is the fixed delay between attempts.
	Interval time.Duration
	Logger   log.Logger
}

func (c *RegistrarConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor is required")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "registrar.Registrar"})
	return nil
}

// Registrar binds a just-spawned process handle to its store record, covering
// the window where the record is not query-able yet. Each operation gets at
// most one retry chain with an explicit attempt budget: the chain terminates
// deterministically and leaves no timer behind after the final attempt.
type Registrar struct {
	repo        storage.Repository
	supervisor  supervisor.Supervisor
	maxAttempts int
	interval    time.Duration
	logger      log.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewRegistrar creates a new registrar.
func NewRegistrar(cfg RegistrarConfig) (*Registrar, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registrar{
		repo:        cfg.Repository,
		supervisor:  cfg.Supervisor,
		maxAttempts: cfg.MaxAttempts,
		interval:    cfg.Interval,
		logger:      cfg.Logger,
		inflight:    map[string]struct{}{},
	}, nil
}

// Register starts the binding chain for an operation. It returns immediately;
// the chain runs in the background. Starting a second chain for the same
// operation while one is outstanding is a no-op.
func (r *Registrar) Register(ctx context.Context, operationID string) {
	r.mu.Lock()
	if _, ok := r.inflight[operationID]; ok {
		r.mu.Unlock()
		r.logger.Debugf("Registration already in flight for operation %s", operationID)
		return
	}
	r.inflight[operationID] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.registerLoop(ctx, operationID)
}

// Pending returns the number of outstanding registration chains.
func (r *Registrar) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// WaitIdle blocks until all outstanding registration chains have finished.
// Mainly for tests and orderly shutdown.
func (r *Registrar) WaitIdle() {
	r.wg.Wait()
}

func (r *Registrar) registerLoop(ctx context.Context, operationID string) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, operationID)
		r.mu.Unlock()
	}()

	// One timer, rearmed per attempt and always stopped before the loop
	// exits: the budget, not the timer, ends the chain.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			r.logger.Debugf("Registration of operation %s stopped: %v", operationID, ctx.Err())
			return
		case <-timer.C:
		}

		err := r.tryBind(ctx, operationID)
		if err == nil {
			r.logger.Debugf("Bound operation %s on attempt %d", operationID, attempt)
			return
		}

		r.logger.Debugf("Registration attempt %d/%d for operation %s failed: %v", attempt, r.maxAttempts, operationID, err)
		timer.Reset(r.interval)
	}

	// Attempt budget exhausted: the process may still be running headless,
	// so this is a distinct condition, not a process failure.
	r.logger.Errorf("Could not register operation %s after %d attempts", operationID, r.maxAttempts)
	cause := fmt.Sprintf("could not bind process to record after %d attempts", r.maxAttempts)
	if err := r.repo.UpdateStatus(ctx, operationID, model.OperationStatusUnregistered, cause); err != nil {
		r.logger.Errorf("Could not mark operation %s unregistered: %v", operationID, err)
	}
}

// tryBind performs one binding attempt: the record must be query-able and the
// spawned handle still known to the supervisor.
func (r *Registrar) tryBind(ctx context.Context, operationID string) error {
	op, err := r.repo.GetOperation(ctx, operationID)
	if err != nil {
		return fmt.Errorf("record not query-able yet: %w", err)
	}

	if op.Status.Terminal() {
		// The process already finished (short program, fast exit); the
		// reaper has done the bookkeeping, nothing left to bind.
		return nil
	}
	if op.Status == model.OperationStatusRunning || op.Status == model.OperationStatusPaused {
		// Already bound.
		return nil
	}

	if !r.supervisor.Alive(operationID) && op.Status == model.OperationStatusQueued {
		return errors.New("no live process handle for operation")
	}

	if err := r.repo.UpdateStatus(ctx, operationID, model.OperationStatusRunning, ""); err != nil {
		if errors.Is(err, model.ErrNotValid) {
			// Already running or paused, the binding is in place.
			return nil
		}
		return fmt.Errorf("could not mark operation running: %w", err)
	}

	return nil
}
