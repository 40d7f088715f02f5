package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// SupervisorConfig is the configuration for the local process supervisor.
type SupervisorConfig struct {
	Repository storage.Repository
	Parser     *progress.Parser
	// ProgramPaths overrides the conventional program for an operation type,
	// mainly for tests and custom installs.
	ProgramPaths map[model.OperationType]string
	// GracePeriod is the bounded wait between the graceful terminate request
	// and the forced kill on cancel.
	GracePeriod time.Duration
	// StderrTailBytes bounds the captured process error stream.
	StderrTailBytes int
	Logger          log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Parser == nil {
		return fmt.Errorf("progress parser is required")
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.StderrTailBytes <= 0 {
		c.StderrTailBytes = 8 * 1024
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "supervisor.Exec"})
	return nil
}

// Supervisor runs external simulation programs as local OS processes.
type Supervisor struct {
	repo            storage.Repository
	parser          *progress.Parser
	programPaths    map[model.OperationType]string
	gracePeriod     time.Duration
	stderrTailBytes int
	logger          log.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

var _ supervisor.Supervisor = (*Supervisor)(nil)

// handle is the transient in-memory binding to a spawned process.
type handle struct {
	op        model.Operation
	cmd       *exec.Cmd
	stderr    *tailBuffer
	cancelled bool // Guarded by the supervisor mutex.
	done      chan struct{}
}

// NewSupervisor creates a new local process supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		repo:            cfg.Repository,
		parser:          cfg.Parser,
		programPaths:    cfg.ProgramPaths,
		gracePeriod:     cfg.GracePeriod,
		stderrTailBytes: cfg.StderrTailBytes,
		logger:          cfg.Logger,
		handles:         map[string]*handle{},
	}, nil
}

// Spawn launches the external program for an operation and starts its reaper.
func (s *Supervisor) Spawn(ctx context.Context, op model.Operation) error {
	program, err := s.program(op.Type)
	if err != nil {
		return err
	}

	paramsPath, err := supervisor.WriteParams(op.Workdir, op.Parameters)
	if err != nil {
		return err
	}

	progressPath := supervisor.ProgressPath(op)
	args := supervisor.ProgramArgs(op.Workdir, paramsPath, progressPath)

	// Not CommandContext: the process must outlive the spawning call's context,
	// its lifecycle belongs to cancel/reap.
	cmd := exec.Command(program, args...)
	cmd.Dir = op.Workdir
	stderr := newTailBuffer(s.stderrTailBytes)
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handles[op.ID]; ok {
		return fmt.Errorf("operation %s already has a live process: %w", op.ID, model.ErrAlreadyExists)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start program %s: %w", program, err)
	}

	h := &handle{
		op:     op,
		cmd:    cmd,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	s.handles[op.ID] = h

	go s.reap(h)

	s.logger.Infof("Spawned %s for operation %s (PID %d)", program, op.ID, cmd.Process.Pid)
	return nil
}

// reap waits for the process exit exactly once and issues the final Store
// commands for the operation.
func (s *Supervisor) reap(h *handle) {
	err := h.cmd.Wait()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if exitCode < 0 {
				// Killed by a signal (e.g. the cancel escalation).
				exitCode = 128
			}
		} else {
			exitCode = 128
		}
	}

	s.mu.Lock()
	cancelled := h.cancelled
	s.mu.Unlock()

	s.logger.Debugf("Reaped operation %s process (exit code %d, cancelled %v)", h.op.ID, exitCode, cancelled)

	supervisor.Finish(context.Background(), s.repo, s.parser, h.op, exitCode, h.stderr.String(), cancelled, s.logger)

	close(h.done)

	s.mu.Lock()
	delete(s.handles, h.op.ID)
	s.mu.Unlock()
}

// Pause suspends the operation's process.
func (s *Supervisor) Pause(ctx context.Context, operationID string) error {
	h, err := s.handle(operationID)
	if err != nil {
		return err
	}

	if err := h.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("could not suspend process: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, operationID, model.OperationStatusPaused, ""); err != nil {
		return fmt.Errorf("could not update operation status: %w", err)
	}

	s.logger.Infof("Paused operation %s", operationID)
	return nil
}

// Resume continues a suspended process.
func (s *Supervisor) Resume(ctx context.Context, operationID string) error {
	h, err := s.handle(operationID)
	if err != nil {
		return err
	}

	if err := h.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("could not continue process: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, operationID, model.OperationStatusRunning, ""); err != nil {
		return fmt.Errorf("could not update operation status: %w", err)
	}

	s.logger.Infof("Resumed operation %s", operationID)
	return nil
}

// Cancel sends a graceful terminate request and force-kills after the grace
// period. Safe to call concurrently and repeatedly.
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

	// A paused process won't see SIGTERM until continued.
	_ = h.cmd.Process.Signal(syscall.SIGCONT)
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debugf("Terminate request for operation %s: %v", operationID, err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(s.gracePeriod):
		s.logger.Warningf("Operation %s did not terminate within %s, killing", operationID, s.gracePeriod)
		_ = h.cmd.Process.Kill()
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
	}

	return nil
}

// Wait blocks until the operation's process has been reaped. An operation
// without a live handle has already been reaped and returns immediately.
func (s *Supervisor) Wait(ctx context.Context, operationID string) error {
	h, err := s.handle(operationID)
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

// Alive reports whether a live handle exists for the operation.
func (s *Supervisor) Alive(operationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[operationID]
	return ok
}

func (s *Supervisor) handle(operationID string) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[operationID]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", operationID, model.ErrNotRunning)
	}
	return h, nil
}

func (s *Supervisor) program(t model.OperationType) (string, error) {
	if p, ok := s.programPaths[t]; ok {
		return p, nil
	}
	if p, ok := conventions.Program(t); ok {
		return p, nil
	}
	return "", fmt.Errorf("no program for operation type %q: %w", t, model.ErrNotValid)
}

// tailBuffer is a bounded io.Writer keeping the last n bytes written.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}

	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
