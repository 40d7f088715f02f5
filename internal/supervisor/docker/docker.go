package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// containerWorkdir is where an operation's workdir is mounted inside the
// simulation container.
const containerWorkdir = "/work"

// DockerClient is the interface for the Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerPause(ctx context.Context, containerID string) error
	ContainerUnpause(ctx context.Context, containerID string) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// SupervisorConfig is the configuration for the Docker supervisor.
type SupervisorConfig struct {
	Client     DockerClient
	Repository storage.Repository
	Parser     *progress.Parser
	// Images maps each operation type to the simulation image to run. Images
	// are assumed present, pulling them is the operator's concern.
	Images map[model.OperationType]string
	// GracePeriod is the bounded wait between the graceful stop request and
	// the forced kill on cancel.
	GracePeriod time.Duration
	Logger      log.Logger
}

func (c *SupervisorConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Parser == nil {
		return fmt.Errorf("progress parser is required")
	}
	if len(c.Images) == 0 {
		return fmt.Errorf("at least one operation type image is required")
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "supervisor.Docker"})
	return nil
}

// Supervisor runs external simulation programs as Docker containers, mounting
// each operation's workdir so the file-based progress contract is unchanged.
type Supervisor struct {
	client      DockerClient
	repo        storage.Repository
	parser      *progress.Parser
	images      map[model.OperationType]string
	gracePeriod time.Duration
	logger      log.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

var _ supervisor.Supervisor = (*Supervisor)(nil)

// handle is the transient in-memory binding to a running container.
type handle struct {
	op          model.Operation
	containerID string
	cancelled   bool // Guarded by the supervisor mutex.
	done        chan struct{}
}

// NewSupervisor creates a new Docker supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Supervisor{
		client:      cfg.Client,
		repo:        cfg.Repository,
		parser:      cfg.Parser,
		images:      cfg.Images,
		gracePeriod: cfg.GracePeriod,
		logger:      cfg.Logger,
		handles:     map[string]*handle{},
	}, nil
}

// Spawn creates and starts a simulation container for an operation.
func (s *Supervisor) Spawn(ctx context.Context, op model.Operation) error {
	image, ok := s.images[op.Type]
	if !ok {
		return fmt.Errorf("no image for operation type %q: %w", op.Type, model.ErrNotValid)
	}

	if _, err := supervisor.WriteParams(op.Workdir, op.Parameters); err != nil {
		return err
	}

	// The program sees container paths, the host keeps writing/reading the
	// same workdir through the bind mount.
	paramsPath := filepath.Join(containerWorkdir, conventions.ParamsFile)
	progressPath := filepath.Join(containerWorkdir, filepath.Base(supervisor.ProgressPath(op)))
	args := supervisor.ProgramArgs(containerWorkdir, paramsPath, progressPath)

	containerName := fmt.Sprintf("simops-%s", op.ID)
	containerConfig := &container.Config{
		Image:      image,
		Cmd:        args,
		WorkingDir: containerWorkdir,
	}
	hostConfig := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s", op.Workdir, containerWorkdir)},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handles[op.ID]; ok {
		return fmt.Errorf("operation %s already has a live container: %w", op.ID, model.ErrAlreadyExists)
	}

	resp, err := s.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return fmt.Errorf("could not create container: %w", err)
	}

	if err := s.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = s.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("could not start container: %w", err)
	}

	h := &handle{
		op:          op,
		containerID: resp.ID,
		done:        make(chan struct{}),
	}
	s.handles[op.ID] = h

	go s.reap(h)

	s.logger.Infof("Spawned container %s for operation %s", containerName, op.ID)
	return nil
}

// reap waits for the container exit exactly once and issues the final Store
// commands for the operation.
func (s *Supervisor) reap(h *handle) {
	ctx := context.Background()

	exitCode := 0
	waitCh, errCh := s.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		exitCode = int(resp.StatusCode)
	case err := <-errCh:
		s.logger.Errorf("Could not wait for container of operation %s: %v", h.op.ID, err)
		exitCode = 128
	}

	stderrTail := s.stderrTail(ctx, h.containerID)

	s.mu.Lock()
	cancelled := h.cancelled
	s.mu.Unlock()

	s.logger.Debugf("Reaped operation %s container (exit code %d, cancelled %v)", h.op.ID, exitCode, cancelled)

	supervisor.Finish(ctx, s.repo, s.parser, h.op, exitCode, stderrTail, cancelled, s.logger)

	if err := s.client.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true}); err != nil {
		s.logger.Warningf("Could not remove container of operation %s: %v", h.op.ID, err)
	}

	close(h.done)

	s.mu.Lock()
	delete(s.handles, h.op.ID)
	s.mu.Unlock()
}

// stderrTail fetches the last lines of the container's error stream.
func (s *Supervisor) stderrTail(ctx context.Context, containerID string) string {
	logs, err := s.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStderr: true,
		Tail:       "50",
	})
	if err != nil {
		s.logger.Debugf("Could not fetch container logs: %v", err)
		return ""
	}
	defer logs.Close()

	var stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(io.Discard, &stderr, logs); err != nil {
		s.logger.Debugf("Could not demultiplex container logs: %v", err)
	}

	return stderr.String()
}

// Pause suspends the operation's container.
func (s *Supervisor) Pause(ctx context.Context, operationID string) error {
	h, err := s.handle(operationID)
	if err != nil {
		return err
	}

	if err := s.client.ContainerPause(ctx, h.containerID); err != nil {
		return fmt.Errorf("could not pause container: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, operationID, model.OperationStatusPaused, ""); err != nil {
		return fmt.Errorf("could not update operation status: %w", err)
	}

	s.logger.Infof("Paused operation %s", operationID)
	return nil
}

// Resume continues a paused container.
func (s *Supervisor) Resume(ctx context.Context, operationID string) error {
	h, err := s.handle(operationID)
	if err != nil {
		return err
	}

	if err := s.client.ContainerUnpause(ctx, h.containerID); err != nil {
		return fmt.Errorf("could not unpause container: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, operationID, model.OperationStatusRunning, ""); err != nil {
		return fmt.Errorf("could not update operation status: %w", err)
	}

	s.logger.Infof("Resumed operation %s", operationID)
	return nil
}

// Cancel stops the container gracefully, the Docker daemon escalates to a
// kill after the grace period. Safe to call concurrently and repeatedly.
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

	// A paused container won't act on the stop signal.
	_ = s.client.ContainerUnpause(ctx, h.containerID)

	graceSeconds := int(s.gracePeriod.Seconds())
	if err := s.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &graceSeconds}); err != nil {
		return fmt.Errorf("could not stop container: %w", err)
	}

	return nil
}

// Wait blocks until the operation's container has been reaped. An operation
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
