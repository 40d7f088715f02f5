package submit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/lineage"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/registrar"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/supervisor"
)

// ServiceConfig is the configuration for the submit service.
type ServiceConfig struct {
	Repository storage.Repository
	Supervisor supervisor.Supervisor
	Registrar  *registrar.Registrar
	Lineage    *lineage.Tracker
	// DataDir is the root directory where operation workdirs are created.
	DataDir string
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor is required")
	}
	if c.Registrar == nil {
		return fmt.Errorf("registrar is required")
	}
	if c.Lineage == nil {
		return fmt.Errorf("lineage tracker is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Submit"})
	return nil
}

// Service handles operation submission: it validates the submission, freezes
// its parameters, creates the queued record and spawns the external process.
type Service struct {
	repo      storage.Repository
	superv    supervisor.Supervisor
	registrar *registrar.Registrar
	lineage   *lineage.Tracker
	dataDir   string
	logger    log.Logger
}

// NewService creates a new submit service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		superv:    cfg.Supervisor,
		registrar: cfg.Registrar,
		lineage:   cfg.Lineage,
		dataDir:   cfg.DataDir,
		logger:    cfg.Logger,
	}, nil
}

// Request represents the submit request parameters.
type Request struct {
	Config model.SubmissionConfig
}

// Run submits a new operation. Validation runs entirely in memory first: a
// rejected submission leaves no record, no directory and no process behind.
func (s *Service) Run(ctx context.Context, req Request) (*model.Operation, error) {
	cfg := req.Config

	// 1. Validate before any side effect.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	// 2. Check name uniqueness.
	_, err := s.repo.GetOperationByName(ctx, cfg.Name)
	if err == nil {
		return nil, fmt.Errorf("operation with name %q already exists: %w", cfg.Name, model.ErrAlreadyExists)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not check name uniqueness: %w", err)
	}

	// 3. Resolve lineage and freeze parameters.
	parentID, template, err := s.resolveParent(ctx, cfg.ParentName)
	if err != nil {
		return nil, err
	}

	params, err := s.lineage.Freeze(template, cfg.Parameters)
	if err != nil {
		return nil, fmt.Errorf("could not freeze parameters: %w", err)
	}

	// 4. Create the queued record.
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	op := model.Operation{
		ID:         id,
		Name:       cfg.Name,
		Type:       cfg.Type,
		Status:     model.OperationStatusQueued,
		ParentID:   parentID,
		Parameters: params,
		Workdir:    conventions.OperationDir(s.dataDir, id),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.CreateOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("could not save operation: %w", err)
	}

	// 5. Prepare the workdir and spawn the external process.
	if err := os.MkdirAll(op.Workdir, 0o755); err != nil {
		s.markFailed(ctx, op.ID, fmt.Sprintf("could not create working directory: %v", err))
		return nil, fmt.Errorf("could not create working directory: %w", err)
	}

	if err := s.superv.Spawn(ctx, op); err != nil {
		s.markFailed(ctx, op.ID, fmt.Sprintf("could not spawn process: %v", err))
		return nil, fmt.Errorf("could not spawn process: %w", err)
	}

	// 6. Bind the spawned process to its record in the background.
	s.registrar.Register(ctx, op.ID)

	s.logger.Infof("Submitted operation: %s (%s)", op.Name, op.ID)

	return &op, nil
}

func (s *Service) resolveParent(ctx context.Context, parentName string) (parentID string, template model.Parameters, err error) {
	if parentName == "" {
		return "", nil, nil
	}

	parentID, err = s.lineage.Resolve(ctx, parentName)
	if err != nil {
		return "", nil, fmt.Errorf("could not resolve parent: %w", err)
	}
	if parentID == "" {
		// Unresolvable parent is not fatal, the link is dropped.
		return "", nil, nil
	}

	parent, err := s.repo.GetOperation(ctx, parentID)
	if err != nil {
		return "", nil, fmt.Errorf("could not get parent operation: %w", err)
	}

	return parentID, parent.Parameters, nil
}

func (s *Service) markFailed(ctx context.Context, operationID, cause string) {
	if err := s.repo.UpdateStatus(ctx, operationID, model.OperationStatusFailed, cause); err != nil {
		s.logger.Errorf("Could not mark operation %s failed: %v", operationID, err)
	}
}
