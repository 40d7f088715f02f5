package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/lineage"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/registrar"
	"github.com/cementlab/simops/internal/storage"
	"github.com/cementlab/simops/internal/storage/sqlite"
	"github.com/cementlab/simops/internal/supervisor"
	dockersupervisor "github.com/cementlab/simops/internal/supervisor/docker"
	execsupervisor "github.com/cementlab/simops/internal/supervisor/exec"
	fakesupervisor "github.com/cementlab/simops/internal/supervisor/fake"
)

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults. At minimum, an empty
// Config{} will use ~/.simops/simops.db for storage and run programs as local
// OS processes.
type Config struct {
	// DBPath is the SQLite database path.
	// Default: <DataDir>/simops.db.
	DBPath string

	// DataDir is the base directory for operation working directories.
	// Default: ~/.simops.
	DataDir string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// Backend selects the process backend. Default: [BackendExec].
	//
	// Set this to [BackendFake] for testing without installed programs.
	Backend Backend

	// DockerImages maps operation types to simulation images. Missing types
	// default to "cementlab/<program>:latest".
	// Only used when Backend is [BackendDocker].
	DockerImages map[OperationType]string

	// GracePeriod is the bounded wait between the graceful terminate request
	// and the forced kill on cancel. Default: 10s.
	GracePeriod time.Duration
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, conventions.DBFile)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Backend == "" {
		c.Backend = BackendExec
	}

	return nil
}

// Client is the main SDK entry point for coordinating operations
// programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use. Process handles live inside the
// Client: pause, resume and cancel only reach operations spawned through the
// same Client instance.
type Client struct {
	repo    storage.Repository
	superv  supervisor.Supervisor
	reg     *registrar.Registrar
	tracker *lineage.Tracker
	logger  log.Logger
	dataDir string
	closeFn func() error
}

// New creates a new SDK client backed by a SQLite database.
//
// The caller must call [Client.Close] when done to release the database
// connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	superv, err := newSupervisor(cfg, repo)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	reg, err := registrar.NewRegistrar(registrar.RegistrarConfig{
		Repository: repo,
		Supervisor: superv,
		Logger:     cfg.Logger,
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("could not create registrar: %w", err)
	}

	tracker, err := lineage.NewTracker(lineage.TrackerConfig{
		Repository: repo,
		Logger:     cfg.Logger,
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("could not create lineage tracker: %w", err)
	}

	return &Client{
		repo:    repo,
		superv:  superv,
		reg:     reg,
		tracker: tracker,
		logger:  cfg.Logger,
		dataDir: cfg.DataDir,
		closeFn: repo.Close,
	}, nil
}

// Close releases resources held by the client, including the database
// connection. Outstanding registration chains are drained first. After Close
// returns, the client must not be used.
func (c *Client) Close() error {
	c.reg.WaitIdle()
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

func newSupervisor(cfg Config, repo storage.Repository) (supervisor.Supervisor, error) {
	parser, err := progress.NewParser(progress.ParserConfig{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create progress parser: %w", err)
	}

	switch cfg.Backend {
	case BackendExec:
		superv, err := execsupervisor.NewSupervisor(execsupervisor.SupervisorConfig{
			Repository:  repo,
			Parser:      parser,
			GracePeriod: cfg.GracePeriod,
			Logger:      cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create exec supervisor: %w", err)
		}
		return superv, nil

	case BackendDocker:
		images := map[model.OperationType]string{}
		for _, t := range model.OperationTypes {
			program, _ := conventions.Program(t)
			images[t] = fmt.Sprintf("cementlab/%s:latest", program)
		}
		for t, image := range cfg.DockerImages {
			images[model.OperationType(t)] = image
		}

		superv, err := dockersupervisor.NewSupervisor(dockersupervisor.SupervisorConfig{
			Repository:  repo,
			Parser:      parser,
			Images:      images,
			GracePeriod: cfg.GracePeriod,
			Logger:      cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create docker supervisor: %w", err)
		}
		return superv, nil

	case BackendFake:
		superv, err := fakesupervisor.NewSupervisor(fakesupervisor.SupervisorConfig{
			Repository: repo,
			Logger:     cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create fake supervisor: %w", err)
		}
		return superv, nil

	default:
		return nil, fmt.Errorf("unsupported backend: %s: %w", cfg.Backend, ErrNotValid)
	}
}
