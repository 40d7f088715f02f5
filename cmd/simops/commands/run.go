package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"github.com/cementlab/simops/internal/app/submit"
	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/lineage"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/monitor"
	"github.com/cementlab/simops/internal/printer"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/registrar"
	storageio "github.com/cementlab/simops/internal/storage/io"
	"github.com/cementlab/simops/internal/storage/sqlite"
	"github.com/cementlab/simops/internal/supervisor"
	dockersupervisor "github.com/cementlab/simops/internal/supervisor/docker"
	execsupervisor "github.com/cementlab/simops/internal/supervisor/exec"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file   string
	name   string
	opType string
	parent string
	sets   []string

	backend      string
	dockerImages []string
	interval     time.Duration
	grace        time.Duration
	format       string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Submit a new operation and supervise it until it finishes.")

	c.Cmd.Flag("file", "Submission YAML file.").Short('f').StringVar(&c.file)
	c.Cmd.Flag("name", "Name for the operation.").Short('n').StringVar(&c.name)
	c.Cmd.Flag("type", "Operation type (microstructure, hydration, elastic_moduli).").StringVar(&c.opType)
	c.Cmd.Flag("parent", "Parent operation whose parameters are used as template.").StringVar(&c.parent)
	c.Cmd.Flag("set", "Parameter override as key=value (repeatable, dotted keys for nesting).").StringsVar(&c.sets)

	c.Cmd.Flag("backend", "Process backend (exec, docker).").Default("exec").EnumVar(&c.backend, "exec", "docker")
	c.Cmd.Flag("docker-image", "Simulation image per type as type=image (repeatable, docker backend only).").StringsVar(&c.dockerImages)
	c.Cmd.Flag("interval", "Progress monitor interval.").Default("5s").DurationVar(&c.interval)
	c.Cmd.Flag("grace", "Grace period between terminate request and forced kill.").Default("10s").DurationVar(&c.grace)
	c.Cmd.Flag("format", "Final status output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, err := c.submissionConfig(ctx)
	if err != nil {
		return err
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	parser, err := progress.NewParser(progress.ParserConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create progress parser: %w", err)
	}

	superv, err := c.supervisor(repo, parser, logger)
	if err != nil {
		return err
	}

	reg, err := registrar.NewRegistrar(registrar.RegistrarConfig{
		Repository: repo,
		Supervisor: superv,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create registrar: %w", err)
	}

	tracker, err := lineage.NewTracker(lineage.TrackerConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create lineage tracker: %w", err)
	}

	svc, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Supervisor: superv,
		Registrar:  reg,
		Lineage:    tracker,
		DataDir:    c.rootCmd.DataDir,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	mon, err := monitor.NewMonitor(monitor.MonitorConfig{
		Repository: repo,
		Parser:     parser,
		Interval:   c.interval,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create monitor: %w", err)
	}

	// Submit the operation.
	op, err := svc.Run(ctx, submit.Request{Config: cfg})
	if err != nil {
		return fmt.Errorf("could not submit operation: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Operation submitted: %s (ID: %s)\n", op.Name, op.ID)

	// Monitor progress while the process runs.
	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()
	go func() { _ = mon.Run(monCtx) }()

	waitErr := make(chan error, 1)
	go func() { waitErr <- superv.Wait(context.Background(), op.ID) }()

	select {
	case <-ctx.Done():
		logger.Infof("Interrupted, cancelling operation %s", op.Name)
		cancelCtx, cancelStop := context.WithTimeout(context.Background(), c.grace+5*time.Second)
		defer cancelStop()
		if err := superv.Cancel(cancelCtx, op.ID); err != nil {
			logger.Warningf("Could not cancel operation: %v", err)
		}
		_ = superv.Wait(cancelCtx, op.ID)
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("could not wait for operation: %w", err)
		}
	}

	reg.WaitIdle()
	monCancel()

	// Print the final record.
	final, err := repo.GetOperation(context.Background(), op.ID)
	if err != nil {
		return fmt.Errorf("could not get final operation state: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	return p.PrintStatus(*final)
}

// submissionConfig builds the submission from the YAML file and/or flags.
// Flags win over file values, --set overrides win over file parameters.
func (c RunCommand) submissionConfig(ctx context.Context) (model.SubmissionConfig, error) {
	var cfg model.SubmissionConfig

	if c.file != "" {
		abs, err := filepath.Abs(c.file)
		if err != nil {
			return cfg, fmt.Errorf("could not resolve submission file path: %w", err)
		}
		loader := storageio.NewSubmissionYAMLRepository(os.DirFS(filepath.Dir(abs)))
		cfg, err = loader.GetSubmission(ctx, filepath.Base(abs))
		if err != nil {
			return cfg, fmt.Errorf("could not load submission file: %w", err)
		}
	}

	if c.name != "" {
		cfg.Name = c.name
	}
	if c.opType != "" {
		cfg.Type = model.OperationType(c.opType)
	}
	if c.parent != "" {
		cfg.ParentName = c.parent
	}

	if len(c.sets) > 0 && cfg.Parameters == nil {
		cfg.Parameters = model.Parameters{}
	}
	for _, s := range c.sets {
		key, raw, found := strings.Cut(s, "=")
		if !found || key == "" {
			return cfg, fmt.Errorf("invalid --set %q, expected key=value", s)
		}

		// YAML scalar parsing gives typed values (numbers, bools) for free.
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		cfg.Parameters[key] = value
	}

	return cfg, nil
}

func (c RunCommand) supervisor(repo *sqlite.Repository, parser *progress.Parser, logger log.Logger) (supervisor.Supervisor, error) {
	switch c.backend {
	case "docker":
		images, err := c.imageMap()
		if err != nil {
			return nil, err
		}
		superv, err := dockersupervisor.NewSupervisor(dockersupervisor.SupervisorConfig{
			Repository:  repo,
			Parser:      parser,
			Images:      images,
			GracePeriod: c.grace,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create docker supervisor: %w", err)
		}
		return superv, nil
	default: // exec
		superv, err := execsupervisor.NewSupervisor(execsupervisor.SupervisorConfig{
			Repository:  repo,
			Parser:      parser,
			GracePeriod: c.grace,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create exec supervisor: %w", err)
		}
		return superv, nil
	}
}

// imageMap parses the --docker-image type=image pairs, falling back to the
// conventional image for each type.
func (c RunCommand) imageMap() (map[model.OperationType]string, error) {
	images := map[model.OperationType]string{}
	for _, t := range model.OperationTypes {
		program, _ := conventions.Program(t)
		images[t] = fmt.Sprintf("cementlab/%s:latest", program)
	}

	for _, pair := range c.dockerImages {
		rawType, image, found := strings.Cut(pair, "=")
		if !found || image == "" {
			return nil, fmt.Errorf("invalid --docker-image %q, expected type=image", pair)
		}
		images[model.OperationType(rawType)] = image
	}

	return images, nil
}
