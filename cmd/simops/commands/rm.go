package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/cementlab/simops/internal/app/remove"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage/sqlite"
	execsupervisor "github.com/cementlab/simops/internal/supervisor/exec"
)

type RmCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	nameOrID  string
	force     bool
	keepFiles bool
}

// NewRmCommand returns the rm command.
func NewRmCommand(rootCmd *RootCommand, app *kingpin.Application) *RmCommand {
	c := &RmCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("rm", "Remove an operation record and its working directory.")
	c.Cmd.Arg("operation", "Operation name or ID.").Required().StringVar(&c.nameOrID)
	c.Cmd.Flag("force", "Cancel a live operation before removing it.").BoolVar(&c.force)
	c.Cmd.Flag("keep-files", "Keep the operation's working directory.").BoolVar(&c.keepFiles)

	return c
}

func (c RmCommand) Name() string { return c.Cmd.FullCommand() }

func (c RmCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

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

	// Process handles are per-invocation, so a fresh supervisor holds none:
	// removal of operations spawned by another invocation never races a live
	// handle here.
	superv, err := execsupervisor.NewSupervisor(execsupervisor.SupervisorConfig{
		Repository: repo,
		Parser:     parser,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create supervisor: %w", err)
	}

	// Create remove service.
	svc, err := remove.NewService(remove.ServiceConfig{
		Supervisor: superv,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Execute remove.
	op, err := svc.Run(ctx, remove.Request{
		NameOrID:  c.nameOrID,
		Force:     c.force,
		KeepFiles: c.keepFiles,
	})
	if err != nil {
		return fmt.Errorf("could not remove operation: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Operation removed: %s (ID: %s)\n", op.Name, op.ID)

	return nil
}
