package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/cementlab/simops/internal/app/list"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/printer"
	"github.com/cementlab/simops/internal/storage/sqlite"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all operations.")
	c.Cmd.Flag("status", "Filter by status (queued, running, paused, completed, failed, cancelled, unregistered).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.OperationStatus
	if c.statusFilter != "" {
		status := model.OperationStatus(strings.ToLower(c.statusFilter))
		// Validate status value.
		switch status {
		case model.OperationStatusQueued, model.OperationStatusRunning, model.OperationStatusPaused,
			model.OperationStatusCompleted, model.OperationStatusFailed, model.OperationStatusCancelled,
			model.OperationStatusUnregistered:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s (must be: queued, running, paused, completed, failed, cancelled, unregistered)", c.statusFilter)
		}
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

	// Create list service.
	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Execute list.
	operations, err := svc.Run(ctx, list.Request{
		StatusFilter: statusFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list operations: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintList(operations); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
