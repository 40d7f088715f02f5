package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/cementlab/simops/internal/app/lineagequery"
	"github.com/cementlab/simops/internal/lineage"
	"github.com/cementlab/simops/internal/printer"
	"github.com/cementlab/simops/internal/storage/sqlite"
)

type LineageCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	nameOrID string
	format   string
}

// NewLineageCommand returns the lineage command.
func NewLineageCommand(rootCmd *RootCommand, app *kingpin.Application) *LineageCommand {
	c := &LineageCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("lineage", "Show the parent and children of an operation.")
	c.Cmd.Arg("operation", "Operation name or ID.").Required().StringVar(&c.nameOrID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c LineageCommand) Name() string { return c.Cmd.FullCommand() }

func (c LineageCommand) Run(ctx context.Context) error {
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

	tracker, err := lineage.NewTracker(lineage.TrackerConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create lineage tracker: %w", err)
	}

	// Create lineage query service.
	svc, err := lineagequery.NewService(lineagequery.ServiceConfig{
		Repository: repo,
		Lineage:    tracker,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Execute lineage query.
	resp, err := svc.Run(ctx, lineagequery.Request{
		NameOrID: c.nameOrID,
	})
	if err != nil {
		return fmt.Errorf("could not get operation lineage: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintLineage(resp.Operation, resp.Parent, resp.ParentDangling, resp.Children); err != nil {
		return fmt.Errorf("could not print lineage: %w", err)
	}

	return nil
}
