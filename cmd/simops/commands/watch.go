package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/cementlab/simops/internal/monitor"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage/sqlite"
)

type WatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	interval time.Duration
}

// NewWatchCommand returns the watch command.
func NewWatchCommand(rootCmd *RootCommand, app *kingpin.Application) *WatchCommand {
	c := &WatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("watch", "Monitor the progress of all running operations until interrupted.")
	c.Cmd.Flag("interval", "Progress monitor interval.").Default("5s").DurationVar(&c.interval)

	return c
}

func (c WatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c WatchCommand) Run(ctx context.Context) error {
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

	mon, err := monitor.NewMonitor(monitor.MonitorConfig{
		Repository: repo,
		Parser:     parser,
		Interval:   c.interval,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create monitor: %w", err)
	}

	return mon.Run(ctx)
}
