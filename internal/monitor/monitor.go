package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage"
)

// MonitorConfig is the configuration for the progress monitor.
type MonitorConfig struct {
	Repository storage.Repository
	Parser     *progress.Parser
	// Interval is the sweep cadence over the running set.
	Interval time.Duration
	Logger   log.Logger
}

func (c *MonitorConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Parser == nil {
		return fmt.Errorf("progress parser is required")
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "monitor.Monitor"})
	return nil
}

// Monitor is a single periodic sweep over all running operations: one ticker
// for the whole set, never one timer per operation. Each sweep re-queries the
// store, reads every operation's progress source and writes snapshots back
// through store commands.
type Monitor struct {
	repo     storage.Repository
	parser   *progress.Parser
	interval time.Duration
	logger   log.Logger
}

// NewMonitor creates a new progress monitor.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Monitor{
		repo:     cfg.Repository,
		parser:   cfg.Parser,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}, nil
}

// Run sweeps on the configured cadence until the context is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Infof("Progress monitor started (interval %s)", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Infof("Progress monitor stopped")
			return nil
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.logger.Errorf("Sweep failed: %v", err)
			}
		}
	}
}

// Sweep scans the current running set once. Per-operation problems are
// isolated: a malformed progress source for one operation never prevents the
// others from being scanned.
func (m *Monitor) Sweep(ctx context.Context) error {
	ops, err := m.repo.ListOperations(ctx, storage.ListFilter{
		Statuses: []model.OperationStatus{model.OperationStatusRunning},
	})
	if err != nil {
		return fmt.Errorf("could not list running operations: %w", err)
	}

	for _, op := range ops {
		m.scanOperation(ctx, op)
	}

	return nil
}

func (m *Monitor) scanOperation(ctx context.Context, op model.Operation) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("Panic scanning operation %s: %v", op.ID, r)
		}
	}()

	snapshot, err := m.parser.ParseOperation(op.Workdir, op.Name)
	if err != nil {
		// Missing or torn source: no update this cycle, retried next tick.
		m.logger.Debugf("No progress update for operation %s: %v", op.ID, err)
		return
	}

	if snapshot.Failed {
		cause := snapshot.FailureMessage
		if cause == "" {
			cause = "process reported failure"
		}
		if err := m.repo.UpdateStatus(ctx, op.ID, model.OperationStatusFailed, cause); err != nil {
			m.logger.Errorf("Could not mark operation %s failed: %v", op.ID, err)
		}
		return
	}

	if err := m.repo.UpdateProgress(ctx, op.ID, snapshot.Fraction, snapshot.Step); err != nil {
		m.logger.Errorf("Could not update progress of operation %s: %v", op.ID, err)
		return
	}

	// The monitor, not the parser, decides completion.
	if snapshot.Fraction >= 1.0 {
		if err := m.repo.UpdateStatus(ctx, op.ID, model.OperationStatusCompleted, ""); err != nil {
			m.logger.Errorf("Could not mark operation %s completed: %v", op.ID, err)
		}
	}
}
