package monitor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/monitor"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage/memory"
)

func testSetup(t *testing.T) (*memory.Repository, *monitor.Monitor) {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	parser, err := progress.NewParser(progress.ParserConfig{})
	require.NoError(t, err)

	mon, err := monitor.NewMonitor(monitor.MonitorConfig{
		Repository: repo,
		Parser:     parser,
		Interval:   10 * time.Millisecond,
	})
	require.NoError(t, err)

	return repo, mon
}

func createRunningOperation(t *testing.T, repo *memory.Repository, id, name string) model.Operation {
	t.Helper()
	ctx := context.Background()

	op := model.Operation{
		ID:         id,
		Name:       name,
		Type:       model.OperationTypeMicrostructure,
		Status:     model.OperationStatusQueued,
		Parameters: model.Parameters{"seed": 1},
		Workdir:    t.TempDir(),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateOperation(ctx, op))
	require.NoError(t, repo.UpdateStatus(ctx, id, model.OperationStatusRunning, ""))

	return op
}

func writeProgress(t *testing.T, op model.Operation, content string) {
	t.Helper()
	path := filepath.Join(op.Workdir, op.Name+"_progress.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSweepUpdatesProgress(t *testing.T) {
	ctx := context.Background()
	repo, mon := testSetup(t)

	op := createRunningOperation(t, repo, "op-1", "base-micro")

	for _, line := range []string{
		"PROGRESS: 0.05 Reading input\n",
		"PROGRESS: 0.30 Placing particles\n",
		"PROGRESS: 0.65 Distributing phases\n",
	} {
		writeProgress(t, op, line)
		require.NoError(t, mon.Sweep(ctx))
	}

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusRunning, got.Status)
	assert.Equal(t, 0.65, got.Progress)
	assert.Equal(t, "Distributing phases", got.CurrentStep)
}

func TestSweepCompletesAtFullProgress(t *testing.T) {
	ctx := context.Background()
	repo, mon := testSetup(t)

	op := createRunningOperation(t, repo, "op-1", "base-micro")
	writeProgress(t, op, "PROGRESS: 1.0 Writing microstructure\n")

	require.NoError(t, mon.Sweep(ctx))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.EndedAt)
}

func TestSweepMarksFailureFromMarker(t *testing.T) {
	ctx := context.Background()
	repo, mon := testSetup(t)

	op := createRunningOperation(t, repo, "op-1", "base-micro")
	writeProgress(t, op, "PROGRESS: 0.3 Placing particles\nERROR: could not place aggregate 17\n")

	require.NoError(t, mon.Sweep(ctx))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusFailed, got.Status)
	assert.Equal(t, "could not place aggregate 17", got.Error)
}

func TestSweepIsolatesOperations(t *testing.T) {
	ctx := context.Background()
	repo, mon := testSetup(t)

	// No progress source at all for the first operation.
	broken := createRunningOperation(t, repo, "op-1", "broken")
	healthy := createRunningOperation(t, repo, "op-2", "healthy")
	writeProgress(t, healthy, "PROGRESS: 0.42 Flocculating\n")

	require.NoError(t, mon.Sweep(ctx))

	gotBroken, err := repo.GetOperation(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusRunning, gotBroken.Status)
	assert.Equal(t, 0.0, gotBroken.Progress)

	gotHealthy, err := repo.GetOperation(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.42, gotHealthy.Progress)
	assert.Equal(t, "Flocculating", gotHealthy.CurrentStep)
}

func TestSweepIgnoresNonRunningOperations(t *testing.T) {
	ctx := context.Background()
	repo, mon := testSetup(t)

	op := model.Operation{
		ID:         "op-1",
		Name:       "queued-op",
		Type:       model.OperationTypeMicrostructure,
		Status:     model.OperationStatusQueued,
		Parameters: model.Parameters{"seed": 1},
		Workdir:    t.TempDir(),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateOperation(context.Background(), op))
	writeProgress(t, op, "PROGRESS: 0.9 Should not be read\n")

	require.NoError(t, mon.Sweep(ctx))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Progress)
	assert.Empty(t, got.CurrentStep)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	_, mon := testSetup(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
}
