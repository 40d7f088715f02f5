package exec_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage/memory"
	execsupervisor "github.com/cementlab/simops/internal/supervisor/exec"
)

// writeScript writes an executable shell script standing in for a simulation
// program. The conventional invocation is "-d workdir -i params -p progress",
// so "$6" is the progress output path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeprogram")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testSetup(t *testing.T, script string) (*memory.Repository, *execsupervisor.Supervisor, model.Operation) {
	t.Helper()
	ctx := context.Background()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	parser, err := progress.NewParser(progress.ParserConfig{})
	require.NoError(t, err)

	superv, err := execsupervisor.NewSupervisor(execsupervisor.SupervisorConfig{
		Repository: repo,
		Parser:     parser,
		ProgramPaths: map[model.OperationType]string{
			model.OperationTypeMicrostructure: script,
		},
		GracePeriod: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	op := model.Operation{
		ID:         "op-1",
		Name:       "base-micro",
		Type:       model.OperationTypeMicrostructure,
		Status:     model.OperationStatusQueued,
		Parameters: model.Parameters{"seed": 8731},
		Workdir:    t.TempDir(),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateOperation(ctx, op))

	return repo, superv, op
}

func TestSupervisorCompletes(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `
echo "PROGRESS: 0.5 Halfway" >> "$6"
echo "PROGRESS: 0.9 Almost done" >> "$6"
exit 0`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))
	require.NoError(t, superv.Wait(ctx, op.ID))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, "Finished", got.CurrentStep)
	require.NotNil(t, got.EndedAt)

	// The parameter file was rendered into the workdir.
	params, err := os.ReadFile(filepath.Join(op.Workdir, "params.in"))
	require.NoError(t, err)
	assert.Equal(t, "seed 8731\n", string(params))
}

func TestSupervisorFailsOnNonzeroExit(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `
echo "could not read phase assignment table" >&2
exit 2`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))
	require.NoError(t, superv.Wait(ctx, op.ID))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusFailed, got.Status)
	assert.Contains(t, got.Error, "process exited with code 2")
	assert.Contains(t, got.Error, "could not read phase assignment table")
}

func TestSupervisorFailureMarkerWinsOverCleanExit(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `
echo "PROGRESS: 0.3 Placing particles" >> "$6"
echo "ERROR: could not place aggregate 17" >> "$6"
exit 0`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))
	require.NoError(t, superv.Wait(ctx, op.ID))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusFailed, got.Status)
	assert.Equal(t, "could not place aggregate 17", got.Error)
}

func TestSupervisorCancel(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `sleep 30`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))
	assert.True(t, superv.Alive(op.ID))

	require.NoError(t, superv.Cancel(ctx, op.ID))
	require.NoError(t, superv.Wait(ctx, op.ID))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCancelled, got.Status)
	require.NotNil(t, got.EndedAt)

	// Cancelling again after the reap is an error, the handle is gone.
	assert.Eventually(t, func() bool { return !superv.Alive(op.ID) }, time.Second, 10*time.Millisecond)
	assert.Error(t, superv.Cancel(ctx, op.ID))
}

func TestSupervisorConcurrentCancel(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `sleep 30`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))

	// Racing cancels must reap the process exactly once: no panic on a double
	// kill, no double bookkeeping. Cancels that lose the race against the
	// reaper find the handle gone, which is fine.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = superv.Cancel(ctx, op.ID)
		}()
	}
	wg.Wait()
	require.NoError(t, superv.Wait(ctx, op.ID))

	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCancelled, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Eventually(t, func() bool { return !superv.Alive(op.ID) }, time.Second, 10*time.Millisecond)
}

func TestSupervisorPauseResume(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `sleep 30`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))

	require.NoError(t, superv.Pause(ctx, op.ID))
	got, err := repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusPaused, got.Status)

	require.NoError(t, superv.Resume(ctx, op.ID))
	got, err = repo.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusRunning, got.Status)

	require.NoError(t, superv.Cancel(ctx, op.ID))
	require.NoError(t, superv.Wait(ctx, op.ID))
}

func TestSupervisorSpawnTwice(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `sleep 30`)
	repo, superv, op := testSetup(t, script)

	require.NoError(t, repo.UpdateStatus(ctx, op.ID, model.OperationStatusRunning, ""))
	require.NoError(t, superv.Spawn(ctx, op))

	err := superv.Spawn(ctx, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	require.NoError(t, superv.Cancel(ctx, op.ID))
	require.NoError(t, superv.Wait(ctx, op.ID))
}

func TestSupervisorUnknownProgram(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `exit 0`)
	_, superv, op := testSetup(t, script)

	op.Type = model.OperationType("diffusion")
	err := superv.Spawn(ctx, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestSupervisorWaitWithoutHandle(t *testing.T) {
	ctx := context.Background()
	script := writeScript(t, `exit 0`)
	_, superv, _ := testSetup(t, script)

	// An operation without a live handle has already been reaped.
	require.NoError(t, superv.Wait(ctx, "never-spawned"))
	assert.False(t, superv.Alive("never-spawned"))
}
