package supervisor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cementlab/simops/internal/conventions"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/progress"
	"github.com/cementlab/simops/internal/storage"
)

// Supervisor manages the live external processes behind operations. Handles
// are transient and in-memory: they are never persisted, and every state
// transition they trigger goes through storage.Repository commands.
type Supervisor interface {
	// Spawn launches the external program for an operation.
	Spawn(ctx context.Context, op model.Operation) error
	// Pause suspends the operation's process.
	Pause(ctx context.Context, operationID string) error
	// Resume continues a suspended process.
	Resume(ctx context.Context, operationID string) error
	// Cancel requests graceful termination, escalating to a forced kill
	// after a bounded grace period.
	Cancel(ctx context.Context, operationID string) error
	// Wait blocks until the operation's process has been reaped or the
	// context is done.
	Wait(ctx context.Context, operationID string) error
	// Alive reports whether a live handle exists for the operation.
	Alive(operationID string) bool
}

// WriteParams renders an operation's stored parameters into the flat
// parameter file the external programs consume.
func WriteParams(workdir string, params model.Parameters) (path string, err error) {
	path = conventions.ParamsPath(workdir)

	content := strings.Join(params.Flatten(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("could not write parameter file: %w", err)
	}

	return path, nil
}

// ProgressPath returns the progress output path an operation's program is
// told to write to. The hydration solver writes the structured snapshot, the
// other programs emit the line-oriented stream.
func ProgressPath(op model.Operation) string {
	if op.Type == model.OperationTypeHydration {
		return conventions.ProgressJSONPath(op.Workdir)
	}
	return conventions.ProgressTextPath(op.Workdir, op.Name)
}

// ProgramArgs builds the conventional invocation arguments for a simulation
// program: working directory, parameter file and progress output path.
func ProgramArgs(workdir, paramsPath, progressPath string) []string {
	return []string{"-d", workdir, "-i", paramsPath, "-p", progressPath}
}

// Finish classifies a reaped process exit and issues the corresponding Store
// commands. It is shared by the supervisor backends.
//
// Exit code 0 makes the operation eligible for completed, subject to a final
// progress check: a failure marker in the progress source wins over the exit
// code. Nonzero exits fail the operation with the captured stderr tail as
// cause. The Store's terminal guard makes repeated calls harmless.
func Finish(ctx context.Context, repo storage.Repository, parser *progress.Parser, op model.Operation, exitCode int, stderrTail string, cancelled bool, logger log.Logger) {
	switch {
	case cancelled:
		if err := repo.UpdateStatus(ctx, op.ID, model.OperationStatusCancelled, ""); err != nil {
			logger.Errorf("Could not mark operation %s cancelled: %v", op.ID, err)
		}

	case exitCode == 0:
		if snapshot, err := parser.ParseOperation(op.Workdir, op.Name); err == nil && snapshot.Failed {
			cause := snapshot.FailureMessage
			if cause == "" {
				cause = "process reported failure"
			}
			if err := repo.UpdateStatus(ctx, op.ID, model.OperationStatusFailed, cause); err != nil {
				logger.Errorf("Could not mark operation %s failed: %v", op.ID, err)
			}
			return
		}

		// A clean exit is authoritative over a stale progress file.
		if err := repo.UpdateProgress(ctx, op.ID, 1.0, "Finished"); err != nil {
			logger.Warningf("Could not record final progress for operation %s: %v", op.ID, err)
		}
		if err := repo.UpdateStatus(ctx, op.ID, model.OperationStatusCompleted, ""); err != nil {
			logger.Errorf("Could not mark operation %s completed: %v", op.ID, err)
		}

	default:
		cause := fmt.Sprintf("process exited with code %d", exitCode)
		if stderrTail != "" {
			cause = fmt.Sprintf("%s: %s", cause, stderrTail)
		}
		if err := repo.UpdateStatus(ctx, op.ID, model.OperationStatusFailed, cause); err != nil {
			logger.Errorf("Could not mark operation %s failed: %v", op.ID, err)
		}
	}
}
