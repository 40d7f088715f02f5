package conventions

import (
	"fmt"
	"path/filepath"

	"github.com/cementlab/simops/internal/model"
)

const (
	// DefaultDataDir is the default simops data directory name (relative to home).
	DefaultDataDir = ".simops"
	// OperationsDir is the subdirectory for operation working directories.
	OperationsDir = "operations"
	// DBFile is the SQLite database filename.
	DBFile = "simops.db"

	// Operation-level files.

	// ParamsFile is the flattened parameter file consumed by the external program.
	ParamsFile = "params.in"
	// ProgressJSONFile is the structured progress snapshot filename.
	ProgressJSONFile = "progress.json"
)

// programs maps each operation type to its external simulation program.
var programs = map[model.OperationType]string{
	model.OperationTypeMicrostructure: "genmic",
	model.OperationTypeHydration:      "disrealnew",
	model.OperationTypeElasticModuli:  "elastic",
}

// Program returns the external program name for an operation type.
func Program(t model.OperationType) (string, bool) {
	p, ok := programs[t]
	return p, ok
}

// OperationDir returns the working directory for a specific operation.
func OperationDir(dataDir, operationID string) string {
	return filepath.Join(dataDir, OperationsDir, operationID)
}

// ParamsPath returns the path of an operation's flattened parameter file.
func ParamsPath(workdir string) string {
	return filepath.Join(workdir, ParamsFile)
}

// ProgressJSONPath returns the path of an operation's structured progress snapshot.
func ProgressJSONPath(workdir string) string {
	return filepath.Join(workdir, ProgressJSONFile)
}

// ProgressTextPath returns the path of an operation's line-oriented progress file.
func ProgressTextPath(workdir, operationName string) string {
	return filepath.Join(workdir, fmt.Sprintf("%s_progress.txt", operationName))
}
