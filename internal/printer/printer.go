package printer

import "github.com/cementlab/simops/internal/model"

// Printer knows how to print operation information in different formats.
type Printer interface {
	PrintList(operations []model.Operation) error
	PrintStatus(operation model.Operation) error
	PrintLineage(operation model.Operation, parent *model.Operation, parentDangling bool, children []model.Operation) error
	PrintMessage(msg string) error
}
