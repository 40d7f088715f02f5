package printer

import (
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cementlab/simops/internal/model"
)

// JSONPrinter prints operation information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents an operation in the list output (subset of fields).
type listItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// statusOutput represents the full operation status output.
type statusOutput struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Status      string           `json:"status"`
	Progress    float64          `json:"progress"`
	CurrentStep string           `json:"current_step,omitempty"`
	ParentID    string           `json:"parent_id,omitempty"`
	Parameters  model.Parameters `json:"parameters"`
	Workdir     string           `json:"workdir"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at"`
}

// lineageOutput represents the lineage of one operation.
type lineageOutput struct {
	Operation      listItem   `json:"operation"`
	Parent         *listItem  `json:"parent,omitempty"`
	ParentDangling bool       `json:"parent_dangling,omitempty"`
	Children       []listItem `json:"children"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

func toListItem(op model.Operation) listItem {
	return listItem{
		ID:          op.ID,
		Name:        op.Name,
		Type:        string(op.Type),
		Status:      string(op.Status),
		Progress:    op.Progress,
		CurrentStep: op.CurrentStep,
		CreatedAt:   op.CreatedAt.UTC(),
	}
}

// PrintList prints operations in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(operations []model.Operation) error {
	items := make([]listItem, len(operations))
	for i, op := range operations {
		items[i] = toListItem(op)
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintStatus prints detailed operation status in JSON format.
func (j *JSONPrinter) PrintStatus(op model.Operation) error {
	output := statusOutput{
		ID:          op.ID,
		Name:        op.Name,
		Type:        string(op.Type),
		Status:      string(op.Status),
		Progress:    op.Progress,
		CurrentStep: op.CurrentStep,
		ParentID:    op.ParentID,
		Parameters:  op.Parameters,
		Workdir:     op.Workdir,
		Error:       op.Error,
		CreatedAt:   op.CreatedAt.UTC(),
		StartedAt:   nil,
		EndedAt:     nil,
	}

	if op.StartedAt != nil {
		utcTime := op.StartedAt.UTC()
		output.StartedAt = &utcTime
	}

	if op.EndedAt != nil {
		utcTime := op.EndedAt.UTC()
		output.EndedAt = &utcTime
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintLineage prints an operation's parent and children in JSON format.
func (j *JSONPrinter) PrintLineage(op model.Operation, parent *model.Operation, parentDangling bool, children []model.Operation) error {
	output := lineageOutput{
		Operation:      toListItem(op),
		ParentDangling: parentDangling,
		Children:       make([]listItem, len(children)),
	}

	if parent != nil {
		item := toListItem(*parent)
		output.Parent = &item
	}

	for i, c := range children {
		output.Children[i] = toListItem(c)
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
