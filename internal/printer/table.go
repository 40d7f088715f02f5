package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cementlab/simops/internal/model"
)

// TablePrinter prints operation information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints operations in a table format.
func (t *TablePrinter) PrintList(operations []model.Operation) error {
	if len(operations) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tPROGRESS\tSTEP\tCREATED")

	// Print rows
	for _, op := range operations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			op.Name, op.Type, op.Status, FormatProgress(op.Progress), op.CurrentStep, TimeAgo(op.CreatedAt))
	}

	return nil
}

// PrintStatus prints detailed operation status.
func (t *TablePrinter) PrintStatus(op model.Operation) error {
	fmt.Fprintf(t.writer, "Name:       %s\n", op.Name)
	fmt.Fprintf(t.writer, "ID:         %s\n", op.ID)
	fmt.Fprintf(t.writer, "Type:       %s\n", op.Type)
	fmt.Fprintf(t.writer, "Status:     %s\n", op.Status)
	fmt.Fprintf(t.writer, "Progress:   %s\n", FormatProgress(op.Progress))

	if op.CurrentStep != "" {
		fmt.Fprintf(t.writer, "Step:       %s\n", op.CurrentStep)
	}

	if op.ParentID != "" {
		fmt.Fprintf(t.writer, "Parent:     %s\n", op.ParentID)
	}

	fmt.Fprintf(t.writer, "Workdir:    %s\n", op.Workdir)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(op.CreatedAt))

	if op.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(*op.StartedAt))
	}

	if op.EndedAt != nil {
		fmt.Fprintf(t.writer, "Ended:      %s\n", FormatTimestamp(*op.EndedAt))
	}

	if op.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", op.Error)
	}

	return nil
}

// PrintLineage prints an operation's parent and children.
func (t *TablePrinter) PrintLineage(op model.Operation, parent *model.Operation, parentDangling bool, children []model.Operation) error {
	fmt.Fprintf(t.writer, "Operation:  %s (%s)\n", op.Name, op.ID)

	switch {
	case parent != nil:
		fmt.Fprintf(t.writer, "Parent:     %s (%s)\n", parent.Name, parent.ID)
	case parentDangling:
		fmt.Fprintf(t.writer, "Parent:     %s (deleted)\n", op.ParentID)
	default:
		fmt.Fprintf(t.writer, "Parent:     none\n")
	}

	if len(children) == 0 {
		fmt.Fprintf(t.writer, "Children:   none\n")
		return nil
	}

	fmt.Fprintf(t.writer, "Children:\n")
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "  NAME\tTYPE\tSTATUS\tPROGRESS")
	for _, c := range children {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.Name, c.Type, c.Status, FormatProgress(c.Progress))
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
