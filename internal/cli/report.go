package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"proctor/internal/delivery"
	pstrings "proctor/pkg/strings"
)

// RenderRunReport writes the outcome of a scripted run as tables.
func RenderRunReport(w io.Writer, report *RunReport) {
	title := report.Test
	if report.Title != "" {
		title = fmt.Sprintf("%s (%s)", report.Title, report.Test)
	}
	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "state: %s   time: %s\n\n", report.State, report.Duration)

	items := table.NewWriter()
	items.SetOutputMirror(w)
	items.SetStyle(table.StyleRounded)
	items.AppendHeader(table.Row{"ITEM", "STATE", "ATTEMPTS", "COMPLETION", "TIME", "OUTCOMES"})
	for _, row := range report.Items {
		items.AppendRow(table.Row{row.Item, row.State, row.Attempts, row.Completion, row.Duration, outcomesCell(row.Outcomes)})
	}
	items.Render()

	if len(report.Outcomes) > 0 {
		fmt.Fprintln(w)
		outcomes := table.NewWriter()
		outcomes.SetOutputMirror(w)
		outcomes.SetStyle(table.StyleRounded)
		outcomes.AppendHeader(table.Row{"OUTCOME", "VALUE"})
		for _, o := range report.Outcomes {
			outcomes.AppendRow(table.Row{o.Name, o.Value})
		}
		outcomes.Render()
	}

	if report.UnusedSteps > 0 {
		fmt.Fprintf(w, "\nThe session closed with %d script steps unused.\n", report.UnusedSteps)
	}
}

// outcomesCell joins outcome pairs into one table cell.
func outcomesCell(outcomes []Outcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s=%s", o.Name, o.Value))
	}
	return pstrings.TruncateCell(strings.Join(parts, " "), pstrings.DefaultCellMaxLen)
}

// RenderSessionList writes stored session summaries as a table.
func RenderSessionList(w io.Writer, sessions []*delivery.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "TEST", "STATUS", "STATE"})
	for _, s := range sessions {
		t.AppendRow(table.Row{s.ID, s.Test, s.Status, s.State})
	}
	t.Render()
}

// RenderSessionDetail writes one session's view plus its per-item
// rows.
func RenderSessionDetail(w io.Writer, view *delivery.SessionView, items []delivery.ItemView) {
	fmt.Fprintf(w, "%-10s %s\n", "session:", view.ID)
	fmt.Fprintf(w, "%-10s %s\n", "test:", view.Test)
	fmt.Fprintf(w, "%-10s %s\n", "state:", view.State)
	if view.Item != "" {
		fmt.Fprintf(w, "%-10s %d of %d (%s)\n", "item:", view.Position+1, view.Count, view.Item)
	}
	if d, ok := view.Durations[view.Test]; ok {
		fmt.Fprintf(w, "%-10s %s\n", "time:", d)
	}
	if len(view.Outcomes) > 0 {
		fmt.Fprintf(w, "%-10s %s\n", "outcomes:", formatOutcomeMap(view.Outcomes))
	}

	fmt.Fprintln(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ITEM", "STATE", "ATTEMPTS", "COMPLETION", "TIME", "OUTCOMES"})
	for _, row := range items {
		t.AppendRow(table.Row{row.Item, row.State, row.Attempts, row.Completion, row.Duration,
			pstrings.TruncateCell(formatOutcomeMap(row.Outcomes), pstrings.DefaultCellMaxLen)})
	}
	t.Render()
}

// formatOutcomeMap joins a JSON outcome map into name=value pairs in
// name order.
func formatOutcomeMap(outcomes map[string]interface{}) string {
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, outcomes[name]))
	}
	return strings.Join(parts, " ")
}
