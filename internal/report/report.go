// Package report renders the batch grading summary for the console so a
// grader can reconcile every case the automated path refused to score.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/pixgrade/internal/grading"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	sepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
)

// Table is a static table of string cells.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

// String renders the table. Empty tables render as "".
func (t *Table) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(titleStyle.Render(t.Title))
		sb.WriteString("\n")
	}
	writeRow := func(style lipgloss.Style, cells []string) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			sb.WriteString(style.Width(widths[i]).Render(cell))
			if i < len(widths)-1 {
				sb.WriteString(sepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	writeRow(headerStyle, t.Headers)

	total := len(widths) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(sepStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		writeRow(cellStyle, row)
	}
	return sb.String()
}

// Build turns a summary into the exceptions table: every student that was
// not fully scored, with the reason, plus students missing from the sheet.
func Build(s *grading.Summary) *Table {
	t := &Table{
		Title:   "Needs attention",
		Headers: []string{"Student", "Status", "Details"},
	}
	for _, r := range s.Reports {
		if r.Verdict.Complete {
			continue
		}
		t.AddRow(r.Student, "incomplete", details(r))
	}
	for _, u := range s.Unknown {
		t.AddRow(u, "unknown", "not on the grade sheet")
	}
	return t
}

func details(r grading.Report) string {
	byKind := map[grading.Kind][]string{}
	for name, o := range r.Outcomes {
		if o.Kind != grading.Compared {
			byKind[o.Kind] = append(byKind[o.Kind], name)
		}
	}
	var parts []string
	for _, k := range []grading.Kind{grading.Missing, grading.Ambiguous, grading.ShapeMismatch, grading.DecodeFailure} {
		names := byKind[k]
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(names, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Write prints the summary line and the exceptions table.
func Write(w io.Writer, s *grading.Summary) error {
	complete := 0
	for _, r := range s.Reports {
		if r.Verdict.Complete {
			complete++
		}
	}
	line := fmt.Sprintf("graded %d students: %d complete, %d incomplete, %d unknown, %d problems awarded",
		len(s.Reports), complete, len(s.Reports)-complete, len(s.Unknown), s.Awarded)
	style := okStyle
	if complete != len(s.Reports) || len(s.Unknown) > 0 {
		style = warnStyle
	}
	if _, err := fmt.Fprintln(w, style.Render(line)); err != nil {
		return err
	}
	_, err := io.WriteString(w, Build(s).String())
	return err
}
