package chat

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sqlanalyst/sqlanalyst/internal/export"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

const ruleWidth = 68

type styles struct {
	title   lipgloss.Style
	rule    lipgloss.Style
	label   lipgloss.Style
	detail  lipgloss.Style
	query   lipgloss.Style
	sql     lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	faint   lipgloss.Style
	border  lipgloss.Style
	header  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		rule:    r.NewStyle().Foreground(lipgloss.Color("241")),
		label:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:  r.NewStyle().Foreground(lipgloss.Color("252")),
		query:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		sql:     r.NewStyle().Foreground(lipgloss.Color("245")),
		success: r.NewStyle().Foreground(lipgloss.Color("42")),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		faint:   r.NewStyle().Faint(true),
		border:  r.NewStyle().Foreground(lipgloss.Color("238")),
		header:  r.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (s styles) hr(char string) string {
	return s.rule.Render(strings.Repeat(char, ruleWidth))
}

// renderTable draws a result as a rounded table in column order.
func (s styles) renderTable(result warehouse.Result) string {
	if len(result.Rows) == 0 {
		return s.faint.Render("(no rows returned)")
	}
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.border).
		Headers(result.Columns...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return cell
		})
	for _, row := range result.Rows {
		values := row.Values()
		cells := make([]string, len(result.Columns))
		for i := range result.Columns {
			if i < len(values) {
				cells[i] = export.FormatValue(values[i])
			}
		}
		t.Row(cells...)
	}
	return t.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
