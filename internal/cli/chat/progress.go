package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sqlanalyst/sqlanalyst/internal/toolcall"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

// progress prints every executed query while a question is answered.
type progress struct {
	out    io.Writer
	styles styles
}

func (p progress) ObserveQuery(_ context.Context, call toolcall.Call, result warehouse.Result) {
	_, _ = fmt.Fprintf(p.out, "\n  %s %s\n", p.styles.label.Render("query"), p.styles.query.Render(call.Description))
	_, _ = fmt.Fprintln(p.out, indent(p.styles.sql.Render("SQL:\n"+strings.TrimSpace(call.SQL)), "     "))

	if result.Failed() {
		_, _ = fmt.Fprintf(p.out, "  %s %s\n", p.styles.warning.Render("SQL error:"), result.Err)
		return
	}

	note := fmt.Sprintf("%d row(s) in %.2fs", result.RowCount, result.ElapsedSec)
	if result.Truncated {
		note += fmt.Sprintf("  (first %d rows shown)", result.RowCount)
	}
	_, _ = fmt.Fprintf(p.out, "  %s\n", p.styles.success.Render(note))
	if result.RowCount > 0 {
		_, _ = fmt.Fprintln(p.out, indent(p.styles.renderTable(result), "     "))
	}
}
