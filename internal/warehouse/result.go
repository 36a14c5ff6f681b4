package warehouse

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	DefaultMaxRows  = 50
	RejectedMessage = "Only SELECT / WITH queries are permitted."
)

type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureRejected   FailureKind = "rejected"
	FailureEngine     FailureKind = "engine_error"
	FailureUnexpected FailureKind = "unexpected_error"
)

// Row maps column names to scalar values while keeping result column order.
type Row struct {
	columns []string
	values  []any
}

func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

func (r Row) Columns() []string {
	return r.columns
}

func (r Row) Values() []any {
	return r.values
}

// Get returns the value of the last column named column.
func (r Row) Get(column string) (any, bool) {
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == column && i < len(r.values) {
			return r.values[i], true
		}
	}
	return nil, false
}

func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.columns))
	for i, column := range r.columns {
		if i < len(r.values) {
			out[column] = r.values[i]
		}
	}
	return out
}

// MarshalJSON encodes the row as an object in column order. Duplicate column names
// keep their first position and their last value.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]bool, len(r.columns))
	for _, column := range r.columns {
		if seen[column] {
			continue
		}
		seen[column] = true
		value, _ := r.Get(column)

		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is either a failure carrying Err or a bounded set of rows.
// RowCount == len(Rows) <= the executor row limit, and Truncated is true exactly when
// the limit was reached.
type Result struct {
	Err        string
	Failure    FailureKind
	Columns    []string
	Rows       []Row
	RowCount   int
	Truncated  bool
	ElapsedSec float64
}

func (r Result) Failed() bool {
	return r.Err != ""
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Err})
	}
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(struct {
		Columns    []string `json:"columns"`
		Rows       []Row    `json:"rows"`
		RowCount   int      `json:"row_count"`
		Truncated  bool     `json:"truncated"`
		ElapsedSec float64  `json:"elapsed_sec"`
	}{
		Columns:    columns,
		Rows:       rows,
		RowCount:   r.RowCount,
		Truncated:  r.Truncated,
		ElapsedSec: r.ElapsedSec,
	})
}

func rejected() Result {
	return Result{Err: RejectedMessage, Failure: FailureRejected}
}

// IsReadOnly reports whether a statement passes the SELECT/WITH allow-list. It is a
// syntactic prefix check only: a WITH statement that calls side-effecting procedures
// inside a CTE is not detected.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(sqlText))
	normalized = strings.TrimSpace(strings.TrimLeft(normalized, "("))
	return strings.HasPrefix(normalized, "SELECT") || strings.HasPrefix(normalized, "WITH")
}
