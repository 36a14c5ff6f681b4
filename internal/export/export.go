// Package export renders query rows as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts csv, json and parquet. Empty means csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

func (f Format) Extension() string {
	return string(f)
}

func (f Format) FileName() string {
	return "export." + f.Extension()
}

// Table is an ordered set of rows. Columns lists every column in output order.
type Table struct {
	Columns []string
	Rows    []warehouse.Row
}

// TableFromResult copies a successful query result.
func TableFromResult(result warehouse.Result) Table {
	return Table{Columns: append([]string(nil), result.Columns...), Rows: result.Rows}
}

// ParseRows decodes a JSON array of objects. Columns are collected in the order
// they are first seen, so the header follows the first row.
func ParseRows(data []byte) (Table, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return Table{}, nil
	}
	if !json.Valid(data) {
		return Table{}, fmt.Errorf("rows must be valid json")
	}

	var table Table
	seen := map[string]bool{}
	var parseErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			parseErr = fmt.Errorf("each row must be a json object")
			return
		}
		var columns []string
		var values []any
		parseErr = jsonparser.ObjectEach(value, func(key []byte, raw []byte, valueType jsonparser.ValueType, _ int) error {
			name, err := jsonparser.ParseString(key)
			if err != nil {
				return fmt.Errorf("decode column name: %w", err)
			}
			decoded, err := decodeValue(raw, valueType)
			if err != nil {
				return fmt.Errorf("decode column %q: %w", name, err)
			}
			if !seen[name] {
				seen[name] = true
				table.Columns = append(table.Columns, name)
			}
			columns = append(columns, name)
			values = append(values, decoded)
			return nil
		})
		table.Rows = append(table.Rows, warehouse.NewRow(columns, values))
	})
	if err != nil {
		return Table{}, fmt.Errorf("rows must be a json array: %w", err)
	}
	if parseErr != nil {
		return Table{}, parseErr
	}
	return table, nil
}

func decodeValue(raw []byte, valueType jsonparser.ValueType) (any, error) {
	switch valueType {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.String:
		return jsonparser.ParseString(raw)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(raw)
	case jsonparser.Number:
		if value, err := jsonparser.ParseInt(raw); err == nil {
			return value, nil
		}
		return jsonparser.ParseFloat(raw)
	default:
		return string(raw), nil
	}
}

// Write renders table to w in the given format.
func Write(w io.Writer, format Format, table Table) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, table)
	case FormatParquet:
		return writeParquet(w, table)
	default:
		return writeCSV(w, table)
	}
}

func writeCSV(w io.Writer, table Table) error {
	if len(table.Columns) == 0 {
		return nil
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, column := range table.Columns {
			value, _ := row.Get(column)
			record[i] = FormatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, table Table) error {
	rows := table.Rows
	if rows == nil {
		rows = []warehouse.Row{}
	}
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("write json export: %w", err)
	}
	return nil
}

// FormatValue renders a cell as text. Nil becomes an empty cell.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if math.Trunc(v) == v && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
