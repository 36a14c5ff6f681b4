package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// parquetColumns maps table columns onto unique, non-empty parquet field
// names. Fields of a parquet group are ordered by name, so index holds the
// leaf column position of each table column.
func parquetColumns(columns []string) (names []string, index []int) {
	names = make([]string, len(columns))
	used := map[string]bool{}
	for i, column := range columns {
		name := column
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	position := make(map[string]int, len(sorted))
	for i, name := range sorted {
		position[name] = i
	}
	index = make([]int, len(names))
	for i, name := range names {
		index[i] = position[name]
	}
	return names, index
}

// writeParquet stores every column as an optional UTF-8 string. Warehouse
// types vary per query, so cells are written in their text form.
func writeParquet(w io.Writer, table Table) error {
	if len(table.Columns) == 0 {
		return fmt.Errorf("parquet export needs at least one column")
	}
	names, index := parquetColumns(table.Columns)

	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("export", group)

	rows := make([]parquet.Row, 0, len(table.Rows))
	for _, source := range table.Rows {
		row := make(parquet.Row, len(names))
		for i, column := range table.Columns {
			col := index[i]
			value, ok := source.Get(column)
			if !ok || value == nil {
				row[col] = parquet.NullValue().Level(0, 0, col)
				continue
			}
			row[col] = parquet.ValueOf(FormatValue(value)).Level(0, 1, col)
		}
		rows = append(rows, row)
	}

	writer := parquet.NewWriter(w, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
