package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor runs allow-listed statements and never returns a Go error: every failure is
// reported inside the Result so it can be fed back to the model.
type Executor struct {
	db      Querier
	maxRows int
	logger  *slog.Logger
	now     func() time.Time
}

func NewExecutor(db Querier, maxRows int, logger *slog.Logger) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{db: db, maxRows: maxRows, logger: logger, now: time.Now}
}

func (e *Executor) MaxRows() int {
	return e.maxRows
}

func (e *Executor) Execute(ctx context.Context, sqlText string) Result {
	cleaned := strings.TrimSpace(sqlText)
	if !IsReadOnly(cleaned) {
		e.logger.WarnContext(ctx, "query rejected by allow-list", slog.String("sql", cleaned))
		return rejected()
	}
	if e.db == nil {
		return e.failure(ctx, fmt.Errorf("warehouse connection is not configured"), cleaned)
	}

	start := e.now()
	rows, err := e.db.QueryContext(ctx, cleaned)
	if err != nil {
		return e.failure(ctx, err, cleaned)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return e.failure(ctx, fmt.Errorf("query columns: %w", err), cleaned)
	}
	types := e.columnTypes(ctx, rows)

	resultRows := make([]Row, 0)
	for len(resultRows) < e.maxRows && rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return e.failure(ctx, fmt.Errorf("scan row: %w", err), cleaned)
		}
		resultRows = append(resultRows, NewRow(columns, normalizeValues(values, types)))
	}
	if err := rows.Err(); err != nil {
		return e.failure(ctx, err, cleaned)
	}
	elapsed := e.now().Sub(start)

	return Result{
		Columns:    columns,
		Rows:       resultRows,
		RowCount:   len(resultRows),
		Truncated:  len(resultRows) == e.maxRows,
		ElapsedSec: math.Round(elapsed.Seconds()*100) / 100,
	}
}

type columnTyper interface {
	ColumnTypes() ([]*sql.ColumnType, error)
}

// columnTypes returns nil when the driver cannot describe the columns; values
// are then normalised without type hints.
func (e *Executor) columnTypes(ctx context.Context, rows columnTyper) []*sql.ColumnType {
	types, err := rows.ColumnTypes()
	if err != nil {
		e.logger.DebugContext(ctx, "column types unavailable, numeric strings left as text", slog.Any("error", err))
		return nil
	}
	return types
}

func (e *Executor) failure(ctx context.Context, err error, sqlText string) Result {
	kind := classifyError(err)
	if kind == FailureEngine {
		e.logger.WarnContext(ctx, "query failed in engine",
			slog.String("kind", string(kind)),
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
		return Result{Err: err.Error(), Failure: kind}
	}
	e.logger.ErrorContext(ctx, "query failed unexpectedly",
		slog.String("kind", string(kind)),
		slog.String("sql", sqlText),
		slog.Any("error", err),
	)
	return Result{Err: "Unexpected error: " + err.Error(), Failure: kind}
}
