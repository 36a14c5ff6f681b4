package warehouse

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marcboeker/go-duckdb/v2"
	"github.com/snowflakedb/gosnowflake"
)

// classifyError separates errors reported by the query engine (bad SQL, unknown
// objects, permission problems) from everything else.
func classifyError(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var snowflakeErr *gosnowflake.SnowflakeError
	if errors.As(err, &snowflakeErr) {
		return FailureEngine
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return FailureEngine
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return FailureEngine
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		return FailureEngine
	}
	return FailureUnexpected
}
