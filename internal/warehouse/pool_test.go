package warehouse

import (
	"context"
	"regexp"
	"strings"
	"testing"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenRequiresDSNForPostgresAndMySQL(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverMySQL} {
		if _, err := Open(context.Background(), Config{Driver: driver}); err == nil {
			t.Fatalf("expected error for %s without dsn", driver)
		}
	}
}

func TestOpenSnowflakeRequiresCredentials(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverSnowflake, Snowflake: SnowflakeConfig{Account: "acme-prod"}})
	if err == nil {
		t.Fatal("expected error for snowflake without user/token")
	}
}

func TestSnowflakeDSNIncludesAccountAndQueryTag(t *testing.T) {
	dsn, err := SnowflakeConfig{
		Account:   "acme-prod",
		User:      "analyst",
		Token:     "pat-secret",
		Warehouse: "ANALYTICS_WH",
		Database:  "SALES",
		Schema:    "GOLD",
		Role:      "ANALYST",
		QueryTag:  "sqlanalyst",
	}.DSN()
	if err != nil {
		t.Fatalf("DSN() error = %v", err)
	}
	if !strings.Contains(dsn, "acme-prod") {
		t.Fatalf("dsn missing account: %s", dsn)
	}
	if !strings.Contains(dsn, "sqlanalyst") {
		t.Fatalf("dsn missing query tag: %s", dsn)
	}
}

func TestCheckoutReturnsDedicatedConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	pool := NewPool(db, DriverDuckDB)

	conn, err := pool.Checkout(context.Background())
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnRows(mockRows("ONE").AddRow(int64(1)))

	result := NewExecutor(conn, 10, nil).Execute(context.Background(), "SELECT 1")
	if result.Failed() {
		t.Fatalf("Execute() failed: %s", result.Err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("conn.Close() error = %v", err)
	}
	if pool.Driver() != DriverDuckDB {
		t.Fatalf("Driver() = %q", pool.Driver())
	}
	assertSQLMock(t, mock)
}
