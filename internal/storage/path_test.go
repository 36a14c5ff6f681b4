package storage

import (
	"testing"
	"time"
)

func TestBuildExportKey(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 23, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildExportKey("3f1c2d", "exp-1", ".parquet", ts)
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	want := "exports/date=2026-02-20/3f1c2d/exp-1.parquet"
	if key != want {
		t.Fatalf("BuildExportKey() = %q, want %q", key, want)
	}
}

func TestBuildExportKeyDefaultsOwner(t *testing.T) {
	key, err := BuildExportKey("", "exp-2", "csv", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	if key != "exports/date=2026-01-02/anonymous/exp-2.csv" {
		t.Fatalf("BuildExportKey() = %q", key)
	}
}

func TestBuildExportKeyRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildExportKey("../oops", "exp", "csv", time.Now()); err == nil {
		t.Fatal("expected invalid component error")
	}
}
