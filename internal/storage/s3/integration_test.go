//go:build integration

package s3

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sqlanalyst/sqlanalyst/internal/storage"
)

func TestArchiveExportAgainstMinIO(t *testing.T) {
	endpoint := envOr("SQLANALYST_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("SQLANALYST_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("SQLANALYST_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("SQLANALYST_TEST_S3_BUCKET", "sqlanalyst-it"),
		AccessKeyID:      envOr("SQLANALYST_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("SQLANALYST_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := storage.BuildExportKey("it", "roundtrip", "csv", time.Now())
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	payload := []byte("NAME,REVENUE\nAcme,1200\n")
	info, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Fatalf("Put().Size = %d, want %d", info.Size, len(payload))
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
