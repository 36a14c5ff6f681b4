package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/sqlanalyst/sqlanalyst/internal/storage"
)

func TestPutUsesPrefixAndForwardsMetadata(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("exports", "sqlanalyst/prod/", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	opts := storage.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"format": "csv"}}
	if _, err := store.Put(context.Background(), "/exports/date=2026-01-02/s-1/exp.csv", bytes.NewBufferString("a,b"), 3, opts); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "exports" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "sqlanalyst/prod/exports/date=2026-01-02/s-1/exp.csv" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastPutOpts.ContentType != "text/csv" || fake.lastPutOpts.Metadata["format"] != "csv" {
		t.Fatalf("opts = %#v", fake.lastPutOpts)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("exports", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "..", "  "} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected validation error", key)
		}
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("exports", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestCleanPrefix(t *testing.T) {
	cases := map[string]string{"": "", "/": "", " a/b/ ": "a/b", "/x/../y": "y"}
	for input, want := range cases {
		if got := cleanPrefix(input); got != want {
			t.Fatalf("cleanPrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
	if _, _, err := parseEndpoint("ftp://minio.example.com", false); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
	endpoint, secure, _ = parseEndpoint("localhost:9000", true)
	if endpoint != "localhost:9000" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

func TestMapMinioErrMarksMissingBucket(t *testing.T) {
	err := mapMinioErr(minio.ErrorResponse{Code: "NoSuchBucket", BucketName: "exports"})
	if !errors.Is(err, storage.ErrBucketNotFound) {
		t.Fatalf("mapMinioErr() = %v", err)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastPutOpts        storage.PutOptions
	bucketExists       bool
	createBucketCalled bool
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastPutOpts = opts
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
