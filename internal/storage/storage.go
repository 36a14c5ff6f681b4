// Package storage is the object store used for export archives.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrBucketNotFound = errors.New("bucket not found")

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
	// Metadata is stored as user metadata on the object.
	Metadata map[string]string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}
