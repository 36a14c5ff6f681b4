package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sqlanalyst/sqlanalyst/internal/storage"
)

// Archiver keeps a copy of every rendered export in an object store.
type Archiver struct {
	store  storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewArchiver(store storage.ObjectStore, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Archiver{store: store, logger: logger, now: time.Now, newID: uuid.NewString}, nil
}

// Archive uploads an already rendered export and returns where it was stored.
func (a *Archiver) Archive(ctx context.Context, owner string, format Format, rows int, data []byte) (storage.ObjectInfo, error) {
	key, err := storage.BuildExportKey(owner, a.newID(), format.Extension(), a.now())
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			"format": string(format),
			"rows":   strconv.Itoa(rows),
		},
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("archive export: %w", err)
	}
	a.logger.InfoContext(ctx, "export archived",
		slog.String("key", info.Key),
		slog.String("format", string(format)),
		slog.Int64("size_bytes", info.Size),
	)
	return info, nil
}
