package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/sqlanalyst/sqlanalyst/internal/auth"
	"github.com/sqlanalyst/sqlanalyst/internal/config"
	"github.com/sqlanalyst/sqlanalyst/internal/export"
)

const maxExportBodyBytes = 32 << 20

// handleExport renders {"data": [...], "format": "csv", "archive": false} as
// a file download.
func handleExport(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExportBodyBytes))
	if err != nil {
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "export request body is too large", false, nil)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, nil)
		return
	}

	rawFormat, err := jsonparser.GetString(body, "format")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
		return
	}
	archive, err := jsonparser.GetBoolean(body, "archive")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "archive must be a boolean", false, nil)
		return
	}

	rawRows, dataType, _, err := jsonparser.Get(body, "data")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if dataType == jsonparser.NotExist || dataType == jsonparser.Null {
		rawRows = nil
	} else if dataType != jsonparser.Array {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROWS", "data must be an array of objects", false, nil)
		return
	}
	table, err := export.ParseRows(rawRows)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROWS", err.Error(), false, nil)
		return
	}

	if format == export.FormatCSV && len(table.Rows) == 0 {
		w.Header().Set("Content-Type", format.ContentType())
		w.WriteHeader(http.StatusOK)
		return
	}
	if format == export.FormatParquet && len(table.Columns) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "EXPORT_EMPTY", "parquet export needs at least one column", false, nil)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, table); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to render export", false, map[string]any{"details": err.Error()})
		return
	}

	if archive {
		if deps.Archiver == nil {
			writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "export archiving is not configured", false, nil)
			return
		}
		identity, _ := auth.IdentityFromContext(r.Context())
		if cfg.Auth.Required && !identity.HasRole(auth.RoleExporter) {
			writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "exporter role required to archive exports", false, nil)
			return
		}
		info, err := deps.Archiver.Archive(r.Context(), identity.Principal, format, len(table.Rows), buf.Bytes())
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_FAILED", "failed to archive export", true, map[string]any{"details": err.Error()})
			return
		}
		w.Header().Set("X-Export-Key", info.Key)
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.FileName())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
