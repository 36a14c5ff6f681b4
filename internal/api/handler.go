// Package api exposes the analyst over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlanalyst/sqlanalyst/internal/analyst"
	"github.com/sqlanalyst/sqlanalyst/internal/config"
	"github.com/sqlanalyst/sqlanalyst/internal/export"
	"github.com/sqlanalyst/sqlanalyst/internal/observability"
	"github.com/sqlanalyst/sqlanalyst/internal/storage"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

// SessionManager is satisfied by *analyst.Manager.
type SessionManager interface {
	Create(ctx context.Context) (*analyst.Session, error)
	Get(ctx context.Context, id string) (*analyst.Session, error)
	Ephemeral(ctx context.Context) (*analyst.Session, error)
	Reset(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Warehouse is the shared pool used outside conversations. *warehouse.Pool
// satisfies it.
type Warehouse interface {
	warehouse.Querier
	HealthCheck(ctx context.Context) error
}

type Archiver interface {
	Archive(ctx context.Context, owner string, format export.Format, rows int, data []byte) (storage.ObjectInfo, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Sessions          SessionManager
	Warehouse         Warehouse
	Archiver          Archiver
	LLMEnabled        bool
	Now               func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(cfg, deps, w, r)
	})

	mux.HandleFunc("GET /api/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout(deps))
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	protected := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"POST /api/analyst/session": func(w http.ResponseWriter, r *http.Request) {
			handleCreateSession(deps, w, r)
		},
		"POST /api/analyst/session/{id}/reset": func(w http.ResponseWriter, r *http.Request) {
			handleResetSession(deps, w, r)
		},
		"DELETE /api/analyst/session/{id}": func(w http.ResponseWriter, r *http.Request) {
			handleDeleteSession(deps, w, r)
		},
		"GET /api/analyst/suggestions": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"suggestions": analyst.StarterQuestions()})
		},
		"POST /api/analyst/query": func(w http.ResponseWriter, r *http.Request) {
			handleQuery(deps, w, r)
		},
		"POST /api/analyst/export": func(w http.ResponseWriter, r *http.Request) {
			handleExport(cfg, deps, w, r)
		},
		"GET /api/metadata/categories": func(w http.ResponseWriter, r *http.Request) {
			handleCategories(cfg, deps, w, r)
		},
		"GET /api/metadata/metrics": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, metricCatalog)
		},
	}
	for pattern, handler := range routes {
		protected.HandleFunc(pattern, handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, CORSMiddleware(cfg.HTTP.CORSOrigins))
	return chain(mux, middlewares...)
}

func handleHealth(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	connected := false
	if deps.Warehouse != nil {
		ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout(deps))
		defer cancel()
		connected = deps.Warehouse.HealthCheck(ctx) == nil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"service":            cfg.Service.Name,
		"warehouseConnected": connected,
		"llmEnabled":         deps.LLMEnabled,
		"timestamp":          deps.Now().UTC().Format(time.RFC3339),
	})
}

func dependencyTimeout(deps Dependencies) time.Duration {
	if deps.DependencyTimeout <= 0 {
		return 2 * time.Second
	}
	return deps.DependencyTimeout
}

// CheckWarehouse reports the warehouse pool as not ready when a ping fails.
func CheckWarehouse(w Warehouse) ReadinessCheck {
	return func(ctx context.Context) error {
		if w == nil {
			return errors.New("warehouse is not configured")
		}
		return w.HealthCheck(ctx)
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Export.ArchiveEnabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
