package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sqlanalyst/sqlanalyst/internal/analyst"
	"github.com/sqlanalyst/sqlanalyst/internal/config"
	"github.com/sqlanalyst/sqlanalyst/internal/inference"
	"github.com/sqlanalyst/sqlanalyst/internal/observability"
	"github.com/sqlanalyst/sqlanalyst/internal/prompt"
	"github.com/sqlanalyst/sqlanalyst/internal/session"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

// terminalSessionID keys the persisted conversation token of the terminal.
const terminalSessionID = "cli"

type terminalSession struct {
	*analyst.Session
	closers []func() error
}

func (t *terminalSession) Close() error {
	errs := []error{t.Session.Close()}
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenSession loads the environment configuration and opens one warehouse
// connection and conversation for the terminal.
func OpenSession(ctx context.Context, opts Options) (Runner, error) {
	cfg, err := config.LoadFromEnv("sqlanalyst")
	if err != nil {
		return nil, err
	}
	if opts.MaxLoops > 0 {
		cfg.Agent.MaxLoops = opts.MaxLoops
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	base, source, err := prompt.Resolve(prompt.Options{
		File:         firstNonEmpty(opts.SystemPromptFile, cfg.Agent.SystemPromptFile),
		Inline:       opts.SystemPrompt,
		Env:          cfg.Agent.SystemPrompt,
		SchemaPrefix: cfg.Agent.SchemaPrefix,
	})
	if err != nil {
		return nil, err
	}

	client, err := inference.NewFromConfig(cfg.Inference, logger)
	if err != nil {
		return nil, fmt.Errorf("configure inference client: %w", err)
	}
	agent, err := analyst.NewAgent(analyst.Config{
		Client:       client,
		SystemPrompt: prompt.Build(base),
		MaxLoops:     cfg.Agent.MaxLoops,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	var closers []func() error
	fail := func(err error) (Runner, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	logger.Info("connecting to warehouse", slog.String("driver", cfg.Warehouse.Driver))
	pool, err := warehouse.Open(ctx, warehouse.ConfigFrom(cfg.Warehouse))
	if err != nil {
		return nil, err
	}
	closers = append(closers, pool.Close)

	store, err := session.Open(cfg.Session)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store.Close)

	token, err := resumeToken(ctx, store, cfg.Agent.ConversationID)
	if err != nil {
		return fail(err)
	}

	conn, err := pool.Checkout(ctx)
	if err != nil {
		return fail(err)
	}

	sess := analyst.NewSession(analyst.SessionConfig{
		ID:       terminalSessionID,
		Agent:    agent,
		Executor: warehouse.NewExecutor(conn, cfg.Warehouse.MaxRows, logger),
		Conn:     conn,
		Store:    store,
		Token:    token,
		Logger:   logger,
	})
	logger.Info("terminal session ready",
		slog.String("prompt_source", string(source)),
		slog.Bool("resumed", token != ""),
	)
	return &terminalSession{Session: sess, closers: closers}, nil
}

// resumeToken returns the persisted token, or seeds the store with fallback
// when no token is persisted yet.
func resumeToken(ctx context.Context, store session.Store, fallback string) (string, error) {
	record, err := store.Load(ctx, terminalSessionID)
	if err == nil && record.Token != "" {
		return record.Token, nil
	}
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return "", fmt.Errorf("load terminal session: %w", err)
	}
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		return "", nil
	}
	if err := store.Save(ctx, terminalSessionID, fallback); err != nil {
		return "", fmt.Errorf("seed terminal session: %w", err)
	}
	return fallback, nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}
