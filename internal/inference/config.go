package inference

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlanalyst/sqlanalyst/internal/config"
)

// NewFromConfig builds the client selected by cfg.Provider.
func NewFromConfig(cfg config.InferenceConfig, logger *slog.Logger) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.InferenceWorkflow:
		client, err := NewWorkflowClient(WorkflowConfig{
			URL:         cfg.URL,
			APIToken:    cfg.APIToken,
			WorkflowID:  cfg.WorkflowID,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			TopK:        cfg.TopK,
			Temperature: cfg.Temperature,
			Effort:      cfg.Effort,
			Timeout:     cfg.Timeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.InferenceOpenAI:
		client, err := NewChatClient(ChatConfig{
			BaseURL:     cfg.URL,
			APIKey:      cfg.APIToken,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", cfg.Provider)
	}
}
