package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

const (
	DefaultModel     = "anthropic_direct.claude-v4-6-sonnet"
	DefaultMaxTokens = 64000
	DefaultTopK      = 250
	DefaultEffort    = "high"
)

// fallbackKeys are probed at the top level and then under "result" when the
// model-keyed answer is missing.
var fallbackKeys = []string{"response", "output", "text", "message", "content"}

var errStopIteration = errors.New("stop")

type WorkflowConfig struct {
	URL         string
	APIToken    string
	WorkflowID  string
	Model       string
	MaxTokens   int
	TopK        int
	Temperature float64
	Effort      string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// WorkflowClient talks to a hosted workflow endpoint that keeps conversation
// history server-side, keyed by conversation_id.
type WorkflowClient struct {
	url        string
	apiToken   string
	workflowID string
	model      string
	params     modelParams
	timeout    time.Duration
	client     *http.Client
	logger     *slog.Logger
}

type workflowPayload struct {
	WorkflowID           string                 `json:"workflow_id"`
	Query                string                 `json:"query"`
	IsPersistenceAllowed bool                   `json:"is_persistence_allowed"`
	ModelParams          map[string]modelParams `json:"modelparams"`
	InputVariables       map[string]string      `json:"input_variables"`
	ConversationID       *string                `json:"conversation_id"`
}

type modelParams struct {
	MaxTokens       string `json:"max_tokens"`
	EnableWebsearch string `json:"enable_websearch"`
	TopK            string `json:"top_k"`
	Temperature     string `json:"temperature"`
	Effort          string `json:"effort"`
	SystemPrompt    string `json:"system_prompt"`
	EnableReasoning string `json:"enable_reasoning"`
}

func NewWorkflowClient(cfg WorkflowConfig) (*WorkflowClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("inference URL is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("inference API token is required")
	}
	if strings.TrimSpace(cfg.WorkflowID) == "" {
		return nil, fmt.Errorf("inference workflow id is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	effort := strings.TrimSpace(cfg.Effort)
	if effort == "" {
		effort = DefaultEffort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &WorkflowClient{
		url:        strings.TrimSpace(cfg.URL),
		apiToken:   strings.TrimSpace(cfg.APIToken),
		workflowID: strings.TrimSpace(cfg.WorkflowID),
		model:      model,
		params: modelParams{
			MaxTokens:       strconv.Itoa(maxTokens),
			EnableWebsearch: "false",
			TopK:            strconv.Itoa(topK),
			Temperature:     strconv.FormatFloat(cfg.Temperature, 'f', -1, 64),
			Effort:          effort,
			EnableReasoning: "false",
		},
		timeout: timeout,
		client:  httpClient,
		logger:  logger,
	}, nil
}

func (c *WorkflowClient) Call(ctx context.Context, turn Turn) (Reply, error) {
	params := c.params
	params.SystemPrompt = turn.SystemPrompt
	payload := workflowPayload{
		WorkflowID:           c.workflowID,
		Query:                turn.Content,
		IsPersistenceAllowed: false,
		ModelParams:          map[string]modelParams{c.model: params},
		InputVariables:       map[string]string{},
	}
	if token := strings.TrimSpace(turn.SessionToken); token != "" {
		payload.ConversationID = &token
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal workflow payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build workflow request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "bearer "+c.apiToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Reply{}, requestError(err, c.timeout)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, requestError(err, c.timeout)
	}
	if resp.StatusCode >= 400 {
		return Reply{}, statusError(resp.StatusCode, rawRespBody)
	}

	if !json.Valid(rawRespBody) {
		c.logger.WarnContext(ctx, "inference response is not json", slog.String("body", string(rawRespBody)))
		return Reply{}, &Error{Kind: KindShape, Body: string(rawRespBody)}
	}
	answer := c.answerFrom(rawRespBody)
	if answer == "" {
		c.logger.WarnContext(ctx, "unrecognised inference response", slog.String("body", string(rawRespBody)))
		return Reply{}, &Error{Kind: KindShape, Body: string(rawRespBody)}
	}
	return Reply{Text: answer, SessionToken: sessionTokenFrom(rawRespBody)}, nil
}

// answerFrom probes the envelope in order: result.answer.<model>, the first
// non-empty string under result.answer, then the fallback keys.
func (c *WorkflowClient) answerFrom(data []byte) string {
	if value := stringAt(data, "result", "answer", c.model); value != "" {
		return value
	}

	var answer string
	_ = jsonparser.ObjectEach(data, func(_ []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.String {
			return nil
		}
		parsed, err := jsonparser.ParseString(value)
		if err != nil {
			return nil
		}
		if trimmed := strings.TrimSpace(parsed); trimmed != "" {
			answer = trimmed
			return errStopIteration
		}
		return nil
	}, "result", "answer")
	if answer != "" {
		return answer
	}

	for _, prefix := range [][]string{nil, {"result"}} {
		for _, key := range fallbackKeys {
			path := append(append([]string{}, prefix...), key)
			if value := stringAt(data, path...); value != "" {
				return value
			}
		}
	}
	return ""
}

func sessionTokenFrom(data []byte) string {
	for _, key := range []string{"conversation_id", "connection_id"} {
		value, dataType, _, err := jsonparser.Get(data, key)
		if err != nil {
			continue
		}
		switch dataType {
		case jsonparser.String:
			parsed, err := jsonparser.ParseString(value)
			if err == nil && strings.TrimSpace(parsed) != "" {
				return strings.TrimSpace(parsed)
			}
		case jsonparser.Number:
			if number := string(value); number != "0" {
				return number
			}
		}
	}
	return ""
}

func stringAt(data []byte, keys ...string) string {
	value, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil || dataType != jsonparser.String {
		return ""
	}
	parsed, err := jsonparser.ParseString(value)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed)
}
