package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ChatConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	TranscriptTTL time.Duration
	HTTPClient    *http.Client
}

// DefaultTranscriptTTL bounds how long an unused transcript is held.
const DefaultTranscriptTTL = 7 * 24 * time.Hour

type transcript struct {
	messages []chatMessage
	lastUsed time.Time
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint. The
// endpoint is stateless, so transcripts are held in memory and keyed by the
// session token this client hands out.
type ChatClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	client      *http.Client

	ttl         time.Duration
	now         func() time.Time

	mu          sync.Mutex
	transcripts map[string]*transcript
}

func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ttl := cfg.TranscriptTTL
	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ChatClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		client:      httpClient,
		ttl:         ttl,
		now:         time.Now,
		transcripts: map[string]*transcript{},
	}, nil
}

func (c *ChatClient) Call(ctx context.Context, turn Turn) (Reply, error) {
	token := strings.TrimSpace(turn.SessionToken)
	if token == "" {
		token = uuid.NewString()
	}
	history := c.history(token)

	messages := make([]chatMessage, 0, len(history)+2)
	if strings.TrimSpace(turn.SystemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: turn.SystemPrompt})
	}
	messages = append(messages, history...)
	userMessage := chatMessage{Role: "user", Content: turn.Content}
	messages = append(messages, userMessage)

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Reply{}, &Error{Kind: KindShape, Body: string(rawRespBody), Err: err}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return Reply{}, &Error{Kind: KindShape, Body: string(rawRespBody)}
	}

	answer := strings.TrimSpace(parsed.Choices[0].Message.Content)
	c.appendHistory(token, userMessage, chatMessage{Role: "assistant", Content: answer})
	return Reply{Text: answer, SessionToken: token}, nil
}

// Forget drops the transcript held for token.
func (c *ChatClient) Forget(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.transcripts, token)
}

// Len reports how many transcripts are held.
func (c *ChatClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transcripts)
}

func (c *ChatClient) history(token string) []chatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	t, ok := c.transcripts[token]
	if !ok {
		return nil
	}
	return append([]chatMessage(nil), t.messages...)
}

func (c *ChatClient) appendHistory(token string, messages ...chatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transcripts[token]
	if !ok {
		t = &transcript{}
		c.transcripts[token] = t
	}
	t.messages = append(t.messages, messages...)
	t.lastUsed = c.now()
}

func (c *ChatClient) expireLocked() {
	cutoff := c.now().Add(-c.ttl)
	for token, t := range c.transcripts {
		if t.lastUsed.Before(cutoff) {
			delete(c.transcripts, token)
		}
	}
}
