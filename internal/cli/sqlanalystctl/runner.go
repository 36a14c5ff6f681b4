package sqlanalystctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   []byte
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqlanalystctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "sqlanalyst API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	sessionID := fs.String("session", "", "analyst session id used by ask")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildRequest(command, fs.Args()[1:], strings.TrimSpace(*sessionID))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, rest []string, sessionID string) (request, error) {
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/api/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/api/ready"}, nil
	case "suggestions":
		return request{method: http.MethodGet, path: "/api/analyst/suggestions"}, nil
	case "categories":
		return request{method: http.MethodGet, path: "/api/metadata/categories"}, nil
	case "metrics":
		return request{method: http.MethodGet, path: "/api/metadata/metrics"}, nil
	case "session-create":
		return request{method: http.MethodPost, path: "/api/analyst/session"}, nil
	case "session-reset", "session-delete":
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			return request{}, fmt.Errorf("%s requires exactly one session id", command)
		}
		id := url.PathEscape(strings.TrimSpace(rest[0]))
		if command == "session-reset" {
			return request{method: http.MethodPost, path: "/api/analyst/session/" + id + "/reset"}, nil
		}
		return request{method: http.MethodDelete, path: "/api/analyst/session/" + id}, nil
	case "ask":
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			return request{}, fmt.Errorf("ask requires a question")
		}
		payload := map[string]string{"question": question}
		if sessionID != "" {
			payload["sessionId"] = sessionID
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return request{}, err
		}
		return request{method: http.MethodPost, path: "/api/analyst/query", body: body}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sqlanalystctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                GET /api/health")
	_, _ = fmt.Fprintln(w, "  ready                 GET /api/ready")
	_, _ = fmt.Fprintln(w, "  suggestions           GET /api/analyst/suggestions")
	_, _ = fmt.Fprintln(w, "  categories            GET /api/metadata/categories")
	_, _ = fmt.Fprintln(w, "  metrics               GET /api/metadata/metrics")
	_, _ = fmt.Fprintln(w, "  session-create        POST /api/analyst/session")
	_, _ = fmt.Fprintln(w, "  session-reset <id>    POST /api/analyst/session/{id}/reset")
	_, _ = fmt.Fprintln(w, "  session-delete <id>   DELETE /api/analyst/session/{id}")
	_, _ = fmt.Fprintln(w, "  ask <question>        POST /api/analyst/query (use -session to continue a conversation)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
