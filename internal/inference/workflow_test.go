package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestWorkflowClient(t *testing.T, url string, timeout time.Duration) *WorkflowClient {
	t.Helper()
	client, err := NewWorkflowClient(WorkflowConfig{
		URL:         url,
		APIToken:    "tok-123",
		WorkflowID:  "wf-1",
		Model:       "vendor.model-x",
		Temperature: 0.1,
		Timeout:     timeout,
	})
	if err != nil {
		t.Fatalf("NewWorkflowClient() error = %v", err)
	}
	return client
}

func TestWorkflowClientSendsPayloadAndReadsModelAnswer(t *testing.T) {
	var captured map[string]any
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"conversation_id":"conv-9","result":{"answer":{"vendor.model-x":"  Revenue grew 12%.  "}}}`))
	}))
	defer srv.Close()

	client := newTestWorkflowClient(t, srv.URL, time.Second)
	reply, err := client.Call(context.Background(), Turn{Content: "How did revenue do?", SystemPrompt: "be brief"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if reply.Text != "Revenue grew 12%." {
		t.Fatalf("Text = %q", reply.Text)
	}
	if reply.SessionToken != "conv-9" {
		t.Fatalf("SessionToken = %q", reply.SessionToken)
	}
	if authHeader != "bearer tok-123" {
		t.Fatalf("Authorization = %q", authHeader)
	}

	if captured["workflow_id"] != "wf-1" || captured["query"] != "How did revenue do?" {
		t.Fatalf("payload = %#v", captured)
	}
	if captured["is_persistence_allowed"] != false {
		t.Fatalf("is_persistence_allowed = %#v", captured["is_persistence_allowed"])
	}
	if value, ok := captured["conversation_id"]; !ok || value != nil {
		t.Fatalf("conversation_id = %#v, want explicit null", value)
	}
	params := captured["modelparams"].(map[string]any)["vendor.model-x"].(map[string]any)
	want := map[string]string{
		"max_tokens":       "64000",
		"enable_websearch": "false",
		"top_k":            "250",
		"temperature":      "0.1",
		"effort":           "high",
		"system_prompt":    "be brief",
		"enable_reasoning": "false",
	}
	for key, value := range want {
		if params[key] != value {
			t.Fatalf("modelparams[%s] = %#v, want %q", key, params[key], value)
		}
	}
}

func TestWorkflowClientSendsExistingSessionToken(t *testing.T) {
	var conversationID any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		conversationID = payload["conversation_id"]
		_, _ = w.Write([]byte(`{"result":{"answer":{"vendor.model-x":"ok"}}}`))
	}))
	defer srv.Close()

	reply, err := newTestWorkflowClient(t, srv.URL, time.Second).Call(context.Background(), Turn{Content: "q", SessionToken: "conv-1"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if conversationID != "conv-1" {
		t.Fatalf("conversation_id = %#v", conversationID)
	}
	if reply.SessionToken != "" {
		t.Fatalf("SessionToken = %q, want empty when server omits it", reply.SessionToken)
	}
}

func TestWorkflowClientAnswerFallbacks(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantText  string
		wantToken string
	}{
		{
			name:     "first string under answer",
			body:     `{"result":{"answer":{"meta":{"x":1},"blank":"  ","other.model":"from other"}}}`,
			wantText: "from other",
		},
		{
			name:     "top level response",
			body:     `{"response":"top level","result":{"text":"nested"}}`,
			wantText: "top level",
		},
		{
			name:     "result text",
			body:     `{"result":{"answer":null,"text":"nested text"}}`,
			wantText: "nested text",
		},
		{
			name:      "connection id fallback",
			body:      `{"conversation_id":null,"connection_id":"conn-4","content":"hi"}`,
			wantText:  "hi",
			wantToken: "conn-4",
		},
		{
			name:      "numeric token",
			body:      `{"conversation_id":123,"message":"hello \"there\""}`,
			wantText:  `hello "there"`,
			wantToken: "123",
		},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(tc.body))
		}))
		reply, err := newTestWorkflowClient(t, srv.URL, time.Second).Call(context.Background(), Turn{Content: "q"})
		srv.Close()
		if err != nil {
			t.Fatalf("%s: Call() error = %v", tc.name, err)
		}
		if reply.Text != tc.wantText || reply.SessionToken != tc.wantToken {
			t.Fatalf("%s: reply = %#v", tc.name, reply)
		}
	}
}

func TestWorkflowClientUnrecognisedShapeExposesBody(t *testing.T) {
	for _, body := range []string{`{"result":{"answer":{"m":""}},"status":"done"}`, `not json`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := newTestWorkflowClient(t, srv.URL, time.Second).Call(context.Background(), Turn{Content: "q"})
		srv.Close()

		var inferenceErr *Error
		if !errors.As(err, &inferenceErr) || inferenceErr.Kind != KindShape {
			t.Fatalf("error = %v, want shape error", err)
		}
		if inferenceErr.Body != body {
			t.Fatalf("Body = %q, want %q", inferenceErr.Body, body)
		}
		if !strings.Contains(err.Error(), "unrecognised response shape") {
			t.Fatalf("message = %q", err.Error())
		}
	}
}

func TestWorkflowClientHTTPErrorTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	_, err := newTestWorkflowClient(t, srv.URL, time.Second).Call(context.Background(), Turn{Content: "q"})
	var inferenceErr *Error
	if !errors.As(err, &inferenceErr) || inferenceErr.Kind != KindHTTP {
		t.Fatalf("error = %v, want http error", err)
	}
	if inferenceErr.Status != http.StatusServiceUnavailable || len(inferenceErr.Body) != 400 {
		t.Fatalf("status = %d body len = %d", inferenceErr.Status, len(inferenceErr.Body))
	}
	if !strings.Contains(err.Error(), "HTTP error 503") {
		t.Fatalf("message = %q", err.Error())
	}
	if Outcome(err) != "http" {
		t.Fatalf("Outcome() = %q", Outcome(err))
	}
}

func TestWorkflowClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestWorkflowClient(t, srv.URL, 50*time.Millisecond).Call(context.Background(), Turn{Content: "q"})
	var inferenceErr *Error
	if !errors.As(err, &inferenceErr) || inferenceErr.Kind != KindTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestWorkflowClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestWorkflowClient(t, url, time.Second).Call(context.Background(), Turn{Content: "q"})
	var inferenceErr *Error
	if !errors.As(err, &inferenceErr) || inferenceErr.Kind != KindTransport {
		t.Fatalf("error = %v, want transport", err)
	}
	if !strings.Contains(err.Error(), "request failed") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestNewWorkflowClientRequiresToken(t *testing.T) {
	if _, err := NewWorkflowClient(WorkflowConfig{URL: "http://x", WorkflowID: "wf"}); err == nil {
		t.Fatal("expected error without token")
	}
}
