package sqlanalystctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunSuggestionsCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"suggestions":["What was revenue last month?"]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"suggestions",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/api/analyst/suggestions" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key header = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), "  \"suggestions\"") {
		t.Fatalf("expected indented output, got %q", stdout.String())
	}
}

func TestRunAskCommandSendsQuestionAndSession(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		_, _ = w.Write([]byte(`{"success":true,"answer":"42"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-session", "s-1",
		"ask", "how", "many", "orders?",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/analyst/query" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if payload["question"] != "how many orders?" || payload["sessionId"] != "s-1" {
		t.Fatalf("payload = %#v", payload)
	}
}

func TestRunSessionCommands(t *testing.T) {
	cases := []struct {
		args       []string
		wantMethod string
		wantPath   string
	}{
		{args: []string{"session-create"}, wantMethod: http.MethodPost, wantPath: "/api/analyst/session"},
		{args: []string{"session-reset", "abc"}, wantMethod: http.MethodPost, wantPath: "/api/analyst/session/abc/reset"},
		{args: []string{"session-delete", "abc"}, wantMethod: http.MethodDelete, wantPath: "/api/analyst/session/abc"},
	}
	for _, tc := range cases {
		var gotMethod, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		}))
		code := Run(context.Background(), append([]string{"-base-url", srv.URL}, tc.args...), Options{})
		srv.Close()
		if code != 0 {
			t.Fatalf("%v: exit code = %d", tc.args, code)
		}
		if gotMethod != tc.wantMethod || gotPath != tc.wantPath {
			t.Fatalf("%v: request = %s %s", tc.args, gotMethod, gotPath)
		}
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "health"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "http 401") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"unknown"},
		{"ask"},
		{"session-reset"},
		{"session-delete", "a", "b"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("%v: exit code = %d, want 2", args, code)
		}
		if !strings.Contains(stderr.String(), "usage: sqlanalystctl") {
			t.Fatalf("%v: expected usage, got %q", args, stderr.String())
		}
	}
}
