// Package inference sends conversation turns to a hosted language model and
// returns the assistant text together with the server-side session token.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
	"unicode/utf8"
)

const (
	DefaultTimeout = 120 * time.Second
	maxErrorBody   = 400
)

// Turn is one outbound request. SessionToken is empty on the first turn of a
// conversation.
type Turn struct {
	Content      string
	SystemPrompt string
	SessionToken string
}

// Reply carries the assistant text. SessionToken is empty when the server did
// not return one; callers keep their previous token in that case.
type Reply struct {
	Text         string
	SessionToken string
}

type Client interface {
	Call(ctx context.Context, turn Turn) (Reply, error)
}

type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindHTTP      ErrorKind = "http"
	KindTransport ErrorKind = "transport"
	KindShape     ErrorKind = "shape"
)

// Error is the single failure type returned by every Client.
type Error struct {
	Kind    ErrorKind
	Status  int
	Body    string
	Timeout time.Duration
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("inference request timed out (%s)", e.Timeout)
	case KindHTTP:
		return fmt.Sprintf("inference HTTP error %d: %s", e.Status, e.Body)
	case KindShape:
		return fmt.Sprintf("inference returned an unrecognised response shape: %s", e.Body)
	default:
		return fmt.Sprintf("inference request failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Outcome maps an error returned by Call to a metrics label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var inferenceErr *Error
	if errors.As(err, &inferenceErr) {
		return string(inferenceErr.Kind)
	}
	return string(KindTransport)
}

func requestError(err error, timeout time.Duration) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Timeout: timeout, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

func statusError(status int, body []byte) *Error {
	return &Error{Kind: KindHTTP, Status: status, Body: truncate(string(body), maxErrorBody)}
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
