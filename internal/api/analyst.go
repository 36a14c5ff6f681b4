package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlanalyst/sqlanalyst/internal/analyst"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

type queryData struct {
	Columns       []string        `json:"columns"`
	Rows          []warehouse.Row `json:"rows"`
	RowCount      int             `json:"rowCount"`
	Truncated     bool            `json:"truncated"`
	ExecutionTime float64         `json:"executionTime"`
}

type queryResponse struct {
	Success     bool      `json:"success"`
	Answer      string    `json:"answer"`
	SQL         string    `json:"sql"`
	Data        queryData `json:"data"`
	Suggestions []string  `json:"suggestions"`
	SessionID   string    `json:"sessionId,omitempty"`
	Queries     int       `json:"queries"`
	Iterations  int       `json:"iterations"`
	Exhausted   bool      `json:"exhausted"`
}

type queryFailure struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer,omitempty"`
	Error   string `json:"error"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "analyst sessions are not configured", false, nil)
		return
	}
	s, err := deps.Sessions.Create(r.Context())
	if err != nil {
		writeSessionError(r.Context(), w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": s.ID()})
}

func handleResetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "analyst sessions are not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	if err := deps.Sessions.Reset(r.Context(), id); err != nil {
		writeSessionError(r.Context(), w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "reset": true})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "analyst sessions are not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	if err := deps.Sessions.Delete(r.Context(), id); err != nil {
		writeSessionError(r.Context(), w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, analyst.ErrSessionNotFound):
		writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", "analyst session not found", false, map[string]any{"session_id": id})
	case errors.Is(err, analyst.ErrTooManySessions):
		writeError(ctx, w, http.StatusServiceUnavailable, "TOO_MANY_SESSIONS", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "SESSION_ERROR", "analyst session operation failed", true, map[string]any{"details": err.Error()})
	}
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeJSON(w, http.StatusNotImplemented, queryFailure{Error: "analyst is not configured"})
		return
	}
	start := deps.Now()

	var request queryRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, queryFailure{Error: "invalid query request body"})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, queryFailure{Error: "Question is required"})
		return
	}

	last := &analyst.LastSuccess{}
	answer, status, err := askQuestion(r.Context(), deps, strings.TrimSpace(request.SessionID), question, last)
	if err != nil {
		writeJSON(w, status, queryFailure{Error: err.Error()})
		return
	}
	if answer.Err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "analyst question failed", slog.String("error", answer.Err.Error()))
		}
		writeJSON(w, http.StatusBadGateway, queryFailure{Answer: answer.Text, Error: answer.Err.Error()})
		return
	}

	response := queryResponse{
		Success:     true,
		Answer:      answer.Text,
		Data:        queryData{Columns: []string{}, Rows: []warehouse.Row{}},
		Suggestions: analyst.FollowUps(question),
		SessionID:   request.SessionID,
		Queries:     answer.Queries,
		Iterations:  answer.Iterations,
		Exhausted:   answer.Exhausted,
	}
	if call, result, ok := last.Get(); ok {
		response.SQL = call.SQL
		if result.Columns != nil {
			response.Data.Columns = result.Columns
		}
		if result.Rows != nil {
			response.Data.Rows = result.Rows
		}
		response.Data.RowCount = result.RowCount
		response.Data.Truncated = result.Truncated
	}
	response.Data.ExecutionTime = float64(deps.Now().Sub(start).Microseconds()) / 1000
	writeJSON(w, http.StatusOK, response)
}

// askQuestion runs the question on the named session, or on a throwaway
// session when id is empty. A session closed by the idle sweep between lookup
// and ask is resumed once.
func askQuestion(ctx context.Context, deps Dependencies, id, question string, last *analyst.LastSuccess) (analyst.Answer, int, error) {
	if id == "" {
		s, err := deps.Sessions.Ephemeral(ctx)
		if err != nil {
			return analyst.Answer{}, http.StatusServiceUnavailable, err
		}
		defer func() { _ = s.Close() }()
		return s.Ask(ctx, question, last), http.StatusOK, nil
	}

	for attempt := 0; ; attempt++ {
		s, err := deps.Sessions.Get(ctx, id)
		switch {
		case errors.Is(err, analyst.ErrSessionNotFound):
			return analyst.Answer{}, http.StatusNotFound, err
		case errors.Is(err, analyst.ErrTooManySessions):
			return analyst.Answer{}, http.StatusServiceUnavailable, err
		case err != nil:
			return analyst.Answer{}, http.StatusInternalServerError, err
		}
		answer := s.Ask(ctx, question, last)
		if errors.Is(answer.Err, analyst.ErrSessionClosed) && attempt == 0 {
			continue
		}
		return answer, http.StatusOK, nil
	}
}
