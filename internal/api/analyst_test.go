package api

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/sqlanalyst/sqlanalyst/internal/inference"
	"github.com/sqlanalyst/sqlanalyst/internal/toolcall"
)

func newJSONRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	return serve(h, newJSONRequest(path, body))
}

func TestQueryEndpointReturnsAnswerAndLastSQL(t *testing.T) {
	const sql = "SELECT ACCOUNT_NAME, REVENUE FROM ANALYTICS.GOLD.V_GOLD_BILLING_ACCOUNT_DIM LIMIT 2"
	env := newTestEnv(t, nil)
	env.client.replies = []inference.Reply{
		{Text: toolcall.Render(toolcall.Call{Description: "Top accounts", SQL: sql}), SessionToken: "conv-1"},
		{Text: "Acme leads revenue."},
	}
	env.mock.ExpectQuery(regexp.QuoteMeta(sql)).
		WillReturnRows(mockRows("ACCOUNT_NAME", "REVENUE").AddRow("Acme", 1200.5).AddRow("Globex", 900.0))

	rr := postJSON(env.handler(), "/api/analyst/query", `{"question":"Top customers by revenue"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["answer"] != "Acme leads revenue." || body["sql"] != sql {
		t.Fatalf("body = %#v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["rowCount"] != float64(2) {
		t.Fatalf("data = %#v", data)
	}
	columns, _ := data["columns"].([]any)
	if len(columns) != 2 || columns[0] != "ACCOUNT_NAME" {
		t.Fatalf("columns = %#v", columns)
	}
	rows, _ := data["rows"].([]any)
	first, _ := rows[0].(map[string]any)
	if first["ACCOUNT_NAME"] != "Acme" || first["REVENUE"] != 1200.5 {
		t.Fatalf("first row = %#v", first)
	}
	suggestions, _ := body["suggestions"].([]any)
	if len(suggestions) == 0 || suggestions[0] != "Revenue by country" {
		t.Fatalf("suggestions = %#v", suggestions)
	}
	if body["queries"] != float64(1) || body["iterations"] != float64(2) {
		t.Fatalf("counters = %v/%v", body["queries"], body["iterations"])
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
	if env.manager.Len() != 0 {
		t.Fatalf("ephemeral session leaked, Len() = %d", env.manager.Len())
	}
}

func TestQueryEndpointWithoutQueriesReturnsEmptyData(t *testing.T) {
	env := newTestEnv(t, nil)
	env.client.replies = []inference.Reply{{Text: "Revenue is defined as the amount without tax."}}

	rr := postJSON(env.handler(), "/api/analyst/query", `{"question":"What counts as revenue?"}`)
	body := decodeBody(t, rr)
	if body["sql"] != "" {
		t.Fatalf("sql = %v", body["sql"])
	}
	data, _ := body["data"].(map[string]any)
	if rows, ok := data["rows"].([]any); !ok || len(rows) != 0 {
		t.Fatalf("rows = %#v", data["rows"])
	}
}

func TestQueryEndpointRequiresQuestion(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := postJSON(env.handler(), "/api/analyst/query", `{"question":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["success"] != false || body["error"] != "Question is required" {
		t.Fatalf("body = %#v", body)
	}

	rr = postJSON(env.handler(), "/api/analyst/query", `{`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid json status = %d", rr.Code)
	}
}

func TestQueryEndpointUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := postJSON(env.handler(), "/api/analyst/query", `{"question":"q","sessionId":"missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQueryEndpointReportsInferenceFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.client.err = &inference.Error{Kind: inference.KindHTTP, Status: 500, Body: "upstream exploded"}

	rr := postJSON(env.handler(), "/api/analyst/query", `{"question":"Total revenue"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	answer, _ := body["answer"].(string)
	if body["success"] != false || !strings.HasPrefix(answer, "API error: ") || !strings.Contains(answer, "upstream exploded") {
		t.Fatalf("body = %#v", body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.handler()

	created := postJSON(h, "/api/analyst/session", "")
	if created.Code != http.StatusOK {
		t.Fatalf("create status = %d", created.Code)
	}
	id, _ := decodeBody(t, created)["sessionId"].(string)
	if id == "" {
		t.Fatal("expected session id")
	}

	env.client.replies = []inference.Reply{{Text: "first", SessionToken: "conv-9"}, {Text: "second"}}
	if rr := postJSON(h, "/api/analyst/query", `{"question":"q1","sessionId":"`+id+`"}`); rr.Code != http.StatusOK {
		t.Fatalf("first query status = %d", rr.Code)
	}
	if rr := postJSON(h, "/api/analyst/query", `{"question":"q2","sessionId":"`+id+`"}`); rr.Code != http.StatusOK {
		t.Fatalf("second query status = %d", rr.Code)
	}
	if env.client.turns[1].SessionToken != "conv-9" {
		t.Fatalf("second turn token = %q", env.client.turns[1].SessionToken)
	}

	if rr := postJSON(h, "/api/analyst/session/"+id+"/reset", ""); rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rr.Code)
	}
	postJSON(h, "/api/analyst/query", `{"question":"q3","sessionId":"`+id+`"}`)
	if env.client.turns[2].SessionToken != "" {
		t.Fatalf("token after reset = %q", env.client.turns[2].SessionToken)
	}

	del := httptest.NewRecorder()
	h.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/analyst/session/"+id, nil))
	if del.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", del.Code)
	}
	again := httptest.NewRecorder()
	h.ServeHTTP(again, httptest.NewRequest(http.MethodDelete, "/api/analyst/session/"+id, nil))
	if again.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", again.Code)
	}
	if body := decodeBody(t, again); body["error_code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("body = %#v", body)
	}
}
