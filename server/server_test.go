package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/agents"
	"github.com/scttfrdmn/agenkit/research-go/guardrail"
	"github.com/scttfrdmn/agenkit/research-go/memory"
	"github.com/scttfrdmn/agenkit/research-go/orchestrator"
	"github.com/scttfrdmn/agenkit/research-go/session"
	"github.com/scttfrdmn/agenkit/research-go/tools"
)

type runnerFunc func(ctx context.Context, sessionID, question string) (*orchestrator.Result, error)

func (f runnerFunc) Run(ctx context.Context, sessionID, question string, opts ...orchestrator.RunOption) (*orchestrator.Result, error) {
	return f(ctx, sessionID, question)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(runner Runner, store session.Store, opts ...Option) *Server {
	if store == nil {
		store = session.NewInMemoryStore()
	}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New("localhost:0", runner, store, opts...)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var data map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if data["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", data)
	}
}

func TestRunEndpoint(t *testing.T) {
	var gotSession, gotQuestion string
	runner := runnerFunc(func(ctx context.Context, sessionID, question string) (*orchestrator.Result, error) {
		gotSession, gotQuestion = sessionID, question
		return &orchestrator.Result{
			SessionID: sessionID,
			Answer:    "NVDA summary",
			Outcome:   session.OutcomeDone,
			ToolCalls: []session.ToolCall{{Tool: "get_price", Attempts: 1}},
			Verdicts:  []session.Verdict{{Round: 1, Accepted: true}},
			Flags:     []string{},
			Persisted: true,
		}, nil
	})
	srv := newTestServer(runner, nil)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/run", `{"session_id":"s1","question":"Summarize NVDA"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotSession != "s1" || gotQuestion != "Summarize NVDA" {
		t.Errorf("Runner received %q, %q", gotSession, gotQuestion)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if body["answer"] != "NVDA summary" || body["outcome"] != "done" {
		t.Errorf("Unexpected body %v", body)
	}
	if calls, ok := body["tool_calls"].([]interface{}); !ok || len(calls) != 1 {
		t.Errorf("Expected one tool call, got %v", body["tool_calls"])
	}
}

func TestRunEndpointRejectsMalformedInput(t *testing.T) {
	called := false
	runner := runnerFunc(func(ctx context.Context, sessionID, question string) (*orchestrator.Result, error) {
		called = true
		return nil, nil
	})
	srv := newTestServer(runner, nil)

	for _, body := range []string{
		`not json`,
		`{"session_id":"s1"}`,
		`{"question":"why?"}`,
		`{"session_id":"  ","question":"why?"}`,
	} {
		rec := doRequest(t, srv.Handler(), http.MethodPost, "/run", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
			continue
		}
		if code := decodeError(t, rec).Code; code != CodeInvalidRequest {
			t.Errorf("%s: expected %s, got %s", body, CodeInvalidRequest, code)
		}
	}
	if called {
		t.Error("Runner must not be called for malformed input")
	}
}

func TestRunEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"busy", agenkit.ErrSessionBusy, http.StatusConflict, CodeSessionBusy},
		{"store", &agenkit.StoreError{Op: "save", SessionID: "s1", Err: errors.New("disk full at /var/lib/secret")}, http.StatusInternalServerError, CodeStoreError},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, CodeCancelled},
		{"invalid", agenkit.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := runnerFunc(func(ctx context.Context, sessionID, question string) (*orchestrator.Result, error) {
				return nil, tt.err
			})
			srv := newTestServer(runner, nil)

			rec := doRequest(t, srv.Handler(), http.MethodPost, "/run", `{"session_id":"s1","question":"q"}`)
			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, rec.Code)
			}
			detail := decodeError(t, rec)
			if detail.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, detail.Code)
			}
			if strings.Contains(detail.Message, "secret") || strings.Contains(detail.Message, "boom") {
				t.Errorf("Error message leaks internals: %q", detail.Message)
			}
		})
	}
}

func TestSessionEndpoint(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	sess := session.New("s1")
	sess.Append(session.Turn{ID: "t1", Question: "q", Answer: "a", Outcome: session.OutcomeDone})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	scratch, err := memory.NewInMemoryScratch(0)
	if err != nil {
		t.Fatalf("NewInMemoryScratch failed: %v", err)
	}
	if err := scratch.Set(ctx, "s1", "last_symbol", "NVDA"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	srv := newTestServer(nil, store, WithScratch(scratch))
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/sessions/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if body.SessionID != "s1" || len(body.Turns) != 1 || body.Turns[0].Answer != "a" {
		t.Errorf("Unexpected session body %+v", body)
	}
	if body.Scratch["last_symbol"].Value != "NVDA" {
		t.Errorf("Expected scratch entry, got %v", body.Scratch)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/sessions/unknown", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"turns":[]`) {
		t.Errorf("Expected empty session, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "research_runs_total 1\n")
	})
	srv := newTestServer(nil, nil, WithMetricsHandler(metrics))

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "research_runs_total") {
		t.Errorf("Unexpected metrics response %d %s", rec.Code, rec.Body.String())
	}

	srv = newTestServer(nil, nil)
	rec = doRequest(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a metrics handler, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/run", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func offlineOrchestrator(t *testing.T, store session.Store) *orchestrator.Orchestrator {
	t.Helper()
	validator, err := guardrail.New(guardrail.DefaultPolicy())
	if err != nil {
		t.Fatalf("guardrail.New failed: %v", err)
	}
	orch, err := orchestrator.New(orchestrator.Deps{
		Gateway:   agents.NewOfflineGateway(),
		Tools:     tools.NewDefaultRegistry(),
		Store:     store,
		Guardrail: validator,
		Logger:    quietLogger(),
	}, orchestrator.DefaultOptions())
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}
	return orch
}

func dialStream(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/run/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRunStream(t *testing.T) {
	store := session.NewInMemoryStore()
	srv := newTestServer(offlineOrchestrator(t, store), store)
	conn := dialStream(t, srv)

	if err := conn.WriteJSON(runRequest{SessionID: "ws1", Question: "Summarize NVDA with key risks"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var transitions []orchestrator.Transition
	var result *orchestrator.Result
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for result == nil {
		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON failed after %d transitions: %v", len(transitions), err)
		}
		switch ev.Type {
		case "transition":
			transitions = append(transitions, *ev.Transition)
		case "result":
			result = ev.Result
		default:
			t.Fatalf("Unexpected event %+v", ev)
		}
	}

	if len(transitions) == 0 {
		t.Fatal("Expected transition events before the result")
	}
	if last := transitions[len(transitions)-1]; last.To != orchestrator.StateDone {
		t.Errorf("Expected final transition to done, got %s", last.To)
	}
	if result.Outcome != session.OutcomeDone || len(result.ToolCalls) == 0 {
		t.Errorf("Unexpected result %+v", result)
	}

	sess, err := store.Load(context.Background(), "ws1")
	if err != nil || len(sess.Turns) != 1 {
		t.Errorf("Expected one persisted turn, got %v (err %v)", sess, err)
	}
}

func TestRunStreamInvalidRequest(t *testing.T) {
	srv := newTestServer(nil, nil)
	conn := dialStream(t, srv)

	if err := conn.WriteJSON(map[string]string{"session_id": "s1"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev streamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.Type != "error" || ev.Error == nil || ev.Error.Code != CodeInvalidRequest {
		t.Errorf("Expected invalid request error, got %+v", ev)
	}
}
