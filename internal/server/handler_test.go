package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snowbridge-labs/analyst-gateway/internal/analyst"
	"github.com/snowbridge-labs/analyst-gateway/internal/auth"
	"github.com/snowbridge-labs/analyst-gateway/internal/config"
	"github.com/snowbridge-labs/analyst-gateway/internal/render"
	"github.com/snowbridge-labs/analyst-gateway/internal/storage/sqlite"
	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

type stubAsker struct {
	env   *analyst.Envelope
	err   error
	calls int
}

func (s *stubAsker) Ask(_ context.Context, question string) (*analyst.Envelope, error) {
	if strings.TrimSpace(question) == "" {
		return nil, analyst.ErrEmptyQuestion
	}
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.env, nil
}

type stubEngine struct {
	result *warehouse.ResultSet
	calls  int
}

func (e *stubEngine) Query(context.Context, string) (*warehouse.ResultSet, error) {
	e.calls++
	return e.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ticketEnvelope() *analyst.Envelope {
	return &analyst.Envelope{
		TraceID: "req-777",
		Blocks: []analyst.Block{
			analyst.TextBlock{Text: "Ticket counts by service type."},
			analyst.SQLBlock{Statement: "SELECT COUNT(*) AS ticket_count, service_type FROM support_tickets GROUP BY 2"},
		},
	}
}

func ticketEngine() *stubEngine {
	return &stubEngine{result: &warehouse.ResultSet{
		Columns: []string{"TICKET_COUNT", "SERVICE_TYPE"},
		Rows:    [][]string{{"12", "Cellular"}, {"5", "Internet"}},
	}}
}

func newTestServer(t *testing.T, asker Asker, engine warehouse.Engine, authenticator *auth.Authenticator, log InteractionLog) *httptest.Server {
	t.Helper()
	handler := NewHandler(asker, engine,
		render.ChartRoles{Measure: "TICKET_COUNT", Dimension: "SERVICE_TYPE"}, log, testLogger())
	srv := New(0, 30*time.Second, testLogger(), authenticator, handler)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

func postAsk(t *testing.T, ts *httptest.Server, question string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"question": question})
	resp, err := http.Post(ts.URL+"/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/ask error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleAsk_EndToEnd(t *testing.T) {
	asker := &stubAsker{env: ticketEnvelope()}
	engine := ticketEngine()
	ts := newTestServer(t, asker, engine, nil, nil)

	resp := postAsk(t, ts, "how many tickets per service type?")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got askResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if got.TraceID != "req-777" {
		t.Errorf("trace id = %q", got.TraceID)
	}
	if len(got.Errors) != 0 {
		t.Errorf("unexpected dispatch errors: %v", got.Errors)
	}
	if len(got.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(got.Results))
	}

	if got.Results[0].Type != "text" || got.Results[0].Text == "" {
		t.Errorf("result 0 = %+v, want text", got.Results[0])
	}

	sqlResult := got.Results[1]
	if sqlResult.Type != "sql" || !strings.Contains(sqlResult.Statement, "SELECT") {
		t.Errorf("result 1 = %+v, want sql", sqlResult)
	}
	if len(sqlResult.Columns) != 2 || len(sqlResult.Rows) != 2 {
		t.Errorf("table = %v / %v", sqlResult.Columns, sqlResult.Rows)
	}
	if sqlResult.ChartPNG == "" {
		t.Fatal("expected a chart for the two-column result")
	}
	png, err := base64.StdEncoding.DecodeString(sqlResult.ChartPNG)
	if err != nil || !bytes.HasPrefix(png, []byte{0x89, 'P', 'N', 'G'}) {
		t.Error("chart_png is not base64-encoded PNG data")
	}

	if engine.calls != 1 {
		t.Errorf("engine called %d times, want 1", engine.calls)
	}
}

func TestHandleAsk_EmptyQuestion(t *testing.T) {
	asker := &stubAsker{env: ticketEnvelope()}
	engine := ticketEngine()
	ts := newTestServer(t, asker, engine, nil, nil)

	resp := postAsk(t, ts, "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if engine.calls != 0 {
		t.Errorf("engine was called for an empty question")
	}
}

func TestHandleAsk_AnalystFailure(t *testing.T) {
	asker := &stubAsker{err: &analyst.RequestError{Status: 503, TraceID: "req-503", Body: "overloaded"}}
	engine := ticketEngine()
	ts := newTestServer(t, asker, engine, nil, nil)

	resp := postAsk(t, ts, "anything")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	var got errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != 503 || got.Body != "overloaded" || got.TraceID != "req-503" {
		t.Errorf("error payload = %+v", got)
	}
	if engine.calls != 0 {
		t.Error("engine was called despite the analyst failure")
	}
}

func TestHandleAsk_Auth(t *testing.T) {
	authenticator := auth.NewAuthenticator([]config.APIKeyConfig{
		{KeyHash: auth.HashAPIKey("good-key")},
	})
	ts := newTestServer(t, &stubAsker{env: ticketEnvelope()}, ticketEngine(), authenticator, nil)

	body, _ := json.Marshal(map[string]string{"question": "q"})

	// No credential.
	resp, err := http.Post(ts.URL+"/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", resp.StatusCode)
	}

	// Valid credential.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer good-key")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status with key = %d, want 200", resp2.StatusCode)
	}

	// Health stays open.
	resp3, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp3.StatusCode)
	}
}

func TestHandleInteractions(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ts := newTestServer(t, &stubAsker{env: ticketEnvelope()}, ticketEngine(), nil, store)

	postAsk(t, ts, "how many tickets per service type?")

	resp, err := http.Get(ts.URL + "/v1/interactions")
	if err != nil {
		t.Fatalf("GET /v1/interactions error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Interactions []struct {
			Question string `json:"question"`
			TraceID  string `json:"trace_id"`
			Status   string `json:"status"`
		} `json:"interactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Interactions) != 1 {
		t.Fatalf("got %d interactions, want 1", len(got.Interactions))
	}
	in := got.Interactions[0]
	if in.Question != "how many tickets per service type?" || in.TraceID != "req-777" || in.Status != "ok" {
		t.Errorf("interaction = %+v", in)
	}
}
