package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/snowbridge-labs/analyst-gateway/internal/analyst"
	"github.com/snowbridge-labs/analyst-gateway/internal/dispatch"
	"github.com/snowbridge-labs/analyst-gateway/internal/render"
	"github.com/snowbridge-labs/analyst-gateway/internal/storage/sqlite"
	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

// Asker sends one natural-language question to the analyst service.
type Asker interface {
	Ask(ctx context.Context, question string) (*analyst.Envelope, error)
}

// InteractionLog records question/answer exchanges for auditing.
type InteractionLog interface {
	SaveInteraction(ctx context.Context, in *sqlite.Interaction) error
	RecentInteractions(ctx context.Context, limit int) ([]*sqlite.Interaction, error)
}

// Handler serves the question-answering API.
type Handler struct {
	asker        Asker
	engine       warehouse.Engine
	chart        render.ChartRoles
	interactions InteractionLog // may be nil
	logger       *slog.Logger
}

// NewHandler wires the handler's collaborators. interactions may be nil to
// disable the audit log.
func NewHandler(asker Asker, engine warehouse.Engine, chart render.ChartRoles, interactions InteractionLog, logger *slog.Logger) *Handler {
	return &Handler{
		asker:        asker,
		engine:       engine,
		chart:        chart,
		interactions: interactions,
		logger:       logger,
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	TraceID string        `json:"trace_id,omitempty"`
	Results []resultEntry `json:"results"`
	Errors  []string      `json:"errors,omitempty"`
}

// resultEntry is one rendered answer artifact, in block order.
type resultEntry struct {
	Type      string     `json:"type"` // text, sql
	Text      string     `json:"text,omitempty"`
	Statement string     `json:"statement,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
	Rows      [][]string `json:"rows,omitempty"`
	ChartPNG  string     `json:"chart_png,omitempty"` // base64
}

type errorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
	Body    string `json:"body,omitempty"`
}

// HandleAsk answers POST /v1/ask.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	env, err := h.asker.Ask(ctx, req.Question)
	if err != nil {
		AddError(ctx, err)
		h.record(ctx, &sqlite.Interaction{
			Question:     req.Question,
			Status:       sqlite.StatusRequestFailed,
			Duration:     time.Since(start),
			TraceID:      traceIDFrom(err),
			ErrorMessage: err.Error(),
		})
		writeAskError(w, err)
		return
	}
	AddLogField(ctx, "trace_id", env.TraceID)

	collector := &answerCollector{}
	dispatcher := &dispatch.Dispatcher{
		Engine: h.engine,
		Output: collector,
		Chart:  h.chart,
		Logger: h.logger,
	}
	dispatchErr := dispatcher.Dispatch(ctx, env)

	resp := askResponse{
		TraceID: env.TraceID,
		Results: collector.results,
		Errors:  errorStrings(dispatchErr),
	}

	status := sqlite.StatusOK
	var errMsg string
	if dispatchErr != nil {
		status = sqlite.StatusDispatchFailed
		errMsg = dispatchErr.Error()
		AddError(ctx, dispatchErr)
	}
	payload, _ := json.Marshal(resp)
	h.record(ctx, &sqlite.Interaction{
		Question:     req.Question,
		TraceID:      env.TraceID,
		Status:       status,
		Duration:     time.Since(start),
		Response:     payload,
		ErrorMessage: errMsg,
	})

	writeJSON(w, http.StatusOK, resp)
}

// HandleInteractions answers GET /v1/interactions.
func (h *Handler) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	if h.interactions == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "interaction log is not enabled"})
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	listed, err := h.interactions.RecentInteractions(r.Context(), limit)
	if err != nil {
		AddError(r.Context(), err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	type entry struct {
		ID        string          `json:"id"`
		Question  string          `json:"question"`
		TraceID   string          `json:"trace_id,omitempty"`
		Status    string          `json:"status"`
		Duration  string          `json:"duration"`
		Response  json.RawMessage `json:"response,omitempty"`
		Error     string          `json:"error,omitempty"`
		CreatedAt time.Time       `json:"created_at"`
	}
	out := make([]entry, 0, len(listed))
	for _, in := range listed {
		out = append(out, entry{
			ID:        in.ID,
			Question:  in.Question,
			TraceID:   in.TraceID,
			Status:    in.Status,
			Duration:  in.Duration.String(),
			Response:  in.Response,
			Error:     in.ErrorMessage,
			CreatedAt: in.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"interactions": out})
}

// HandleHealth answers GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) record(ctx context.Context, in *sqlite.Interaction) {
	if h.interactions == nil {
		return
	}
	if err := h.interactions.SaveInteraction(ctx, in); err != nil {
		h.logger.Error("failed to record interaction", slog.String("error", err.Error()))
	}
}

func writeAskError(w http.ResponseWriter, err error) {
	if errors.Is(err, analyst.ErrEmptyQuestion) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var reqErr *analyst.RequestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:   "analyst request failed",
			Status:  reqErr.Status,
			TraceID: reqErr.TraceID,
			Body:    reqErr.Body,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func traceIDFrom(err error) string {
	var reqErr *analyst.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.TraceID
	}
	return ""
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// answerCollector implements dispatch.Output by accumulating artifacts into
// the JSON response, attaching tables and charts to the statement that
// produced them.
type answerCollector struct {
	results []resultEntry
}

func (c *answerCollector) Text(_ context.Context, text string) error {
	c.results = append(c.results, resultEntry{Type: "text", Text: text})
	return nil
}

func (c *answerCollector) Statement(_ context.Context, statement string) error {
	c.results = append(c.results, resultEntry{Type: "sql", Statement: statement})
	return nil
}

func (c *answerCollector) Table(_ context.Context, rs *warehouse.ResultSet) error {
	entry := c.lastSQL()
	entry.Columns = rs.Columns
	entry.Rows = rs.Rows
	return nil
}

func (c *answerCollector) Image(_ context.Context, _ string, png []byte) error {
	entry := c.lastSQL()
	entry.ChartPNG = base64.StdEncoding.EncodeToString(png)
	return nil
}

func (c *answerCollector) lastSQL() *resultEntry {
	for i := len(c.results) - 1; i >= 0; i-- {
		if c.results[i].Type == "sql" {
			return &c.results[i]
		}
	}
	c.results = append(c.results, resultEntry{Type: "sql"})
	return &c.results[len(c.results)-1]
}
