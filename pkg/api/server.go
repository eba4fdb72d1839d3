package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/reports"
	"github.com/rmax-ai/signalflow/pkg/store"
	"github.com/rmax-ai/signalflow/pkg/widgets"
	"github.com/rmax-ai/signalflow/pkg/workflow"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

const maxBodyBytes = 1 << 20

// Interfaces for dependencies to enable mocking

type StoreInterface interface {
	ReadRecentEvents(ctx context.Context, limit int) ([]*store.Event, error)
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	SaveWorkflow(ctx context.Context, name string, document []byte) error
	LoadWorkflow(ctx context.Context, name string) ([]byte, error)
	ListWorkflows(ctx context.Context) ([]store.WorkflowInfo, error)
}

// DefaultsInterface supplies per-kind default settings for new nodes.
type DefaultsInterface interface {
	Get(ctx context.Context, kind string) (map[string]any, bool)
	Set(ctx context.Context, kind string, settings map[string]any) error
	All(ctx context.Context) map[string]map[string]any
}

// Server encapsulates the HTTP API server
type Server struct {
	graph    *flow.Graph
	registry *widgets.Registry
	store    StoreInterface
	defaults DefaultsInterface
	workflow string
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server for the graph. addr defaults to ":8090".
func NewServer(g *flow.Graph, reg *widgets.Registry, st StoreInterface, addr string) *Server {
	s := &Server{
		graph:    g,
		registry: reg,
		store:    st,
		workflow: "default",
		logger:   slog.Default(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/graph", s.handleGraph)
	mux.HandleFunc("GET /v1/kinds", s.handleKinds)
	mux.HandleFunc("POST /v1/nodes", s.handleAddNode)
	mux.HandleFunc("DELETE /v1/nodes/{id}", s.handleRemoveNode)
	mux.HandleFunc("POST /v1/nodes/{id}/commit", s.handleCommit)
	mux.HandleFunc("POST /v1/nodes/{id}/autocommit", s.handleAutoCommit)
	mux.HandleFunc("GET /v1/nodes/{id}/outputs/{port}", s.handleOutput)
	mux.HandleFunc("PUT /v1/nodes/{id}/inputs/{port}", s.handleSetInput)
	mux.HandleFunc("PUT /v1/nodes/{id}/settings", s.handleSettings)
	mux.HandleFunc("POST /v1/nodes/{id}/selection", s.handleSelection)
	mux.HandleFunc("GET /v1/nodes/{id}/view", s.handleView)
	mux.HandleFunc("POST /v1/links", s.handleBind)
	mux.HandleFunc("DELETE /v1/links/{id}", s.handleUnbind)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/reports", s.handleReports)
	mux.HandleFunc("GET /v1/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /v1/workflows/{name}", s.handleGetWorkflow)
	mux.HandleFunc("POST /v1/workflows/{name}", s.handleSaveWorkflow)
	mux.HandleFunc("GET /v1/defaults", s.handleDefaults)
	mux.HandleFunc("PUT /v1/defaults/{kind}", s.handleSetDefaults)

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// SetDefaults enables per-kind default settings.
func (s *Server) SetDefaults(d DefaultsInterface) {
	s.defaults = d
}

// SetWorkflowName names the workflow the graph was built from.
func (s *Server) SetWorkflowName(name string) {
	s.workflow = name
}

// SetLogger replaces the request logger.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	s.logger.Info("server_starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, GraphResponse{Workflow: s.workflow, Snapshot: s.graph.Snapshot()})
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.registry.Kinds())
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req NodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "missing_kind", "")
		return
	}

	settings := map[string]any{}
	if s.defaults != nil {
		if d, ok := s.defaults.Get(r.Context(), req.Kind); ok {
			for k, v := range d {
				settings[k] = v
			}
		}
	}
	for k, v := range req.Settings {
		settings[k] = v
	}

	proc, err := s.registry.New(req.Kind, settings)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	var opts []flow.NodeOption
	if req.ID != "" {
		opts = append(opts, flow.WithID(flow.NodeID(req.ID)))
	}
	if req.Title != "" {
		opts = append(opts, flow.WithTitle(req.Title))
	}
	if req.AutoCommit != nil {
		opts = append(opts, flow.WithAutoCommit(*req.AutoCommit))
	}
	n, err := s.graph.AddNode(proc, opts...)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	var commitErr error
	if proc.Signature().SelfStarting() {
		if report, err := s.graph.Commit(r.Context(), n.ID()); err != nil {
			commitErr = &flow.PropagationError{Report: report}
		}
	}
	s.writeNode(w, r, http.StatusCreated, n.ID(), commitErr)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	err := s.graph.RemoveNode(r.Context(), flow.NodeID(r.PathValue("id")))
	s.writeApplied(w, r, err)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	report, err := s.graph.Commit(r.Context(), flow.NodeID(r.PathValue("id")))
	if errors.Is(err, flow.ErrUnknownNode) {
		s.writeFlowError(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, r, status, newCommitResponse(report))
}

func (s *Server) handleAutoCommit(w http.ResponseWriter, r *http.Request) {
	var req AutoCommitRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := flow.NodeID(r.PathValue("id"))
	err := s.graph.SetAutoCommit(r.Context(), id, req.Enabled)
	s.writeNode(w, r, http.StatusOK, id, err)
}

// handleSetInput feeds a value into an unbound input port.
func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	id := flow.NodeID(r.PathValue("id"))
	port := r.PathValue("port")
	n, ok := s.graph.Node(id)
	if !ok {
		s.writeFlowError(w, r, fmt.Errorf("%w: %s", flow.ErrUnknownNode, id))
		return
	}
	var spec *flow.PortSpec
	for _, p := range n.Processor().Signature().Inputs {
		if p.Name == port {
			spec = &p
			break
		}
	}
	if spec == nil {
		s.writeFlowError(w, r, fmt.Errorf("%w: input %q", flow.ErrUnknownPort, port))
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	value, err := decodeValue(spec.Type, raw)
	if errors.Is(err, errUnsupportedValue) {
		writeError(w, http.StatusBadRequest, "unsupported_value", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	err = s.graph.SetInput(r.Context(), id, port, value)
	s.writeNode(w, r, http.StatusOK, id, err)
}

// handleSettings merges new settings into a widget.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	if !s.decode(w, r, &update) {
		return
	}
	id := flow.NodeID(r.PathValue("id"))
	n, ok := s.graph.Node(id)
	if !ok {
		s.writeFlowError(w, r, fmt.Errorf("%w: %s", flow.ErrUnknownNode, id))
		return
	}
	err := widgets.Tune(r.Context(), n.Processor(), update)
	s.writeNode(w, r, http.StatusOK, id, err)
}

// handleSelection applies a selection, as a user would by clicking a plot
// or a matrix cell.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var sel widgets.Selection
	if !s.decode(w, r, &sel) {
		return
	}
	id := flow.NodeID(r.PathValue("id"))
	n, ok := s.graph.Node(id)
	if !ok {
		s.writeFlowError(w, r, fmt.Errorf("%w: %s", flow.ErrUnknownNode, id))
		return
	}
	err := widgets.Select(r.Context(), n.Processor(), sel)
	s.writeNode(w, r, http.StatusOK, id, err)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var view any
	viewable := false
	err := s.graph.Inspect(flow.NodeID(r.PathValue("id")), func(p flow.Processor) {
		if v, ok := p.(widgets.Viewer); ok {
			view, viewable = v.View(), true
		}
	})
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if !viewable {
		writeError(w, http.StatusNotFound, "no_view", r.PathValue("id"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	id := flow.NodeID(r.PathValue("id"))
	port := r.PathValue("port")
	v, state, err := s.graph.Output(id, port)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		t, ok := v.(*data.Table)
		if !ok {
			writeError(w, http.StatusBadRequest, "not_a_table", fmt.Sprintf("port %s holds %s", port, state))
			return
		}
		var buf bytes.Buffer
		if err := reports.WriteTableCSV(&buf, t); err != nil {
			s.logger.Error("failed_to_write_csv", "trace_id", getTraceID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_%s.csv", id, port))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	typ, value := describeValue(v)
	s.writeJSON(w, r, http.StatusOK, OutputResponse{Node: id, Port: port, State: state, Type: typ, Value: value})
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !s.decode(w, r, &req) {
		return
	}
	link, err := s.graph.Bind(r.Context(), flow.NodeID(req.From), req.FromPort, flow.NodeID(req.To), req.ToPort)
	report, applied := s.propagation(r, err)
	if err != nil && !applied {
		s.writeFlowError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, LinkResponse{Link: *link, Propagation: report})
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	err := s.graph.Unbind(r.Context(), flow.LinkID(r.PathValue("id")))
	s.writeApplied(w, r, err)
}

// propagation reports whether err is a failed wave that followed an
// applied change, and the wave's report if so.
func (s *Server) propagation(r *http.Request, err error) (*CommitResponse, bool) {
	var pe *flow.PropagationError
	if !errors.As(err, &pe) {
		return nil, false
	}
	s.logger.Warn("propagation_failed", "trace_id", getTraceID(r.Context()), "failed", pe.Report.Failed, "error", pe.Report.Err)
	resp := newCommitResponse(pe.Report)
	return &resp, true
}

// writeNode answers with the node's snapshot, or with the error when the
// change was rejected.
func (s *Server) writeNode(w http.ResponseWriter, r *http.Request, status int, id flow.NodeID, err error) {
	report, applied := s.propagation(r, err)
	if err != nil && !applied {
		s.writeFlowError(w, r, err)
		return
	}
	snap, _ := s.graph.Snapshot().Node(id)
	s.writeJSON(w, r, status, NodeResponse{NodeSnapshot: snap, Propagation: report})
}

// writeApplied answers a removal: 204 when everything went through, 200
// with the wave's report when a downstream commit failed.
func (s *Server) writeApplied(w http.ResponseWriter, r *http.Request, err error) {
	report, applied := s.propagation(r, err)
	switch {
	case applied:
		s.writeJSON(w, r, http.StatusOK, report)
	case err != nil:
		s.writeFlowError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_not_available", "")
		return
	}
	q := r.URL.Query()
	filter := store.EventFilter{Limit: 50, NodeID: q.Get("node_id"), Workflow: q.Get("workflow")}
	if l := q.Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			filter.Limit = val
		}
	}
	for _, t := range q["type"] {
		filter.EventTypes = append(filter.EventTypes, flow.EventType(t))
	}

	events, err := s.store.QueryEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed_to_read_events", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	s.writeJSON(w, r, http.StatusOK, events)
}

// handleReports generates and streams CSV reports over the event log.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_not_available", "")
		return
	}
	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		writeError(w, http.StatusBadRequest, "missing_type", "")
		return
	}

	to := time.Now()
	if toStr := q.Get("to"); toStr != "" {
		var err error
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "RFC3339")
			return
		}
	}
	from := to.Add(-24 * time.Hour)
	if fromStr := q.Get("from"); fromStr != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "RFC3339")
			return
		}
	}

	params := reports.ReportParams{Start: from, End: to, Filters: make(map[string]interface{})}
	if wf := q.Get("workflow"); wf != "" {
		params.Filters["workflow"] = wf
	}
	if node := q.Get("node_id"); node != "" {
		params.Filters["node_id"] = node
	}

	gen, err := reports.NewReportGenerator(reportType, s.store)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err.Error())
		return
	}
	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.logger.Error("failed_to_generate_report", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "report_generation_failed", "")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("report_%s_%d.csv", reportType, time.Now().Unix())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_report", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_not_available", "")
		return
	}
	list, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.logger.Error("failed_to_list_workflows", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if list == nil {
		list = []store.WorkflowInfo{}
	}
	s.writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_not_available", "")
		return
	}
	doc, err := s.store.LoadWorkflow(r.Context(), r.PathValue("name"))
	if errors.Is(err, store.ErrWorkflowNotFound) {
		writeError(w, http.StatusNotFound, "workflow_not_found", r.PathValue("name"))
		return
	}
	if err != nil {
		s.logger.Error("failed_to_load_workflow", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// handleSaveWorkflow captures the running graph under the given name.
func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store_not_available", "")
		return
	}
	name := r.PathValue("name")
	doc := workflow.Capture(name, s.graph.Snapshot())
	raw, err := doc.Marshal()
	if err != nil {
		s.logger.Error("failed_to_marshal_workflow", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if err := s.store.SaveWorkflow(r.Context(), name, raw); err != nil {
		s.logger.Error("failed_to_save_workflow", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	s.writeJSON(w, r, http.StatusCreated, WorkflowSaved{Name: name, Nodes: len(doc.Nodes), Links: len(doc.Links), Size: len(raw)})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	if s.defaults == nil {
		s.writeJSON(w, r, http.StatusOK, map[string]map[string]any{})
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.defaults.All(r.Context()))
}

func (s *Server) handleSetDefaults(w http.ResponseWriter, r *http.Request) {
	if s.defaults == nil {
		writeError(w, http.StatusServiceUnavailable, "defaults_not_available", "")
		return
	}
	kind := r.PathValue("kind")
	var settings map[string]any
	if !s.decode(w, r, &settings) {
		return
	}
	// Reject settings the widget itself would refuse.
	if _, err := s.registry.New(kind, settings); err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	if err := s.defaults.Set(r.Context(), kind, settings); err != nil {
		s.logger.Error("failed_to_set_defaults", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	s.writeJSON(w, r, http.StatusOK, settings)
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Details: details})
}

// writeFlowError maps graph and registry errors to HTTP statuses.
func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var code string
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, flow.ErrUnknownNode):
		status, code = http.StatusNotFound, "unknown_node"
	case errors.Is(err, flow.ErrUnknownPort):
		status, code = http.StatusNotFound, "unknown_port"
	case errors.Is(err, flow.ErrUnknownLink):
		status, code = http.StatusNotFound, "unknown_link"
	case errors.Is(err, widgets.ErrUnknownKind):
		code = "unknown_kind"
	case errors.Is(err, flow.ErrDuplicateNode):
		status, code = http.StatusConflict, "duplicate_node"
	case errors.Is(err, flow.ErrInputBound):
		status, code = http.StatusConflict, "input_bound"
	case errors.Is(err, flow.ErrCycleDetected):
		status, code = http.StatusConflict, "cycle_detected"
	case errors.Is(err, flow.ErrTypeMismatch):
		status, code = http.StatusUnprocessableEntity, "type_mismatch"
	case errors.Is(err, widgets.ErrNotSelectable):
		code = "not_selectable"
	case errors.Is(err, widgets.ErrNotTunable):
		code = "not_tunable"
	case errors.Is(err, widgets.ErrSelectionMode):
		code = "invalid_selection"
	case errors.Is(err, widgets.ErrNoData):
		status, code = http.StatusConflict, "no_data"
	default:
		code = "invalid_request"
	}
	s.logger.Debug("request_rejected", "trace_id", getTraceID(r.Context()), "error", err)
	writeError(w, status, code, err.Error())
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic_recovered", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		r = r.WithContext(context.WithValue(r.Context(), traceIDKey, traceID))

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
