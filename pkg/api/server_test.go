package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rmax-ai/signalflow/pkg/eval"
	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/store"
	"github.com/rmax-ai/signalflow/pkg/widgets"
	"github.com/rmax-ai/signalflow/pkg/workflow"
)

type MockStore struct {
	mu        sync.Mutex
	events    []*store.Event
	workflows map[string][]byte
}

func (m *MockStore) observe(e flow.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append([]*store.Event{store.NewEvent("test", e)}, m.events...)
}

func (m *MockStore) ReadRecentEvents(ctx context.Context, limit int) ([]*store.Event, error) {
	return m.QueryEvents(ctx, store.EventFilter{Limit: limit})
}

func (m *MockStore) QueryEvents(ctx context.Context, f store.EventFilter) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Event
	for _, e := range m.events {
		if f.NodeID != "" && e.NodeID != f.NodeID {
			continue
		}
		if len(f.EventTypes) > 0 {
			match := false
			for _, t := range f.EventTypes {
				match = match || e.EventType == t
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) SaveWorkflow(ctx context.Context, name string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.workflows == nil {
		m.workflows = make(map[string][]byte)
	}
	m.workflows[name] = doc
	return nil
}

func (m *MockStore) LoadWorkflow(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.workflows[name]
	if !ok {
		return nil, store.ErrWorkflowNotFound
	}
	return doc, nil
}

func (m *MockStore) ListWorkflows(ctx context.Context) ([]store.WorkflowInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.WorkflowInfo
	for name, doc := range m.workflows {
		out = append(out, store.WorkflowInfo{Name: name, UpdatedAt: time.Now(), Size: len(doc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type MockDefaults struct {
	settings map[string]map[string]any
}

func (m *MockDefaults) Get(ctx context.Context, kind string) (map[string]any, bool) {
	s, ok := m.settings[kind]
	return s, ok
}

func (m *MockDefaults) Set(ctx context.Context, kind string, s map[string]any) error {
	if m.settings == nil {
		m.settings = make(map[string]map[string]any)
	}
	m.settings[kind] = s
	return nil
}

func (m *MockDefaults) All(ctx context.Context) map[string]map[string]any {
	return m.settings
}

func newTestServer(t *testing.T) (*Server, *MockStore) {
	t.Helper()
	st := &MockStore{}
	g := flow.NewGraph(flow.WithObserver(st.observe))
	s := NewServer(g, widgets.Default(), st, "")
	s.SetWorkflowName("test")
	return s, st
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func regressionTable() map[string]any {
	return map[string]any{
		"name":       "ys",
		"attributes": []any{map[string]any{"name": "x", "kind": "continuous"}},
		"class":      map[string]any{"name": "y", "kind": "continuous"},
		"rows":       []any{[]any{0, 2}, []any{1, 4}, []any{2, 6}},
	}
}

func TestHealthAndHeaders(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, "GET", "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "X-Trace-ID"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	w = do(t, s, "POST", "/v1/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestTraceIDPropagation(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/v1/health", nil)
	req.Header.Set("X-Trace-ID", "abc123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Trace-ID"); got != "abc123" {
		t.Errorf("expected trace id to be echoed, got %q", got)
	}
}

func TestNodesLinksAndOutputs(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: regressionTable()})
	if w.Code != http.StatusCreated {
		t.Fatalf("add table: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var snap flow.NodeSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ID != "data" || snap.Commits != 1 {
		t.Errorf("source node should be committed on creation: %+v", snap)
	}

	if w := do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "mean", Kind: "mean_learner"}); w.Code != http.StatusCreated {
		t.Fatalf("add mean: expected 201, got %d", w.Code)
	}

	w = do(t, s, "POST", "/v1/links", LinkRequest{From: "data", FromPort: "Data", To: "mean", ToPort: "Data"})
	if w.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var link flow.Link
	json.NewDecoder(w.Body).Decode(&link)

	w = do(t, s, "GET", "/v1/nodes/mean/outputs/Predictor", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("output: expected 200, got %d", w.Code)
	}
	var out OutputResponse
	json.NewDecoder(w.Body).Decode(&out)
	if out.State != flow.SlotSet || out.Type != "predictor" {
		t.Errorf("unexpected output: %+v", out)
	}

	w = do(t, s, "GET", "/v1/nodes/data/outputs/Data?format=csv", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("csv: got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("csv parse: %v", err)
	}
	if len(records) != 4 || records[3][2] != "6" {
		t.Errorf("unexpected csv: %v", records)
	}

	if w := do(t, s, "GET", "/v1/nodes/mean/outputs/Learner?format=csv", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-table csv, got %d", w.Code)
	}

	if w := do(t, s, "DELETE", "/v1/links/"+string(link.ID), nil); w.Code != http.StatusNoContent {
		t.Fatalf("unbind: expected 204, got %d", w.Code)
	}
	if w := do(t, s, "DELETE", "/v1/links/"+string(link.ID), nil); w.Code != http.StatusNotFound {
		t.Errorf("second unbind: expected 404, got %d", w.Code)
	}

	if w := do(t, s, "DELETE", "/v1/nodes/mean", nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove: expected 204, got %d", w.Code)
	}
	w = do(t, s, "GET", "/v1/graph", nil)
	var g GraphResponse
	json.NewDecoder(w.Body).Decode(&g)
	if g.Workflow != "test" || len(g.Nodes) != 1 || len(g.Links) != 0 {
		t.Errorf("unexpected graph: %+v", g)
	}
}

func TestBindErrors(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "a", Kind: "distance_transformation"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "b", Kind: "distance_transformation"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "m", Kind: "mean_learner"})

	if w := do(t, s, "POST", "/v1/links", LinkRequest{From: "a", FromPort: "Distances", To: "b", ToPort: "Distances"}); w.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d", w.Code)
	}

	tests := []struct {
		name   string
		req    LinkRequest
		status int
		code   string
	}{
		{"cycle", LinkRequest{From: "b", FromPort: "Distances", To: "a", ToPort: "Distances"}, http.StatusConflict, "cycle_detected"},
		{"bound", LinkRequest{From: "a", FromPort: "Distances", To: "b", ToPort: "Distances"}, http.StatusConflict, "input_bound"},
		{"mismatch", LinkRequest{From: "a", FromPort: "Distances", To: "m", ToPort: "Data"}, http.StatusUnprocessableEntity, "type_mismatch"},
		{"unknown node", LinkRequest{From: "x", FromPort: "Distances", To: "a", ToPort: "Distances"}, http.StatusNotFound, "unknown_node"},
		{"unknown port", LinkRequest{From: "a", FromPort: "Nope", To: "m", ToPort: "Data"}, http.StatusNotFound, "unknown_port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "POST", "/v1/links", tt.req)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			var e ErrorResponse
			json.NewDecoder(w.Body).Decode(&e)
			if e.Error != tt.code {
				t.Errorf("expected error %s, got %s", tt.code, e.Error)
			}
		})
	}
}

func TestAddNodeErrors(t *testing.T) {
	s, _ := newTestServer(t)

	if w := do(t, s, "POST", "/v1/nodes", NodeRequest{Kind: "image_viewer"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", w.Code)
	}
	if w := do(t, s, "POST", "/v1/nodes", NodeRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing kind: expected 400, got %d", w.Code)
	}
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "m", Kind: "mean_learner"})
	if w := do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "m", Kind: "mean_learner"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/v1/nodes", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", w.Code)
	}
}

func TestCommitAndAutoCommit(t *testing.T) {
	s, _ := newTestServer(t)
	manual := false
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: regressionTable()})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "scatter", Kind: "scatter_plot", AutoCommit: &manual})
	do(t, s, "POST", "/v1/links", LinkRequest{From: "data", FromPort: "Data", To: "scatter", ToPort: "Data"})

	w := do(t, s, "GET", "/v1/nodes/scatter/outputs/Unselected%20Data", nil)
	var out OutputResponse
	json.NewDecoder(w.Body).Decode(&out)
	if out.State != flow.SlotUnset {
		t.Fatalf("manual node should not have emitted, got %s", out.State)
	}

	w = do(t, s, "POST", "/v1/nodes/scatter/commit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("commit: expected 200, got %d", w.Code)
	}
	var cr CommitResponse
	json.NewDecoder(w.Body).Decode(&cr)
	if len(cr.Committed) != 1 || cr.Committed[0] != "scatter" {
		t.Errorf("unexpected commit report: %+v", cr)
	}

	w = do(t, s, "POST", "/v1/nodes/scatter/autocommit", AutoCommitRequest{Enabled: true})
	var snap flow.NodeSnapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if !snap.AutoCommit {
		t.Errorf("expected auto commit on: %+v", snap)
	}

	if w := do(t, s, "POST", "/v1/nodes/ghost/commit", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown node commit: expected 404, got %d", w.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "m", Kind: "mean_learner"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "d", Kind: "distances"})

	w := do(t, s, "GET", "/v1/events?limit=1", nil)
	var events []*store.Event
	json.NewDecoder(w.Body).Decode(&events)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	w = do(t, s, "GET", "/v1/events?type=node_added&node_id=m", nil)
	events = nil
	json.NewDecoder(w.Body).Decode(&events)
	if len(events) != 1 || events[0].Kind != "mean_learner" {
		t.Errorf("unexpected filtered events: %+v", events)
	}
}

func TestReportsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: regressionTable()})

	w := do(t, s, "GET", "/v1/reports?type=commits", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Body.String(), "workflow,node_id,kind") {
		t.Errorf("unexpected report: %q", w.Body.String())
	}

	if w := do(t, s, "GET", "/v1/reports", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing type: expected 400, got %d", w.Code)
	}
	if w := do(t, s, "GET", "/v1/reports?type=usage", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid type: expected 400, got %d", w.Code)
	}
	if w := do(t, s, "GET", "/v1/reports?type=events&from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid from: expected 400, got %d", w.Code)
	}
}

func TestWorkflowsEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: regressionTable()})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "mean", Kind: "mean_learner"})
	do(t, s, "POST", "/v1/links", LinkRequest{From: "data", FromPort: "Data", To: "mean", ToPort: "Data"})

	w := do(t, s, "POST", "/v1/workflows/saved", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("save: expected 201, got %d", w.Code)
	}
	var saved WorkflowSaved
	json.NewDecoder(w.Body).Decode(&saved)
	if saved.Nodes != 2 || saved.Links != 1 {
		t.Errorf("unexpected save result: %+v", saved)
	}

	doc, err := workflow.Parse(st.workflows["saved"])
	if err != nil {
		t.Fatalf("stored document does not parse: %v", err)
	}
	if _, err := workflow.Build(context.Background(), doc, widgets.Default()); err != nil {
		t.Fatalf("stored document does not build: %v", err)
	}

	w = do(t, s, "GET", "/v1/workflows", nil)
	var list []store.WorkflowInfo
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || list[0].Name != "saved" {
		t.Errorf("unexpected list: %+v", list)
	}

	w = do(t, s, "GET", "/v1/workflows/saved", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "mean_learner") {
		t.Errorf("unexpected document: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, "GET", "/v1/workflows/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing workflow: expected 404, got %d", w.Code)
	}
}

func TestDefaults(t *testing.T) {
	s, _ := newTestServer(t)

	if w := do(t, s, "PUT", "/v1/defaults/mean_learner", map[string]any{"learner_name": "Baseline"}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no defaults store: expected 503, got %d", w.Code)
	}

	s.SetDefaults(&MockDefaults{})
	if w := do(t, s, "PUT", "/v1/defaults/mean_learner", map[string]any{"learner_name": "Baseline"}); w.Code != http.StatusOK {
		t.Fatalf("set defaults: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, s, "PUT", "/v1/defaults/image_viewer", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: expected 400, got %d", w.Code)
	}

	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "m", Kind: "mean_learner"})
	w := do(t, s, "GET", "/v1/nodes/m/outputs/Learner", nil)
	var out OutputResponse
	json.NewDecoder(w.Body).Decode(&out)
	value, _ := out.Value.(map[string]any)
	if value["name"] != "Baseline" {
		t.Errorf("expected learner named from defaults, got %+v", out)
	}

	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "m2", Kind: "mean_learner", Settings: map[string]any{"learner_name": "Own"}})
	w = do(t, s, "GET", "/v1/nodes/m2/outputs/Learner", nil)
	out = OutputResponse{}
	json.NewDecoder(w.Body).Decode(&out)
	value, _ = out.Value.(map[string]any)
	if value["name"] != "Own" {
		t.Errorf("request settings should override defaults, got %+v", out)
	}

	w = do(t, s, "GET", "/v1/defaults", nil)
	var all map[string]map[string]any
	json.NewDecoder(w.Body).Decode(&all)
	if all["mean_learner"]["learner_name"] != "Baseline" {
		t.Errorf("unexpected defaults: %v", all)
	}
}

// tableRows decodes the row IDs of a table output.
func tableRows(t *testing.T, s *Server, node, port string) []int {
	t.Helper()
	w := do(t, s, "GET", "/v1/nodes/"+node+"/outputs/"+strings.ReplaceAll(port, " ", "%20"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("output %s.%s: expected 200, got %d", node, port, w.Code)
	}
	var out struct {
		State flow.SlotState `json:"state"`
		Value struct {
			Rows []struct {
				ID int `json:"id"`
			} `json:"rows"`
		} `json:"value"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.State != flow.SlotSet {
		t.Fatalf("output %s.%s is %s", node, port, out.State)
	}
	ids := []int{}
	for _, r := range out.Value.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestBind_DownstreamFailureKeepsLink(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: regressionTable()})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "maj", Kind: "majority_learner"})

	// A continuous class cannot be fitted by the majority learner.
	w := do(t, s, "POST", "/v1/links", LinkRequest{From: "data", FromPort: "Data", To: "maj", ToPort: "Data"})
	if w.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var link LinkResponse
	json.NewDecoder(w.Body).Decode(&link)
	if link.ID == "" || link.Propagation == nil {
		t.Fatalf("expected link with failed wave, got %+v", link)
	}
	if len(link.Propagation.Failed) != 1 || link.Propagation.Failed[0] != "maj" || link.Propagation.Error == "" {
		t.Errorf("unexpected wave: %+v", link.Propagation)
	}

	w = do(t, s, "GET", "/v1/graph", nil)
	var g GraphResponse
	json.NewDecoder(w.Body).Decode(&g)
	if len(g.Links) != 1 {
		t.Fatalf("expected the link to stay, got %d links", len(g.Links))
	}

	w = do(t, s, "POST", "/v1/links", LinkRequest{From: "data", FromPort: "Data", To: "maj", ToPort: "Data"})
	var e ErrorResponse
	json.NewDecoder(w.Body).Decode(&e)
	if w.Code != http.StatusConflict || e.Error != "input_bound" {
		t.Errorf("retry: expected 409 input_bound, got %d %s", w.Code, e.Error)
	}

	if w := do(t, s, "DELETE", "/v1/links/"+string(link.ID), nil); w.Code != http.StatusNoContent {
		t.Errorf("unbind: expected 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestScatterSelectionOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	rows := []any{}
	for i := 0; i < 10; i++ {
		rows = append(rows, []any{i, i * i})
	}
	points := map[string]any{
		"name": "points",
		"attributes": []any{
			map[string]any{"name": "x", "kind": "continuous"},
			map[string]any{"name": "y", "kind": "continuous"},
		},
		"rows": rows,
	}
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: points})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "scatter", Kind: "scatter_plot"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "mean", Kind: "mean_learner"})
	do(t, s, "POST", "/v1/links", LinkRequest{From: "data", FromPort: "Data", To: "scatter", ToPort: "Data"})

	w := do(t, s, "POST", "/v1/nodes/scatter/selection", widgets.Selection{Mode: widgets.SelectRows, Rows: []int{3, 8}})
	if w.Code != http.StatusOK {
		t.Fatalf("select: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var node NodeResponse
	json.NewDecoder(w.Body).Decode(&node)
	if node.ID != "scatter" || node.Propagation != nil {
		t.Errorf("unexpected node response: %+v", node)
	}
	if got := tableRows(t, s, "scatter", "Selected Data"); len(got) != 2 || got[0] != 3 || got[1] != 8 {
		t.Errorf("selected rows = %v", got)
	}
	if got := tableRows(t, s, "scatter", "Unselected Data"); len(got) != 8 {
		t.Errorf("expected 8 unselected rows, got %v", got)
	}

	w = do(t, s, "POST", "/v1/nodes/scatter/selection", widgets.Selection{Mode: widgets.SelectRect, Rect: &widgets.Rect{X0: 2.5, Y0: 5, X1: -1, Y1: -1}})
	if w.Code != http.StatusOK {
		t.Fatalf("rect: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := tableRows(t, s, "scatter", "Selected Data"); len(got) != 3 {
		t.Errorf("rect selected %v", got)
	}

	w = do(t, s, "PUT", "/v1/nodes/scatter/inputs/Features", []string{"y", "x"})
	if w.Code != http.StatusOK {
		t.Fatalf("features: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, s, "GET", "/v1/nodes/scatter/view", nil)
	var view widgets.ScatterView
	json.NewDecoder(w.Body).Decode(&view)
	if view.X != "y" || view.Y != "x" || view.Points != 10 || len(view.Selection) != 3 {
		t.Errorf("unexpected view: %+v", view)
	}

	tests := []struct {
		name   string
		node   string
		sel    widgets.Selection
		status int
		code   string
	}{
		{"bad mode", "scatter", widgets.Selection{Mode: widgets.SelectCorrect}, http.StatusBadRequest, "invalid_selection"},
		{"out of range", "scatter", widgets.Selection{Mode: widgets.SelectRows, Rows: []int{10}}, http.StatusBadRequest, "invalid_request"},
		{"no selection", "mean", widgets.Selection{Mode: widgets.SelectNone}, http.StatusBadRequest, "not_selectable"},
		{"unknown node", "ghost", widgets.Selection{Mode: widgets.SelectNone}, http.StatusNotFound, "unknown_node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "POST", "/v1/nodes/"+tt.node+"/selection", tt.sel)
			var e ErrorResponse
			json.NewDecoder(w.Body).Decode(&e)
			if w.Code != tt.status || e.Error != tt.code {
				t.Errorf("expected %d %s, got %d %s", tt.status, tt.code, w.Code, e.Error)
			}
		})
	}

	if w := do(t, s, "POST", "/v1/nodes/scatter/selection", widgets.Selection{Mode: widgets.SelectNone}); w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", w.Code)
	}
	if got := tableRows(t, s, "scatter", "Selected Data"); len(got) != 0 {
		t.Errorf("expected empty selection, got %v", got)
	}
}

func TestConfusionMatrixOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	classes := map[string]any{
		"name":       "cls",
		"attributes": []any{map[string]any{"name": "x", "kind": "continuous"}},
		"class":      map[string]any{"name": "c", "kind": "discrete", "values": []any{"a", "b"}},
		"rows":       []any{[]any{1, "a"}, []any{2, "a"}, []any{3, "a"}, []any{4, "b"}, []any{5, "b"}},
	}
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "data", Kind: "table", Settings: classes})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "maj", Kind: "majority_learner"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "test", Kind: "test_learners"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "cm", Kind: "confusion_matrix"})
	for _, l := range []LinkRequest{
		{From: "data", FromPort: "Data", To: "test", ToPort: "Data"},
		{From: "maj", FromPort: "Learner", To: "test", ToPort: "Learner"},
		{From: "test", FromPort: "Evaluation Results", To: "cm", ToPort: "Evaluation Results"},
	} {
		if w := do(t, s, "POST", "/v1/links", l); w.Code != http.StatusCreated {
			t.Fatalf("bind %+v: got %d: %s", l, w.Code, w.Body.String())
		}
	}

	// The majority learner predicts "a" for every row: [[3,0],[2,0]].
	tests := []struct {
		sel  widgets.Selection
		want int
	}{
		{widgets.Selection{Mode: widgets.SelectCorrect}, 3},
		{widgets.Selection{Mode: widgets.SelectMisclassified}, 2},
		{widgets.Selection{Mode: widgets.SelectNone}, 0},
		{widgets.Selection{Mode: widgets.SelectCells, Cells: []eval.Cell{{Actual: 1, Predicted: 0}}}, 2},
	}
	for _, tt := range tests {
		w := do(t, s, "POST", "/v1/nodes/cm/selection", tt.sel)
		if w.Code != http.StatusOK {
			t.Fatalf("select %s: expected 200, got %d: %s", tt.sel.Mode, w.Code, w.Body.String())
		}
		if got := tableRows(t, s, "cm", "Selected Data"); len(got) != tt.want {
			t.Errorf("select %s: expected %d rows, got %v", tt.sel.Mode, tt.want, got)
		}
	}

	w := do(t, s, "POST", "/v1/nodes/cm/selection", widgets.Selection{Mode: widgets.SelectCells, Cells: []eval.Cell{{Actual: 2, Predicted: 0}}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("cell outside matrix: expected 400, got %d", w.Code)
	}

	w = do(t, s, "PUT", "/v1/nodes/cm/settings", map[string]any{"quantity": "proportion_of_actual"})
	if w.Code != http.StatusOK {
		t.Fatalf("settings: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var node NodeResponse
	json.NewDecoder(w.Body).Decode(&node)
	if node.Settings["quantity"] != "proportion_of_actual" {
		t.Errorf("quantity not stored: %+v", node.Settings)
	}

	w = do(t, s, "GET", "/v1/nodes/cm/view", nil)
	var view widgets.ConfusionView
	json.NewDecoder(w.Body).Decode(&view)
	if len(view.Matrix) != 2 || view.Matrix[0][0] != 1 || view.Matrix[1][0] != 1 || view.Matrix[1][1] != 0 {
		t.Errorf("unexpected proportions: %+v", view.Matrix)
	}
	if view.Selection != widgets.SelectCells || len(view.ClassValues) != 2 {
		t.Errorf("unexpected view: %+v", view)
	}

	if w := do(t, s, "PUT", "/v1/nodes/cm/settings", map[string]any{"colour": "red"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown setting: expected 400, got %d", w.Code)
	}
	if w := do(t, s, "PUT", "/v1/nodes/test/settings", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("fixed settings: expected 400, got %d", w.Code)
	}
	if w := do(t, s, "GET", "/v1/nodes/test/view", nil); w.Code != http.StatusNotFound {
		t.Errorf("no view: expected 404, got %d", w.Code)
	}
}

func TestSetInput(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "info", Kind: "data_info"})
	do(t, s, "POST", "/v1/nodes", NodeRequest{ID: "mean", Kind: "mean_learner"})

	table := `{"name":"t","domain":{"attributes":[{"name":"a","kind":"continuous"}]},"rows":[{"id":0,"x":[1]},{"id":1,"x":[null]}]}`
	req := httptest.NewRequest("PUT", "/v1/nodes/info/inputs/Data", strings.NewReader(table))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("set input: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary struct {
		Rows int `json:"rows"`
	}
	json.NewDecoder(do(t, s, "GET", "/v1/nodes/info/view", nil).Body).Decode(&summary)
	if summary.Rows != 2 {
		t.Errorf("expected 2 rows in summary, got %d", summary.Rows)
	}

	w = do(t, s, "PUT", "/v1/nodes/info/inputs/Data", nil)
	var node NodeResponse
	json.NewDecoder(w.Body).Decode(&node)
	if w.Code != http.StatusOK || node.Inputs[0].State != flow.SlotCleared {
		t.Errorf("null input: got %d %+v", w.Code, node.Inputs)
	}

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unsupported", "/v1/nodes/mean/inputs/Preprocessor", http.StatusBadRequest, "unsupported_value"},
		{"unknown port", "/v1/nodes/info/inputs/Nope", http.StatusNotFound, "unknown_port"},
		{"unknown node", "/v1/nodes/ghost/inputs/Data", http.StatusNotFound, "unknown_node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "PUT", tt.path, map[string]any{"name": "p"})
			var e ErrorResponse
			json.NewDecoder(w.Body).Decode(&e)
			if w.Code != tt.status || e.Error != tt.code {
				t.Errorf("expected %d %s, got %d %s", tt.status, tt.code, w.Code, e.Error)
			}
		})
	}
}
