package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/store"
	"github.com/rmax-ai/signalflow/pkg/widgets"
)

const regressionWorkflow = `name: regression
nodes:
  - id: data
    kind: table
    settings:
      attributes:
        - {name: x, kind: continuous}
      class: {name: y, kind: continuous}
      rows: [[0, 1], [1, 3], [2, 5]]
  - id: mean
    kind: mean_learner
links:
  - {from: data, from_port: Data, to: mean, to_port: Data}
`

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "signalflow.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestLoadGraph_EmptyStore(t *testing.T) {
	st := openStore(t)
	g, err := loadGraph(context.Background(), Config{Workflow: "missing"}, st, widgets.Default())
	if err != nil {
		t.Fatalf("loadGraph failed: %v", err)
	}
	if n := len(g.Snapshot().Nodes); n != 0 {
		t.Errorf("expected empty graph, got %d nodes", n)
	}
}

func TestLoadGraph_FromFile(t *testing.T) {
	st := openStore(t)
	path := filepath.Join(t.TempDir(), "regression.yaml")
	if err := os.WriteFile(path, []byte(regressionWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}

	var events []flow.Event
	g, err := loadGraph(context.Background(), Config{Workflow: "default", WorkflowFile: path}, st, widgets.Default(),
		flow.WithObserver(func(e flow.Event) { events = append(events, e) }))
	if err != nil {
		t.Fatalf("loadGraph failed: %v", err)
	}
	if _, state, err := g.Output("mean", widgets.PortPredictor); err != nil || state != flow.SlotSet {
		t.Errorf("expected fitted predictor, got %v %v", state, err)
	}
	if len(events) == 0 {
		t.Error("observer saw no events")
	}

	if _, err := loadGraph(context.Background(), Config{WorkflowFile: filepath.Join(t.TempDir(), "nope.yaml")}, st, widgets.Default()); err == nil {
		t.Error("expected error for missing workflow file")
	}
}

func TestSaveGraph_RoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "regression.yaml")
	if err := os.WriteFile(path, []byte(regressionWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := loadGraph(ctx, Config{WorkflowFile: path}, st, widgets.Default())
	if err != nil {
		t.Fatalf("loadGraph failed: %v", err)
	}
	if err := saveGraph(ctx, st, "saved", g); err != nil {
		t.Fatalf("saveGraph failed: %v", err)
	}

	again, err := loadGraph(ctx, Config{Workflow: "saved"}, st, widgets.Default())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(again.Links()) != 1 {
		t.Errorf("expected 1 link after reload, got %d", len(again.Links()))
	}
	if _, state, _ := again.Output("mean", widgets.PortPredictor); state != flow.SlotSet {
		t.Errorf("reloaded graph did not recompute, predictor %v", state)
	}
}
