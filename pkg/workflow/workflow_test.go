package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/model"
	"github.com/rmax-ai/signalflow/pkg/widgets"
)

func TestBuild_FromYAML(t *testing.T) {
	doc, err := Load("testdata/regression.yaml")
	require.NoError(t, err)
	assert.Equal(t, "regression", doc.Name)

	g, err := Build(context.Background(), doc, widgets.Default())
	require.NoError(t, err)

	v, st, err := g.Output("mean", widgets.PortPredictor)
	require.NoError(t, err)
	require.Equal(t, flow.SlotSet, st)
	src, _, _ := g.Output("data", widgets.PortData)
	preds, err := v.(model.Predictor).Predict(src.(*data.Table))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4, 4}, preds)

	snap := g.Snapshot()
	scatter, ok := snap.Node("scatter")
	require.True(t, ok)
	assert.False(t, scatter.AutoCommit)
	assert.True(t, scatter.Pending, "manual node waits for an explicit commit")
	mean, _ := snap.Node("mean")
	assert.Equal(t, "Mean Learner", mean.Title)
}

func TestCapture_RoundTrip(t *testing.T) {
	ctx := context.Background()
	doc, err := Load("testdata/regression.yaml")
	require.NoError(t, err)
	g, err := Build(ctx, doc, widgets.Default())
	require.NoError(t, err)

	captured := Capture("copy", g.Snapshot())
	raw, err := captured.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "copy", parsed.Name)
	assert.Len(t, parsed.Nodes, 4)
	assert.Len(t, parsed.Links, 3)

	g2, err := Build(ctx, parsed, widgets.Default())
	require.NoError(t, err)
	v, st, err := g2.Output("data", widgets.PortData)
	require.NoError(t, err)
	require.Equal(t, flow.SlotSet, st)
	assert.Equal(t, []float64{2, 4, 6}, v.(*data.Table).ClassValues())
}

func TestParse_JSON(t *testing.T) {
	raw := []byte(`{"name":"j",` +
		`"nodes":[{"id":"d","kind":"distances"},{"id":"t","kind":"distance_transformation","settings":{"normalization":1}}],` +
		`"links":[{"from":"d","from_port":"Distances","to":"t","to_port":"Distances"}]}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	assert.Len(t, doc.Nodes, 2)

	g, err := Build(context.Background(), doc, widgets.Default())
	require.NoError(t, err)
	assert.Len(t, g.Links(), 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing id", Document{Nodes: []Node{{Kind: "table"}}}},
		{"missing kind", Document{Nodes: []Node{{ID: "a"}}}},
		{"duplicate id", Document{Nodes: []Node{{ID: "a", Kind: "table"}, {ID: "a", Kind: "table"}}}},
		{"slash in id", Document{Nodes: []Node{{ID: "a/b", Kind: "table"}}}},
		{"link without port", Document{Nodes: []Node{{ID: "a", Kind: "table"}}, Links: []Link{{From: "a", To: "a", FromPort: "Data"}}}},
		{"dangling link", Document{Nodes: []Node{{ID: "a", Kind: "table"}}, Links: []Link{{From: "a", FromPort: "Data", To: "b", ToPort: "Data"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.doc.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	err := (&Document{Nodes: []Node{{ID: "a"}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Document.Nodes[0].Kind")
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Build(ctx, &Document{Nodes: []Node{{ID: "x", Kind: "image_viewer"}}}, widgets.Default())
	assert.True(t, errors.Is(err, widgets.ErrUnknownKind))

	cyclic := &Document{
		Nodes: []Node{{ID: "a", Kind: "distance_transformation"}, {ID: "b", Kind: "distance_transformation"}},
		Links: []Link{
			{From: "a", FromPort: "Distances", To: "b", ToPort: "Distances"},
			{From: "b", FromPort: "Distances", To: "a", ToPort: "Distances"},
		},
	}
	_, err = Build(ctx, cyclic, widgets.Default())
	assert.True(t, errors.Is(err, flow.ErrCycleDetected))
}

func TestCapture_KeepsScatterSelection(t *testing.T) {
	ctx := context.Background()
	doc, err := Load("testdata/regression.yaml")
	require.NoError(t, err)
	g, err := Build(ctx, doc, widgets.Default())
	require.NoError(t, err)

	n, ok := g.Node("scatter")
	require.True(t, ok)
	require.NoError(t, n.Processor().(*widgets.ScatterPlot).Select(ctx, 0, 2))

	raw, err := Capture("kept", g.Snapshot()).Marshal()
	require.NoError(t, err)
	parsed, err := Parse(raw)
	require.NoError(t, err)
	g2, err := Build(ctx, parsed, widgets.Default())
	require.NoError(t, err)

	n2, _ := g2.Node("scatter")
	assert.Equal(t, []int{0, 2}, n2.Processor().(*widgets.ScatterPlot).Selection())
	_, err = g2.Commit(ctx, "scatter")
	require.NoError(t, err)
	v, _, err := g2.Output("scatter", widgets.PortSelectedData)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, v.(*data.Table).IDs())
}

func TestBuild_DownstreamFailureIsReportedWithGraph(t *testing.T) {
	doc := &Document{
		Name: "bad",
		Nodes: []Node{
			{ID: "data", Kind: "table", Settings: map[string]any{
				"attributes": []any{map[string]any{"name": "x", "kind": "continuous"}},
				"class":      map[string]any{"name": "y", "kind": "continuous"},
				"rows":       []any{[]any{0, 1}},
			}},
			{ID: "maj", Kind: "majority_learner"},
		},
		Links: []Link{{From: "data", FromPort: "Data", To: "maj", ToPort: "Data"}},
	}
	g, err := Build(context.Background(), doc, widgets.Default())
	require.NotNil(t, g)
	assert.Error(t, err)
	assert.Len(t, g.Links(), 1)
}
