// Package widgets implements the processing nodes that are placed in a
// flow.Graph: learners, the scatter plot, the confusion matrix and the
// data sources and sinks around them.
package widgets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/signalflow/pkg/flow"
)

// ErrUnknownKind is returned for a widget kind that is not registered.
var ErrUnknownKind = errors.New("unknown widget kind")

// Port names shared by several widgets.
const (
	PortData              = "Data"
	PortDataSubset        = "Data Subset"
	PortFeatures          = "Features"
	PortPreprocessor      = "Preprocessor"
	PortLearner           = "Learner"
	PortPredictor         = "Predictor"
	PortSelectedData      = "Selected Data"
	PortUnselectedData    = "Unselected Data"
	PortEvaluationResults = "Evaluation Results"
	PortDistances         = "Distances"
)

// Constructor builds a widget from its persisted settings.
type Constructor func(settings map[string]any) (flow.Processor, error)

// Registry maps widget kinds to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Default returns a registry holding every built-in widget.
func Default() *Registry {
	r := NewRegistry()
	r.Register(KindTable, func(s map[string]any) (flow.Processor, error) { return NewTable(s) })
	r.Register(KindSQLTable, func(s map[string]any) (flow.Processor, error) { return NewSQLTable(s) })
	r.Register(KindDataInfo, func(map[string]any) (flow.Processor, error) { return NewDataInfo(), nil })
	r.Register(KindMeanLearner, func(s map[string]any) (flow.Processor, error) { return NewMeanLearner(s) })
	r.Register(KindMajorityLearner, func(s map[string]any) (flow.Processor, error) { return NewMajorityLearner(s) })
	r.Register(KindTestLearners, func(map[string]any) (flow.Processor, error) { return NewTestLearners(), nil })
	r.Register(KindScatterPlot, func(s map[string]any) (flow.Processor, error) { return NewScatterPlot(s) })
	r.Register(KindConfusionMatrix, func(s map[string]any) (flow.Processor, error) { return NewConfusionMatrix(s) })
	r.Register(KindDistances, func(map[string]any) (flow.Processor, error) { return NewDistances(), nil })
	r.Register(KindDistanceTransformation, func(s map[string]any) (flow.Processor, error) { return NewDistanceTransformation(s) })
	return r
}

// Register adds or replaces a constructor.
func (r *Registry) Register(kind string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[kind] = c
}

// New constructs a widget of the given kind.
func (r *Registry) New(kind string, settings map[string]any) (flow.Processor, error) {
	r.mu.RLock()
	c, ok := r.ctors[kind]
	r.mu.RUnlock()
	if !ok {
		if s := r.suggest(kind); s != "" {
			return nil, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownKind, kind, s)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	p, err := c(settings)
	if err != nil {
		return nil, fmt.Errorf("%s settings: %w", kind, err)
	}
	return p, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// suggest returns the registered kind closest to kind, if it is within a
// third of its length in edits.
func (r *Registry) suggest(kind string) string {
	best, bestDist := "", len(kind)/3+1
	for _, k := range r.Kinds() {
		if d := levenshtein.ComputeDistance(kind, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// decodeSettings fills a tagged settings struct from a generic map by
// round-tripping it through YAML.
func decodeSettings(settings map[string]any, into any) error {
	if len(settings) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, into)
}

// encodeSettings is the inverse of decodeSettings.
func encodeSettings(from any) map[string]any {
	raw, err := yaml.Marshal(from)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// stateful links a widget to the node hosting it.
type stateful struct {
	host flow.Host
}

func (s *stateful) Attach(h flow.Host) { s.host = h }

// change applies fn through the host, or directly when the widget is not
// placed in a graph.
func (s *stateful) change(ctx context.Context, fn func() error) error {
	if s.host == nil {
		return fn()
	}
	return s.host.Change(ctx, fn)
}

// update applies fn under the graph lock without committing.
func (s *stateful) update(fn func() error) error {
	if s.host == nil {
		return fn()
	}
	return s.host.Update(fn)
}

// mergeSettings decodes update onto a copy of cur. Keys cur does not know
// are rejected.
func mergeSettings[T any](cur T, update map[string]any) (T, error) {
	if len(update) == 0 {
		return cur, nil
	}
	raw, err := yaml.Marshal(update)
	if err != nil {
		return cur, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cur); err != nil {
		return cur, err
	}
	return cur, nil
}
