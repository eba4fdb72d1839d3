package widgets

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aclements/go-moremath/stats"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

const (
	KindDistances              = "distances"
	KindDistanceTransformation = "distance_transformation"
)

// Distances computes Euclidean distances between the rows of its input.
type Distances struct{}

func NewDistances() *Distances { return &Distances{} }

func (w *Distances) Kind() string { return KindDistances }

func (w *Distances) Signature() flow.Signature {
	return flow.Signature{
		Inputs:  []flow.PortSpec{{Name: PortData, Type: flow.TypeTable, Required: true}},
		Outputs: []flow.PortSpec{{Name: PortDistances, Type: flow.TypeDistances}},
	}
}

func (w *Distances) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	out := flow.Outputs{}
	out.Send(PortDistances, data.EuclideanRows(tableInput(in, PortData)))
	return out, nil
}

// Normalization methods, by settings index.
const (
	NormalizeNone = iota
	NormalizeUnit
	NormalizeSymmetric
	NormalizeSigmoid
)

// Inversion methods, by settings index.
const (
	InvertNone = iota
	InvertNegate
	InvertOneMinus
	InvertMaxMinus
	InvertReciprocal
)

var (
	normalizationNames = []string{"No normalization", "To interval [0, 1]", "To interval [-1, 1]", "Sigmoid function: 1/(1+exp(-X))"}
	inversionNames     = []string{"No inversion", "-X", "1 - X", "max(X) - X", "1/X"}
)

type transformSettings struct {
	Normalization int `yaml:"normalization"`
	Inversion     int `yaml:"inversion"`
}

// DistanceTransformation normalizes and then inverts a distance matrix.
// When its input is not set it sends a clear.
type DistanceTransformation struct {
	stateful
	settings transformSettings
}

func NewDistanceTransformation(settings map[string]any) (*DistanceTransformation, error) {
	w := &DistanceTransformation{}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	if err := w.settings.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (s transformSettings) validate() error {
	if s.Normalization < 0 || s.Normalization >= len(normalizationNames) {
		return fmt.Errorf("unknown normalization %d", s.Normalization)
	}
	if s.Inversion < 0 || s.Inversion >= len(inversionNames) {
		return fmt.Errorf("unknown inversion %d", s.Inversion)
	}
	return nil
}

func (w *DistanceTransformation) Kind() string { return KindDistanceTransformation }

func (w *DistanceTransformation) Signature() flow.Signature {
	return flow.Signature{
		Inputs:  []flow.PortSpec{{Name: PortDistances, Type: flow.TypeDistances}},
		Outputs: []flow.PortSpec{{Name: PortDistances, Type: flow.TypeDistances}},
	}
}

func (w *DistanceTransformation) Settings() map[string]any { return encodeSettings(w.settings) }

// SetMethods changes the normalization and inversion.
func (w *DistanceTransformation) SetMethods(ctx context.Context, normalization, inversion int) error {
	return w.change(ctx, func() error {
		s := transformSettings{Normalization: normalization, Inversion: inversion}
		if err := s.validate(); err != nil {
			return err
		}
		w.settings = s
		return nil
	})
}

// UpdateSettings implements Tuner.
func (w *DistanceTransformation) UpdateSettings(ctx context.Context, update map[string]any) error {
	return w.change(ctx, func() error {
		next, err := mergeSettings(w.settings, update)
		if err != nil {
			return err
		}
		if err := next.validate(); err != nil {
			return err
		}
		w.settings = next
		return nil
	})
}

// View implements Viewer.
func (w *DistanceTransformation) View() any {
	return map[string]string{"description": w.Description()}
}

// Description names the applied transformation, e.g. "Inversion (1 - X)".
func (w *DistanceTransformation) Description() string {
	var parts []string
	if w.settings.Inversion != InvertNone {
		parts = append(parts, fmt.Sprintf("inversion (%s)", inversionNames[w.settings.Inversion]))
	}
	if w.settings.Normalization != NormalizeNone {
		parts = append(parts, fmt.Sprintf("normalization (%s)", normalizationNames[w.settings.Normalization]))
	}
	if len(parts) == 0 {
		return "None"
	}
	s := strings.Join(parts, ", ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func (w *DistanceTransformation) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	out := flow.Outputs{}
	m, ok := in.Value(PortDistances).(*data.DistMatrix)
	if !ok {
		out.Clear(PortDistances)
		return out, nil
	}
	m = normalize(m, w.settings.Normalization)
	m = invert(m, w.settings.Inversion)
	out.Send(PortDistances, m)
	return out, nil
}

func normalize(m *data.DistMatrix, method int) *data.DistMatrix {
	switch method {
	case NormalizeUnit:
		return scale(m, 0, 1)
	case NormalizeSymmetric:
		return scale(m, -1, 1)
	case NormalizeSigmoid:
		return m.Map(func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	}
	return m
}

// scale maps the value range of m linearly onto [lo, hi]. A constant
// matrix maps to lo.
func scale(m *data.DistMatrix, lo, hi float64) *data.DistMatrix {
	if m.Len() == 0 {
		return m
	}
	min, max := stats.Bounds(m.Values())
	if max == min {
		return m.Map(func(float64) float64 { return lo })
	}
	return m.Map(func(x float64) float64 { return lo + (x-min)/(max-min)*(hi-lo) })
}

func invert(m *data.DistMatrix, method int) *data.DistMatrix {
	switch method {
	case InvertNegate:
		return m.Map(func(x float64) float64 { return -x })
	case InvertOneMinus:
		return m.Map(func(x float64) float64 { return 1 - x })
	case InvertMaxMinus:
		if m.Len() == 0 {
			return m
		}
		_, max := stats.Bounds(m.Values())
		return m.Map(func(x float64) float64 { return max - x })
	case InvertReciprocal:
		return m.Map(func(x float64) float64 { return 1 / x })
	}
	return m
}
