package model

import (
	"fmt"

	"github.com/aclements/go-moremath/stats"

	"github.com/rmax-ai/signalflow/pkg/data"
)

// MeanLearner fits the mean of a continuous class, ignoring missing values.
type MeanLearner struct {
	Label         string
	Preprocessors Chain
}

func (l *MeanLearner) Name() string {
	if l.Label == "" {
		return "Mean Learner"
	}
	return l.Label
}

func (l *MeanLearner) Fit(t *data.Table) (Predictor, error) {
	t, err := l.Preprocessors.Apply(t)
	if err != nil {
		return nil, err
	}
	d := t.Domain()
	if d.Class == nil {
		return nil, ErrNoClass
	}
	if !d.Class.IsContinuous() {
		return nil, fmt.Errorf("%w: %s is %s", ErrClassKind, d.Class.Name, d.Class.Kind)
	}
	var ys []float64
	for _, y := range t.ClassValues() {
		if !isNaN(y) {
			ys = append(ys, y)
		}
	}
	if len(ys) == 0 {
		return nil, ErrNoKnownClass
	}
	return &constant{name: l.Name(), value: stats.Mean(ys)}, nil
}

// MajorityLearner predicts the most frequent class value. Ties go to the
// value listed first in the class variable.
type MajorityLearner struct {
	Label string
}

func (l *MajorityLearner) Name() string {
	if l.Label == "" {
		return "Majority"
	}
	return l.Label
}

func (l *MajorityLearner) Fit(t *data.Table) (Predictor, error) {
	d := t.Domain()
	if d.Class == nil {
		return nil, ErrNoClass
	}
	if !d.Class.IsDiscrete() {
		return nil, fmt.Errorf("%w: %s is %s", ErrClassKind, d.Class.Name, d.Class.Kind)
	}
	counts := make([]int, len(d.Class.Values))
	known := 0
	for _, y := range t.ClassValues() {
		if isNaN(y) || int(y) < 0 || int(y) >= len(counts) {
			continue
		}
		counts[int(y)]++
		known++
	}
	if known == 0 {
		return nil, ErrNoKnownClass
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return &constant{name: l.Name(), value: float64(best)}, nil
}
