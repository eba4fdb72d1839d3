// Package model defines learners, the predictors they fit and the
// preprocessors applied before fitting.
package model

import (
	"errors"
	"fmt"

	"github.com/rmax-ai/signalflow/pkg/data"
)

var (
	ErrNoClass      = errors.New("data has no class variable")
	ErrClassKind    = errors.New("learner does not support the class variable kind")
	ErrNoKnownClass = errors.New("no instances with a known class value")
)

// Learner fits a Predictor to a table.
type Learner interface {
	Name() string
	Fit(t *data.Table) (Predictor, error)
}

// Predictor returns one prediction per row. For discrete classes the
// prediction is a value index.
type Predictor interface {
	Name() string
	Predict(t *data.Table) ([]float64, error)
}

// Preprocessor derives a new table from its input.
type Preprocessor interface {
	Name() string
	Apply(t *data.Table) (*data.Table, error)
}

// Chain runs preprocessors in order.
type Chain []Preprocessor

func (c Chain) Name() string {
	if len(c) == 0 {
		return "none"
	}
	name := c[0].Name()
	for _, p := range c[1:] {
		name += " > " + p.Name()
	}
	return name
}

func (c Chain) Apply(t *data.Table) (*data.Table, error) {
	var err error
	for _, p := range c {
		if t, err = p.Apply(t); err != nil {
			return nil, fmt.Errorf("preprocessor %s: %w", p.Name(), err)
		}
	}
	return t, nil
}

// DropMissingClass removes rows whose class value is unknown.
type DropMissingClass struct{}

func (DropMissingClass) Name() string { return "drop missing class" }

func (DropMissingClass) Apply(t *data.Table) (*data.Table, error) {
	if !t.HasClass() {
		return nil, ErrNoClass
	}
	return t.Filter(func(i int) bool { return !isNaN(t.Class(i)) }), nil
}

func isNaN(x float64) bool { return x != x }

// constant predicts the same value for every row.
type constant struct {
	name  string
	value float64
}

func (c *constant) Name() string { return c.name }

func (c *constant) Predict(t *data.Table) ([]float64, error) {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = c.value
	}
	return out, nil
}

// Value is the constant being predicted.
func (c *constant) Value() float64 { return c.value }
