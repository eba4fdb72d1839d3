// Package eval holds evaluation results and the confusion matrix derived
// from them.
package eval

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/model"
)

var (
	ErrNotClassification = errors.New("results are not for a discrete class")
	ErrLearnerIndex      = errors.New("learner index out of range")
)

// Results are predictions of one or more learners on the rows of Data.
// Actual and Predicted hold class value indices; Predicted has one row per
// learner.
type Results struct {
	Data        *data.Table
	Actual      []float64
	Predicted   [][]float64
	Learners    []string
	ClassValues []string
}

// NewResults checks the shapes and returns the results.
func NewResults(t *data.Table, predicted [][]float64, learners []string) (*Results, error) {
	d := t.Domain()
	if d.Class == nil || !d.Class.IsDiscrete() {
		return nil, ErrNotClassification
	}
	if len(predicted) != len(learners) {
		return nil, fmt.Errorf("%d prediction rows for %d learners", len(predicted), len(learners))
	}
	for i, p := range predicted {
		if len(p) != t.Len() {
			return nil, fmt.Errorf("learner %s: %d predictions for %d rows", learners[i], len(p), t.Len())
		}
	}
	return &Results{
		Data:        t,
		Actual:      t.ClassValues(),
		Predicted:   predicted,
		Learners:    learners,
		ClassValues: d.Class.Values,
	}, nil
}

// TestOnTrain fits every learner on t and predicts t.
func TestOnTrain(ctx context.Context, t *data.Table, learners ...model.Learner) (*Results, error) {
	predicted := make([][]float64, 0, len(learners))
	names := make([]string, 0, len(learners))
	for _, l := range learners {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := l.Fit(t)
		if err != nil {
			return nil, fmt.Errorf("fit %s: %w", l.Name(), err)
		}
		ys, err := p.Predict(t)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", l.Name(), err)
		}
		predicted = append(predicted, ys)
		names = append(names, l.Name())
	}
	return NewResults(t, predicted, names)
}

// Confusion is a square matrix of counts: Counts[actual][predicted].
// Rows lists, per cell, the positions in Results.Data that fall into it.
type Confusion struct {
	ClassValues []string
	Counts      [][]int
	Rows        [][][]int
}

// Confusion tabulates actual against predicted values for one learner.
// Rows with a missing actual or predicted value are left out.
func (r *Results) Confusion(learner int) (*Confusion, error) {
	if learner < 0 || learner >= len(r.Predicted) {
		return nil, fmt.Errorf("%w: %d", ErrLearnerIndex, learner)
	}
	n := len(r.ClassValues)
	c := &Confusion{
		ClassValues: r.ClassValues,
		Counts:      make([][]int, n),
		Rows:        make([][][]int, n),
	}
	for i := range c.Counts {
		c.Counts[i] = make([]int, n)
		c.Rows[i] = make([][]int, n)
	}
	pred := r.Predicted[learner]
	for i, a := range r.Actual {
		if math.IsNaN(a) || math.IsNaN(pred[i]) {
			continue
		}
		ai, pi := int(a), int(pred[i])
		if ai < 0 || ai >= n || pi < 0 || pi >= n {
			continue
		}
		c.Counts[ai][pi]++
		c.Rows[ai][pi] = append(c.Rows[ai][pi], i)
	}
	return c, nil
}

// Cell addresses one matrix cell.
type Cell struct {
	Actual    int `json:"actual"`
	Predicted int `json:"predicted"`
}

// Positions returns the row positions in the given cells, in row order.
func (c *Confusion) Positions(cells ...Cell) []int {
	var out []int
	for _, cell := range cells {
		if cell.Actual < 0 || cell.Actual >= len(c.Rows) || cell.Predicted < 0 || cell.Predicted >= len(c.Rows) {
			continue
		}
		out = append(out, c.Rows[cell.Actual][cell.Predicted]...)
	}
	return out
}

// Diagonal returns the cells of correct predictions.
func (c *Confusion) Diagonal() []Cell {
	cells := make([]Cell, len(c.Counts))
	for i := range cells {
		cells[i] = Cell{Actual: i, Predicted: i}
	}
	return cells
}

// OffDiagonal returns the cells of misclassifications.
func (c *Confusion) OffDiagonal() []Cell {
	var cells []Cell
	for i := range c.Counts {
		for j := range c.Counts[i] {
			if i != j {
				cells = append(cells, Cell{Actual: i, Predicted: j})
			}
		}
	}
	return cells
}

// Quantity selects what the matrix view shows.
type Quantity string

const (
	QuantityCounts      Quantity = "counts"
	QuantityOfActual    Quantity = "proportion_of_actual"
	QuantityOfPredicted Quantity = "proportion_of_predicted"
)

// View returns the matrix as counts or as proportions of the row (actual)
// or column (predicted) totals. Empty rows or columns give zeros.
func (c *Confusion) View(q Quantity) ([][]float64, error) {
	n := len(c.Counts)
	out := make([][]float64, n)
	rowSum := make([]int, n)
	colSum := make([]int, n)
	for i := range c.Counts {
		for j, v := range c.Counts[i] {
			rowSum[i] += v
			colSum[j] += v
		}
	}
	for i := range out {
		out[i] = make([]float64, n)
		for j, v := range c.Counts[i] {
			switch q {
			case QuantityCounts:
				out[i][j] = float64(v)
			case QuantityOfActual:
				if rowSum[i] > 0 {
					out[i][j] = float64(v) / float64(rowSum[i])
				}
			case QuantityOfPredicted:
				if colSum[j] > 0 {
					out[i][j] = float64(v) / float64(colSum[j])
				}
			default:
				return nil, fmt.Errorf("unknown quantity %q", q)
			}
		}
	}
	return out, nil
}
