package eval

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/model"
)

func binary(actual []float64) *data.Table {
	class := data.Discrete("c", "neg", "pos")
	insts := make([]data.Instance, len(actual))
	for i, y := range actual {
		insts[i] = data.Instance{X: []float64{float64(i)}, Y: y}
	}
	return data.MustNew("bin", data.NewDomain([]data.Variable{data.Continuous("x")}, &class), insts)
}

func TestConfusion(t *testing.T) {
	tbl := binary([]float64{0, 0, 1, 1, 1})
	r, err := NewResults(tbl, [][]float64{{0, 1, 1, 0, 1}}, []string{"m"})
	require.NoError(t, err)

	c, err := r.Confusion(0)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 1}, {1, 2}}, c.Counts)
	assert.Equal(t, []int{0, 2, 4}, sortedPositions(c.Positions(c.Diagonal()...)))
	assert.Equal(t, []int{1, 3}, sortedPositions(c.Positions(c.OffDiagonal()...)))
	assert.Equal(t, []int{3}, c.Positions(Cell{Actual: 1, Predicted: 0}))

	_, err = r.Confusion(1)
	assert.True(t, errors.Is(err, ErrLearnerIndex))
}

func TestConfusion_View(t *testing.T) {
	c := &Confusion{Counts: [][]int{{48, 2}, {4, 46}}}

	counts, err := c.View(QuantityCounts)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{48, 2}, {4, 46}}, counts)

	ofActual, err := c.View(QuantityOfActual)
	require.NoError(t, err)
	assert.InDelta(t, 0.96, ofActual[0][0], 1e-9)
	assert.InDelta(t, 0.08, ofActual[1][0], 1e-9)

	ofPred, err := c.View(QuantityOfPredicted)
	require.NoError(t, err)
	assert.InDelta(t, 48.0/52.0, ofPred[0][0], 1e-9)

	_, err = c.View("bogus")
	assert.Error(t, err)
}

func TestTestOnTrain(t *testing.T) {
	tbl := binary([]float64{1, 1, 0})
	r, err := TestOnTrain(context.Background(), tbl, &model.MajorityLearner{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Majority"}, r.Learners)
	assert.Equal(t, []float64{1, 1, 1}, r.Predicted[0])
	assert.Equal(t, []string{"neg", "pos"}, r.ClassValues)
}

func TestNewResults_RejectsRegression(t *testing.T) {
	class := data.Continuous("y")
	tbl := data.MustNew("r", data.NewDomain(nil, &class), []data.Instance{{X: []float64{}, Y: 1}})
	_, err := NewResults(tbl, nil, nil)
	assert.True(t, errors.Is(err, ErrNotClassification))
}

func sortedPositions(ps []int) []int {
	out := append([]int(nil), ps...)
	sort.Ints(out)
	return out
}
