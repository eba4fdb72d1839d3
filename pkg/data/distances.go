package data

import (
	"fmt"
	"math"
)

// DistMatrix is an immutable symmetric matrix of pairwise distances.
type DistMatrix struct {
	n      int
	values []float64
	labels []string
}

// NewDistMatrix copies an n×n row-major matrix.
func NewDistMatrix(n int, values []float64, labels []string) (*DistMatrix, error) {
	if n < 0 || len(values) != n*n {
		return nil, fmt.Errorf("distance matrix: expected %d values, got %d", n*n, len(values))
	}
	if labels != nil && len(labels) != n {
		return nil, fmt.Errorf("distance matrix: expected %d labels, got %d", n, len(labels))
	}
	return &DistMatrix{
		n:      n,
		values: append([]float64(nil), values...),
		labels: append([]string(nil), labels...),
	}, nil
}

// EuclideanRows computes distances between rows over the continuous attributes.
// Missing values are skipped for the pair they occur in.
func EuclideanRows(t *Table) *DistMatrix {
	var cols []int
	for i, a := range t.domain.Attributes {
		if a.IsContinuous() {
			cols = append(cols, i)
		}
	}
	n := t.Len()
	m := &DistMatrix{n: n, values: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for _, c := range cols {
				a, b := t.rows[i].X[c], t.rows[j].X[c]
				if math.IsNaN(a) || math.IsNaN(b) {
					continue
				}
				sum += (a - b) * (a - b)
			}
			d := math.Sqrt(sum)
			m.values[i*n+j] = d
			m.values[j*n+i] = d
		}
	}
	return m
}

// Len is the matrix dimension.
func (m *DistMatrix) Len() int { return m.n }

// At returns the distance between items i and j.
func (m *DistMatrix) At(i, j int) float64 { return m.values[i*m.n+j] }

// Values returns a copy of the row-major values.
func (m *DistMatrix) Values() []float64 { return append([]float64(nil), m.values...) }

// Labels returns the item labels, if any.
func (m *DistMatrix) Labels() []string { return append([]string(nil), m.labels...) }

// Map returns a new matrix with f applied to every element.
func (m *DistMatrix) Map(f func(float64) float64) *DistMatrix {
	out := &DistMatrix{n: m.n, values: make([]float64, len(m.values)), labels: m.labels}
	for i, v := range m.values {
		out.values[i] = f(v)
	}
	return out
}
