// Package data holds the immutable tables that flow between widgets.
//
// A Table is never modified after construction. Subsets and partitions
// produce new tables that keep the row IDs of the table they came from,
// so downstream consumers can relate rows back to their origin.
package data

import (
	"fmt"
	"math"
	"sort"
)

// LocationMemory is reported for tables built in process.
const LocationMemory = "memory"

// Instance is one row of values. Discrete values are stored as indices
// into the variable's Values; missing values are NaN.
type Instance struct {
	X     []float64 `json:"x"`
	Y     float64   `json:"y"`
	Metas []string  `json:"metas,omitempty"`
}

type row struct {
	id int
	Instance
}

// Table is an immutable data set.
type Table struct {
	name     string
	location string
	domain   Domain
	rows     []row
}

// Option configures a new table.
type Option func(*Table)

// WithLocation records where the table was loaded from.
func WithLocation(loc string) Option {
	return func(t *Table) { t.location = loc }
}

// New validates the instances against the domain and returns a table
// owning copies of them. Row IDs are assigned in order starting at 0.
func New(name string, domain Domain, instances []Instance, opts ...Option) (*Table, error) {
	if err := domain.Validate(); err != nil {
		return nil, fmt.Errorf("invalid domain: %w", err)
	}
	t := &Table{
		name:     name,
		location: LocationMemory,
		domain:   domain.clone(),
		rows:     make([]row, 0, len(instances)),
	}
	for _, opt := range opts {
		opt(t)
	}
	for i, inst := range instances {
		if len(inst.X) != len(domain.Attributes) {
			return nil, fmt.Errorf("row %d: expected %d attribute values, got %d", i, len(domain.Attributes), len(inst.X))
		}
		if len(inst.Metas) != 0 && len(inst.Metas) != len(domain.Metas) {
			return nil, fmt.Errorf("row %d: expected %d meta values, got %d", i, len(domain.Metas), len(inst.Metas))
		}
		if domain.Class == nil {
			inst.Y = math.NaN()
		}
		t.rows = append(t.rows, row{id: i, Instance: copyInstance(inst, len(domain.Metas))})
	}
	return t, nil
}

// MustNew is New for fixtures; it panics on error.
func MustNew(name string, domain Domain, instances []Instance, opts ...Option) *Table {
	t, err := New(name, domain, instances, opts...)
	if err != nil {
		panic(fmt.Sprintf("data: %v", err))
	}
	return t
}

func copyInstance(inst Instance, metas int) Instance {
	out := Instance{X: append([]float64(nil), inst.X...), Y: inst.Y}
	if metas > 0 {
		out.Metas = make([]string, metas)
		copy(out.Metas, inst.Metas)
	}
	return out
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Location describes where the rows live.
func (t *Table) Location() string { return t.location }

// Domain returns a copy of the schema.
func (t *Table) Domain() Domain { return t.domain.clone() }

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Instance {
	return copyInstance(t.rows[i].Instance, len(t.domain.Metas))
}

// RowID returns the stable ID of row i.
func (t *Table) RowID(i int) int { return t.rows[i].id }

// IDs returns the row IDs in order.
func (t *Table) IDs() []int {
	ids := make([]int, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.id
	}
	return ids
}

// Value returns attribute column col of row i.
func (t *Table) Value(i, col int) float64 { return t.rows[i].X[col] }

// Class returns the class value of row i, NaN when the table has no class.
func (t *Table) Class(i int) float64 { return t.rows[i].Y }

// HasClass reports whether the domain has a class variable.
func (t *Table) HasClass() bool { return t.domain.Class != nil }

// ClassValues returns the class column.
func (t *Table) ClassValues() []float64 {
	ys := make([]float64, len(t.rows))
	for i, r := range t.rows {
		ys[i] = r.Y
	}
	return ys
}

// Column returns the values of the named attribute.
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.domain.Index(name)
	if !ok {
		return nil, fmt.Errorf("no attribute %q in %s", name, t.name)
	}
	xs := make([]float64, len(t.rows))
	for i, r := range t.rows {
		xs[i] = r.X[col]
	}
	return xs, nil
}

// Subset returns the rows at the given positions, in ascending order and
// without duplicates. Out-of-range positions are an error.
func (t *Table) Subset(positions []int) (*Table, error) {
	ps := append([]int(nil), positions...)
	sort.Ints(ps)
	out := t.derive(len(ps))
	last := -1
	for _, p := range ps {
		if p < 0 || p >= len(t.rows) {
			return nil, fmt.Errorf("row %d out of range [0,%d)", p, len(t.rows))
		}
		if p == last {
			continue
		}
		last = p
		out.rows = append(out.rows, t.rows[p])
	}
	return out, nil
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := t.derive(0)
	for i, r := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Partition splits the table into the rows at the given positions and the rest.
func (t *Table) Partition(positions []int) (selected, rest *Table, err error) {
	in := make(map[int]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(t.rows) {
			return nil, nil, fmt.Errorf("row %d out of range [0,%d)", p, len(t.rows))
		}
		in[p] = true
	}
	selected = t.Filter(func(i int) bool { return in[i] })
	rest = t.Filter(func(i int) bool { return !in[i] })
	return selected, rest, nil
}

// Empty returns a table with the same domain and no rows.
func (t *Table) Empty() *Table {
	return t.derive(0)
}

// derive shares the row storage: rows are never written after New.
func (t *Table) derive(capacity int) *Table {
	return &Table{
		name:     t.name,
		location: t.location,
		domain:   t.domain,
		rows:     make([]row, 0, capacity),
	}
}

func isMissing(x float64) bool { return math.IsNaN(x) }
