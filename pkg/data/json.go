package data

import (
	"encoding/json"
	"fmt"
	"math"
)

type jsonRow struct {
	ID    int        `json:"id"`
	X     []*float64 `json:"x"`
	Y     *float64   `json:"y,omitempty"`
	Metas []string   `json:"metas,omitempty"`
}

type jsonTable struct {
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Domain   Domain    `json:"domain"`
	Rows     []jsonRow `json:"rows"`
}

// MarshalJSON encodes the table with missing values as null.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := jsonTable{
		Name:     t.name,
		Location: t.location,
		Domain:   t.domain,
		Rows:     make([]jsonRow, len(t.rows)),
	}
	for i, r := range t.rows {
		jr := jsonRow{ID: r.id, X: make([]*float64, len(r.X)), Metas: r.Metas}
		for j := range r.X {
			jr.X[j] = nullable(r.X[j])
		}
		if t.domain.Class != nil {
			jr.Y = nullable(r.Y)
		}
		out.Rows[i] = jr
	}
	return json.Marshal(out)
}

func nullable(x float64) *float64 {
	if math.IsNaN(x) {
		return nil
	}
	return &x
}

// DecodeTable reads a table in the form MarshalJSON writes. Row IDs are
// kept so the rows still match the table they were taken from.
func DecodeTable(raw []byte) (*Table, error) {
	var in jsonTable
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	instances := make([]Instance, len(in.Rows))
	for i, r := range in.Rows {
		inst := Instance{X: make([]float64, len(r.X)), Y: math.NaN(), Metas: r.Metas}
		for j, x := range r.X {
			inst.X[j] = orNaN(x)
		}
		if r.Y != nil {
			inst.Y = *r.Y
		}
		instances[i] = inst
	}
	var opts []Option
	if in.Location != "" {
		opts = append(opts, WithLocation(in.Location))
	}
	t, err := New(in.Name, in.Domain, instances, opts...)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(in.Rows))
	for i, r := range in.Rows {
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate row id %d", r.ID)
		}
		seen[r.ID] = true
		t.rows[i].id = r.ID
	}
	return t, nil
}

func orNaN(x *float64) float64 {
	if x == nil {
		return math.NaN()
	}
	return *x
}
