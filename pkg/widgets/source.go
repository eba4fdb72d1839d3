package widgets

import (
	"context"
	"fmt"
	"math"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

const KindTable = "table"

// tableSettings holds a table inline, one row of values per instance:
// attributes, then the class, then metas. Discrete values are written as
// labels and missing values as null.
type tableSettings struct {
	Name       string          `yaml:"name,omitempty"`
	Attributes []data.Variable `yaml:"attributes,omitempty"`
	Class      *data.Variable  `yaml:"class,omitempty"`
	Metas      []data.Variable `yaml:"metas,omitempty"`
	Rows       [][]any         `yaml:"rows,omitempty"`
}

// Table is a data source holding an in-memory table.
type Table struct {
	stateful
	settings tableSettings
	table    *data.Table
}

func NewTable(settings map[string]any) (*Table, error) {
	w := &Table{}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	if len(w.settings.Attributes) > 0 || w.settings.Class != nil {
		t, err := w.settings.build()
		if err != nil {
			return nil, err
		}
		w.table = t
	}
	return w, nil
}

func (w *Table) Kind() string { return KindTable }

func (w *Table) Signature() flow.Signature {
	return flow.Signature{Outputs: []flow.PortSpec{{Name: PortData, Type: flow.TypeTable}}}
}

func (w *Table) Settings() map[string]any { return encodeSettings(w.settings) }

// SetData replaces the table; nil sends "no data".
func (w *Table) SetData(ctx context.Context, t *data.Table) error {
	return w.change(ctx, func() error {
		w.table = t
		w.settings = settingsFromTable(t)
		return nil
	})
}

// UpdateSettings implements Tuner. The table is rebuilt from the merged
// settings.
func (w *Table) UpdateSettings(ctx context.Context, update map[string]any) error {
	return w.change(ctx, func() error {
		cur := w.settings
		if cur.Class != nil {
			c := *cur.Class
			cur.Class = &c
		}
		next, err := mergeSettings(cur, update)
		if err != nil {
			return err
		}
		var t *data.Table
		if len(next.Attributes) > 0 || next.Class != nil {
			if t, err = next.build(); err != nil {
				return err
			}
		}
		w.settings, w.table = next, t
		return nil
	})
}

// Data returns the current table.
func (w *Table) Data() *data.Table { return w.table }

func (w *Table) Process(context.Context, flow.Inputs) (flow.Outputs, error) {
	out := flow.Outputs{}
	out.Send(PortData, w.table)
	return out, nil
}

func (s tableSettings) build() (*data.Table, error) {
	domain := data.NewDomain(s.Attributes, s.Class, s.Metas...)
	width := len(s.Attributes) + len(s.Metas)
	if s.Class != nil {
		width++
	}
	insts := make([]data.Instance, 0, len(s.Rows))
	for i, r := range s.Rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d: expected %d values, got %d", i, width, len(r))
		}
		inst := data.Instance{X: make([]float64, len(s.Attributes)), Y: math.NaN()}
		for j, v := range s.Attributes {
			x, err := parseValue(v, r[j])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			inst.X[j] = x
		}
		next := len(s.Attributes)
		if s.Class != nil {
			y, err := parseValue(*s.Class, r[next])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			inst.Y = y
			next++
		}
		for _, v := range r[next:] {
			if v == nil {
				inst.Metas = append(inst.Metas, "")
				continue
			}
			inst.Metas = append(inst.Metas, fmt.Sprint(v))
		}
		insts = append(insts, inst)
	}
	name := s.Name
	if name == "" {
		name = "table"
	}
	return data.New(name, domain, insts)
}

func parseValue(v data.Variable, raw any) (float64, error) {
	if raw == nil {
		return math.NaN(), nil
	}
	if v.IsDiscrete() {
		label := fmt.Sprint(raw)
		for i, val := range v.Values {
			if val == label {
				return float64(i), nil
			}
		}
		return 0, fmt.Errorf("%s: unknown value %q", v.Name, label)
	}
	switch x := raw.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("%s: %v is not a number", v.Name, raw)
}

func settingsFromTable(t *data.Table) tableSettings {
	if t == nil {
		return tableSettings{}
	}
	d := t.Domain()
	s := tableSettings{Name: t.Name(), Attributes: d.Attributes, Class: d.Class, Metas: d.Metas}
	format := func(v data.Variable, x float64) any {
		switch {
		case math.IsNaN(x):
			return nil
		case v.IsDiscrete():
			return v.Label(x)
		}
		return x
	}
	for i := 0; i < t.Len(); i++ {
		inst := t.Row(i)
		r := make([]any, 0, len(inst.X)+1+len(inst.Metas))
		for j, v := range d.Attributes {
			r = append(r, format(v, inst.X[j]))
		}
		if d.Class != nil {
			r = append(r, format(*d.Class, inst.Y))
		}
		for j := range d.Metas {
			if j < len(inst.Metas) {
				r = append(r, inst.Metas[j])
			} else {
				r = append(r, nil)
			}
		}
		s.Rows = append(s.Rows, r)
	}
	return s
}
