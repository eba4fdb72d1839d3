package widgets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

const KindScatterPlot = "scatter_plot"

// ErrNoData is returned by selection calls made before any data arrived.
var ErrNoData = errors.New("no data")

type scatterSettings struct {
	AttrX string `yaml:"attr_x,omitempty"`
	AttrY string `yaml:"attr_y,omitempty"`
	// Selection holds the row IDs of the selected points.
	Selection []int `yaml:"selection,omitempty"`
}

// ScatterPlot splits its data into the rows the user selected and the rest.
// A new data table resets the selection, except that a selection loaded
// from settings is matched by row ID against the first table to arrive.
// Rows of the optional subset are matched by row ID and reported by
// Highlighted.
type ScatterPlot struct {
	stateful
	settings scatterSettings

	data        *data.Table
	features    data.AttributeList
	selected    map[int]bool
	restore     bool
	highlighted []int
}

func NewScatterPlot(settings map[string]any) (*ScatterPlot, error) {
	w := &ScatterPlot{}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	w.restore = len(w.settings.Selection) > 0
	return w, nil
}

func (w *ScatterPlot) Kind() string { return KindScatterPlot }

func (w *ScatterPlot) Signature() flow.Signature {
	return flow.Signature{
		Inputs: []flow.PortSpec{
			{Name: PortData, Type: flow.TypeTable, Required: true},
			{Name: PortDataSubset, Type: flow.TypeTable, Doc: "rows to highlight"},
			{Name: PortFeatures, Type: flow.TypeAttributeList, Doc: "x and y attributes"},
		},
		Outputs: []flow.PortSpec{
			{Name: PortSelectedData, Type: flow.TypeTable},
			{Name: PortUnselectedData, Type: flow.TypeTable},
		},
	}
}

func (w *ScatterPlot) Settings() map[string]any { return encodeSettings(w.settings) }

// InputChanged implements flow.InputObserver.
func (w *ScatterPlot) InputChanged(port string, _ flow.SlotState, value any) {
	switch port {
	case PortData:
		w.data, _ = value.(*data.Table)
		if w.data == nil {
			if !w.restore {
				w.setSelected(nil)
			}
			return
		}
		if w.restore {
			w.restore = false
			w.setSelected(positionsOf(w.data, w.settings.Selection))
			return
		}
		w.setSelected(nil)
	case PortFeatures:
		w.features, _ = value.(data.AttributeList)
	}
}

// Axes returns the attributes plotted on x and y. Features received on the
// input take precedence over the settings; without either, the first two
// continuous attributes are used.
func (w *ScatterPlot) Axes() (x, y string) {
	if len(w.features) >= 2 {
		return w.features[0], w.features[1]
	}
	if w.data == nil {
		return w.settings.AttrX, w.settings.AttrY
	}
	d := w.data.Domain()
	_, okX := d.Index(w.settings.AttrX)
	_, okY := d.Index(w.settings.AttrY)
	if okX && okY {
		return w.settings.AttrX, w.settings.AttrY
	}
	var names []string
	for _, a := range d.Attributes {
		if a.IsContinuous() {
			names = append(names, a.Name)
		}
	}
	switch len(names) {
	case 0:
		return "", ""
	case 1:
		return names[0], names[0]
	}
	return names[0], names[1]
}

// SetAxes stores the plotted attributes in the settings.
func (w *ScatterPlot) SetAxes(ctx context.Context, x, y string) error {
	return w.change(ctx, func() error {
		if w.data != nil {
			d := w.data.Domain()
			for _, name := range []string{x, y} {
				if _, ok := d.Index(name); !ok {
					return fmt.Errorf("no attribute %q", name)
				}
			}
		}
		w.settings.AttrX, w.settings.AttrY = x, y
		return nil
	})
}

// UpdateSettings implements Tuner. A selection given here is a list of
// row IDs.
func (w *ScatterPlot) UpdateSettings(ctx context.Context, update map[string]any) error {
	return w.change(ctx, func() error {
		next, err := mergeSettings(w.settings, update)
		if err != nil {
			return err
		}
		if w.data != nil {
			d := w.data.Domain()
			for _, name := range []string{next.AttrX, next.AttrY} {
				if _, ok := d.Index(name); name != "" && !ok {
					return fmt.Errorf("no attribute %q", name)
				}
			}
		}
		w.settings.AttrX, w.settings.AttrY = next.AttrX, next.AttrY
		if _, ok := update["selection"]; ok {
			if w.data == nil {
				w.settings.Selection = next.Selection
				w.restore = len(next.Selection) > 0
			} else {
				w.setSelected(positionsOf(w.data, next.Selection))
			}
		}
		return nil
	})
}

// ApplySelection implements Selector.
func (w *ScatterPlot) ApplySelection(ctx context.Context, s Selection) error {
	switch s.Mode {
	case SelectRows:
		return w.Select(ctx, s.Rows...)
	case SelectRect:
		if s.Rect == nil {
			return fmt.Errorf("%w: rect needs corners", ErrSelectionMode)
		}
		return w.SelectRect(ctx, s.Rect.X0, s.Rect.Y0, s.Rect.X1, s.Rect.Y1)
	case SelectNone:
		return w.ClearSelection(ctx)
	}
	return modeError(KindScatterPlot, s.Mode)
}

// Select replaces the selection with the rows at the given positions.
func (w *ScatterPlot) Select(ctx context.Context, positions ...int) error {
	return w.change(ctx, func() error {
		if w.data == nil {
			return ErrNoData
		}
		sel := make(map[int]bool, len(positions))
		for _, p := range positions {
			if p < 0 || p >= w.data.Len() {
				return fmt.Errorf("row %d out of range [0,%d)", p, w.data.Len())
			}
			sel[p] = true
		}
		w.setSelected(sel)
		return nil
	})
}

// SelectRect selects the points inside the rectangle spanned by two
// corners in plot coordinates. Points with a missing coordinate are never
// selected.
func (w *ScatterPlot) SelectRect(ctx context.Context, x0, y0, x1, y1 float64) error {
	return w.change(ctx, func() error {
		if w.data == nil {
			return ErrNoData
		}
		ax, ay := w.Axes()
		xs, err := w.data.Column(ax)
		if err != nil {
			return err
		}
		ys, err := w.data.Column(ay)
		if err != nil {
			return err
		}
		minX, maxX := math.Min(x0, x1), math.Max(x0, x1)
		minY, maxY := math.Min(y0, y1), math.Max(y0, y1)
		sel := make(map[int]bool)
		for i := range xs {
			if xs[i] >= minX && xs[i] <= maxX && ys[i] >= minY && ys[i] <= maxY {
				sel[i] = true
			}
		}
		w.setSelected(sel)
		return nil
	})
}

// ClearSelection empties the selection.
func (w *ScatterPlot) ClearSelection(ctx context.Context) error {
	return w.change(ctx, func() error {
		w.setSelected(nil)
		return nil
	})
}

// Selection returns the selected row positions in ascending order.
func (w *ScatterPlot) Selection() []int {
	out := make([]int, 0, len(w.selected))
	for p := range w.selected {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Highlighted returns the positions of data rows present in the subset.
func (w *ScatterPlot) Highlighted() []int { return append([]int(nil), w.highlighted...) }

// ScatterView is what View reports for a scatter plot.
type ScatterView struct {
	X           string `json:"x"`
	Y           string `json:"y"`
	Points      int    `json:"points"`
	Selection   []int  `json:"selection"`
	Highlighted []int  `json:"highlighted,omitempty"`
}

// View implements Viewer.
func (w *ScatterPlot) View() any {
	v := ScatterView{Selection: w.Selection(), Highlighted: w.Highlighted()}
	v.X, v.Y = w.Axes()
	if w.data != nil {
		v.Points = w.data.Len()
	}
	return v
}

// setSelected replaces the selection and records it by row ID.
func (w *ScatterPlot) setSelected(sel map[int]bool) {
	if len(sel) == 0 {
		sel = nil
	}
	w.selected = sel
	w.settings.Selection = nil
	if w.data == nil {
		return
	}
	for _, p := range w.Selection() {
		w.settings.Selection = append(w.settings.Selection, w.data.RowID(p))
	}
}

// positionsOf finds the rows of t with the given IDs. Unknown IDs are
// ignored.
func positionsOf(t *data.Table, ids []int) map[int]bool {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	sel := make(map[int]bool)
	for i, id := range t.IDs() {
		if want[id] {
			sel[i] = true
		}
	}
	return sel
}

func (w *ScatterPlot) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	d := tableInput(in, PortData)
	if d == nil {
		return nil, errNotA(PortData, "table")
	}
	w.data = d
	selected, rest, err := d.Partition(w.Selection())
	if err != nil {
		return nil, err
	}

	w.highlighted = nil
	if sub := tableInput(in, PortDataSubset); sub != nil {
		ids := make(map[int]bool, sub.Len())
		for _, id := range sub.IDs() {
			ids[id] = true
		}
		for i, id := range d.IDs() {
			if ids[id] {
				w.highlighted = append(w.highlighted, i)
			}
		}
	}

	out := flow.Outputs{}
	out.Send(PortSelectedData, selected)
	out.Send(PortUnselectedData, rest)
	return out, nil
}
