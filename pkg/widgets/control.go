package widgets

import (
	"context"
	"errors"
	"fmt"

	"github.com/rmax-ai/signalflow/pkg/eval"
)

var (
	// ErrNotSelectable is returned when a selection is sent to a widget
	// without one.
	ErrNotSelectable = errors.New("widget has no selection")
	// ErrNotTunable is returned when settings are sent to a widget whose
	// settings are fixed at creation.
	ErrNotTunable = errors.New("widget settings cannot be changed")
	// ErrSelectionMode is returned for a mode the widget does not offer.
	ErrSelectionMode = errors.New("unsupported selection mode")
)

// SelectionMode is how a widget chooses the rows it sends.
type SelectionMode string

const (
	SelectNone          SelectionMode = "none"
	SelectCorrect       SelectionMode = "correct"
	SelectMisclassified SelectionMode = "misclassified"
	SelectCells         SelectionMode = "cells"
	SelectRows          SelectionMode = "rows"
	SelectRect          SelectionMode = "rect"
)

// Rect is a rectangle in plot coordinates, given by two opposite corners.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Selection is a selection made outside the graph, e.g. by a user
// clicking a plot. Rows are positions in the widget's current data.
type Selection struct {
	Mode  SelectionMode `json:"mode"`
	Rows  []int         `json:"rows,omitempty"`
	Rect  *Rect         `json:"rect,omitempty"`
	Cells []eval.Cell   `json:"cells,omitempty"`
}

// Selector is implemented by widgets whose output depends on a selection.
type Selector interface {
	ApplySelection(ctx context.Context, s Selection) error
}

// Tuner is implemented by widgets whose settings may change after
// creation. Keys missing from update keep their value.
type Tuner interface {
	UpdateSettings(ctx context.Context, update map[string]any) error
}

// Viewer is implemented by widgets with state worth showing besides their
// outputs. View must be called under the graph lock; see flow.Graph.Inspect.
type Viewer interface {
	View() any
}

// Select routes a selection to p.
func Select(ctx context.Context, p any, s Selection) error {
	sel, ok := p.(Selector)
	if !ok {
		return ErrNotSelectable
	}
	return sel.ApplySelection(ctx, s)
}

// Tune routes a settings update to p.
func Tune(ctx context.Context, p any, update map[string]any) error {
	t, ok := p.(Tuner)
	if !ok {
		return ErrNotTunable
	}
	return t.UpdateSettings(ctx, update)
}

func modeError(kind string, m SelectionMode) error {
	return fmt.Errorf("%w: %s does not offer %q", ErrSelectionMode, kind, m)
}
