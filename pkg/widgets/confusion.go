package widgets

import (
	"context"
	"fmt"

	"github.com/rmax-ai/signalflow/pkg/eval"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

const KindConfusionMatrix = "confusion_matrix"

type confusionSettings struct {
	Learner   int           `yaml:"learner"`
	Quantity  eval.Quantity `yaml:"quantity,omitempty"`
	Selection SelectionMode `yaml:"selection,omitempty"`
	Cells     []eval.Cell   `yaml:"cells,omitempty"`
}

// ConfusionMatrix tabulates evaluation results and sends the rows of the
// selected cells. Selecting none sends an empty table.
type ConfusionMatrix struct {
	stateful
	settings confusionSettings

	results *eval.Results
	matrix  *eval.Confusion
}

func NewConfusionMatrix(settings map[string]any) (*ConfusionMatrix, error) {
	w := &ConfusionMatrix{settings: confusionSettings{
		Quantity:  eval.QuantityCounts,
		Selection: SelectNone,
	}}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	if err := w.settings.validate(nil); err != nil {
		return nil, err
	}
	return w, nil
}

// validate checks the settings, and against r when results are present.
func (s confusionSettings) validate(r *eval.Results) error {
	switch s.Selection {
	case SelectNone, SelectCorrect, SelectMisclassified, SelectCells:
	default:
		return modeError(KindConfusionMatrix, s.Selection)
	}
	switch s.Quantity {
	case eval.QuantityCounts, eval.QuantityOfActual, eval.QuantityOfPredicted:
	default:
		return fmt.Errorf("unknown quantity %q", s.Quantity)
	}
	if s.Learner < 0 {
		return fmt.Errorf("%w: %d", eval.ErrLearnerIndex, s.Learner)
	}
	if r == nil {
		return nil
	}
	if s.Learner >= len(r.Learners) {
		return fmt.Errorf("%w: %d", eval.ErrLearnerIndex, s.Learner)
	}
	n := len(r.ClassValues)
	for _, c := range s.Cells {
		if c.Actual < 0 || c.Actual >= n || c.Predicted < 0 || c.Predicted >= n {
			return fmt.Errorf("cell (%d,%d) outside %dx%d matrix", c.Actual, c.Predicted, n, n)
		}
	}
	return nil
}

func (w *ConfusionMatrix) Kind() string { return KindConfusionMatrix }

func (w *ConfusionMatrix) Signature() flow.Signature {
	return flow.Signature{
		Inputs: []flow.PortSpec{
			{Name: PortEvaluationResults, Type: flow.TypeResults, Required: true},
		},
		Outputs: []flow.PortSpec{
			{Name: PortSelectedData, Type: flow.TypeTable},
		},
	}
}

func (w *ConfusionMatrix) Settings() map[string]any { return encodeSettings(w.settings) }

// InputChanged implements flow.InputObserver. Cell selections do not
// survive new results; the other modes do.
func (w *ConfusionMatrix) InputChanged(port string, _ flow.SlotState, value any) {
	if port != PortEvaluationResults {
		return
	}
	w.results, _ = value.(*eval.Results)
	w.matrix = nil
	if w.settings.Selection == SelectCells {
		w.settings.Selection = SelectNone
		w.settings.Cells = nil
	}
	if w.results != nil && w.settings.Learner >= len(w.results.Learners) {
		w.settings.Learner = 0
	}
}

// SelectCorrect selects the diagonal.
func (w *ConfusionMatrix) SelectCorrect(ctx context.Context) error {
	return w.setSelection(ctx, SelectCorrect, nil)
}

// SelectMisclassified selects everything off the diagonal.
func (w *ConfusionMatrix) SelectMisclassified(ctx context.Context) error {
	return w.setSelection(ctx, SelectMisclassified, nil)
}

// SelectNone clears the selection.
func (w *ConfusionMatrix) SelectNone(ctx context.Context) error {
	return w.setSelection(ctx, SelectNone, nil)
}

// SelectCells selects individual cells.
func (w *ConfusionMatrix) SelectCells(ctx context.Context, cells ...eval.Cell) error {
	return w.setSelection(ctx, SelectCells, cells)
}

func (w *ConfusionMatrix) setSelection(ctx context.Context, mode SelectionMode, cells []eval.Cell) error {
	return w.change(ctx, func() error {
		next := w.settings
		next.Selection = mode
		next.Cells = append([]eval.Cell(nil), cells...)
		if err := next.validate(w.results); err != nil {
			return err
		}
		w.settings = next
		return nil
	})
}

// ApplySelection implements Selector.
func (w *ConfusionMatrix) ApplySelection(ctx context.Context, s Selection) error {
	switch s.Mode {
	case SelectNone, SelectCorrect, SelectMisclassified:
		return w.setSelection(ctx, s.Mode, nil)
	case SelectCells:
		return w.setSelection(ctx, SelectCells, s.Cells)
	}
	return modeError(KindConfusionMatrix, s.Mode)
}

// SetLearner chooses which learner's predictions are tabulated.
func (w *ConfusionMatrix) SetLearner(ctx context.Context, i int) error {
	return w.change(ctx, func() error {
		next := w.settings
		next.Learner = i
		if err := next.validate(w.results); err != nil {
			return err
		}
		w.settings = next
		return nil
	})
}

// SetQuantity switches the matrix view between counts and proportions. It
// does not change the output, so nothing is committed.
func (w *ConfusionMatrix) SetQuantity(q eval.Quantity) error {
	return w.update(func() error {
		next := w.settings
		next.Quantity = q
		if err := next.validate(nil); err != nil {
			return err
		}
		w.settings = next
		return nil
	})
}

// UpdateSettings implements Tuner. An update of the quantity alone is
// applied without a commit.
func (w *ConfusionMatrix) UpdateSettings(ctx context.Context, update map[string]any) error {
	fn := func() error {
		next, err := mergeSettings(w.settings, update)
		if err != nil {
			return err
		}
		if err := next.validate(w.results); err != nil {
			return err
		}
		w.settings = next
		return nil
	}
	if _, ok := update["quantity"]; ok && len(update) == 1 {
		return w.update(fn)
	}
	return w.change(ctx, fn)
}

// Matrix returns the current view of the matrix, or nil before the first
// commit.
func (w *ConfusionMatrix) Matrix() [][]float64 {
	if w.matrix == nil {
		return nil
	}
	v, err := w.matrix.View(w.settings.Quantity)
	if err != nil {
		return nil
	}
	return v
}

// ConfusionView is what View reports for a confusion matrix.
type ConfusionView struct {
	Learner     int           `json:"learner"`
	Learners    []string      `json:"learners,omitempty"`
	ClassValues []string      `json:"class_values,omitempty"`
	Quantity    eval.Quantity `json:"quantity"`
	Matrix      [][]float64   `json:"matrix,omitempty"`
	Selection   SelectionMode `json:"selection"`
	Cells       []eval.Cell   `json:"cells,omitempty"`
}

// View implements Viewer.
func (w *ConfusionMatrix) View() any {
	v := ConfusionView{
		Learner:   w.settings.Learner,
		Quantity:  w.settings.Quantity,
		Matrix:    w.Matrix(),
		Selection: w.settings.Selection,
		Cells:     w.settings.Cells,
	}
	if w.results != nil {
		v.Learners = w.results.Learners
		v.ClassValues = w.results.ClassValues
	}
	return v
}

// Confusion returns the tabulated counts, or nil before the first commit.
func (w *ConfusionMatrix) Confusion() *eval.Confusion { return w.matrix }

func (w *ConfusionMatrix) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	r, ok := in.Value(PortEvaluationResults).(*eval.Results)
	if !ok {
		return nil, errNotA(PortEvaluationResults, "eval.Results")
	}
	w.results = r
	c, err := r.Confusion(w.settings.Learner)
	if err != nil {
		return nil, err
	}
	w.matrix = c

	var cells []eval.Cell
	switch w.settings.Selection {
	case SelectCorrect:
		cells = c.Diagonal()
	case SelectMisclassified:
		cells = c.OffDiagonal()
	case SelectCells:
		cells = w.settings.Cells
	}
	selected, err := r.Data.Subset(c.Positions(cells...))
	if err != nil {
		return nil, err
	}
	out := flow.Outputs{}
	out.Send(PortSelectedData, selected)
	return out, nil
}
