package widgets

import (
	"context"

	"github.com/rmax-ai/signalflow/pkg/eval"
	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/model"
)

const (
	KindMeanLearner     = "mean_learner"
	KindMajorityLearner = "majority_learner"
	KindTestLearners    = "test_learners"
)

type learnerSettings struct {
	LearnerName string `yaml:"learner_name,omitempty"`
}

// MeanLearner emits a learner that predicts the class mean and, when data
// is present, the predictor fitted on it.
type MeanLearner struct {
	stateful
	settings learnerSettings

	learner *model.MeanLearner
	pre     model.Preprocessor
}

func NewMeanLearner(settings map[string]any) (*MeanLearner, error) {
	w := &MeanLearner{}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *MeanLearner) Kind() string { return KindMeanLearner }

func (w *MeanLearner) Signature() flow.Signature {
	return flow.Signature{
		Inputs: []flow.PortSpec{
			{Name: PortData, Type: flow.TypeTable, Doc: "training data"},
			{Name: PortPreprocessor, Type: flow.TypePreprocessor},
		},
		Outputs: []flow.PortSpec{
			{Name: PortLearner, Type: flow.TypeLearner},
			{Name: PortPredictor, Type: flow.TypePredictor, Doc: "only sent when data is present"},
		},
	}
}

func (w *MeanLearner) Settings() map[string]any { return encodeSettings(w.settings) }

// SetLearnerName renames the learner and the predictors it fits.
func (w *MeanLearner) SetLearnerName(ctx context.Context, name string) error {
	return w.change(ctx, func() error {
		w.settings.LearnerName = name
		w.learner = nil
		return nil
	})
}

// UpdateSettings implements Tuner.
func (w *MeanLearner) UpdateSettings(ctx context.Context, update map[string]any) error {
	return w.change(ctx, func() error {
		next, err := mergeSettings(w.settings, update)
		if err != nil {
			return err
		}
		w.settings = next
		w.learner = nil
		return nil
	})
}

func (w *MeanLearner) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	pre, _ := in.Value(PortPreprocessor).(model.Preprocessor)
	// The learner is rebuilt only when its name or preprocessor changes.
	if w.learner == nil || !flow.Same(w.pre, pre) {
		w.learner = &model.MeanLearner{Label: w.settings.LearnerName}
		if pre != nil {
			w.learner.Preprocessors = model.Chain{pre}
		}
		w.pre = pre
	}

	out := flow.Outputs{}
	out.Send(PortLearner, w.learner)
	if d := tableInput(in, PortData); d != nil {
		p, err := w.learner.Fit(d)
		if err != nil {
			return nil, err
		}
		out.Send(PortPredictor, p)
	}
	return out, nil
}

// MajorityLearner emits the majority-class baseline learner.
type MajorityLearner struct {
	settings learnerSettings
	learner  *model.MajorityLearner
}

func NewMajorityLearner(settings map[string]any) (*MajorityLearner, error) {
	w := &MajorityLearner{}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	w.learner = &model.MajorityLearner{Label: w.settings.LearnerName}
	return w, nil
}

func (w *MajorityLearner) Kind() string { return KindMajorityLearner }

func (w *MajorityLearner) Signature() flow.Signature {
	return flow.Signature{
		Inputs: []flow.PortSpec{{Name: PortData, Type: flow.TypeTable}},
		Outputs: []flow.PortSpec{
			{Name: PortLearner, Type: flow.TypeLearner},
			{Name: PortPredictor, Type: flow.TypePredictor, Doc: "only sent when data is present"},
		},
	}
}

func (w *MajorityLearner) Settings() map[string]any { return encodeSettings(w.settings) }

func (w *MajorityLearner) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	out := flow.Outputs{}
	out.Send(PortLearner, w.learner)
	if d := tableInput(in, PortData); d != nil {
		p, err := w.learner.Fit(d)
		if err != nil {
			return nil, err
		}
		out.Send(PortPredictor, p)
	}
	return out, nil
}

// TestLearners evaluates a learner on its training data.
type TestLearners struct {
	results *eval.Results
}

func NewTestLearners() *TestLearners { return &TestLearners{} }

func (w *TestLearners) Kind() string { return KindTestLearners }

func (w *TestLearners) Signature() flow.Signature {
	return flow.Signature{
		Inputs: []flow.PortSpec{
			{Name: PortData, Type: flow.TypeTable, Required: true},
			{Name: PortLearner, Type: flow.TypeLearner, Required: true},
		},
		Outputs: []flow.PortSpec{{Name: PortEvaluationResults, Type: flow.TypeResults}},
	}
}

func (w *TestLearners) Process(ctx context.Context, in flow.Inputs) (flow.Outputs, error) {
	l, ok := in.Value(PortLearner).(model.Learner)
	if !ok {
		return nil, errNotA(PortLearner, "model.Learner")
	}
	r, err := eval.TestOnTrain(ctx, tableInput(in, PortData), l)
	if err != nil {
		return nil, err
	}
	w.results = r
	out := flow.Outputs{}
	out.Send(PortEvaluationResults, r)
	return out, nil
}

// Results returns the last evaluation, or nil.
func (w *TestLearners) Results() *eval.Results { return w.results }
