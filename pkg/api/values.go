package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/eval"
	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/model"
)

var errUnsupportedValue = errors.New("value type cannot be sent over the API")

type namedValue struct {
	Name string `json:"name"`
}

type distancesValue struct {
	Size   int          `json:"size"`
	Labels []string     `json:"labels,omitempty"`
	Rows   [][]*float64 `json:"rows"`
}

type resultsValue struct {
	Instances   int          `json:"instances"`
	Learners    []string     `json:"learners"`
	ClassValues []string     `json:"class_values"`
	Confusion   []confusions `json:"confusion"`
}

type confusions struct {
	Learner string  `json:"learner"`
	Counts  [][]int `json:"counts"`
}

// describeValue renders a signal value for JSON clients. Learners and
// predictors are reported by name only.
func describeValue(v any) (string, any) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case *data.Table:
		return "table", v
	case *data.DistMatrix:
		out := distancesValue{Size: v.Len(), Labels: v.Labels(), Rows: make([][]*float64, v.Len())}
		for i := range out.Rows {
			out.Rows[i] = make([]*float64, v.Len())
			for j := range out.Rows[i] {
				out.Rows[i][j] = finite(v.At(i, j))
			}
		}
		return "distances", out
	case *eval.Results:
		out := resultsValue{Instances: v.Data.Len(), Learners: v.Learners, ClassValues: v.ClassValues}
		for i, name := range v.Learners {
			c, err := v.Confusion(i)
			if err != nil {
				continue
			}
			out.Confusion = append(out.Confusion, confusions{Learner: name, Counts: c.Counts})
		}
		return "evaluation_results", out
	case data.AttributeList:
		return "features", []string(v)
	case model.Predictor:
		return "predictor", namedValue{Name: v.Name()}
	case model.Learner:
		return "learner", namedValue{Name: v.Name()}
	case model.Preprocessor:
		return "preprocessor", namedValue{Name: v.Name()}
	default:
		return fmt.Sprintf("%T", v), fmt.Sprint(v)
	}
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

// decodeValue reads a JSON signal value for an input of type t. null
// clears the input. Tables use the encoding describeValue produces, and
// feature lists are arrays of attribute names.
func decodeValue(t flow.SignalType, raw []byte) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch t {
	case flow.TypeAttributeList:
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, err
		}
		return data.AttributeList(names), nil
	case flow.TypeTable:
		return data.DecodeTable(raw)
	}
	return nil, fmt.Errorf("%w: %s", errUnsupportedValue, t)
}
