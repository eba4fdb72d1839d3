package flow

import "sync"

// SignalType names the kind of value carried on a port.
type SignalType string

const (
	TypeAny           SignalType = "any"
	TypeTable         SignalType = "table"
	TypeAttributeList SignalType = "attribute_list"
	TypeLearner       SignalType = "learner"
	TypeModel         SignalType = "model"
	TypePredictor     SignalType = "predictor"
	TypePreprocessor  SignalType = "preprocessor"
	TypeResults       SignalType = "results"
	TypeDistances     SignalType = "distances"
)

var (
	subtypesMu sync.RWMutex
	subtypes   = map[SignalType]SignalType{
		TypePredictor: TypeModel,
	}
)

// RegisterSubtype declares that values of child may be bound to parent inputs.
func RegisterSubtype(child, parent SignalType) {
	subtypesMu.Lock()
	defer subtypesMu.Unlock()
	subtypes[child] = parent
}

// Compatible reports whether an output of type out may feed an input of type in.
func Compatible(out, in SignalType) bool {
	if in == TypeAny || out == in {
		return true
	}
	subtypesMu.RLock()
	defer subtypesMu.RUnlock()
	seen := map[SignalType]bool{out: true}
	for t := subtypes[out]; t != ""; t = subtypes[t] {
		if t == in {
			return true
		}
		if seen[t] {
			return false
		}
		seen[t] = true
	}
	return false
}

// PortSpec declares one input or output port.
type PortSpec struct {
	Name     string     `json:"name"`
	Type     SignalType `json:"type"`
	Required bool       `json:"required,omitempty"` // inputs only
	Doc      string     `json:"doc,omitempty"`
}

// Signature is the ordered port list of a processor.
type Signature struct {
	Inputs  []PortSpec `json:"inputs"`
	Outputs []PortSpec `json:"outputs"`
}

// SelfStarting reports whether a processor can run with every input unset.
func (s Signature) SelfStarting() bool {
	for _, p := range s.Inputs {
		if p.Required {
			return false
		}
	}
	return true
}

func (s Signature) input(name string) (PortSpec, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

func (s Signature) output(name string) (PortSpec, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSpec{}, false
}

// SlotState distinguishes a value that never arrived from one that was cleared.
type SlotState string

const (
	SlotUnset   SlotState = "unset"
	SlotCleared SlotState = "cleared"
	SlotSet     SlotState = "set"
)
