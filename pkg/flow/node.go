package flow

import (
	"context"
	"fmt"
	"reflect"
)

// NodeID identifies a node within a graph.
type NodeID string

// Processor is the capability every widget implements: a declared port
// signature and a deterministic transform from inputs to outputs.
type Processor interface {
	Kind() string
	Signature() Signature
	Process(ctx context.Context, in Inputs) (Outputs, error)
}

// InputObserver is implemented by processors that react to individual
// input changes before the next commit, e.g. to reset a selection.
type InputObserver interface {
	InputChanged(port string, state SlotState, value any)
}

// Host is handed to processors that change state outside Process.
// Change runs fn under the graph lock, then commits the node if it is in
// auto-commit mode or marks it pending otherwise. If fn fails nothing is
// committed and its error is returned; a failed commit comes back as a
// *PropagationError. Change must not be called from inside Process.
//
// Update runs fn under the graph lock and nothing else. It is for state
// that does not affect the outputs, such as how a result is displayed.
type Host interface {
	Change(ctx context.Context, fn func() error) error
	Update(fn func() error) error
}

// Attacher is implemented by processors that need their Host.
type Attacher interface {
	Attach(h Host)
}

// Configurable exposes a processor's settings for persistence.
type Configurable interface {
	Settings() map[string]any
}

// Inputs is the read-only view of a node's input slots during Process.
type Inputs struct {
	slots map[string]*slot
}

// Value returns the stored value, or nil when the port is not Set.
func (in Inputs) Value(port string) any {
	if s, ok := in.slots[port]; ok && s.state == SlotSet {
		return s.value
	}
	return nil
}

// State returns the slot state of a port.
func (in Inputs) State(port string) SlotState {
	if s, ok := in.slots[port]; ok {
		return s.state
	}
	return SlotUnset
}

// Has reports whether a value is present on the port.
func (in Inputs) Has(port string) bool { return in.State(port) == SlotSet }

// Emission is what a commit produced on one output port.
type Emission struct {
	Value any
	Clear bool
}

// Outputs maps output ports to emissions. A port absent from the map is
// withheld: nothing is sent and consumers keep what they had.
type Outputs map[string]Emission

// Send emits a value; a nil value is sent as an explicit clear.
func (o Outputs) Send(port string, v any) {
	if v == nil || isNilPointer(v) {
		o[port] = Emission{Clear: true}
		return
	}
	o[port] = Emission{Value: v}
}

// Clear emits an explicit "no value".
func (o Outputs) Clear(port string) { o[port] = Emission{Clear: true} }

type slot struct {
	state SlotState
	value any
	link  LinkID
}

// Node is a processor placed in a graph.
type Node struct {
	id         NodeID
	title      string
	proc       Processor
	sig        Signature
	seq        int
	inputs     map[string]*slot
	outputs    map[string]Emission
	dirty      bool
	pending    bool
	autoCommit bool
	commits    int
	graph      *Graph
}

// ID returns the node identity.
func (n *Node) ID() NodeID { return n.id }

// Title returns the display title.
func (n *Node) Title() string { return n.title }

// Processor returns the wrapped processor.
func (n *Node) Processor() Processor { return n.proc }

// Change implements Host.
func (n *Node) Change(ctx context.Context, fn func() error) error {
	return n.graph.change(ctx, n, fn)
}

// Update implements Host.
func (n *Node) Update(fn func() error) error {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	return fn()
}

// setInput stores a value and reports whether the node became dirty.
func (n *Node) setInput(port string, state SlotState, value any) bool {
	s := n.inputs[port]
	if state != SlotSet {
		value = nil
	}
	if s.state == state && (state != SlotSet || Same(s.value, value)) {
		return false
	}
	s.state = state
	s.value = value
	n.dirty = true
	if obs, ok := n.proc.(InputObserver); ok {
		obs.InputChanged(port, state, value)
	}
	return true
}

func (n *Node) missingRequired() string {
	for _, p := range n.sig.Inputs {
		if p.Required && n.inputs[p.Name].state != SlotSet {
			return p.Name
		}
	}
	return ""
}

// commit runs the processor. skipped is true when a required input is
// missing; the node's outputs are then left as they were.
func (n *Node) commit(ctx context.Context) (out Outputs, skipped bool, err error) {
	if port := n.missingRequired(); port != "" {
		return nil, true, nil
	}
	out, err = n.proc.Process(ctx, Inputs{slots: n.inputs})
	if err != nil {
		return nil, false, &NodeError{Node: n.id, Err: err}
	}
	for port := range out {
		if _, ok := n.sig.output(port); !ok {
			return nil, false, &NodeError{Node: n.id, Err: fmt.Errorf("%w: output %q", ErrUnknownPort, port)}
		}
	}
	for port, e := range out {
		n.outputs[port] = e
	}
	n.dirty = false
	n.pending = false
	n.commits++
	return out, false, nil
}

// Same reports whether two signal values are identical: equal dynamic
// types and == for comparable values. Uncomparable values are never the same.
func Same(a, b any) (eq bool) {
	// Comparable structs may still hold uncomparable interface values.
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
