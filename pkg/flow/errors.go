package flow

import (
	"errors"
	"fmt"
)

var (
	ErrTypeMismatch  = errors.New("port types are incompatible")
	ErrCycleDetected = errors.New("link would create a cycle")
	ErrInputBound    = errors.New("input port is already bound")
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownPort   = errors.New("unknown port")
	ErrUnknownLink   = errors.New("unknown link")
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrPropagation is matched by every PropagationError.
	ErrPropagation = errors.New("propagation failed")

	// ErrMissingRequiredInput is never returned by Commit; it is recorded
	// on skipped commits so callers can tell why nothing ran.
	ErrMissingRequiredInput = errors.New("required input missing")
)

// BindError reports a rejected Bind.
type BindError struct {
	From     NodeID
	FromPort string
	To       NodeID
	ToPort   string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s.%s -> %s.%s: %v", e.From, e.FromPort, e.To, e.ToPort, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// NodeError wraps a processor failure.
type NodeError struct {
	Node NodeID
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PropagationError reports a wave that failed after the change that
// triggered it was applied. The change stands; Report says what ran.
type PropagationError struct {
	Report Report
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPropagation, e.Report.Err)
}

func (e *PropagationError) Unwrap() []error { return []error{ErrPropagation, e.Report.Err} }
