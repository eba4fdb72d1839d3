package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LinkID identifies a link.
type LinkID string

// Link binds an output port of one node to an input port of another.
type Link struct {
	ID       LinkID `json:"id"`
	From     NodeID `json:"from"`
	FromPort string `json:"from_port"`
	To       NodeID `json:"to"`
	ToPort   string `json:"to_port"`
}

// Graph is a DAG of nodes and links. All methods are safe for concurrent
// use; each call runs its propagation wave to completion before returning.
type Graph struct {
	mu        sync.Mutex
	nodes     map[NodeID]*Node
	links     map[LinkID]*Link
	linkOrder []LinkID
	seq       int
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GraphOption {
	return func(g *Graph) { g.logger = l }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) GraphOption {
	return func(g *Graph) { g.observers = append(g.observers, o) }
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		nodes:  make(map[NodeID]*Node),
		links:  make(map[LinkID]*Link),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Observe registers an observer after construction.
func (g *Graph) Observe(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// NodeOption configures a node at AddNode time.
type NodeOption func(*Node)

// WithID sets the node ID instead of generating one.
func WithID(id NodeID) NodeOption {
	return func(n *Node) { n.id = id }
}

// WithTitle sets the display title.
func WithTitle(title string) NodeOption {
	return func(n *Node) { n.title = title }
}

// WithAutoCommit sets the initial auto-commit mode. Nodes default to on.
func WithAutoCommit(on bool) NodeOption {
	return func(n *Node) { n.autoCommit = on }
}

// AddNode places a processor in the graph. The node starts dirty with all
// inputs unset; it is not committed until asked to or until an input arrives.
func (g *Graph) AddNode(p Processor, opts ...NodeOption) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	sig := p.Signature()
	n := &Node{
		id:         NodeID(fmt.Sprintf("%s-%d", p.Kind(), g.seq)),
		title:      p.Kind(),
		proc:       p,
		sig:        sig,
		seq:        g.seq,
		inputs:     make(map[string]*slot, len(sig.Inputs)),
		outputs:    make(map[string]Emission, len(sig.Outputs)),
		dirty:      true,
		autoCommit: true,
		graph:      g,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrUnknownNode)
	}
	if _, exists := g.nodes[n.id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.id)
	}
	for _, in := range sig.Inputs {
		n.inputs[in.Name] = &slot{state: SlotUnset}
	}
	g.nodes[n.id] = n
	if a, ok := p.(Attacher); ok {
		a.Attach(n)
	}

	g.emit(Event{Type: EventNodeAdded, Node: n.id, Kind: p.Kind(), Detail: n.title})
	g.logger.Debug("node_added", "node", n.id, "kind", p.Kind())
	return n, nil
}

// RemoveNode deletes a node and releases its links. Consumers of its
// outputs see their inputs become unset. A *PropagationError means the
// node is gone but a downstream commit failed.
func (g *Graph) RemoveNode(ctx context.Context, id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	var seeds []*Node
	for _, lid := range append([]LinkID(nil), g.linkOrder...) {
		l := g.links[lid]
		if l.From != id && l.To != id {
			continue
		}
		if c := g.removeLinkLocked(l); c != nil && c.id != id {
			seeds = append(seeds, c)
		}
	}
	delete(g.nodes, id)
	g.emit(Event{Type: EventNodeRemoved, Node: id, Kind: n.proc.Kind()})
	return propagationErr(g.propagateLocked(ctx, g.autoSeeds(seeds)))
}

// Node returns a node by ID.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Bind links producer.outPort to consumer.inPort. A *BindError leaves the
// graph unchanged. If the producer already holds a value on outPort it is
// delivered to the consumer right away; when that wave fails the link is
// returned together with a *PropagationError.
func (g *Graph) Bind(ctx context.Context, producer NodeID, outPort string, consumer NodeID, inPort string) (*Link, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fail := func(reason string, err error) (*Link, error) {
		SignalflowBindRejectedTotal.WithLabelValues(reason).Inc()
		return nil, &BindError{From: producer, FromPort: outPort, To: consumer, ToPort: inPort, Err: err}
	}

	from, ok := g.nodes[producer]
	if !ok {
		return fail("unknown_node", ErrUnknownNode)
	}
	to, ok := g.nodes[consumer]
	if !ok {
		return fail("unknown_node", ErrUnknownNode)
	}
	out, ok := from.sig.output(outPort)
	if !ok {
		return fail("unknown_port", fmt.Errorf("%w: output %q", ErrUnknownPort, outPort))
	}
	in, ok := to.sig.input(inPort)
	if !ok {
		return fail("unknown_port", fmt.Errorf("%w: input %q", ErrUnknownPort, inPort))
	}
	if !Compatible(out.Type, in.Type) {
		return fail("type_mismatch", fmt.Errorf("%w: %s -> %s", ErrTypeMismatch, out.Type, in.Type))
	}
	if to.inputs[inPort].link != "" {
		return fail("input_bound", ErrInputBound)
	}
	if producer == consumer || g.reachableLocked(consumer, producer) {
		return fail("cycle", ErrCycleDetected)
	}

	l := &Link{
		ID:       LinkID(uuid.New().String()),
		From:     producer,
		FromPort: outPort,
		To:       consumer,
		ToPort:   inPort,
	}
	g.links[l.ID] = l
	g.linkOrder = append(g.linkOrder, l.ID)
	to.inputs[inPort].link = l.ID
	g.emit(Event{Type: EventLinkBound, Node: consumer, Port: inPort, Link: l.ID,
		Detail: fmt.Sprintf("%s.%s", producer, outPort)})
	g.logger.Debug("link_bound", "link", l.ID, "from", producer, "from_port", outPort, "to", consumer, "to_port", inPort)

	var seeds []*Node
	if e, ok := from.outputs[outPort]; ok {
		if g.deliverLocked(to, inPort, e) {
			seeds = append(seeds, to)
		}
	}
	return l, propagationErr(g.propagateLocked(ctx, g.autoSeeds(seeds)))
}

// Unbind removes a link. The consumer's input becomes unset and the
// consumer is dirty.
func (g *Graph) Unbind(ctx context.Context, id LinkID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.links[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLink, id)
	}
	var seeds []*Node
	if c := g.removeLinkLocked(l); c != nil {
		seeds = append(seeds, c)
	}
	return propagationErr(g.propagateLocked(ctx, g.autoSeeds(seeds)))
}

// removeLinkLocked drops l and unsets the consumer input. It returns the
// consumer when that made it dirty.
func (g *Graph) removeLinkLocked(l *Link) *Node {
	delete(g.links, l.ID)
	for i, lid := range g.linkOrder {
		if lid == l.ID {
			g.linkOrder = append(g.linkOrder[:i], g.linkOrder[i+1:]...)
			break
		}
	}
	g.emit(Event{Type: EventLinkUnbound, Node: l.To, Port: l.ToPort, Link: l.ID})
	to, ok := g.nodes[l.To]
	if !ok {
		return nil
	}
	to.inputs[l.ToPort].link = ""
	// Unbinding always leaves the consumer dirty, even if the slot was already unset.
	changed := to.setInput(l.ToPort, SlotUnset, nil)
	to.dirty = true
	if changed {
		return to
	}
	return nil
}

// Inspect calls fn with the node's processor while holding the graph lock,
// so fn sees no commit half done. fn must not call back into the graph.
func (g *Graph) Inspect(id NodeID, fn func(Processor)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	fn(n.proc)
	return nil
}

// Links returns all links in bind order.
func (g *Graph) Links() []Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Link, 0, len(g.linkOrder))
	for _, id := range g.linkOrder {
		out = append(out, *g.links[id])
	}
	return out
}

// SetInput feeds a value into an input port directly. Bound inputs are
// owned by their link and cannot be set this way.
func (g *Graph) SetInput(ctx context.Context, id NodeID, port string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	s, ok := n.inputs[port]
	if !ok {
		return fmt.Errorf("%w: input %q", ErrUnknownPort, port)
	}
	if s.link != "" {
		return fmt.Errorf("%w: %s.%s", ErrInputBound, id, port)
	}
	state := SlotSet
	if value == nil || isNilPointer(value) {
		state = SlotCleared
	}
	var seeds []*Node
	if n.setInput(port, state, value) {
		seeds = append(seeds, n)
	}
	return propagationErr(g.propagateLocked(ctx, g.autoSeeds(seeds)))
}

// Commit explicitly recomputes a node regardless of its auto-commit mode
// and propagates the result downstream.
func (g *Graph) Commit(ctx context.Context, id NodeID) (Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	r := g.propagateLocked(ctx, []*Node{n})
	return r, r.Err
}

// SetAutoCommit switches a node's commit mode. Turning it on commits the
// node if it has changes waiting.
func (g *Graph) SetAutoCommit(ctx context.Context, id NodeID, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n.autoCommit = on
	if on && n.pending {
		return propagationErr(g.propagateLocked(ctx, []*Node{n}))
	}
	return nil
}

// Output returns the last value a node emitted on a port. The state is
// SlotUnset when nothing was ever emitted there.
func (g *Graph) Output(id NodeID, port string) (any, SlotState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, SlotUnset, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if _, ok := n.sig.output(port); !ok {
		return nil, SlotUnset, fmt.Errorf("%w: output %q", ErrUnknownPort, port)
	}
	e, ok := n.outputs[port]
	switch {
	case !ok:
		return nil, SlotUnset, nil
	case e.Clear:
		return nil, SlotCleared, nil
	default:
		return e.Value, SlotSet, nil
	}
}

// change applies a processor-side mutation and gates the recompute on the
// node's auto-commit mode.
func (g *Graph) change(ctx context.Context, n *Node, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	if g.nodes[n.id] != n {
		return nil
	}
	n.dirty = true
	if !n.autoCommit {
		g.markPendingLocked(n)
		return nil
	}
	return propagationErr(g.propagateLocked(ctx, []*Node{n}))
}

// autoSeeds returns the dirty nodes that commit on their own; the others
// are marked pending.
func (g *Graph) autoSeeds(nodes []*Node) []*Node {
	var seeds []*Node
	for _, n := range nodes {
		if n.autoCommit {
			seeds = append(seeds, n)
		} else {
			g.markPendingLocked(n)
		}
	}
	return seeds
}

func (g *Graph) markPendingLocked(n *Node) {
	if n.pending {
		return
	}
	n.pending = true
	g.emit(Event{Type: EventNodePending, Node: n.id, Kind: n.proc.Kind()})
}

// reachableLocked reports whether target can be reached from start by
// following links forward.
func (g *Graph) reachableLocked(start, target NodeID) bool {
	visited := make(map[NodeID]bool)
	var dfs func(id NodeID) bool
	dfs = func(id NodeID) bool {
		if id == target {
			return true
		}
		visited[id] = true
		for _, lid := range g.linkOrder {
			l := g.links[lid]
			if l.From == id && !visited[l.To] {
				if dfs(l.To) {
					return true
				}
			}
		}
		return false
	}
	return dfs(start)
}

func (g *Graph) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = g.now()
	}
	for _, o := range g.observers {
		o(e)
	}
}

// joinErrs is errors.Join that keeps a single error unwrapped.
func joinErrs(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
