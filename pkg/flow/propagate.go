package flow

import (
	"context"
	"sort"
)

// Report describes one propagation wave.
type Report struct {
	Committed []NodeID
	Skipped   []NodeID
	Failed    []NodeID
	Err       error
}

// propagateLocked commits the seed nodes and every auto-commit node they
// dirty, in topological order. Each node commits at most once per wave, so
// several inputs written during the wave coalesce into a single commit.
func (g *Graph) propagateLocked(ctx context.Context, seeds []*Node) Report {
	var r Report
	if len(seeds) == 0 {
		return r
	}
	scheduled := make(map[NodeID]bool, len(seeds))
	for _, n := range seeds {
		scheduled[n.id] = true
	}

	var errs []error
	for _, n := range g.topoOrderLocked() {
		if !scheduled[n.id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		kind := n.proc.Kind()
		out, skipped, err := n.commit(ctx)
		switch {
		case err != nil:
			r.Failed = append(r.Failed, n.id)
			errs = append(errs, err)
			SignalflowCommitsTotal.WithLabelValues(kind, "failed").Inc()
			g.emit(Event{Type: EventCommitFailed, Node: n.id, Kind: kind, Detail: err.Error()})
			g.logger.Warn("commit_failed", "node", n.id, "kind", kind, "error", err)
			continue
		case skipped:
			r.Skipped = append(r.Skipped, n.id)
			SignalflowCommitsTotal.WithLabelValues(kind, "skipped").Inc()
			g.emit(Event{Type: EventCommitSkipped, Node: n.id, Kind: kind,
				Detail: ErrMissingRequiredInput.Error() + ": " + n.missingRequired()})
			g.logger.Debug("commit_skipped", "node", n.id, "kind", kind, "missing", n.missingRequired())
			continue
		}
		r.Committed = append(r.Committed, n.id)
		SignalflowCommitsTotal.WithLabelValues(kind, "committed").Inc()
		g.emit(Event{Type: EventNodeCommitted, Node: n.id, Kind: kind})

		for _, port := range n.sig.Outputs {
			e, ok := out[port.Name]
			if !ok {
				SignalflowSignalsTotal.WithLabelValues(kind, "withheld").Inc()
				g.emit(Event{Type: EventSignalWithheld, Node: n.id, Kind: kind, Port: port.Name})
				continue
			}
			action, evt := "sent", EventSignalSent
			if e.Clear {
				action, evt = "cleared", EventSignalCleared
			}
			SignalflowSignalsTotal.WithLabelValues(kind, action).Inc()
			g.emit(Event{Type: evt, Node: n.id, Kind: kind, Port: port.Name})

			for _, c := range g.consumersLocked(n.id, port.Name) {
				consumer := g.nodes[c.To]
				if !g.deliverLocked(consumer, c.ToPort, e) {
					continue
				}
				if consumer.autoCommit {
					scheduled[consumer.id] = true
				} else {
					g.markPendingLocked(consumer)
				}
			}
		}
	}

	SignalflowWaveNodes.Observe(float64(len(r.Committed)))
	if len(errs) > 0 {
		r.Err = joinErrs(errs)
	}
	return r
}

// propagationErr wraps the error of a wave that followed an applied change.
func propagationErr(r Report) error {
	if r.Err == nil {
		return nil
	}
	return &PropagationError{Report: r}
}

// deliverLocked writes an emission into a consumer slot and reports
// whether the consumer became dirty.
func (g *Graph) deliverLocked(to *Node, port string, e Emission) bool {
	if e.Clear {
		return to.setInput(port, SlotCleared, nil)
	}
	return to.setInput(port, SlotSet, e.Value)
}

func (g *Graph) consumersLocked(id NodeID, port string) []*Link {
	var out []*Link
	for _, lid := range g.linkOrder {
		l := g.links[lid]
		if l.From == id && l.FromPort == port {
			out = append(out, l)
		}
	}
	return out
}

// topoOrderLocked orders nodes producers-first (Kahn's algorithm). Ties are
// broken by insertion order so waves are deterministic.
func (g *Graph) topoOrderLocked() []*Node {
	indeg := make(map[NodeID]int, len(g.nodes))
	next := make(map[NodeID][]NodeID, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = 0
	}
	for _, lid := range g.linkOrder {
		l := g.links[lid]
		indeg[l.To]++
		next[l.From] = append(next[l.From], l.To)
	}

	var ready []*Node
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, g.nodes[id])
		}
	}
	order := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].seq < ready[j].seq })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, to := range next[n.id] {
			indeg[to]--
			if indeg[to] == 0 {
				ready = append(ready, g.nodes[to])
			}
		}
	}
	return order
}
