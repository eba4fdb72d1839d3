package flow

import "sort"

// PortState is the observable state of one port.
type PortState struct {
	PortSpec
	State SlotState `json:"state"`
	Link  LinkID    `json:"link,omitempty"`
}

// NodeSnapshot is a point-in-time view of a node.
type NodeSnapshot struct {
	ID         NodeID         `json:"id"`
	Kind       string         `json:"kind"`
	Title      string         `json:"title"`
	AutoCommit bool           `json:"auto_commit"`
	Dirty      bool           `json:"dirty"`
	Pending    bool           `json:"pending"`
	Commits    int            `json:"commits"`
	Inputs     []PortState    `json:"inputs"`
	Outputs    []PortState    `json:"outputs"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// Snapshot is a point-in-time view of a graph.
type Snapshot struct {
	Nodes []NodeSnapshot `json:"nodes"`
	Links []Link         `json:"links"`
}

// Snapshot captures the graph with nodes in insertion order.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })

	s := Snapshot{
		Nodes: make([]NodeSnapshot, 0, len(nodes)),
		Links: make([]Link, 0, len(g.linkOrder)),
	}
	for _, n := range nodes {
		ns := NodeSnapshot{
			ID:         n.id,
			Kind:       n.proc.Kind(),
			Title:      n.title,
			AutoCommit: n.autoCommit,
			Dirty:      n.dirty,
			Pending:    n.pending,
			Commits:    n.commits,
		}
		for _, p := range n.sig.Inputs {
			in := n.inputs[p.Name]
			ns.Inputs = append(ns.Inputs, PortState{PortSpec: p, State: in.state, Link: in.link})
		}
		for _, p := range n.sig.Outputs {
			st := SlotUnset
			if e, ok := n.outputs[p.Name]; ok {
				st = SlotSet
				if e.Clear {
					st = SlotCleared
				}
			}
			ns.Outputs = append(ns.Outputs, PortState{PortSpec: p, State: st})
		}
		if c, ok := n.proc.(Configurable); ok {
			ns.Settings = c.Settings()
		}
		s.Nodes = append(s.Nodes, ns)
	}
	for _, id := range g.linkOrder {
		s.Links = append(s.Links, *g.links[id])
	}
	return s
}

// Node returns the snapshot of one node.
func (s Snapshot) Node(id NodeID) (NodeSnapshot, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSnapshot{}, false
}
