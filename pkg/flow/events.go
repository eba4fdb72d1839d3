package flow

import "time"

// EventType is the kind of graph event reported to observers.
type EventType string

const (
	EventNodeAdded      EventType = "node_added"
	EventNodeRemoved    EventType = "node_removed"
	EventLinkBound      EventType = "link_bound"
	EventLinkUnbound    EventType = "link_unbound"
	EventNodeCommitted  EventType = "node_committed"
	EventCommitSkipped  EventType = "commit_skipped"
	EventCommitFailed   EventType = "commit_failed"
	EventSignalSent     EventType = "signal_sent"
	EventSignalCleared  EventType = "signal_cleared"
	EventSignalWithheld EventType = "signal_withheld"
	EventNodePending    EventType = "node_pending"
)

// Event describes one change in a graph.
type Event struct {
	Type   EventType `json:"type"`
	Time   time.Time `json:"time"`
	Node   NodeID    `json:"node,omitempty"`
	Kind   string    `json:"kind,omitempty"`
	Port   string    `json:"port,omitempty"`
	Link   LinkID    `json:"link,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Observer receives graph events synchronously, under the graph lock.
// Observers must not call back into the graph.
type Observer func(Event)
