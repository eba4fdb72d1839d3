package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/signalflow/pkg/flow"
)

// SchemaVersion is written with every event.
const SchemaVersion = 1

// ErrWorkflowNotFound is returned when no workflow has the requested name.
var ErrWorkflowNotFound = errors.New("workflow not found")

// EventID is a unique identifier for an event.
type EventID string

// Event is the persisted envelope of a graph event.
type Event struct {
	EventID       EventID         `json:"event_id"`
	EventType     flow.EventType  `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TsEvent       time.Time       `json:"ts_event"`
	TsIngest      time.Time       `json:"ts_ingest"`
	Workflow      string          `json:"workflow"`
	NodeID        string          `json:"node_id,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Port          string          `json:"port,omitempty"`
	LinkID        string          `json:"link_id,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEvent wraps a graph event for persistence.
func NewEvent(workflow string, e flow.Event) *Event {
	return &Event{
		EventID:       EventID(uuid.New().String()),
		EventType:     e.Type,
		SchemaVersion: SchemaVersion,
		TsEvent:       e.Time.UTC(),
		TsIngest:      time.Now().UTC(),
		Workflow:      workflow,
		NodeID:        string(e.Node),
		Kind:          e.Kind,
		Port:          e.Port,
		LinkID:        string(e.Link),
		Detail:        e.Detail,
		Payload:       json.RawMessage(`{}`),
	}
}

// EventFilter defines filters for querying events.
type EventFilter struct {
	From       time.Time
	To         time.Time
	EventTypes []flow.EventType
	Workflow   string
	NodeID     string
	Limit      int
}

// WorkflowInfo describes a saved workflow.
type WorkflowInfo struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int       `json:"size"`
}
