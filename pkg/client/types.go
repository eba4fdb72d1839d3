package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the health check response.
type Status struct {
	Status string `json:"status"`
}

// Port is one node port as reported by the daemon.
type Port struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	State    string `json:"state"`
	Link     string `json:"link,omitempty"`
}

// Node is a widget instance in the running graph.
type Node struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Title      string         `json:"title"`
	AutoCommit bool           `json:"auto_commit"`
	Dirty      bool           `json:"dirty"`
	Pending    bool           `json:"pending"`
	Commits    int            `json:"commits"`
	Inputs     []Port         `json:"inputs"`
	Outputs    []Port         `json:"outputs"`
	Settings   map[string]any `json:"settings,omitempty"`
	// Propagation is set when the request was applied but a commit it
	// triggered failed.
	Propagation *CommitResult `json:"propagation,omitempty"`
}

// Link connects an output port to an input port.
type Link struct {
	ID          string        `json:"id"`
	From        string        `json:"from"`
	FromPort    string        `json:"from_port"`
	To          string        `json:"to"`
	ToPort      string        `json:"to_port"`
	Propagation *CommitResult `json:"propagation,omitempty"`
}

// Cell is one confusion matrix cell.
type Cell struct {
	Actual    int `json:"actual"`
	Predicted int `json:"predicted"`
}

// Rect is a rectangle in plot coordinates.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Selection is sent to widgets that select rows: "rows" and "rect" for a
// scatter plot; "correct", "misclassified" and "cells" for a confusion
// matrix; "none" for both.
type Selection struct {
	Mode  string `json:"mode"`
	Rows  []int  `json:"rows,omitempty"`
	Rect  *Rect  `json:"rect,omitempty"`
	Cells []Cell `json:"cells,omitempty"`
}

// Graph is the daemon's current graph.
type Graph struct {
	Workflow string `json:"workflow"`
	Nodes    []Node `json:"nodes"`
	Links    []Link `json:"links"`
}

// NodeSpec describes a node to create. Empty fields take daemon defaults.
type NodeSpec struct {
	ID         string         `json:"id,omitempty"`
	Kind       string         `json:"kind"`
	Title      string         `json:"title,omitempty"`
	AutoCommit *bool          `json:"auto_commit,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// CommitResult lists what one propagation wave did.
type CommitResult struct {
	Committed []string `json:"committed"`
	Skipped   []string `json:"skipped"`
	Failed    []string `json:"failed"`
	Error     string   `json:"error,omitempty"`
}

// Output is the value on an output port. Value is left encoded; its shape
// depends on Type.
type Output struct {
	Node  string          `json:"node"`
	Port  string          `json:"port"`
	State string          `json:"state"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Event is one entry of the signal event log.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
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

// WorkflowInfo describes a saved workflow.
type WorkflowInfo struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int       `json:"size"`
}

// WorkflowSaved is returned after saving the running graph.
type WorkflowSaved struct {
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
	Links int    `json:"links"`
	Size  int    `json:"size"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("signalflow: %d %s: %s", e.StatusCode, e.Code, e.Details)
	}
	return fmt.Sprintf("signalflow: %d %s", e.StatusCode, e.Code)
}
