package api

import (
	"github.com/rmax-ai/signalflow/pkg/flow"
)

// NodeRequest matches the POST /v1/nodes body schema
type NodeRequest struct {
	ID         string         `json:"id,omitempty"`
	Kind       string         `json:"kind"`
	Title      string         `json:"title,omitempty"`
	AutoCommit *bool          `json:"auto_commit,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// LinkRequest matches the POST /v1/links body schema
type LinkRequest struct {
	From     string `json:"from"`
	FromPort string `json:"from_port"`
	To       string `json:"to"`
	ToPort   string `json:"to_port"`
}

// AutoCommitRequest matches the POST /v1/nodes/{id}/autocommit body schema
type AutoCommitRequest struct {
	Enabled bool `json:"enabled"`
}

// NodeResponse describes a node after a request changed it. Propagation
// is present when the change was applied but a commit it triggered failed.
type NodeResponse struct {
	flow.NodeSnapshot
	Propagation *CommitResponse `json:"propagation,omitempty"`
}

// LinkResponse is the POST /v1/links body.
type LinkResponse struct {
	flow.Link
	Propagation *CommitResponse `json:"propagation,omitempty"`
}

// CommitResponse reports one propagation wave.
type CommitResponse struct {
	Committed []flow.NodeID `json:"committed"`
	Skipped   []flow.NodeID `json:"skipped"`
	Failed    []flow.NodeID `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// GraphResponse is the GET /v1/graph body.
type GraphResponse struct {
	Workflow string `json:"workflow"`
	flow.Snapshot
}

// OutputResponse is the JSON rendering of an output port.
type OutputResponse struct {
	Node  flow.NodeID    `json:"node"`
	Port  string         `json:"port"`
	State flow.SlotState `json:"state"`
	Type  string         `json:"type,omitempty"`
	Value any            `json:"value,omitempty"`
}

// WorkflowSaved is returned by POST /v1/workflows/{name}.
type WorkflowSaved struct {
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
	Links int    `json:"links"`
	Size  int    `json:"size"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func newCommitResponse(r flow.Report) CommitResponse {
	resp := CommitResponse{
		Committed: nonNil(r.Committed),
		Skipped:   nonNil(r.Skipped),
		Failed:    nonNil(r.Failed),
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

func nonNil(ids []flow.NodeID) []flow.NodeID {
	if ids == nil {
		return []flow.NodeID{}
	}
	return ids
}
