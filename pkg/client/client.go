package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a signalflow daemon.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a new signalflow client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status)
	return status, err
}

// WaitReady pings the daemon until it answers. A nil backoff uses
// DefaultBackoff.
func (c *Client) WaitReady(ctx context.Context, attempts int, backoff Backoff) error {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = c.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-time.After(backoff(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("daemon not ready after %d attempts: %w", attempts, err)
}

// Graph returns the running graph.
func (c *Client) Graph(ctx context.Context) (Graph, error) {
	var g Graph
	err := c.do(ctx, http.MethodGet, "/v1/graph", nil, &g)
	return g, err
}

// Kinds lists the widget kinds the daemon can create.
func (c *Client) Kinds(ctx context.Context) ([]string, error) {
	var kinds []string
	err := c.do(ctx, http.MethodGet, "/v1/kinds", nil, &kinds)
	return kinds, err
}

// AddNode creates a widget node.
func (c *Client) AddNode(ctx context.Context, spec NodeSpec) (Node, error) {
	if spec.Kind == "" {
		return Node{}, fmt.Errorf("invalid node: missing kind")
	}
	var n Node
	err := c.do(ctx, http.MethodPost, "/v1/nodes", spec, &n)
	return n, err
}

// RemoveNode deletes a node and its links. The returned result is non-nil
// only when a downstream commit failed after the removal.
func (c *Client) RemoveNode(ctx context.Context, id string) (*CommitResult, error) {
	var r *CommitResult
	err := c.do(ctx, http.MethodDelete, "/v1/nodes/"+url.PathEscape(id), nil, &r)
	return r, err
}

// Commit recomputes a node and propagates downstream. A processor failure
// comes back as an *APIError with code "commit_failed".
func (c *Client) Commit(ctx context.Context, id string) (CommitResult, error) {
	var r CommitResult
	err := c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(id)+"/commit", nil, &r)
	return r, err
}

// SetAutoCommit switches a node between automatic and manual commits.
func (c *Client) SetAutoCommit(ctx context.Context, id string, enabled bool) (Node, error) {
	var n Node
	body := map[string]bool{"enabled": enabled}
	err := c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(id)+"/autocommit", body, &n)
	return n, err
}

// Select applies a selection to a scatter plot or confusion matrix.
func (c *Client) Select(ctx context.Context, id string, sel Selection) (Node, error) {
	var n Node
	err := c.do(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(id)+"/selection", sel, &n)
	return n, err
}

// UpdateSettings merges settings into a widget. Keys left out keep their
// value.
func (c *Client) UpdateSettings(ctx context.Context, id string, settings map[string]any) (Node, error) {
	var n Node
	err := c.do(ctx, http.MethodPut, "/v1/nodes/"+url.PathEscape(id)+"/settings", settings, &n)
	return n, err
}

// SetInput feeds a value into an unbound input port. Tables take the shape
// Output returns, feature lists are string slices, and nil clears the port.
func (c *Client) SetInput(ctx context.Context, id, port string, value any) (Node, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Node{}, fmt.Errorf("failed to marshal value: %w", err)
	}
	var n Node
	path := "/v1/nodes/" + url.PathEscape(id) + "/inputs/" + url.PathEscape(port)
	err = c.do(ctx, http.MethodPut, path, json.RawMessage(raw), &n)
	return n, err
}

// View returns a widget's display state, such as a scatter plot's axes or
// a confusion matrix in its current quantity.
func (c *Client) View(ctx context.Context, id string) (json.RawMessage, error) {
	var v json.RawMessage
	err := c.do(ctx, http.MethodGet, "/v1/nodes/"+url.PathEscape(id)+"/view", nil, &v)
	return v, err
}

// Output reads the last value emitted on a port.
func (c *Client) Output(ctx context.Context, id, port string) (Output, error) {
	var o Output
	err := c.do(ctx, http.MethodGet, outputPath(id, port), nil, &o)
	return o, err
}

// OutputCSV reads a table output as CSV.
func (c *Client) OutputCSV(ctx context.Context, id, port string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, outputPath(id, port)+"?format=csv", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func outputPath(id, port string) string {
	return "/v1/nodes/" + url.PathEscape(id) + "/outputs/" + url.PathEscape(port)
}

// Bind connects an output port to an input port.
func (c *Client) Bind(ctx context.Context, from, fromPort, to, toPort string) (Link, error) {
	var l Link
	body := Link{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	err := c.do(ctx, http.MethodPost, "/v1/links", body, &l)
	return l, err
}

// Unbind removes a link. The returned result is non-nil only when a
// downstream commit failed after the link was removed.
func (c *Client) Unbind(ctx context.Context, linkID string) (*CommitResult, error) {
	var r *CommitResult
	err := c.do(ctx, http.MethodDelete, "/v1/links/"+url.PathEscape(linkID), nil, &r)
	return r, err
}

// GetEvents fetches recent events from the daemon, newest first.
func (c *Client) GetEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []Event
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/events?limit=%d", limit), nil, &events)
	return events, err
}

// SaveWorkflow stores the running graph under name.
func (c *Client) SaveWorkflow(ctx context.Context, name string) (WorkflowSaved, error) {
	var saved WorkflowSaved
	err := c.do(ctx, http.MethodPost, "/v1/workflows/"+url.PathEscape(name), nil, &saved)
	return saved, err
}

// ListWorkflows lists the saved workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowInfo, error) {
	var list []WorkflowInfo
	err := c.do(ctx, http.MethodGet, "/v1/workflows", nil, &list)
	return list, err
}

// GetWorkflow returns a saved workflow document as YAML.
func (c *Client) GetWorkflow(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/v1/workflows/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Report downloads a CSV report over the event log.
func (c *Client) Report(ctx context.Context, reportType string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/v1/reports?type="+url.QueryEscape(reportType), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs the request. Non-2xx responses are returned as *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		var r CommitResult
		if json.Unmarshal(raw, &r) == nil && r.Committed != nil {
			apiErr.Code, apiErr.Details = "commit_failed", r.Error
		}
	}
	return nil, apiErr
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
