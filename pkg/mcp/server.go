package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/signalflow/pkg/client"
)

// Server adapts signalflow-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"signalflow",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"signalflow://graph",
		"Signalflow Graph",
		mcp.WithResourceDescription("Nodes, ports with their slot states, and links of the running workflow"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraph)

	s.mcpServer.AddResource(mcp.NewResource(
		"signalflow://events",
		"Signalflow Event Log",
		mcp.WithResourceDescription("Recent commits, emitted signals and binding changes"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadEvents)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"commit_node",
		mcp.WithDescription("Recompute a node and propagate its outputs downstream."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The node to commit")),
	), s.handleCommitNode)

	s.mcpServer.AddTool(mcp.NewTool(
		"bind_ports",
		mcp.WithDescription("Connect an output port to an input port. Fails on type mismatch, cycles, or an already bound input."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Producer node ID")),
		mcp.WithString("from_port", mcp.Required(), mcp.Description("Producer output port, e.g. 'Selected Data'")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Consumer node ID")),
		mcp.WithString("to_port", mcp.Required(), mcp.Description("Consumer input port, e.g. 'Data'")),
	), s.handleBindPorts)

	s.mcpServer.AddTool(mcp.NewTool(
		"set_autocommit",
		mcp.WithDescription("Switch a node between automatic and manual commit."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The node to configure")),
		mcp.WithBoolean("enabled", mcp.Required(), mcp.Description("true for auto-commit")),
	), s.handleSetAutoCommit)

	s.mcpServer.AddTool(mcp.NewTool(
		"read_output",
		mcp.WithDescription("Read the last value a node emitted on an output port."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The producer node")),
		mcp.WithString("port", mcp.Required(), mcp.Description("The output port")),
	), s.handleReadOutput)

	s.mcpServer.AddTool(mcp.NewTool(
		"select",
		mcp.WithDescription("Set the selection of a Scatter Plot (rows, rect, none) or a Confusion Matrix (correct, misclassified, cells, none)."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The widget to select in")),
		mcp.WithString("mode", mcp.Required(), mcp.Description("Selection mode"),
			mcp.Enum("none", "rows", "rect", "correct", "misclassified", "cells")),
		mcp.WithString("rows", mcp.Description("Comma separated row positions, for mode 'rows'")),
		mcp.WithString("rect", mcp.Description("Corners 'x0,y0,x1,y1' in plot coordinates, for mode 'rect'")),
		mcp.WithString("cells", mcp.Description("Space separated 'actual:predicted' class indices, for mode 'cells'")),
	), s.handleSelect)

	s.mcpServer.AddTool(mcp.NewTool(
		"update_settings",
		mcp.WithDescription("Merge settings into a widget, e.g. a scatter plot's axes or a confusion matrix's quantity. Keys left out keep their value."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The widget to configure")),
		mcp.WithString("settings", mcp.Required(), mcp.Description(`JSON object, e.g. {"quantity": "proportions"}`)),
	), s.handleUpdateSettings)

	s.mcpServer.AddTool(mcp.NewTool(
		"set_input",
		mcp.WithDescription("Send a value to an input port no link feeds. A null value clears the port."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The consumer node")),
		mcp.WithString("port", mcp.Required(), mcp.Description("The input port")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON value: a list of names for attribute lists, or a table as read_output prints it")),
	), s.handleSetInput)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"signalflow-aware",
		mcp.WithPromptDescription("Explains signalflow concepts (nodes, ports, slot states, commits)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	g, err := s.apiClient.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}
	return jsonContents(request.Params.URI, g)
}

func (s *Server) handleReadEvents(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	events, err := s.apiClient.GetEvents(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return jsonContents(request.Params.URI, events)
}

func (s *Server) handleCommitNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "node_id", "")
	if id == "" {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	res, err := s.apiClient.Commit(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	msg := fmt.Sprintf("Committed: %s\nSkipped (missing required input): %s",
		list(res.Committed), list(res.Skipped))
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) handleBindPorts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := mcp.ParseString(request, "from", "")
	fromPort := mcp.ParseString(request, "from_port", "")
	to := mcp.ParseString(request, "to", "")
	toPort := mcp.ParseString(request, "to_port", "")

	link, err := s.apiClient.Bind(ctx, from, fromPort, to, toPort)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Bound %s: %s.%s -> %s.%s%s",
		link.ID, link.From, link.FromPort, link.To, link.ToPort, propagation(link.Propagation))), nil
}

func (s *Server) handleSetAutoCommit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "node_id", "")
	enabled := mcp.ParseBoolean(request, "enabled", true)

	n, err := s.apiClient.SetAutoCommit(ctx, id, enabled)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	mode := "manual"
	if n.AutoCommit {
		mode = "auto"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Node %s commit mode: %s (pending: %t)", n.ID, mode, n.Pending)), nil
}

func (s *Server) handleReadOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "node_id", "")
	port := mcp.ParseString(request, "port", "")

	out, err := s.apiClient.Output(ctx, id, port)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if out.State != "set" {
		return mcp.NewToolResultText(fmt.Sprintf("%s.%s is %s", id, port, out.State)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s.%s (%s): %s", id, port, out.Type, out.Value)), nil
}

func (s *Server) handleSelect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "node_id", "")
	sel, err := parseSelection(
		mcp.ParseString(request, "mode", ""),
		mcp.ParseString(request, "rows", ""),
		mcp.ParseString(request, "rect", ""),
		mcp.ParseString(request, "cells", ""),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.apiClient.Select(ctx, id, sel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Node %s selection: %s%s", n.ID, sel.Mode, propagation(n.Propagation))), nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "node_id", "")
	var settings map[string]any
	if err := json.Unmarshal([]byte(mcp.ParseString(request, "settings", "")), &settings); err != nil || len(settings) == 0 {
		return mcp.NewToolResultError("settings must be a non-empty JSON object"), nil
	}
	n, err := s.apiClient.UpdateSettings(ctx, id, settings)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Node %s settings updated%s", n.ID, propagation(n.Propagation))), nil
}

func (s *Server) handleSetInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "node_id", "")
	port := mcp.ParseString(request, "port", "")
	raw := mcp.ParseString(request, "value", "")
	if !json.Valid([]byte(raw)) {
		return mcp.NewToolResultError("value must be JSON"), nil
	}
	n, err := s.apiClient.SetInput(ctx, id, port, json.RawMessage(raw))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Input %s.%s updated%s", n.ID, port, propagation(n.Propagation))), nil
}

// parseSelection reads the flat string arguments of the select tool.
func parseSelection(mode, rows, rect, cells string) (client.Selection, error) {
	sel := client.Selection{Mode: mode}
	if mode == "" {
		return sel, fmt.Errorf("mode is required")
	}
	for _, f := range strings.FieldsFunc(rows, isSep) {
		i, err := strconv.Atoi(f)
		if err != nil {
			return sel, fmt.Errorf("invalid row %q", f)
		}
		sel.Rows = append(sel.Rows, i)
	}
	if rect != "" {
		var r client.Rect
		parts := strings.FieldsFunc(rect, isSep)
		if len(parts) != 4 {
			return sel, fmt.Errorf("rect takes x0,y0,x1,y1")
		}
		for i, dst := range []*float64{&r.X0, &r.Y0, &r.X1, &r.Y1} {
			v, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				return sel, fmt.Errorf("invalid rect corner %q", parts[i])
			}
			*dst = v
		}
		sel.Rect = &r
	}
	for _, f := range strings.FieldsFunc(cells, isSep) {
		a, p, ok := strings.Cut(f, ":")
		actual, errA := strconv.Atoi(a)
		predicted, errP := strconv.Atoi(p)
		if !ok || errA != nil || errP != nil {
			return sel, fmt.Errorf("invalid cell %q, expected actual:predicted", f)
		}
		sel.Cells = append(sel.Cells, client.Cell{Actual: actual, Predicted: predicted})
	}
	return sel, nil
}

func isSep(r rune) bool { return r == ',' || r == ' ' }

func propagation(r *client.CommitResult) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("\nWarning: downstream commit failed at %s: %s", list(r.Failed), r.Error)
}

func list(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "signalflow-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are operating a signalflow workflow: a graph of data-mining widgets connected by typed signals.

Concepts:
- Node: a widget instance (Table, Mean Learner, Scatter Plot, Confusion Matrix, ...) with named input and output ports.
- Link: connects one output port to one input port of matching type. An input accepts a single link; cycles are rejected.
- Slot state: an input is "unset" (never received), "cleared" (producer sent no value) or "set".
- Commit: recomputes a node. Auto-commit nodes recompute whenever an input changes; manual nodes only mark themselves pending.
- A commit with a required input missing is skipped and leaves outputs unchanged.

Read signalflow://graph before changing anything. Use 'bind_ports' to connect widgets, 'commit_node' to push a pending manual node,
and 'read_output' to inspect results. 'select' picks rows in a Scatter Plot or cells in a Confusion Matrix, 'update_settings'
changes a widget's settings, and 'set_input' feeds a value into an unlinked input.
`

	return mcp.NewGetPromptResult(
		"signalflow-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
