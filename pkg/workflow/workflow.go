// Package workflow reads and writes workflow documents: the nodes of a
// graph with their settings and the links between them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/signalflow/pkg/flow"
	"github.com/rmax-ai/signalflow/pkg/widgets"
)

var validate = validator.New()

// Node describes one widget instance.
type Node struct {
	ID         string         `yaml:"id" json:"id" validate:"required,excludes=/"`
	Kind       string         `yaml:"kind" json:"kind" validate:"required"`
	Title      string         `yaml:"title,omitempty" json:"title,omitempty"`
	AutoCommit *bool          `yaml:"auto_commit,omitempty" json:"auto_commit,omitempty"`
	Settings   map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Link describes one binding.
type Link struct {
	From     string `yaml:"from" json:"from" validate:"required"`
	FromPort string `yaml:"from_port" json:"from_port" validate:"required"`
	To       string `yaml:"to" json:"to" validate:"required"`
	ToPort   string `yaml:"to_port" json:"to_port" validate:"required"`
}

// Document is a complete workflow.
type Document struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Nodes       []Node `yaml:"nodes" json:"nodes" validate:"dive"`
	Links       []Link `yaml:"links,omitempty" json:"links,omitempty" validate:"dive"`
}

// Parse decodes a YAML or JSON document.
func Parse(raw []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads a document from disk.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	return Parse(raw)
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Validate checks required fields, that node IDs are unique and that links
// refer to declared nodes. Port and type checks happen when the graph is
// built.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid workflow: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return err
	}
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("node %s: duplicate id", n.ID)
		}
		ids[n.ID] = true
	}
	for i, l := range d.Links {
		if !ids[l.From] || !ids[l.To] {
			return fmt.Errorf("link %d: %s -> %s refers to an unknown node", i, l.From, l.To)
		}
	}
	return nil
}

// Build instantiates the document into a new graph. Nodes without required
// inputs are committed once the links are in place so the workflow starts
// computing. Their commit failures are joined and returned with the graph.
func Build(ctx context.Context, d *Document, reg *widgets.Registry, opts ...flow.GraphOption) (*flow.Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	g := flow.NewGraph(opts...)
	var starters []flow.NodeID
	for _, n := range d.Nodes {
		p, err := reg.New(n.Kind, n.Settings)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		nodeOpts := []flow.NodeOption{flow.WithID(flow.NodeID(n.ID))}
		if n.Title != "" {
			nodeOpts = append(nodeOpts, flow.WithTitle(n.Title))
		}
		if n.AutoCommit != nil {
			nodeOpts = append(nodeOpts, flow.WithAutoCommit(*n.AutoCommit))
		}
		node, err := g.AddNode(p, nodeOpts...)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if p.Signature().SelfStarting() {
			starters = append(starters, node.ID())
		}
	}
	var errs []error
	for _, l := range d.Links {
		_, err := g.Bind(ctx, flow.NodeID(l.From), l.FromPort, flow.NodeID(l.To), l.ToPort)
		switch {
		case errors.Is(err, flow.ErrPropagation):
			errs = append(errs, err)
		case err != nil:
			return nil, err
		}
	}

	for _, id := range starters {
		if _, err := g.Commit(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return g, errors.Join(errs...)
}

// Capture records a graph as a document.
func Capture(name string, s flow.Snapshot) *Document {
	d := &Document{Name: name}
	for _, n := range s.Nodes {
		auto := n.AutoCommit
		d.Nodes = append(d.Nodes, Node{
			ID:         string(n.ID),
			Kind:       n.Kind,
			Title:      n.Title,
			AutoCommit: &auto,
			Settings:   n.Settings,
		})
	}
	for _, l := range s.Links {
		d.Links = append(d.Links, Link{
			From:     string(l.From),
			FromPort: l.FromPort,
			To:       string(l.To),
			ToPort:   l.ToPort,
		})
	}
	return d
}
