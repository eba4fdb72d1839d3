package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/signalflow/pkg/client"
	"github.com/rmax-ai/signalflow/pkg/mcp"
)

const requestTimeout = 15 * time.Second

type cli struct {
	addr string
}

func (c *cli) endpoint() string {
	if c.addr != "" && !strings.Contains(c.addr, "://") {
		return "http://" + c.addr
	}
	return c.addr
}

func (c *cli) client() *client.Client {
	return client.NewClient(c.endpoint())
}

func (c *cli) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "signalflow",
		Short:         "Control a running signalflow-d daemon",
		Long:          "signalflow edits and inspects the widget graph served by signalflow-d.",
		Version:       fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", os.Getenv("SIGNALFLOW_ADDR"), "daemon address (default 127.0.0.1:8090)")

	root.AddCommand(
		c.healthCmd(),
		c.graphCmd(),
		c.kindsCmd(),
		c.nodeCmd(),
		c.bindCmd(),
		c.unbindCmd(),
		c.selectCmd(),
		c.inputCmd(),
		c.viewCmd(),
		c.outputCmd(),
		c.eventsCmd(),
		c.workflowCmd(),
		c.reportCmd(),
		c.mcpCmd(),
	)
	return root
}

func (c *cli) healthCmd() *cobra.Command {
	var wait int
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			api := c.client()
			if wait > 0 {
				if err := api.WaitReady(ctx, wait, nil); err != nil {
					return err
				}
			}
			st, err := api.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.Status)
			return nil
		},
	}
	cmd.Flags().IntVar(&wait, "wait", 0, "retry up to this many times before giving up")
	return cmd
}

func (c *cli) graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Show nodes, port states and links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			g, err := c.client().Graph(ctx)
			if err != nil {
				return err
			}
			printGraph(cmd.OutOrStdout(), g)
			return nil
		},
	}
}

func printGraph(out io.Writer, g client.Graph) {
	fmt.Fprintf(out, "Workflow: %s\n\n", g.Workflow)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tKIND\tMODE\tCOMMITS\tINPUTS\tOUTPUTS")
	for _, n := range g.Nodes {
		mode := "auto"
		if !n.AutoCommit {
			mode = "manual"
			if n.Pending {
				mode = "manual*"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", n.ID, n.Kind, mode, n.Commits, ports(n.Inputs), ports(n.Outputs))
	}
	tw.Flush()

	if len(g.Links) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tFROM\tTO")
	for _, l := range g.Links {
		fmt.Fprintf(tw, "%s\t%s.%s\t%s.%s\n", l.ID, l.From, l.FromPort, l.To, l.ToPort)
	}
	tw.Flush()
}

func ports(ps []client.Port) string {
	if len(ps) == 0 {
		return "-"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s=%s", p.Name, p.State)
	}
	return strings.Join(parts, ", ")
}

func (c *cli) kindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List widget kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			kinds, err := c.client().Kinds(ctx)
			if err != nil {
				return err
			}
			for _, k := range kinds {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func (c *cli) nodeCmd() *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Add, remove and commit nodes",
	}

	var (
		id, title, settingsFile string
		manual                  bool
		sets                    []string
	)
	addCmd := &cobra.Command{
		Use:   "add <kind>",
		Short: "Add a widget node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := parseSettings(settingsFile, sets)
			if err != nil {
				return err
			}
			spec := client.NodeSpec{ID: id, Kind: args[0], Title: title, Settings: settings}
			if manual {
				off := false
				spec.AutoCommit = &off
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			n, err := c.client().AddNode(ctx, spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node added: %s (%s)\n", n.ID, n.Kind)
			printPropagation(cmd.OutOrStdout(), n.Propagation)
			return nil
		},
	}
	addCmd.Flags().StringVar(&id, "id", "", "node ID (generated when empty)")
	addCmd.Flags().StringVar(&title, "title", "", "display title")
	addCmd.Flags().BoolVar(&manual, "manual", false, "create with auto-commit off")
	addCmd.Flags().StringVar(&settingsFile, "settings", "", "YAML file with widget settings")
	addCmd.Flags().StringArrayVar(&sets, "set", nil, "setting as key=value, value parsed as YAML (repeatable)")

	rmCmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a node and its links",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			r, err := c.client().RemoveNode(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node removed: %s\n", args[0])
			printPropagation(cmd.OutOrStdout(), r)
			return nil
		},
	}

	commitCmd := &cobra.Command{
		Use:   "commit <id>",
		Short: "Recompute a node and propagate downstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			r, err := c.client().Commit(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Committed: %s\n", joinOrNone(r.Committed))
			if len(r.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped:   %s\n", joinOrNone(r.Skipped))
			}
			return nil
		},
	}

	autoCmd := &cobra.Command{
		Use:       "auto <id> on|off",
		Short:     "Switch a node between automatic and manual commit",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[1] {
			case "on", "true":
				enabled = true
			case "off", "false":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			n, err := c.client().SetAutoCommit(ctx, args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %s auto-commit: %t\n", n.ID, n.AutoCommit)
			return nil
		},
	}

	var (
		setFile string
		setKVs  []string
	)
	setCmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Change settings of an existing node",
		Long:  "Merge settings into a node. Keys left out keep their value; the node recomputes if auto-commit is on.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := parseSettings(setFile, setKVs)
			if err != nil {
				return err
			}
			if len(settings) == 0 {
				return fmt.Errorf("no settings given, use --set or --settings")
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			n, err := c.client().UpdateSettings(ctx, args[0], settings)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %s settings updated\n", n.ID)
			printPropagation(cmd.OutOrStdout(), n.Propagation)
			return nil
		},
	}
	setCmd.Flags().StringVar(&setFile, "settings", "", "YAML file with widget settings")
	setCmd.Flags().StringArrayVar(&setKVs, "set", nil, "setting as key=value, value parsed as YAML (repeatable)")

	nodeCmd.AddCommand(addCmd, rmCmd, commitCmd, autoCmd, setCmd)
	return nodeCmd
}

// printPropagation reports a downstream failure that followed an applied
// change. The change itself stands.
func printPropagation(out io.Writer, r *client.CommitResult) {
	if r == nil {
		return
	}
	fmt.Fprintf(out, "Warning: propagation failed at %s: %s\n", joinOrNone(r.Failed), r.Error)
}

func (c *cli) selectCmd() *cobra.Command {
	var (
		rows  []int
		rect  []float64
		cells []string
	)
	cmd := &cobra.Command{
		Use:   "select <node> <mode>",
		Short: "Set the selection of a plot or matrix widget",
		Long: `Set the selection of a widget.

Modes: none, rows, rect (scatter plot); none, correct, misclassified,
cells (confusion matrix). Rows are positions in the widget's data; cells
are actual:predicted class indices.`,
		Example: `  signalflow select scatter rows --rows 0,4,7
  signalflow select scatter rect --rect 0,0,1.5,2
  signalflow select cm cells --cell 1:0 --cell 0:1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel := client.Selection{Mode: args[1], Rows: rows}
			if len(rect) > 0 {
				if len(rect) != 4 {
					return fmt.Errorf("--rect takes x0,y0,x1,y1")
				}
				sel.Rect = &client.Rect{X0: rect[0], Y0: rect[1], X1: rect[2], Y1: rect[3]}
			}
			for _, cs := range cells {
				cell, err := parseCell(cs)
				if err != nil {
					return err
				}
				sel.Cells = append(sel.Cells, cell)
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			n, err := c.client().Select(ctx, args[0], sel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %s selection: %s\n", n.ID, sel.Mode)
			printPropagation(cmd.OutOrStdout(), n.Propagation)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&rows, "rows", nil, "row positions")
	cmd.Flags().Float64SliceVar(&rect, "rect", nil, "rectangle corners x0,y0,x1,y1")
	cmd.Flags().StringArrayVar(&cells, "cell", nil, "matrix cell as actual:predicted (repeatable)")
	return cmd
}

func parseCell(s string) (client.Cell, error) {
	a, p, ok := strings.Cut(s, ":")
	if !ok {
		return client.Cell{}, fmt.Errorf("invalid cell %q, expected actual:predicted", s)
	}
	var cell client.Cell
	if _, err := fmt.Sscanf(a+" "+p, "%d %d", &cell.Actual, &cell.Predicted); err != nil {
		return client.Cell{}, fmt.Errorf("invalid cell %q: %w", s, err)
	}
	return cell, nil
}

func (c *cli) inputCmd() *cobra.Command {
	var clearPort bool
	cmd := &cobra.Command{
		Use:   "input <node> <port> [value|@file]",
		Short: "Send a value to an unlinked input port",
		Long: `Send a value to an input port that no link feeds.

The value is JSON or YAML: a list of names for attribute lists, or a
table in the shape "output" prints (a domain and rows with id and x). Prefix a path with @
to read the value from a file.`,
		Example: `  signalflow input scatter Features '[sepal length, petal width]'
  signalflow input info Data @iris.json
  signalflow input info Data --clear`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			switch {
			case clearPort:
			case len(args) == 3:
				raw := []byte(args[2])
				if path, ok := strings.CutPrefix(args[2], "@"); ok {
					var err error
					if raw, err = os.ReadFile(path); err != nil {
						return err
					}
				}
				if err := yaml.Unmarshal(raw, &value); err != nil {
					return fmt.Errorf("invalid value: %w", err)
				}
			default:
				return fmt.Errorf("give a value or --clear")
			}
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			n, err := c.client().SetInput(ctx, args[0], args[1], value)
			if err != nil {
				return err
			}
			state := "set"
			if value == nil {
				state = "cleared"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Input %s.%s %s\n", n.ID, args[1], state)
			printPropagation(cmd.OutOrStdout(), n.Propagation)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearPort, "clear", false, "clear the port")
	return cmd
}

func (c *cli) viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <node>",
		Short: "Print what a widget shows: summary, plot points or matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			raw, err := c.client().View(ctx, args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return err
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

// parseSettings merges a YAML settings file with key=value overrides.
func parseSettings(file string, sets []string) (map[string]any, error) {
	settings := map[string]any{}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &settings); err != nil {
			return nil, fmt.Errorf("invalid settings file: %w", err)
		}
	}
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		settings[key] = v
	}
	if len(settings) == 0 {
		return nil, nil
	}
	return settings, nil
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

func (c *cli) bindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind <from> <from_port> <to> <to_port>",
		Short: "Connect an output port to an input port",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			l, err := c.client().Bind(ctx, args[0], args[1], args[2], args[3])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Link %s: %s.%s -> %s.%s\n", l.ID, l.From, l.FromPort, l.To, l.ToPort)
			printPropagation(cmd.OutOrStdout(), l.Propagation)
			return nil
		},
	}
}

func (c *cli) unbindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <link>",
		Short: "Remove a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			r, err := c.client().Unbind(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Link removed: %s\n", args[0])
			printPropagation(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func (c *cli) outputCmd() *cobra.Command {
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "output <node> <port>",
		Short: "Print the value on an output port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			out := cmd.OutOrStdout()
			if asCSV {
				raw, err := c.client().OutputCSV(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = out.Write(raw)
				return err
			}
			o, err := c.client().Output(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if o.State != "set" {
				fmt.Fprintf(out, "%s.%s: %s\n", o.Node, o.Port, o.State)
				return nil
			}
			fmt.Fprintf(out, "%s.%s (%s)\n%s\n", o.Node, o.Port, o.Type, o.Value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "print a table output as CSV")
	return cmd
}

func (c *cli) eventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent graph events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			events, err := c.client().GetEvents(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tNODE\tPORT\tDETAIL")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.TsEvent.Format(time.TimeOnly), e.EventType, e.NodeID, e.Port, e.Detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	return cmd
}

func (c *cli) workflowCmd() *cobra.Command {
	wfCmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Save and inspect stored workflows",
	}
	wfCmd.AddCommand(
		&cobra.Command{
			Use:   "save <name>",
			Short: "Store the running graph under a name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := c.ctx(cmd)
				defer cancel()
				s, err := c.client().SaveWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow saved: %s (%d nodes, %d links)\n", s.Name, s.Nodes, s.Links)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored workflows",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := c.ctx(cmd)
				defer cancel()
				list, err := c.client().ListWorkflows(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tUPDATED\tSIZE")
				for _, w := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", w.Name, w.UpdatedAt.Format(time.RFC3339), w.Size)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "get <name>",
			Short: "Print a stored workflow as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := c.ctx(cmd)
				defer cancel()
				raw, err := c.client().GetWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			},
		},
	)
	return wfCmd
}

func (c *cli) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "report <events|commits>",
		Short:     "Download a CSV report over the event log",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"events", "commits"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.ctx(cmd)
			defer cancel()
			raw, err := c.client().Report(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the daemon over the Model Context Protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(c.endpoint()).Serve()
		},
	}
}
