package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/signalflow/pkg/client"
)

// daemon is the part of client.Client the viewer uses.
type daemon interface {
	Graph(ctx context.Context) (client.Graph, error)
	GetEvents(ctx context.Context, limit int) ([]client.Event, error)
	Commit(ctx context.Context, id string) (client.CommitResult, error)
	SetAutoCommit(ctx context.Context, id string, enabled bool) (client.Node, error)
}

type tickMsg time.Time

type dataMsg struct {
	graph     client.Graph
	events    []client.Event
	err       error
	eventsErr error
}

type actionMsg struct {
	text string
	err  error
}

type model struct {
	api       daemon
	spinner   spinner.Model
	viewport  viewport.Model
	graph     client.Graph
	events    []client.Event
	cursor    int
	status    string
	err       error
	eventsErr error
	ready     bool
}

func initialModel(api daemon) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      api,
		spinner:  s,
		viewport: newViewport(100),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.api),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.graph.Nodes)-1 {
				m.cursor++
			}
			return m, nil
		case "c":
			if n, ok := m.selected(); ok {
				return m, commitNode(m.api, n.ID)
			}
			return m, nil
		case "a":
			if n, ok := m.selected(); ok {
				return m, toggleAuto(m.api, n.ID, !n.AutoCommit)
			}
			return m, nil
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.api), tick())

	case dataMsg:
		m.err = msg.err
		if msg.err == nil {
			m.graph = msg.graph
			m.events = msg.events
			m.eventsErr = msg.eventsErr
			if m.cursor >= len(m.graph.Nodes) {
				m.cursor = max(len(m.graph.Nodes)-1, 0)
			}
			m.updateViewportContent()
		}
		m.ready = true

	case actionMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = okStyle.Render(msg.text)
		}
		cmds = append(cmds, fetchData(m.api))

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

func (m model) selected() (client.Node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.graph.Nodes) {
		return client.Node{}, false
	}
	return m.graph.Nodes[m.cursor], true
}

func (m *model) updateViewportContent() {
	var sb strings.Builder
	for _, e := range m.events {
		var typeStr string
		switch {
		case strings.Contains(e.EventType, "failed"):
			typeStr = failStyle.Render(e.EventType)
		case strings.Contains(e.EventType, "cleared") || strings.Contains(e.EventType, "skipped"):
			typeStr = clearedStyle.Render(e.EventType)
		case e.EventType == "node_committed" || e.EventType == "signal_sent":
			typeStr = setStyle.Render(e.EventType)
		default:
			typeStr = infoStyle.Render(e.EventType)
		}

		target := e.NodeID
		if e.Port != "" {
			target += "." + e.Port
		}
		line := fmt.Sprintf("%s %s %s %s\n",
			eventTimeStyle.Render(e.TsEvent.Format("15:04:05")),
			eventTypeStyle.Render(typeStr),
			eventNodeStyle.Render(target),
			subtleStyle.Render(e.Detail),
		)
		sb.WriteString(line)
	}
	m.viewport.SetContent(sb.String())
}

func slot(p client.Port) string {
	label := p.Name
	if p.Required {
		label += "*"
	}
	switch p.State {
	case "set":
		return setStyle.Render(label)
	case "cleared":
		return clearedStyle.Render(label)
	default:
		return unsetStyle.Render(label)
	}
}

func slots(ps []client.Port) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = slot(p)
	}
	return strings.Join(parts, " ")
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting...", m.spinner.View())
	}

	var nodes strings.Builder
	nodes.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Workflow "+m.graph.Workflow) + "\n\n")
	if len(m.graph.Nodes) == 0 {
		nodes.WriteString(subtleStyle.Render("No nodes."))
	}
	for i, n := range m.graph.Nodes {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		mode := "auto"
		if !n.AutoCommit {
			mode = "manual"
			if n.Pending {
				mode = pendingStyle.Render("pending")
			}
		}
		fmt.Fprintf(&nodes, "%s%-12s %-24s %-8s in: %s  out: %s\n",
			prefix, n.ID, n.Kind, mode, slots(n.Inputs), slots(n.Outputs))
	}
	if len(m.graph.Links) > 0 {
		nodes.WriteString("\n")
		for _, l := range m.graph.Links {
			nodes.WriteString(subtleStyle.Render(fmt.Sprintf("%s.%s -> %s.%s", l.From, l.FromPort, l.To, l.ToPort)) + "\n")
		}
	}
	topPane := paneStyle.Render(nodes.String())

	header := headerStyle.Render(fmt.Sprintf("%s Signal Stream", m.spinner.View()))
	bottomPane := m.viewport.View()
	if m.eventsErr != nil {
		bottomPane = subtleStyle.Render(fmt.Sprintf("events unavailable: %v", m.eventsErr))
	}

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d Nodes • %d Links • %d Events",
			len(m.graph.Nodes), len(m.graph.Links), len(m.events)))
	}
	if m.status != "" {
		status += "  " + m.status
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nj/k select • c commit • a toggle auto-commit • q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, bottomPane, footer)
}

// Commands

func fetchData(api daemon) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		g, err := api.Graph(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		events, err := api.GetEvents(ctx, maxEvents)
		return dataMsg{graph: g, events: events, eventsErr: err}
	}
}

func commitNode(api daemon, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		r, err := api.Commit(ctx, id)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("committed %s", strings.Join(r.Committed, ", "))}
	}
}

func toggleAuto(api daemon, id string, enabled bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		n, err := api.SetAutoCommit(ctx, id, enabled)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("%s auto-commit %t", n.ID, n.AutoCommit)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
