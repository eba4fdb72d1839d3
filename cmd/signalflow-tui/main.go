package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/signalflow/pkg/client"
)

const (
	pollRate       = time.Second
	maxEvents      = 30
	viewportHeight = 14
	requestTimeout = 2 * time.Second
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	eventTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	eventTypeStyle = lipgloss.NewStyle().Width(18).Bold(true)
	eventNodeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	// Slot states
	setStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	clearedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	unsetStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func main() {
	addr := flag.String("addr", os.Getenv("SIGNALFLOW_ADDR"), "daemon URL (default http://127.0.0.1:8090)")
	flag.Parse()

	endpoint := *addr
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	p := tea.NewProgram(initialModel(client.NewClient(endpoint)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("signalflow-tui: %v\n", err)
		os.Exit(1)
	}
}
