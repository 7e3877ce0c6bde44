package tui

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mdp/qrterminal/v3"
	"go.sakib.dev/shuttle/server"
)

type stateSource interface {
	GetState() server.ServerState
}

type updateMsg struct{}

type model struct {
	srvr stateSource
}

func newModel(srvr stateSource) model {
	return model{
		srvr: srvr,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case updateMsg:
		// state is re-read in View
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	state := m.srvr.GetState()
	if state.Addr == nil {
		// return a loading indicator
		return "Loading server address...\nPress Ctrl+C or 'q' to quit.\n"
	}

	qr := &strings.Builder{}
	qrterminal.GenerateWithConfig(*state.Addr, qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         qr,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		QuietZone:      1,
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Server running at: %s\nServing: %s\n%s\n", *state.Addr, state.Dir, qr.String())
	fmt.Fprintf(&b, "Active connections: %d\n", len(state.Conns))
	for _, line := range connLines(state, time.Now()) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\nPress Ctrl+C or 'q' to quit.\n")
	return b.String()
}

// connLines renders one line per live connection, oldest first.
func connLines(state server.ServerState, now time.Time) []string {
	conns := make([]*server.Conn, 0, len(state.Conns))
	for _, c := range state.Conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Client.ConnectedAt.Before(conns[j].Client.ConnectedAt)
	})

	lines := make([]string, 0, len(conns))
	for _, c := range conns {
		age := now.Sub(c.Client.ConnectedAt).Truncate(time.Second)
		switch c.Direction {
		case server.DirNone:
			lines = append(lines, fmt.Sprintf("  %s  %-15s  connected %s", c.ID, c.Client.IP, age))
		default:
			lines = append(lines, fmt.Sprintf("  %s  %-15s  %-8s %s  %s  %s/s",
				c.ID, c.Client.IP, c.Direction, c.Filename, transferred(c), sizeString(c.CurSpeed)))
		}
	}
	return lines
}

func transferred(c *server.Conn) string {
	if c.TotalSize > 0 {
		pct := float64(c.Transferred) / float64(c.TotalSize) * 100
		return fmt.Sprintf("%s / %s (%.0f%%)", sizeString(c.Transferred), sizeString(c.TotalSize), pct)
	}
	return sizeString(c.Transferred)
}

func sizeString(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// Start runs the UI until the user quits. Every event name received on ch
// triggers a redraw.
func Start(srvr stateSource, ch <-chan server.ServerEventName) error {
	p := tea.NewProgram(newModel(srvr), tea.WithAltScreen())

	go func() {
		for range ch {
			p.Send(updateMsg{})
		}
	}()

	// Save original stdout
	old := os.Stdout

	// Redirect stdout to /dev/null
	devNull, err := os.Open(os.DevNull)
	if err == nil {
		os.Stdout = devNull
		defer devNull.Close()
	}

	_, runErr := p.Run()
	os.Stdout = old // Restore original stdout
	return runErr
}
