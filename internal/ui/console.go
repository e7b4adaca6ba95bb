package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Nexus/internal/peer"
)

const logLines = 12

// MeshView is what the console needs from a running mesh peer.
type MeshView interface {
	Name() string
	RoomID() string
	Events() <-chan peer.Event
	Peers() []peer.PeerInfo
	Broadcast(text string) (int, error)
}

type eventMsg peer.Event

type eventsClosedMsg struct{}

type refreshMsg time.Time

// ConsoleModel is the interactive peer console: live peers, an event log and
// a chat input.
type ConsoleModel struct {
	mesh    MeshView
	input   textinput.Model
	spinner spinner.Model

	log    []string
	peers  []peer.PeerInfo
	joined bool
	ended  bool
}

func NewConsoleModel(mesh MeshView) ConsoleModel {
	in := textinput.New()
	in.Placeholder = "type a message, enter to send"
	in.Prompt = "› "
	in.CharLimit = 1024
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return ConsoleModel{mesh: mesh, input: in, spinner: s}
}

func (m ConsoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForEvent(), refresh())
}

func (m ConsoleModel) waitForEvent() tea.Cmd {
	events := m.mesh.Events()
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.send(strings.TrimSpace(m.input.Value()))
			m.input.Reset()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case eventMsg:
		e := peer.Event(msg)
		if e.Kind == peer.EventJoined {
			m.joined = true
		}
		m.appendLog(FormatEvent(e))
		m.peers = m.mesh.Peers()
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.ended = true
		return m, tea.Quit

	case refreshMsg:
		m.peers = m.mesh.Peers()
		return m, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ConsoleModel) send(text string) {
	if text == "" {
		return
	}
	n, err := m.mesh.Broadcast(text)
	switch {
	case errors.Is(err, peer.ErrNoPeers):
		m.appendLog(WarningStyle.Render("nobody to send to yet"))
	case err != nil:
		m.appendLog(ErrorStyle.Render(err.Error()))
	default:
		m.appendLog(fmt.Sprintf("%s %s: %s %s", IconChat, PeerStyle.Render(m.mesh.Name()), text,
			MutedStyle.Render(fmt.Sprintf("(%d)", n))))
	}
}

func (m *ConsoleModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m ConsoleModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("nexus · %s · room %s", m.mesh.Name(), m.mesh.RoomID())))
	b.WriteString("\n\n")

	if !m.joined && !m.ended {
		b.WriteString(fmt.Sprintf("%s connecting to relay...\n\n", m.spinner.View()))
	}

	b.WriteString(PeersTableView(m.peers))
	b.WriteString("\n\n")

	for _, line := range m.log {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString(FooterStyle.Render("enter to send · esc to quit"))
	b.WriteString("\n")
	return b.String()
}

// RunConsole runs the console until the user quits, ctx ends or the mesh
// stops.
func RunConsole(ctx context.Context, mesh MeshView) error {
	p := tea.NewProgram(NewConsoleModel(mesh), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

// RunPlain prints every event as a line until the mesh stops or ctx ends.
func RunPlain(ctx context.Context, mesh MeshView) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-mesh.Events():
			if !ok {
				return
			}
			fmt.Fprintln(Output, FormatEvent(e))
		}
	}
}
