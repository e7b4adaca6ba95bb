package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Nexus/internal/peer"
	"github.com/BioHazard786/Nexus/internal/signaling"
)

type fakeMesh struct {
	events chan peer.Event
	peers  []peer.PeerInfo
	sent   []string
	err    error
}

func (f *fakeMesh) Name() string              { return "alice" }
func (f *fakeMesh) RoomID() string            { return "kitten-waffle" }
func (f *fakeMesh) Events() <-chan peer.Event { return f.events }
func (f *fakeMesh) Peers() []peer.PeerInfo    { return f.peers }
func (f *fakeMesh) Broadcast(text string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, text)
	return len(f.peers), nil
}

func TestRoomsTableView(t *testing.T) {
	out := RoomsTableView("http://relay:8080", []signaling.RoomInfo{
		{ID: "alpha", Members: 2},
		{ID: "beta", Members: 1},
	}, 3)

	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "2 rooms, 3 connections")
	assert.Contains(t, out, "http://relay:8080")

	assert.Contains(t, RoomsTableView("x", nil, 0), "(no rooms)")
}

func TestPeersTableView(t *testing.T) {
	assert.Contains(t, PeersTableView(nil), "No peers yet")

	out := PeersTableView([]peer.PeerInfo{
		{ID: "0123456789", Name: "bob", State: webrtc.PeerConnectionStateConnected, Open: true},
	})
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "open")
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	line := FormatEvent(peer.Event{Kind: peer.EventChat, Peer: "bob", Text: "hi there", At: at})
	assert.Contains(t, line, "15:04:05")
	assert.Contains(t, line, "bob")
	assert.Contains(t, line, "hi there")

	line = FormatEvent(peer.Event{Kind: peer.EventOfferReceived, Peer: "0123456789abcdef", At: at})
	assert.Contains(t, line, "01234567")
	assert.NotContains(t, line, "89abcdef")

	line = FormatEvent(peer.Event{Kind: peer.EventError, Err: errors.New("boom"), At: at})
	assert.Contains(t, line, "boom")
}

func TestConsoleSendsOnEnter(t *testing.T) {
	mesh := &fakeMesh{events: make(chan peer.Event), peers: []peer.PeerInfo{{ID: "b", Name: "bob"}}}
	m := NewConsoleModel(mesh)

	for _, r := range "hello" {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(ConsoleModel)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ConsoleModel)

	assert.Equal(t, []string{"hello"}, mesh.sent)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.log, 1)
	assert.Contains(t, m.log[0], "hello")

	// Blank lines are not sent.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ConsoleModel)
	assert.Len(t, mesh.sent, 1)
}

func TestConsoleWarnsWithoutPeers(t *testing.T) {
	mesh := &fakeMesh{events: make(chan peer.Event), err: peer.ErrNoPeers}
	m := NewConsoleModel(mesh)
	m.input.SetValue("anyone?")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ConsoleModel)
	require.Len(t, m.log, 1)
	assert.Contains(t, m.log[0], "nobody to send to yet")
}

func TestConsoleEvents(t *testing.T) {
	mesh := &fakeMesh{events: make(chan peer.Event, 1)}
	m := NewConsoleModel(mesh)
	assert.Contains(t, m.View(), "connecting to relay")

	next, cmd := m.Update(eventMsg(peer.Event{Kind: peer.EventJoined, Text: "kitten-waffle", At: time.Now()}))
	m = next.(ConsoleModel)
	require.NotNil(t, cmd, "keeps listening for events")
	assert.True(t, m.joined)
	assert.NotContains(t, m.View(), "connecting to relay")

	for i := range logLines + 5 {
		next, _ = m.Update(eventMsg(peer.Event{Kind: peer.EventChat, Peer: "bob", Text: strings.Repeat("x", i)}))
		m = next.(ConsoleModel)
	}
	assert.Len(t, m.log, logLines)

	close(mesh.events)
	msg := m.waitForEvent()()
	assert.Equal(t, eventsClosedMsg{}, msg)

	next, cmd = m.Update(msg)
	m = next.(ConsoleModel)
	assert.True(t, m.ended)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRunPlain(t *testing.T) {
	var buf bytes.Buffer
	orig := Output
	Output = &buf
	t.Cleanup(func() { Output = orig })

	mesh := &fakeMesh{events: make(chan peer.Event, 2)}
	mesh.events <- peer.Event{Kind: peer.EventJoined, Text: "R", At: time.Now()}
	close(mesh.events)

	RunPlain(t.Context(), mesh)
	assert.Contains(t, buf.String(), "in room")
}
