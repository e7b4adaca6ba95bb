package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Nexus/internal/peer"
	"github.com/BioHazard786/Nexus/internal/signaling"
)

// RoomsTableView renders the relay's live rooms as a go-pretty table.
func RoomsTableView(server string, rooms []signaling.RoomInfo, connections int) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgHiCyan, text.Bold}
	t.Style().Color.Footer = text.Colors{text.FgHiBlack}
	t.Style().Format.Footer = text.FormatDefault
	t.Style().Title.Format = text.FormatDefault
	t.SetTitle("%s Rooms on %s", IconRoom, server)

	t.AppendHeader(table.Row{"#", "Room", "Members"})
	members := 0
	for i, r := range rooms {
		t.AppendRow(table.Row{i + 1, r.ID, r.Members})
		members += r.Members
	}
	if len(rooms) == 0 {
		t.AppendRow(table.Row{"", "(no rooms)", ""})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d rooms, %d connections", len(rooms), connections), members})

	return t.Render()
}

// PeersTableView renders the mesh links of a peer.
func PeersTableView(peers []peer.PeerInfo) string {
	if len(peers) == 0 {
		return MutedStyle.Render("No peers yet")
	}

	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		channel := "closed"
		if p.Open {
			channel = "open"
		}
		rows = append(rows, []string{p.Label(), p.State.String(), channel})
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Peer", "Connection", "Channel").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomInfoView is the box shown once a peer has entered a room.
func RoomInfoView(roomID, server string, created bool) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	title := "Joined room"
	if created {
		title = "Room created"
	}
	content := fmt.Sprintf("%s %s\n\n%s Room ID:  %s\n%s Relay:    %s\n\nJoin with: %s",
		IconSuccess, title,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconConnect, MutedStyle.Render(server),
		MutedStyle.Render("nexus peer --join "+roomID),
	)
	return boxStyle.Render(content)
}
