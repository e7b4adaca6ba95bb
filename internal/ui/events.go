package ui

import (
	"fmt"

	"github.com/BioHazard786/Nexus/internal/peer"
)

// FormatEvent renders one mesh event as a single line.
func FormatEvent(e peer.Event) string {
	ts := MutedStyle.Render(e.At.Format("15:04:05"))
	who := PeerStyle.Render(shortPeer(e.Peer))

	var line string
	switch e.Kind {
	case peer.EventJoined:
		line = fmt.Sprintf("%s in room %s", IconRoom, BoldStyle.Render(e.Text))
	case peer.EventMemberArrived:
		line = fmt.Sprintf("%s %s arrived, offering", IconPeer, who)
	case peer.EventMemberLeft:
		line = fmt.Sprintf("%s %s left the room", IconPeer, who)
	case peer.EventOfferSent:
		line = fmt.Sprintf("%s offer sent to the room", IconConnect)
	case peer.EventOfferReceived:
		line = fmt.Sprintf("%s offer from %s, answering", IconConnect, who)
	case peer.EventAnswerReceived:
		line = fmt.Sprintf("%s answer from %s", IconConnect, who)
	case peer.EventConnected:
		line = SuccessStyle.Render(fmt.Sprintf("%s connected to %s", IconSuccess, shortPeer(e.Peer)))
	case peer.EventDisconnected:
		line = WarningStyle.Render(fmt.Sprintf("link to %s ended (%s)", shortPeer(e.Peer), e.Text))
	case peer.EventChannelOpen:
		line = fmt.Sprintf("data channel open with %s", who)
	case peer.EventHello:
		line = fmt.Sprintf("%s %s says hello", IconPeer, PeerStyle.Render(e.Text))
	case peer.EventChat:
		line = fmt.Sprintf("%s %s: %s", IconChat, PeerStyle.Render(e.Peer), e.Text)
	case peer.EventTimeout:
		line = WarningStyle.Render(fmt.Sprintf("%s offer %s went unanswered", IconWaiting, shortPeer(e.Text)))
	case peer.EventError:
		line = ErrorStyle.Render(fmt.Sprintf("%s %v", IconError, e.Err))
	default:
		line = e.Kind.String()
	}
	return ts + " " + line
}

func shortPeer(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
