// Package relayclient is the client side of the relay protocol: a websocket
// connection with read/write pumps and a handler that sorts server frames by
// kind.
package relayclient

import (
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Nexus/internal/signaling"
)

// Message is every frame the headless peer sends or receives. The relay only
// reads Type and RoomID; From, To, Session, SDP and Candidate ride in the
// opaque payload and are interpreted by peers.
type Message struct {
	Type         signaling.Kind `json:"type"`
	RoomID       string         `json:"roomId,omitempty"`
	ConnectionID string         `json:"connectionId,omitempty"`

	// From is the sending peer's id. To is empty for room-wide offers.
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Session string `json:"session,omitempty"`

	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// AddressedTo reports whether a relayed frame is meant for peer id.
func (m Message) AddressedTo(id string) bool {
	return m.From != id && (m.To == "" || m.To == id)
}
