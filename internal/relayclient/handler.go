package relayclient

import "github.com/BioHazard786/Nexus/internal/signaling"

// Handler routes incoming relay frames to typed channels.
type Handler struct {
	client *Client

	// RoomCreated carries the confirmed room id.
	RoomCreated chan string
	// PeerJoined carries the relay connection id of a newcomer.
	PeerJoined chan string
	// PeerLeft carries the relay connection id of a departed member. The
	// relay only sends these when leave notification is enabled.
	PeerLeft chan string
	// Signal carries offers, answers and ICE candidates.
	Signal chan Message
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:      client,
		RoomCreated: make(chan string, 1),
		PeerJoined:  make(chan string, 16),
		PeerLeft:    make(chan string, 16),
		Signal:      make(chan Message, 64),
	}
}

// Start routes frames until the connection ends, then closes every channel.
// Frames of kinds the handler does not know are dropped.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case signaling.KindRoomCreated:
			h.deliverRoomCreated(msg.RoomID)

		case signaling.KindUserConnected:
			forward(h, h.PeerJoined, msg.ConnectionID)

		case signaling.KindUserDisconnected:
			forward(h, h.PeerLeft, msg.ConnectionID)

		case signaling.KindOffer, signaling.KindAnswer, signaling.KindIceCandidate:
			forward(h, h.Signal, msg)
		}
	}
}

// forward blocks until the consumer takes v or the client is closed.
func forward[T any](h *Handler, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.client.Done():
	}
}

// deliverRoomCreated keeps only the latest confirmation if nobody consumed
// the previous one.
func (h *Handler) deliverRoomCreated(roomID string) {
	select {
	case h.RoomCreated <- roomID:
	default:
		select {
		case <-h.RoomCreated:
		default:
		}
		h.RoomCreated <- roomID
	}
}

func (h *Handler) close() {
	close(h.RoomCreated)
	close(h.PeerJoined)
	close(h.PeerLeft)
	close(h.Signal)
}
