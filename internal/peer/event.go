package peer

import "time"

type EventKind int

const (
	EventJoined EventKind = iota
	EventMemberArrived
	EventMemberLeft
	EventOfferSent
	EventOfferReceived
	EventAnswerReceived
	EventConnected
	EventDisconnected
	EventChannelOpen
	EventHello
	EventChat
	EventTimeout
	EventError
)

var eventNames = [...]string{
	EventJoined:         "joined",
	EventMemberArrived:  "member-arrived",
	EventMemberLeft:     "member-left",
	EventOfferSent:      "offer-sent",
	EventOfferReceived:  "offer-received",
	EventAnswerReceived: "answer-received",
	EventConnected:      "connected",
	EventDisconnected:   "disconnected",
	EventChannelOpen:    "channel-open",
	EventHello:          "hello",
	EventChat:           "chat",
	EventTimeout:        "timeout",
	EventError:          "error",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is something the UI may want to show. Peer is a remote peer id or,
// for member events, a relay connection id.
type Event struct {
	Kind EventKind
	Peer string
	Text string
	Err  error
	At   time.Time
}
