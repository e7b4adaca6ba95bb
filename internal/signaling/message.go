// Package signaling implements the room relay: a registry of rooms, a pure
// router that turns inbound frames into fan-out decisions, and the hub that
// applies those decisions to live websocket connections.
package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Kind is the value of the "type" field carried by every frame.
type Kind string

// Client to server kinds.
const (
	KindCreateRoom   Kind = "create-room"
	KindJoinRoom     Kind = "join-room"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindIceCandidate Kind = "ice-candidate"
)

// Server to client kinds. Offer, answer and ice-candidate are relayed under
// their inbound kind.
const (
	KindRoomCreated      Kind = "room-created"
	KindUserConnected    Kind = "user-connected"
	KindUserDisconnected Kind = "user-disconnected"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
	ErrMissingRoom = errors.New("missing roomId")
)

// ConnID is the opaque identity assigned to a connection when its handshake
// completes.
type ConnID string

// Relayed reports whether messages of this kind are fanned out to the other
// members of a room without touching the registry.
func (k Kind) Relayed() bool {
	switch k {
	case KindOffer, KindAnswer, KindIceCandidate:
		return true
	}
	return false
}

func (k Kind) inbound() bool {
	return k == KindCreateRoom || k == KindJoinRoom || k.Relayed()
}

// Inbound is a validated client frame. Payload holds every top-level field
// other than "type" and "roomId", each kept as the raw JSON the sender wrote.
type Inbound struct {
	Type    Kind
	RoomID  string
	Payload map[string]json.RawMessage

	// From is stamped by the gateway; it is never read off the wire.
	From ConnID
}

// DecodeInbound validates the envelope of a client frame. The payload is left
// uninterpreted.
func DecodeInbound(data []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return Inbound{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	var kind string
	if err := json.Unmarshal(rawType, &kind); err != nil {
		return Inbound{}, fmt.Errorf("%w: type must be a string", ErrMalformed)
	}
	if !Kind(kind).inbound() {
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}

	rawRoom, ok := fields["roomId"]
	if !ok {
		return Inbound{}, ErrMissingRoom
	}
	var roomID string
	if err := json.Unmarshal(rawRoom, &roomID); err != nil {
		return Inbound{}, fmt.Errorf("%w: roomId must be a string", ErrMalformed)
	}
	if roomID == "" {
		return Inbound{}, ErrMissingRoom
	}

	delete(fields, "type")
	delete(fields, "roomId")

	return Inbound{
		Type:    Kind(kind),
		RoomID:  roomID,
		Payload: fields,
	}, nil
}

// Outbound is a server frame. Only the fields relevant to Type are set.
type Outbound struct {
	Type         Kind
	RoomID       string
	ConnectionID ConnID
	Payload      map[string]json.RawMessage
}

// Encode writes the frame with the payload flattened next to the envelope
// fields, so a relayed offer reads {"type":"offer", ...payload}. Payload
// values are copied exactly as the sender encoded them; keys are sorted.
func (o Outbound) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	field := func(first bool, key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		if err := enc.Encode(key); err != nil {
			return err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if raw, ok := value.(json.RawMessage); ok {
			if !json.Valid(raw) {
				return fmt.Errorf("%w: payload field %q", ErrMalformed, key)
			}
			buf.Write(raw)
			return nil
		}
		if err := enc.Encode(value); err != nil {
			return err
		}
		trimNewline(&buf)
		return nil
	}

	buf.WriteByte('{')
	if err := field(true, "type", o.Type); err != nil {
		return nil, err
	}
	if o.RoomID != "" {
		if err := field(false, "roomId", o.RoomID); err != nil {
			return nil, err
		}
	}
	if o.ConnectionID != "" {
		if err := field(false, "connectionId", o.ConnectionID); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(o.Payload))
	for k := range o.Payload {
		if o.envelope(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := field(false, k, o.Payload[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// envelope reports whether key is written by the envelope itself.
func (o Outbound) envelope(key string) bool {
	switch key {
	case "type":
		return true
	case "roomId":
		return o.RoomID != ""
	case "connectionId":
		return o.ConnectionID != ""
	}
	return false
}

// MarshalJSON lets an Outbound sit inside other values. encoding/json
// compacts and escapes marshaler output, so the hub writes frames with
// Encode instead.
func (o Outbound) MarshalJSON() ([]byte, error) {
	return o.Encode()
}

func trimNewline(buf *bytes.Buffer) {
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] == '\n' {
		buf.Truncate(len(b) - 1)
	}
}
