package peer

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ChannelLabel is the data channel every mesh link carries.
const ChannelLabel = "nexus"

// Frame types.
const (
	FrameHello = "hello"
	FrameChat  = "chat"
)

// Frame represents all data channel messages between peers.
type Frame struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload is sent by both ends as soon as the channel opens.
type HelloPayload struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

// ChatPayload is a line of text typed by the user.
type ChatPayload struct {
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"` // unix millis
}

// NewFrame creates a Frame with the given type and payload.
func NewFrame(t string, payload any) (Frame, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: b}, nil
}

// EncodeFrame builds and serializes a frame in one step.
func EncodeFrame(t string, payload any) ([]byte, error) {
	f, err := NewFrame(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(f)
}

// DecodeFrame parses a serialized frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return f, nil
}

// DecodePayload decodes the frame payload into v.
func (f Frame) DecodePayload(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}
