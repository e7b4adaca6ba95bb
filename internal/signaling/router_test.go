package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSnapshot is a fixed membership view.
type fakeSnapshot map[string][]ConnID

func (f fakeSnapshot) Members(roomID string) []ConnID {
	return append([]ConnID(nil), f[roomID]...)
}

func TestRouteCreateRoom(t *testing.T) {
	d := Route(fakeSnapshot{}, Inbound{Type: KindCreateRoom, RoomID: "X1", From: "a"})

	require.NotNil(t, d.Join)
	assert.Equal(t, Membership{RoomID: "X1", Conn: "a"}, *d.Join)
	require.Len(t, d.Deliveries, 1)
	assert.Equal(t, []ConnID{"a"}, d.Deliveries[0].To)
	assert.Equal(t, Outbound{Type: KindRoomCreated, RoomID: "X1"}, d.Deliveries[0].Message)
}

func TestRouteCreateExistingRoomOnlyAcksSender(t *testing.T) {
	d := Route(fakeSnapshot{"X1": {"b", "c"}}, Inbound{Type: KindCreateRoom, RoomID: "X1", From: "a"})

	require.Len(t, d.Deliveries, 1)
	assert.Equal(t, []ConnID{"a"}, d.Deliveries[0].To)
}

func TestRouteJoinRoom(t *testing.T) {
	t.Run("announces joiner to existing members only", func(t *testing.T) {
		d := Route(fakeSnapshot{"X1": {"a", "b"}}, Inbound{Type: KindJoinRoom, RoomID: "X1", From: "c"})

		require.NotNil(t, d.Join)
		assert.Equal(t, Membership{RoomID: "X1", Conn: "c"}, *d.Join)
		require.Len(t, d.Deliveries, 1)
		assert.ElementsMatch(t, []ConnID{"a", "b"}, d.Deliveries[0].To)
		assert.Equal(t, Outbound{Type: KindUserConnected, ConnectionID: "c"}, d.Deliveries[0].Message)
	})

	t.Run("rejoin excludes the sender", func(t *testing.T) {
		d := Route(fakeSnapshot{"X1": {"a", "c"}}, Inbound{Type: KindJoinRoom, RoomID: "X1", From: "c"})
		require.Len(t, d.Deliveries, 1)
		assert.Equal(t, []ConnID{"a"}, d.Deliveries[0].To)
	})

	t.Run("empty room", func(t *testing.T) {
		d := Route(fakeSnapshot{}, Inbound{Type: KindJoinRoom, RoomID: "X1", From: "c"})
		require.NotNil(t, d.Join)
		assert.Empty(t, d.Deliveries)
	})
}

func TestRouteRelayedKinds(t *testing.T) {
	payload := map[string]json.RawMessage{"sdp": json.RawMessage(`"v=0..."`)}

	for _, kind := range []Kind{KindOffer, KindAnswer, KindIceCandidate} {
		t.Run(string(kind), func(t *testing.T) {
			d := Route(fakeSnapshot{"X1": {"a", "b", "c"}}, Inbound{Type: kind, RoomID: "X1", From: "b", Payload: payload})

			assert.Nil(t, d.Join, "relayed kinds never touch the registry")
			require.Len(t, d.Deliveries, 1)
			assert.ElementsMatch(t, []ConnID{"a", "c"}, d.Deliveries[0].To)
			assert.Equal(t, Outbound{Type: kind, Payload: payload}, d.Deliveries[0].Message)
		})
	}
}

func TestRouteRelayedNoRecipients(t *testing.T) {
	tests := map[string]fakeSnapshot{
		"unknown room": {},
		"sender alone": {"X1": {"b"}},
	}
	for name, snap := range tests {
		t.Run(name, func(t *testing.T) {
			d := Route(snap, Inbound{Type: KindOffer, RoomID: "X1", From: "b"})
			assert.Nil(t, d.Join)
			assert.Empty(t, d.Deliveries)
		})
	}
}

func TestRouteDoesNotAliasSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.CreateOrJoin("X1", "a")
	reg.CreateOrJoin("X1", "b")

	d := Route(reg, Inbound{Type: KindOffer, RoomID: "X1", From: "a"})
	reg.CreateOrJoin("X1", "c")

	require.Len(t, d.Deliveries, 1)
	assert.Equal(t, []ConnID{"b"}, d.Deliveries[0].To)
}
