package signaling

// Snapshot is the read-only view of room membership the router decides on.
// *Registry satisfies it.
type Snapshot interface {
	Members(roomID string) []ConnID
}

// Membership asks the caller to add Conn to RoomID.
type Membership struct {
	RoomID string
	Conn   ConnID
}

// Delivery is one outbound message and the connections it goes to.
type Delivery struct {
	To      []ConnID
	Message Outbound
}

// Decision is the result of routing one inbound message: an optional registry
// mutation followed by zero or more deliveries.
type Decision struct {
	Join       *Membership
	Deliveries []Delivery
}

// Route decides what an inbound message does. It performs no I/O and does
// not mutate the snapshot; the caller applies Join and then sends the
// deliveries.
//
// A joiner is announced to the members already present but is not told about
// them. Relayed kinds go to every member except the sender, with roomId
// stripped. Unknown rooms resolve to no recipients.
func Route(snap Snapshot, in Inbound) Decision {
	switch in.Type {
	case KindCreateRoom:
		return Decision{
			Join: &Membership{RoomID: in.RoomID, Conn: in.From},
			Deliveries: []Delivery{{
				To:      []ConnID{in.From},
				Message: Outbound{Type: KindRoomCreated, RoomID: in.RoomID},
			}},
		}

	case KindJoinRoom:
		d := Decision{Join: &Membership{RoomID: in.RoomID, Conn: in.From}}
		if others := without(snap.Members(in.RoomID), in.From); len(others) > 0 {
			d.Deliveries = []Delivery{{
				To:      others,
				Message: Outbound{Type: KindUserConnected, ConnectionID: in.From},
			}}
		}
		return d

	case KindOffer, KindAnswer, KindIceCandidate:
		others := without(snap.Members(in.RoomID), in.From)
		if len(others) == 0 {
			return Decision{}
		}
		return Decision{Deliveries: []Delivery{{
			To:      others,
			Message: Outbound{Type: in.Type, Payload: in.Payload},
		}}}
	}

	return Decision{}
}

func without(members []ConnID, self ConnID) []ConnID {
	out := members[:0:0]
	for _, m := range members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}
