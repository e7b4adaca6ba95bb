package signaling

// Reaper removes a closed connection from the registry.
type Reaper struct {
	Registry *Registry

	// NotifyLeave makes Reap announce the departure to former room-mates with
	// a user-disconnected message. The baseline protocol sends nothing.
	NotifyLeave bool
}

// Reap runs Leave for conn and returns the resulting departure plus any
// leave notifications to send. It is safe to call for connections that never
// joined a room, and calling it twice is harmless.
func (r Reaper) Reap(conn ConnID) (Departure, []Delivery) {
	dep := r.Registry.Leave(conn)
	if !r.NotifyLeave || len(dep.Rooms) == 0 {
		return dep, nil
	}

	// A mate sharing several rooms with conn is told once.
	seen := make(map[ConnID]struct{})
	var mates []ConnID
	for _, roomID := range dep.Rooms {
		for _, m := range r.Registry.Members(roomID) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			mates = append(mates, m)
		}
	}
	if len(mates) == 0 {
		return dep, nil
	}

	return dep, []Delivery{{
		To:      mates,
		Message: Outbound{Type: KindUserDisconnected, ConnectionID: conn},
	}}
}
