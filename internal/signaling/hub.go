package signaling

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/BioHazard786/Nexus/internal/metrics"
)

// Hub is the central brain of the relay. A single goroutine (Run) owns the
// set of live clients, applies routing decisions to the registry and hands
// outbound frames to each client's send queue. Nothing the hub does blocks on
// a client.
type Hub struct {
	registry *Registry
	reaper   Reaper
	metrics  *metrics.Metrics
	log      *slog.Logger

	// clients is only touched by the Run goroutine.
	clients map[ConnID]*Client
	live    atomic.Int64

	register   chan *Client
	unregister chan *Client
	inbound    chan Inbound

	// done is closed when Run returns.
	done chan struct{}
}

// HubOptions configures a Hub.
type HubOptions struct {
	NotifyLeave bool
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewHub creates a Hub around registry. The registry is owned by the caller
// and may be read concurrently (for example by the rooms endpoint).
func NewHub(registry *Registry, opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:   registry,
		reaper:     Reaper{Registry: registry, NotifyLeave: opts.NotifyLeave},
		metrics:    opts.Metrics,
		log:        logger,
		clients:    make(map[ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan Inbound, 64),
		done:       make(chan struct{}),
	}
}

// Run processes registrations, messages and disconnects until ctx is done.
// On exit every remaining client is disconnected and reaped.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client.ID] = client
			h.live.Add(1)
			h.metrics.Inc(metrics.ConnectionsOpened)
			h.log.Info("client connected", "conn", client.ID, "remote", client.remoteAddr())

		case client := <-h.unregister:
			h.disconnect(client)

		case in := <-h.inbound:
			h.dispatch(in)

		case <-ctx.Done():
			for _, client := range h.clients {
				h.disconnect(client)
			}
			h.log.Info("hub stopped")
			return
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister reports that a client's transport closed. Repeated calls for the
// same client are ignored.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit queues a decoded inbound message for routing.
func (h *Hub) Submit(in Inbound) bool {
	// inbound is buffered, so check done first or a stopped hub could still
	// accept messages nobody will read.
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connections returns the number of live clients.
func (h *Hub) Connections() int {
	return int(h.live.Load())
}

func (h *Hub) dispatch(in Inbound) {
	if _, ok := h.clients[in.From]; !ok {
		// The sender went away while its message was queued.
		return
	}
	h.metrics.Inc(metrics.MessagesIn(string(in.Type)))

	decision := Route(h.registry, in)
	if j := decision.Join; j != nil {
		if h.registry.CreateOrJoin(j.RoomID, j.Conn) {
			h.metrics.Inc(metrics.RoomsCreated)
			h.log.Info("room created", "room", j.RoomID, "conn", j.Conn)
		} else {
			h.log.Debug("room joined", "room", j.RoomID, "conn", j.Conn)
		}
	}

	for _, d := range decision.Deliveries {
		h.deliver(d)
	}
}

func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.live.Add(-1)
	close(c.send)

	dep, notices := h.reaper.Reap(c.ID)
	h.metrics.Inc(metrics.ConnectionsClosed)
	h.metrics.Add(metrics.RoomsDeleted, uint64(len(dep.Deleted)))
	for _, roomID := range dep.Deleted {
		h.log.Info("room deleted", "room", roomID)
	}
	h.log.Info("client disconnected", "conn", c.ID, "rooms", len(dep.Rooms))

	for _, d := range notices {
		h.deliver(d)
	}
}

// deliver encodes the message once and enqueues it for every recipient.
func (h *Hub) deliver(d Delivery) {
	data, err := d.Message.Encode()
	if err != nil {
		h.log.Error("encode outbound message", "type", d.Message.Type, "err", err)
		return
	}

	for _, id := range d.To {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		if !client.enqueue(data) {
			h.metrics.Inc(metrics.DeliveriesDropped)
			h.log.Warn("send queue full, dropping message", "conn", id, "type", d.Message.Type)
			continue
		}
		h.metrics.Inc(metrics.Deliveries)
	}
}
