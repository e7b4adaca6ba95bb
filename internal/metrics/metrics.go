package metrics

import "sync"

// Event names. Per-kind inbound counters are built with MessagesIn.
const (
	ConnectionsOpened   = "connections_opened"
	ConnectionsClosed   = "connections_closed"
	MessagesMalformed   = "messages_malformed"
	MessagesRateLimited = "messages_rate_limited"
	Deliveries          = "deliveries"
	DeliveriesDropped   = "deliveries_dropped"
	RoomsCreated        = "rooms_created"
	RoomsDeleted        = "rooms_deleted"
	UpgradesFailed      = "upgrades_failed"
)

// MessagesIn returns the counter name for inbound messages of one type.
func MessagesIn(kind string) string {
	return "messages_in_" + kind
}

// Metrics is a concurrency-safe counter registry. A nil *Metrics discards
// everything, which keeps tests and optional wiring simple.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
