// Package peer is a headless WebRTC mesh participant. It speaks the relay
// protocol the way a browser client would: existing members offer to every
// newcomer, newcomers answer, and each link carries one data channel.
package peer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	pionlogging "github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Nexus/internal/relayclient"
	"github.com/BioHazard786/Nexus/internal/signaling"
)

const defaultSignalTimeout = 30 * time.Second

// Options configures a Mesh.
type Options struct {
	// RoomID is the room to create or join.
	RoomID string
	// Create sends create-room and waits for room-created; otherwise the mesh
	// sends join-room.
	Create bool
	// Name is shown to other peers in the hello frame.
	Name string

	ICEServers    []webrtc.ICEServer
	SignalTimeout time.Duration

	Logger        *slog.Logger
	LoggerFactory pionlogging.LoggerFactory
}

// PeerInfo describes one remote link.
type PeerInfo struct {
	ID      string
	Name    string
	Session string
	State   webrtc.PeerConnectionState
	Open    bool
}

// Label is the name to show for the peer.
func (p PeerInfo) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return shortID(p.ID)
}

// remote is one PeerConnection, keyed by the session id of the offer that
// created it.
type remote struct {
	session string
	// id is the remote peer id, empty on the offering side until an answer
	// arrives.
	id      string
	name    string
	offerer bool
	created time.Time

	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	open bool

	// signaled is set once our offer or answer has been sent; local
	// candidates gathered before that are held back so they cannot overtake it.
	signaled     bool
	localPending []webrtc.ICECandidateInit

	remoteSet     bool
	remotePending []pendingCandidate
}

type pendingCandidate struct {
	from string
	cand webrtc.ICECandidateInit
}

// Mesh is one headless peer.
type Mesh struct {
	id   string
	opts Options
	log  *slog.Logger
	api  *webrtc.API

	relay *relayclient.Client

	mu       sync.Mutex
	sessions map[string]*remote

	eventsMu sync.RWMutex
	events   chan Event
	closed   bool
}

// New prepares a mesh peer. Nothing touches the network until Run.
func New(opts Options) *Mesh {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SignalTimeout <= 0 {
		opts.SignalTimeout = defaultSignalTimeout
	}

	se := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	}

	id := uuid.NewString()
	if opts.Name == "" {
		opts.Name = shortID(id)
	}

	return &Mesh{
		id:       id,
		opts:     opts,
		log:      opts.Logger.With("peer", shortID(id)),
		api:      webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		sessions: make(map[string]*remote),
		events:   make(chan Event, 256),
	}
}

// ID is this peer's id, carried as "from" in every payload.
func (m *Mesh) ID() string { return m.id }

// Name is this peer's display name.
func (m *Mesh) Name() string { return m.opts.Name }

// RoomID is the room this peer signals in.
func (m *Mesh) RoomID() string { return m.opts.RoomID }

// Events is closed when Run returns.
func (m *Mesh) Events() <-chan Event { return m.events }

// Run connects to the relay, enters the room and negotiates with every peer
// that shows up until ctx is done or the relay goes away.
func (m *Mesh) Run(ctx context.Context, serverURL string) error {
	defer m.shutdown()

	relay, err := relayclient.Dial(ctx, serverURL, m.log)
	if err != nil {
		return NewError("connect to relay", err)
	}
	m.relay = relay

	handler := relayclient.NewHandler(relay)
	go handler.Start()

	if err := m.enterRoom(ctx, handler); err != nil {
		return err
	}

	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case connID, ok := <-handler.PeerJoined:
			if !ok {
				return NewError("signaling", ErrSignalingClosed)
			}
			m.emit(Event{Kind: EventMemberArrived, Peer: connID})
			m.offer(connID)

		case connID, ok := <-handler.PeerLeft:
			if !ok {
				return NewError("signaling", ErrSignalingClosed)
			}
			m.emit(Event{Kind: EventMemberLeft, Peer: connID})

		case msg, ok := <-handler.Signal:
			if !ok {
				return NewError("signaling", ErrSignalingClosed)
			}
			m.handleSignal(msg)

		case <-sweep.C:
			m.expireOffers()
		}
	}
}

func (m *Mesh) enterRoom(ctx context.Context, handler *relayclient.Handler) error {
	kind := signaling.KindJoinRoom
	if m.opts.Create {
		kind = signaling.KindCreateRoom
	}
	if err := m.relay.Send(relayclient.Message{Type: kind, RoomID: m.opts.RoomID}); err != nil {
		return WrapError("enter room", err, m.opts.RoomID)
	}

	if m.opts.Create {
		timer := time.NewTimer(m.opts.SignalTimeout)
		defer timer.Stop()

		select {
		case roomID, ok := <-handler.RoomCreated:
			if !ok {
				return NewError("create room", ErrSignalingClosed)
			}
			m.log.Debug("room created", "room", roomID)
		case <-timer.C:
			return WrapError("create room", ErrTimeout, "no room-created from relay")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// join-room has no acknowledgement; the join is in effect once sent.
	m.emit(Event{Kind: EventJoined, Text: m.opts.RoomID})
	return nil
}

// offer starts a link towards a newcomer. The offer goes to the whole room
// because the newcomer's peer id is not known yet; the session id ties the
// answer back to this PeerConnection.
func (m *Mesh) offer(connID string) {
	session := uuid.NewString()
	r, err := m.newRemote(session, "", true)
	if err != nil {
		m.fail(err)
		return
	}

	ordered := true
	dc, err := r.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		m.drop(r)
		m.fail(NewError("create data channel", err))
		return
	}
	m.attachChannel(r, dc)

	offer, err := r.pc.CreateOffer(nil)
	if err != nil {
		m.drop(r)
		m.fail(NewError("create offer", err))
		return
	}
	if err := r.pc.SetLocalDescription(offer); err != nil {
		m.drop(r)
		m.fail(NewError("set local description", err))
		return
	}

	if err := m.relay.Send(relayclient.Message{
		Type:    signaling.KindOffer,
		RoomID:  m.opts.RoomID,
		From:    m.id,
		Session: session,
		SDP:     r.pc.LocalDescription(),
	}); err != nil {
		m.drop(r)
		m.fail(NewError("send offer", err))
		return
	}
	m.markSignaled(r)
	m.emit(Event{Kind: EventOfferSent, Peer: connID, Text: session})
}

func (m *Mesh) handleSignal(msg relayclient.Message) {
	if !msg.AddressedTo(m.id) || msg.From == "" || msg.Session == "" {
		return
	}

	switch msg.Type {
	case signaling.KindOffer:
		m.handleOffer(msg)
	case signaling.KindAnswer:
		m.handleAnswer(msg)
	case signaling.KindIceCandidate:
		m.handleCandidate(msg)
	}
}

// handleOffer answers offers from peers we have no link with. Offers from a
// known peer are other members' offers to a newcomer and are ignored.
func (m *Mesh) handleOffer(msg relayclient.Message) {
	if msg.SDP == nil {
		return
	}

	m.mu.Lock()
	_, dup := m.sessions[msg.Session]
	known := m.findLocked(msg.From) != nil
	m.mu.Unlock()
	if dup || known {
		return
	}

	r, err := m.newRemote(msg.Session, msg.From, false)
	if err != nil {
		m.fail(err)
		return
	}
	m.emit(Event{Kind: EventOfferReceived, Peer: msg.From, Text: msg.Session})

	r.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			return
		}
		m.attachChannel(r, dc)
	})

	if err := r.pc.SetRemoteDescription(*msg.SDP); err != nil {
		m.drop(r)
		m.fail(NewError("set remote description", err))
		return
	}
	m.flushRemoteCandidates(r)

	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		m.drop(r)
		m.fail(NewError("create answer", err))
		return
	}
	if err := r.pc.SetLocalDescription(answer); err != nil {
		m.drop(r)
		m.fail(NewError("set local description", err))
		return
	}

	if err := m.relay.Send(relayclient.Message{
		Type:    signaling.KindAnswer,
		RoomID:  m.opts.RoomID,
		From:    m.id,
		To:      msg.From,
		Session: msg.Session,
		SDP:     r.pc.LocalDescription(),
	}); err != nil {
		m.drop(r)
		m.fail(NewError("send answer", err))
		return
	}
	m.markSignaled(r)
}

// handleAnswer binds a pending offer to the peer that answered it first.
func (m *Mesh) handleAnswer(msg relayclient.Message) {
	if msg.To != m.id || msg.SDP == nil {
		return
	}

	m.mu.Lock()
	r, ok := m.sessions[msg.Session]
	if !ok || !r.offerer || r.remoteSet || m.findLocked(msg.From) != nil {
		m.mu.Unlock()
		return
	}
	r.id = msg.From
	m.mu.Unlock()

	if err := r.pc.SetRemoteDescription(*msg.SDP); err != nil {
		m.drop(r)
		m.fail(NewError("set remote description", err))
		return
	}
	m.flushRemoteCandidates(r)
	m.emit(Event{Kind: EventAnswerReceived, Peer: msg.From, Text: msg.Session})
}

func (m *Mesh) handleCandidate(msg relayclient.Message) {
	if msg.Candidate == nil {
		return
	}

	m.mu.Lock()
	r, ok := m.sessions[msg.Session]
	if !ok || (r.id != "" && r.id != msg.From) {
		m.mu.Unlock()
		return
	}
	if !r.remoteSet {
		r.remotePending = append(r.remotePending, pendingCandidate{from: msg.From, cand: *msg.Candidate})
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := r.pc.AddICECandidate(*msg.Candidate); err != nil {
		m.log.Debug("add ICE candidate", "session", r.session, "err", err)
	}
}

// flushRemoteCandidates applies candidates that arrived before the remote
// description, keeping only those from the bound peer.
func (m *Mesh) flushRemoteCandidates(r *remote) {
	m.mu.Lock()
	r.remoteSet = true
	pending := r.remotePending
	r.remotePending = nil
	id := r.id
	m.mu.Unlock()

	for _, c := range pending {
		if c.from != id {
			continue
		}
		if err := r.pc.AddICECandidate(c.cand); err != nil {
			m.log.Debug("add buffered ICE candidate", "session", r.session, "err", err)
		}
	}
}

func (m *Mesh) newRemote(session, id string, offerer bool) (*remote, error) {
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.opts.ICEServers})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	r := &remote{
		session: session,
		id:      id,
		offerer: offerer,
		created: time.Now(),
		pc:      pc,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()

		m.mu.Lock()
		if !r.signaled {
			r.localPending = append(r.localPending, cand)
			m.mu.Unlock()
			return
		}
		to := r.id
		m.mu.Unlock()

		m.sendCandidate(r.session, to, cand)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.log.Debug("peer connection state", "session", r.session, "state", state.String())

		m.mu.Lock()
		peerID := r.id
		m.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			m.emit(Event{Kind: EventConnected, Peer: peerID})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if m.forget(r) {
				m.emit(Event{Kind: EventDisconnected, Peer: peerID, Text: state.String()})
			}
			if state == webrtc.PeerConnectionStateFailed {
				go r.pc.Close()
			}
		}
	})

	m.mu.Lock()
	m.sessions[session] = r
	m.mu.Unlock()

	return r, nil
}

func (m *Mesh) markSignaled(r *remote) {
	m.mu.Lock()
	r.signaled = true
	pending := r.localPending
	r.localPending = nil
	to := r.id
	m.mu.Unlock()

	for _, cand := range pending {
		m.sendCandidate(r.session, to, cand)
	}
}

func (m *Mesh) sendCandidate(session, to string, cand webrtc.ICECandidateInit) {
	err := m.relay.Send(relayclient.Message{
		Type:      signaling.KindIceCandidate,
		RoomID:    m.opts.RoomID,
		From:      m.id,
		To:        to,
		Session:   session,
		Candidate: &cand,
	})
	if err != nil {
		m.log.Debug("send ICE candidate", "session", session, "err", err)
	}
}

func (m *Mesh) attachChannel(r *remote, dc *webrtc.DataChannel) {
	m.mu.Lock()
	r.dc = dc
	m.mu.Unlock()

	dc.OnOpen(func() {
		m.mu.Lock()
		r.open = true
		peerID := r.id
		m.mu.Unlock()
		m.emit(Event{Kind: EventChannelOpen, Peer: peerID})

		data, err := EncodeFrame(FrameHello, HelloPayload{ID: m.id, Name: m.opts.Name})
		if err == nil {
			err = dc.Send(data)
		}
		if err != nil {
			m.log.Debug("send hello", "session", r.session, "err", err)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.handleFrame(r, msg.Data)
	})

	dc.OnClose(func() {
		m.mu.Lock()
		r.open = false
		m.mu.Unlock()
	})
}

func (m *Mesh) handleFrame(r *remote, data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		m.log.Debug("dropping frame", "session", r.session, "err", err)
		return
	}

	switch f.Type {
	case FrameHello:
		var p HelloPayload
		if err := f.DecodePayload(&p); err != nil {
			m.log.Debug("bad hello", "session", r.session, "err", err)
			return
		}
		m.mu.Lock()
		r.name = p.Name
		if r.id == "" {
			r.id = p.ID
		}
		peerID := r.id
		m.mu.Unlock()
		m.emit(Event{Kind: EventHello, Peer: peerID, Text: p.Name})

	case FrameChat:
		var p ChatPayload
		if err := f.DecodePayload(&p); err != nil {
			m.log.Debug("bad chat frame", "session", r.session, "err", err)
			return
		}
		m.mu.Lock()
		label := PeerInfo{ID: r.id, Name: r.name}.Label()
		m.mu.Unlock()
		m.emit(Event{Kind: EventChat, Peer: label, Text: p.Text, At: time.UnixMilli(p.SentAt)})
	}
}

// Broadcast sends a chat line to every peer with an open channel and
// returns how many it reached.
func (m *Mesh) Broadcast(text string) (int, error) {
	data, err := EncodeFrame(FrameChat, ChatPayload{Text: text, SentAt: time.Now().UnixMilli()})
	if err != nil {
		return 0, NewError("encode chat", err)
	}

	m.mu.Lock()
	channels := make([]*webrtc.DataChannel, 0, len(m.sessions))
	for _, r := range m.sessions {
		if r.open && r.dc != nil {
			channels = append(channels, r.dc)
		}
	}
	m.mu.Unlock()

	if len(channels) == 0 {
		return 0, ErrNoPeers
	}

	sent := 0
	for _, dc := range channels {
		if err := dc.Send(data); err != nil {
			m.log.Debug("send chat", "channel", dc.Label(), "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Peers returns a snapshot of every link, ordered by label.
func (m *Mesh) Peers() []PeerInfo {
	m.mu.Lock()
	out := make([]PeerInfo, 0, len(m.sessions))
	pcs := make([]*webrtc.PeerConnection, 0, len(m.sessions))
	for _, r := range m.sessions {
		out = append(out, PeerInfo{
			ID:      r.id,
			Name:    r.name,
			Session: r.session,
			Open:    r.open,
		})
		pcs = append(pcs, r.pc)
	}
	m.mu.Unlock()

	for i, pc := range pcs {
		out[i].State = pc.ConnectionState()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out
}

// expireOffers drops offers nobody answered within the signal timeout.
func (m *Mesh) expireOffers() {
	deadline := time.Now().Add(-m.opts.SignalTimeout)

	var stale []*remote
	m.mu.Lock()
	for session, r := range m.sessions {
		if r.offerer && !r.remoteSet && r.created.Before(deadline) {
			delete(m.sessions, session)
			stale = append(stale, r)
		}
	}
	m.mu.Unlock()

	for _, r := range stale {
		_ = r.pc.Close()
		m.emit(Event{Kind: EventTimeout, Text: r.session})
	}
}

func (m *Mesh) findLocked(peerID string) *remote {
	for _, r := range m.sessions {
		if r.id == peerID {
			return r
		}
	}
	return nil
}

// forget removes r from the session table and reports whether it was there.
func (m *Mesh) forget(r *remote) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[r.session]; ok && cur == r {
		delete(m.sessions, r.session)
		return true
	}
	return false
}

func (m *Mesh) drop(r *remote) {
	m.forget(r)
	_ = r.pc.Close()
}

func (m *Mesh) fail(err error) {
	m.log.Warn("negotiation failed", "err", err)
	m.emit(Event{Kind: EventError, Err: err})
}

func (m *Mesh) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	m.eventsMu.RLock()
	defer m.eventsMu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.events <- e:
	default:
		m.log.Debug("event queue full, dropping event", "kind", e.Kind.String())
	}
}

func (m *Mesh) shutdown() {
	if m.relay != nil {
		m.relay.Close()
	}

	m.mu.Lock()
	remotes := make([]*remote, 0, len(m.sessions))
	for _, r := range m.sessions {
		remotes = append(remotes, r)
	}
	m.sessions = make(map[string]*remote)
	m.mu.Unlock()

	for _, r := range remotes {
		_ = r.pc.Close()
	}

	m.eventsMu.Lock()
	m.closed = true
	close(m.events)
	m.eventsMu.Unlock()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
