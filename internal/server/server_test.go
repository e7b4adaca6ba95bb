package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Nexus/internal/config"
)

type testRelay struct {
	addr   string
	server *Server
	stop   func() error
}

func startRelay(t *testing.T, mutate func(*config.ServerConfig)) *testRelay {
	t.Helper()

	cfg := &config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		SendQueueSize:   16,
		MaxMessageBytes: 64 * 1024,
		PongWait:        time.Minute,
		WriteWait:       5 * time.Second,
		MessageBurst:    10,
		ShutdownTimeout: 2 * time.Second,
		ICEServers:      []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	}
	if mutate != nil {
		mutate(cfg)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, l) }()

	var stopped bool
	var stopErr error
	stop := func() error {
		if !stopped {
			stopped = true
			cancel()
			select {
			case stopErr = <-errCh:
			case <-time.After(5 * time.Second):
				stopErr = errors.New("server did not stop")
			}
		}
		return stopErr
	}
	t.Cleanup(func() { _ = stop() })

	return &testRelay{addr: l.Addr().String(), server: s, stop: stop}
}

func (r *testRelay) url(path string) string { return "http://" + r.addr + path }

func (r *testRelay) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+r.addr+path, nil)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// expectSilence must be the last read on conn: a timed-out read leaves the
// connection unusable.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %s", data)
	var ne net.Error
	assert.True(t, errors.As(err, &ne) && ne.Timeout(), "want timeout, got %v", err)
}

func getRooms(t *testing.T, r *testRelay) RoomsResponse {
	t.Helper()
	resp, err := http.Get(r.url("/rooms"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body RoomsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRelayScenario(t *testing.T) {
	r := startRelay(t, nil)
	a := r.dial(t, "/ws")
	b := r.dial(t, "/ws")
	c := r.dial(t, "/api/socket")

	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	assert.Equal(t, map[string]any{"type": "room-created", "roomId": "X1"}, read(t, a))

	send(t, b, `{"type":"join-room","roomId":"X1"}`)
	joinB := read(t, a)
	assert.Equal(t, "user-connected", joinB["type"])
	bID, _ := joinB["connectionId"].(string)
	_, err := uuid.Parse(bID)
	require.NoError(t, err, "connection ids are uuids")

	send(t, c, `{"type":"join-room","roomId":"X1"}`)
	joinC := read(t, a)
	assert.Equal(t, "user-connected", joinC["type"])
	assert.NotEqual(t, bID, joinC["connectionId"])
	assert.Equal(t, joinC, read(t, b))

	send(t, b, `{"type":"offer","roomId":"X1","sdp":{"type":"offer","sdp":"v=0"},"to":"*"}`)
	want := map[string]any{
		"type": "offer",
		"sdp":  map[string]any{"type": "offer", "sdp": "v=0"},
		"to":   "*",
	}
	assert.Equal(t, want, read(t, a))
	assert.Equal(t, want, read(t, c))

	expectSilence(t, b)
	expectSilence(t, c)
}

func TestRelayForwardsPayloadBytes(t *testing.T) {
	r := startRelay(t, nil)
	a := r.dial(t, "/ws")
	b := r.dial(t, "/ws")

	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	read(t, a)
	send(t, b, `{"type":"join-room","roomId":"X1"}`)
	read(t, a)

	send(t, a, `{"type":"offer","roomId":"X1","sdp":{"type":"offer","sdp":"v=0\r\na=x&y<z>"}, "n": [1, 2]}`)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"offer","n":[1, 2],"sdp":{"type":"offer","sdp":"v=0\r\na=x&y<z>"}}`, string(data))
}

func TestRelayIgnoresMalformedFrames(t *testing.T) {
	r := startRelay(t, nil)
	a := r.dial(t, "/ws")

	send(t, a, `not json`)
	send(t, a, `{"type":"teleport","roomId":"X1"}`)
	send(t, a, `{"type":"offer"}`)
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{0x01}))

	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	assert.Equal(t, "room-created", read(t, a)["type"])
}

func TestRelayDisconnectReapsRooms(t *testing.T) {
	r := startRelay(t, func(cfg *config.ServerConfig) { cfg.EnableRoomsAPI = true })
	a := r.dial(t, "/ws")
	b := r.dial(t, "/ws")

	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	read(t, a)
	send(t, b, `{"type":"join-room","roomId":"X1"}`)
	read(t, a)

	rooms := getRooms(t, r)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, 2, rooms.Rooms[0].Members)
	assert.Equal(t, 2, rooms.Connections)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		rooms := getRooms(t, r)
		return len(rooms.Rooms) == 1 && rooms.Rooms[0].Members == 1
	}, 2*time.Second, 20*time.Millisecond)

	// Without --notify-leave the remaining member hears nothing.
	expectSilence(t, a)
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		rooms := getRooms(t, r)
		return len(rooms.Rooms) == 0 && rooms.Connections == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelayNotifyLeave(t *testing.T) {
	r := startRelay(t, func(cfg *config.ServerConfig) { cfg.NotifyLeave = true })
	a := r.dial(t, "/ws")
	b := r.dial(t, "/ws")

	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	read(t, a)
	send(t, b, `{"type":"join-room","roomId":"X1"}`)
	bID := read(t, a)["connectionId"]

	require.NoError(t, b.Close())
	assert.Equal(t, map[string]any{"type": "user-disconnected", "connectionId": bID}, read(t, a))
}

func TestRelayRateLimit(t *testing.T) {
	r := startRelay(t, func(cfg *config.ServerConfig) {
		cfg.MessagesPerSecond = 0.001
		cfg.MessageBurst = 1
	})
	a := r.dial(t, "/ws")

	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	assert.Equal(t, "room-created", read(t, a)["type"])

	send(t, a, `{"type":"create-room","roomId":"X2"}`)
	expectSilence(t, a)
}

func TestRelayShutdownClosesConnections(t *testing.T) {
	r := startRelay(t, nil)
	a := r.dial(t, "/ws")
	send(t, a, `{"type":"create-room","roomId":"X1"}`)
	read(t, a)

	require.NoError(t, r.stop())

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, r.server.registry.Len())
}

func TestHandshakePreflight(t *testing.T) {
	r := startRelay(t, nil)

	for _, path := range []string{"/ws", "/api/socket"} {
		req, err := http.NewRequest(http.MethodOptions, r.url(path), nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "GET")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), path)
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"), path)
		assert.Equal(t, "Content-Type, Authorization", resp.Header.Get("Access-Control-Allow-Headers"), path)
	}
}

func TestHandshakeRejectsOtherMethods(t *testing.T) {
	r := startRelay(t, nil)

	resp, err := http.Post(r.url("/ws"), "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// A plain GET without the upgrade headers fails the handshake.
	resp, err = http.Get(r.url("/ws"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestOperationalEndpoints(t *testing.T) {
	r := startRelay(t, nil)

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(r.url("/health"))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Signaling server is healthy.", string(body))
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("ice", func(t *testing.T) {
		resp, err := http.Get(r.url("/ice"))
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			ICEServers []struct {
				URLs []string `json:"urls"`
			} `json:"iceServers"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.ICEServers, 1)
		assert.Equal(t, []string{"stun:stun.example.com:3478"}, body.ICEServers[0].URLs)
	})

	t.Run("rooms disabled", func(t *testing.T) {
		resp, err := http.Get(r.url("/rooms"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		a := r.dial(t, "/ws")
		send(t, a, `{"type":"create-room","roomId":"M"}`)
		read(t, a)

		resp, err := http.Get(r.url("/metrics"))
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `nexus_signaling_events_total{event="rooms_created"} 1`)
		assert.Contains(t, string(body), `nexus_signaling_events_total{event="messages_in_create-room"} 1`)
	})
}

func TestServeRejectsBadStatsInterval(t *testing.T) {
	cfg := &config.ServerConfig{StatsInterval: "every so often", ShutdownTimeout: time.Second}
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = s.Serve(context.Background(), l)
	assert.ErrorContains(t, err, "stats interval")
}
