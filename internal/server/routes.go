package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Nexus/internal/metrics"
	"github.com/BioHazard786/Nexus/internal/signaling"
)

// corsHeaders are sent on the handshake path, including the 101 response.
var corsHeaders = http.Header{
	"Access-Control-Allow-Origin":  {"*"},
	"Access-Control-Allow-Methods": {"GET, POST, PUT, DELETE, OPTIONS"},
	"Access-Control-Allow-Headers": {"Content-Type, Authorization"},
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,

	// Any origin may signal; CORS is wide open on this path.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", healthCheckHandler)

	// Plain patterns so OPTIONS preflights reach the handler.
	ws := s.ServeWs()
	s.mux.HandleFunc("/ws", ws)
	s.mux.HandleFunc("/api/socket", ws)

	s.mux.HandleFunc("GET /ice", s.handleICE)
	s.mux.HandleFunc("GET /rooms", s.handleRooms)
	s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.metrics))
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Signaling server is healthy."))
}

func setCORS(h http.Header) {
	for k, v := range corsHeaders {
		h[k] = v
	}
}

// ServeWs returns the handshake handler: it upgrades the request, registers
// the connection with the hub and starts its pumps.
func (s *Server) ServeWs() http.HandlerFunc {
	clientCfg := signaling.ClientConfig{
		SendQueueSize:     s.cfg.SendQueueSize,
		MaxMessageBytes:   s.cfg.MaxMessageBytes,
		PongWait:          s.cfg.PongWait,
		WriteWait:         s.cfg.WriteWait,
		MessagesPerSecond: s.cfg.MessagesPerSecond,
		MessageBurst:      s.cfg.MessageBurst,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w.Header())

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet:
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		// Upgrade writes its own response; the error reply is already sent
		// when it fails.
		conn, err := upgrader.Upgrade(w, r, corsHeaders.Clone())
		if err != nil {
			s.metrics.Inc(metrics.UpgradesFailed)
			s.log.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
			return
		}

		client := signaling.NewClient(s.hub, conn, clientCfg)
		if !s.hub.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": s.cfg.ICEServers})
}

// RoomsResponse is the body of GET /rooms.
type RoomsResponse struct {
	Rooms       []signaling.RoomInfo `json:"rooms"`
	Connections int                  `json:"connections"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.EnableRoomsAPI {
		http.NotFound(w, r)
		return
	}
	WriteJSON(w, http.StatusOK, RoomsResponse{
		Rooms:       s.registry.Rooms(),
		Connections: s.hub.Connections(),
	})
}
