package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/BioHazard786/Nexus/internal/config"
	"github.com/BioHazard786/Nexus/internal/discovery"
	"github.com/BioHazard786/Nexus/internal/metrics"
	"github.com/BioHazard786/Nexus/internal/signaling"
)

// Server is the relay's HTTP front: the websocket gateway plus the
// operational endpoints, backed by one Hub.
type Server struct {
	log *slog.Logger
	cfg *config.ServerConfig

	registry *signaling.Registry
	hub      *signaling.Hub
	metrics  *metrics.Metrics

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New()
	registry := signaling.NewRegistry()
	s := &Server{
		log:      logger,
		cfg:      cfg,
		registry: registry,
		metrics:  m,
		hub: signaling.NewHub(registry, signaling.HubOptions{
			NotifyLeave: cfg.NotifyLeave,
			Metrics:     m,
			Logger:      logger,
		}),
		mux: http.NewServeMux(),
	}

	s.registerRoutes()

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoverMiddleware(s.log),
		requestIDMiddleware(),
		requestLoggerMiddleware(s.log),
	)
}

// Serve runs the hub, the stats job, the optional mDNS announcement and the
// HTTP server on l until ctx is done, then shuts everything down: HTTP first,
// then the hub, which closes and reaps every connection.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	stats, err := s.startStats()
	if err != nil {
		return err
	}
	if stats != nil {
		defer stats.Stop()
	}

	if s.cfg.MDNS {
		if tcp, ok := l.Addr().(*net.TCPAddr); ok {
			go func() {
				if err := discovery.Announce(ctx, s.cfg.MDNSName, tcp.Port, "/ws"); err != nil {
					s.log.Warn("mDNS announcement failed", "err", err)
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("signaling server listening", "addr", l.Addr().String())
		errCh <- s.srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		stopHub()
		<-s.hub.Done()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	shutdownErr := s.srv.Shutdown(shutdownCtx)

	stopHub()
	<-s.hub.Done()

	if shutdownErr != nil {
		return fmt.Errorf("http shutdown: %w", shutdownErr)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) startStats() (*cron.Cron, error) {
	if s.cfg.StatsInterval == "" {
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cfg.StatsInterval, s.logStats); err != nil {
		return nil, fmt.Errorf("invalid stats interval %q: %w", s.cfg.StatsInterval, err)
	}
	c.Start()
	return c, nil
}

func (s *Server) logStats() {
	attrs := []any{
		"rooms", s.registry.Len(),
		"connections", s.hub.Connections(),
	}
	for name, v := range s.metrics.Snapshot() {
		attrs = append(attrs, name, v)
	}
	s.log.Info("relay stats", attrs...)
}

type Middleware func(http.Handler) http.Handler

func chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	h := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func recoverMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in http handler", "recover", rec, "stack", string(debug.Stack()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
				r.Header.Set("X-Request-ID", reqID)
			}
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter records the response status. It forwards Hijack so the
// websocket upgrade still works behind the logger.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func requestLoggerMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			logger.Debug("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"request_id", r.Header.Get("X-Request-ID"),
			)
		})
	}
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
