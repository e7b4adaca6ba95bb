package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// Default configuration values
const (
	DefaultListenAddr      = ":8080"
	DefaultServerURL       = "ws://localhost:8080/ws"
	DefaultSTUN            = "stun:stun.l.google.com:19302"
	DefaultSendQueueSize   = 256
	DefaultMaxMessageBytes = 64 * 1024
	DefaultPongWait        = 60 * time.Second
	DefaultWriteWait       = 10 * time.Second
	DefaultMessageRate     = 50
	DefaultMessageBurst    = 100
	DefaultStatsInterval   = "@every 5m"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSignalTimeout   = 30 * time.Second
	DefaultMDNSName        = "nexus"
)

// Environment variables
const (
	EnvListenAddr      = "LISTEN_ADDR"
	EnvSendQueueSize   = "SEND_QUEUE_SIZE"
	EnvMaxMessageBytes = "MAX_MESSAGE_BYTES"
	EnvPongWait        = "PONG_WAIT"
	EnvWriteWait       = "WRITE_WAIT"
	EnvMessageRate     = "MAX_MESSAGES_PER_SECOND"
	EnvMessageBurst    = "MESSAGE_BURST"
	EnvNotifyLeave     = "NOTIFY_LEAVE"
	EnvRoomsAPI        = "ENABLE_ROOMS_API"
	EnvStatsInterval   = "STATS_INTERVAL"
	EnvMDNS            = "MDNS"
	EnvMDNSName        = "MDNS_NAME"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvServerURL     = "SERVER_URL"
	EnvSignalTimeout = "SIGNAL_TIMEOUT"

	EnvICEServersJSON = "ICE_SERVERS_JSON"
	EnvSTUNServer     = "STUN_SERVER"
	EnvTURNServer     = "TURN_SERVER"
	EnvTURNUser       = "TURN_USERNAME"
	EnvTURNPass       = "TURN_PASSWORD"
)

// ServerConfig holds the relay configuration.
type ServerConfig struct {
	ListenAddr string

	SendQueueSize     int
	MaxMessageBytes   int64
	PongWait          time.Duration
	WriteWait         time.Duration
	MessagesPerSecond float64
	MessageBurst      int

	// NotifyLeave announces disconnects to former room-mates.
	NotifyLeave bool

	// EnableRoomsAPI exposes GET /rooms.
	EnableRoomsAPI bool

	// StatsInterval is a cron spec for the periodic stats log line; empty
	// disables it.
	StatsInterval string

	MDNS     bool
	MDNSName string

	ShutdownTimeout time.Duration

	ICEServers []webrtc.ICEServer
}

// ServerOptions carries CLI flag values. Zero values mean "not set" so the
// environment or the default applies. A negative MessagesPerSecond disables
// rate limiting.
type ServerOptions struct {
	ListenAddr        string
	SendQueueSize     int
	MaxMessageBytes   int64
	PongWait          time.Duration
	WriteWait         time.Duration
	MessagesPerSecond float64
	MessageBurst      int
	NotifyLeave       bool
	EnableRoomsAPI    bool
	StatsInterval     string
	MDNS              bool
	MDNSName          string
	ShutdownTimeout   time.Duration
	ICE               ICEOptions
}

// LoadServer reads configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	var err error
	cfg := &ServerConfig{
		ListenAddr:     firstNonEmpty(opts.ListenAddr, os.Getenv(EnvListenAddr), DefaultListenAddr),
		NotifyLeave:    opts.NotifyLeave,
		EnableRoomsAPI: opts.EnableRoomsAPI,
		MDNS:           opts.MDNS,
		MDNSName:       firstNonEmpty(opts.MDNSName, os.Getenv(EnvMDNSName), DefaultMDNSName),
	}

	if cfg.SendQueueSize, err = intSetting(opts.SendQueueSize, EnvSendQueueSize, DefaultSendQueueSize); err != nil {
		return nil, err
	}
	if cfg.MessageBurst, err = intSetting(opts.MessageBurst, EnvMessageBurst, DefaultMessageBurst); err != nil {
		return nil, err
	}

	maxBytes, err := intSetting(int(opts.MaxMessageBytes), EnvMaxMessageBytes, DefaultMaxMessageBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxMessageBytes = int64(maxBytes)

	if cfg.PongWait, err = durationSetting(opts.PongWait, EnvPongWait, DefaultPongWait); err != nil {
		return nil, err
	}
	if cfg.WriteWait, err = durationSetting(opts.WriteWait, EnvWriteWait, DefaultWriteWait); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationSetting(opts.ShutdownTimeout, EnvShutdownTimeout, DefaultShutdownTimeout); err != nil {
		return nil, err
	}

	switch {
	case opts.MessagesPerSecond < 0:
		cfg.MessagesPerSecond = 0
	case opts.MessagesPerSecond > 0:
		cfg.MessagesPerSecond = opts.MessagesPerSecond
	default:
		rate, err := floatSetting(EnvMessageRate, DefaultMessageRate)
		if err != nil {
			return nil, err
		}
		cfg.MessagesPerSecond = max(rate, 0)
	}

	for _, b := range []struct {
		dst *bool
		env string
	}{
		{&cfg.NotifyLeave, EnvNotifyLeave},
		{&cfg.EnableRoomsAPI, EnvRoomsAPI},
		{&cfg.MDNS, EnvMDNS},
	} {
		if *b.dst {
			continue
		}
		if *b.dst, err = boolEnv(b.env); err != nil {
			return nil, err
		}
	}

	cfg.StatsInterval = opts.StatsInterval
	if cfg.StatsInterval == "" {
		if v, ok := os.LookupEnv(EnvStatsInterval); ok {
			cfg.StatsInterval = strings.TrimSpace(v)
		} else {
			cfg.StatsInterval = DefaultStatsInterval
		}
	}
	if strings.EqualFold(cfg.StatsInterval, "off") {
		cfg.StatsInterval = ""
	}

	if cfg.SendQueueSize <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", EnvSendQueueSize, cfg.SendQueueSize)
	}
	if cfg.MaxMessageBytes <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", EnvMaxMessageBytes, cfg.MaxMessageBytes)
	}

	if cfg.ICEServers, err = opts.ICE.withEnv().Servers(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PeerConfig holds the headless peer configuration.
type PeerConfig struct {
	// ServerURL is the relay websocket endpoint.
	ServerURL string

	SignalTimeout time.Duration

	ICEServers []webrtc.ICEServer
}

// PeerOptions carries CLI flag values for the peer.
type PeerOptions struct {
	ServerURL     string
	SignalTimeout time.Duration
	ICE           ICEOptions
}

// LoadPeer reads the peer configuration: flags, then environment, then
// defaults.
func LoadPeer(opts PeerOptions) (*PeerConfig, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv(EnvServerURL), DefaultServerURL)
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be ws or wss", serverURL)
	}

	timeout, err := durationSetting(opts.SignalTimeout, EnvSignalTimeout, DefaultSignalTimeout)
	if err != nil {
		return nil, err
	}

	iceServers, err := opts.ICE.withEnv().Servers()
	if err != nil {
		return nil, err
	}

	return &PeerConfig{
		ServerURL:     serverURL,
		SignalTimeout: timeout,
		ICEServers:    iceServers,
	}, nil
}

// HTTPBaseURL maps a relay websocket URL (ws://host/ws) to its HTTP origin
// (http://host).
func HTTPBaseURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme", wsURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func intSetting(flag int, env string, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	return n, nil
}

func floatSetting(env string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	return f, nil
}

func durationSetting(flag time.Duration, env string, def time.Duration) (time.Duration, error) {
	if flag > 0 {
		return flag, nil
	}
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", env, raw)
	}
	return d, nil
}

func boolEnv(env string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	return b, nil
}
