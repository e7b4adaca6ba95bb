package config

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loaders read so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvListenAddr, EnvSendQueueSize, EnvMaxMessageBytes, EnvPongWait, EnvWriteWait,
		EnvMessageRate, EnvMessageBurst, EnvNotifyLeave, EnvRoomsAPI, EnvMDNS, EnvMDNSName,
		EnvShutdownTimeout, EnvServerURL, EnvSignalTimeout, EnvICEServersJSON,
		EnvSTUNServer, EnvTURNServer, EnvTURNUser, EnvTURNPass,
	} {
		t.Setenv(k, "")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStatsInterval, DefaultStatsInterval)

	cfg, err := LoadServer(ServerOptions{})
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultSendQueueSize, cfg.SendQueueSize)
	assert.Equal(t, int64(DefaultMaxMessageBytes), cfg.MaxMessageBytes)
	assert.Equal(t, DefaultPongWait, cfg.PongWait)
	assert.Equal(t, DefaultWriteWait, cfg.WriteWait)
	assert.Equal(t, float64(DefaultMessageRate), cfg.MessagesPerSecond)
	assert.Equal(t, DefaultMessageBurst, cfg.MessageBurst)
	assert.False(t, cfg.NotifyLeave)
	assert.False(t, cfg.EnableRoomsAPI)
	assert.Equal(t, DefaultStatsInterval, cfg.StatsInterval)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, []webrtc.ICEServer{{URLs: []string{DefaultSTUN}}}, cfg.ICEServers)
}

func TestLoadServerPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvListenAddr, ":9000")
	t.Setenv(EnvSendQueueSize, "32")
	t.Setenv(EnvPongWait, "30s")
	t.Setenv(EnvNotifyLeave, "true")
	t.Setenv(EnvMessageRate, "5")

	cfg, err := LoadServer(ServerOptions{ListenAddr: ":7000", PongWait: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddr, "flag beats env")
	assert.Equal(t, 5*time.Second, cfg.PongWait, "flag beats env")
	assert.Equal(t, 32, cfg.SendQueueSize, "env beats default")
	assert.True(t, cfg.NotifyLeave)
	assert.Equal(t, 5.0, cfg.MessagesPerSecond)
}

func TestLoadServerDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStatsInterval, "off")

	cfg, err := LoadServer(ServerOptions{MessagesPerSecond: -1})
	require.NoError(t, err)
	assert.Zero(t, cfg.MessagesPerSecond)
	assert.Empty(t, cfg.StatsInterval)
}

func TestLoadServerInvalid(t *testing.T) {
	tests := map[string][2]string{
		"queue size":   {EnvSendQueueSize, "lots"},
		"zero queue":   {EnvSendQueueSize, "-4"},
		"pong wait":    {EnvPongWait, "soon"},
		"notify leave": {EnvNotifyLeave, "maybe"},
		"stun scheme":  {EnvSTUNServer, "http://stun.example.com"},
		"ice json":     {EnvICEServersJSON, "{"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := LoadServer(ServerOptions{})
			assert.Error(t, err)
		})
	}
}

func TestICEOptionsServers(t *testing.T) {
	t.Run("stun and turn", func(t *testing.T) {
		servers, err := ICEOptions{
			STUNServer: "stun:a.example.com:3478, stun:b.example.com:3478",
			TURNServer: "turn:turn.example.com:3478",
			TURNUser:   "user",
			TURNPass:   "pass",
		}.Servers()
		require.NoError(t, err)
		require.Len(t, servers, 2)
		assert.Equal(t, []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}, servers[0].URLs)
		assert.Equal(t, "user", servers[1].Username)
		assert.Equal(t, "pass", servers[1].Credential)
	})

	t.Run("turn without credentials", func(t *testing.T) {
		_, err := ICEOptions{TURNServer: "turn:turn.example.com"}.Servers()
		assert.ErrorContains(t, err, "username")
	})

	t.Run("json wins", func(t *testing.T) {
		servers, err := ICEOptions{
			ServersJSON: `[{"urls":"stun:json.example.com"},{"urls":["turns:t.example.com:5349"],"username":"u","credential":"c"}]`,
			STUNServer:  "stun:ignored.example.com",
		}.Servers()
		require.NoError(t, err)
		require.Len(t, servers, 2)
		assert.Equal(t, []string{"stun:json.example.com"}, servers[0].URLs)
		assert.Equal(t, []string{"turns:t.example.com:5349"}, servers[1].URLs)
		assert.Equal(t, "c", servers[1].Credential)
	})

	t.Run("bad json entries", func(t *testing.T) {
		for _, raw := range []string{
			`[{"username":"u"}]`,
			`[{"urls":42}]`,
			`[{"urls":["ftp://x.example.com"]}]`,
			`[{"urls":"turn:t.example.com","username":"u"}]`,
		} {
			_, err := ICEOptions{ServersJSON: raw}.Servers()
			assert.Error(t, err, raw)
		}
	})

	t.Run("url lists", func(t *testing.T) {
		o := ICEOptions{STUNServer: " stun:a.example.com ,, stun:b.example.com "}
		assert.Equal(t, []string{"stun:a.example.com", "stun:b.example.com"}, o.GetSTUNServers())
		assert.Nil(t, o.GetTURNServers())
	})
}

func TestLoadPeer(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvServerURL, "wss://relay.example.com/ws")

	cfg, err := LoadPeer(PeerOptions{})
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/ws", cfg.ServerURL)
	assert.Equal(t, DefaultSignalTimeout, cfg.SignalTimeout)

	_, err = LoadPeer(PeerOptions{ServerURL: "http://relay.example.com/ws"})
	assert.Error(t, err)
}

func TestHTTPBaseURL(t *testing.T) {
	tests := map[string]string{
		"ws://localhost:8080/ws":          "http://localhost:8080",
		"wss://relay.example.com/ws?x=1":  "https://relay.example.com",
		"http://relay.example.com/rooms":  "http://relay.example.com",
		"https://relay.example.com:443/a": "https://relay.example.com:443",
	}
	for in, want := range tests {
		got, err := HTTPBaseURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := HTTPBaseURL("ftp://nope")
	assert.Error(t, err)
}
