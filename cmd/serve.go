package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Nexus/internal/config"
	"github.com/BioHazard786/Nexus/internal/server"
	"github.com/BioHazard786/Nexus/internal/ui"
)

var serveOpts config.ServerOptions

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the signaling relay",
	Annotations: map[string]string{annotationLogLevel: "info"},
	Long: `Run the WebSocket signaling relay. Browsers connect on /ws (or /api/socket),
create or join rooms and exchange offers, answers and ICE candidates.

Every flag can also be set through the environment; flags win. The relay logs
at info level unless --log-level or LOG_LEVEL says otherwise.

Examples:
  nexus serve
  nexus serve --addr :9000 --notify-leave --rooms-api
  nexus serve --mdns --stun stun:stun.example.com:3478`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(serveOpts)
		if err != nil {
			return err
		}

		ui.PrintInfof("Relay listening on %s", cfg.ListenAddr)
		return server.New(cfg, slog.Default()).ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVarP(&serveOpts.ListenAddr, "addr", "a", "", "Listen address (env LISTEN_ADDR, default :8080)")
	f.IntVar(&serveOpts.SendQueueSize, "send-queue", 0, "Outbound frames buffered per connection (env SEND_QUEUE_SIZE)")
	f.Int64Var(&serveOpts.MaxMessageBytes, "max-message-bytes", 0, "Largest accepted inbound frame (env MAX_MESSAGE_BYTES)")
	f.DurationVar(&serveOpts.PongWait, "pong-wait", 0, "Drop a connection after this long without a pong (env PONG_WAIT)")
	f.DurationVar(&serveOpts.WriteWait, "write-wait", 0, "Per-frame write deadline (env WRITE_WAIT)")
	f.Float64Var(&serveOpts.MessagesPerSecond, "rate", 0, "Inbound messages per second per connection, negative disables (env MAX_MESSAGES_PER_SECOND)")
	f.IntVar(&serveOpts.MessageBurst, "burst", 0, "Inbound message burst per connection (env MESSAGE_BURST)")
	f.BoolVar(&serveOpts.NotifyLeave, "notify-leave", false, "Send user-disconnected to room-mates (env NOTIFY_LEAVE)")
	f.BoolVar(&serveOpts.EnableRoomsAPI, "rooms-api", false, "Expose GET /rooms (env ENABLE_ROOMS_API)")
	f.StringVar(&serveOpts.StatsInterval, "stats-interval", "", `Cron spec for the stats log line, "off" disables (env STATS_INTERVAL)`)
	f.BoolVar(&serveOpts.MDNS, "mdns", false, "Advertise the relay on the LAN over mDNS (env MDNS)")
	f.StringVar(&serveOpts.MDNSName, "mdns-name", "", "mDNS instance name (env MDNS_NAME)")
	f.DurationVar(&serveOpts.ShutdownTimeout, "shutdown-timeout", 0, "Graceful shutdown limit (env SHUTDOWN_TIMEOUT)")
	addICEFlags(serveCmd, &serveOpts.ICE)
}

func addICEFlags(cmd *cobra.Command, ice *config.ICEOptions) {
	f := cmd.Flags()
	f.StringVar(&ice.ServersJSON, "ice-servers", "", "ICE servers as JSON, overrides the other ICE flags (env ICE_SERVERS_JSON)")
	f.StringVarP(&ice.STUNServer, "stun", "s", "", "Comma-separated STUN URLs (env STUN_SERVER)")
	f.StringVarP(&ice.TURNServer, "turn", "t", "", "Comma-separated TURN URLs (env TURN_SERVER)")
	f.StringVarP(&ice.TURNUser, "turn-user", "u", "", "TURN username (env TURN_USERNAME)")
	f.StringVarP(&ice.TURNPass, "turn-pass", "p", "", "TURN password (env TURN_PASSWORD)")
}
