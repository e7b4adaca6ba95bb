package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Nexus/internal/config"
	"github.com/BioHazard786/Nexus/internal/discovery"
	"github.com/BioHazard786/Nexus/internal/logging"
	"github.com/BioHazard786/Nexus/internal/peer"
	"github.com/BioHazard786/Nexus/internal/roomcode"
	"github.com/BioHazard786/Nexus/internal/ui"
)

var (
	peerOpts     config.PeerOptions
	flagJoin     string
	flagName     string
	flagDiscover bool
	flagPlain    bool
)

var peerCmd = &cobra.Command{
	Use:     "peer",
	Aliases: []string{"p"},
	Short:   "Join a room as a headless WebRTC peer",
	Long: `Connect to a relay as a headless WebRTC peer. Without --join a new room is
created under a generated code; share it and run "nexus peer --join <code>" on
other machines. Every peer opens a data channel to every other peer and chat
lines typed in the console are sent to all of them.

Examples:
  nexus peer
  nexus peer --join kitten-waffle-stardust-happy --name bob
  nexus peer --discover --plain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeer(cmd.Context())
	},
}

func runPeer(ctx context.Context) error {
	cfg, err := config.LoadPeer(peerOpts)
	if err != nil {
		return peer.NewError("load config", err)
	}

	if flagDiscover {
		if cfg.ServerURL, err = discoverRelay(ctx, cfg.SignalTimeout); err != nil {
			return err
		}
	}

	roomID, create := flagJoin, flagJoin == ""
	if create {
		if roomID, err = roomcode.Generate(nil); err != nil {
			return peer.NewError("generate room code", err)
		}
	}

	level, err := logging.ParseLevel(firstSet(flagLogLevel, os.Getenv(logging.EnvLogLevel)))
	if err != nil {
		return err
	}

	mesh := peer.New(peer.Options{
		RoomID:        roomID,
		Create:        create,
		Name:          flagName,
		ICEServers:    cfg.ICEServers,
		SignalTimeout: cfg.SignalTimeout,
		Logger:        slog.Default(),
		LoggerFactory: logging.PionFactory(os.Stderr, level),
	})

	fmt.Fprintln(ui.Output)
	fmt.Fprintln(ui.Output, ui.RoomInfoView(roomID, cfg.ServerURL, create))
	fmt.Fprintln(ui.Output)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- mesh.Run(ctx, cfg.ServerURL) }()

	if flagPlain {
		ui.RunPlain(ctx, mesh)
	} else if err := ui.RunConsole(ctx, mesh); err != nil {
		cancel()
		<-errCh
		return err
	}

	// The console returns when the user quits or the mesh stops; either way
	// the mesh is told to stop and its result is what matters.
	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func discoverRelay(ctx context.Context, timeout time.Duration) (string, error) {
	sp := ui.NewConnectionSpinner("Looking for a relay on the local network...")
	sp.Start()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	svc, err := discovery.Discover(ctx)
	if err != nil {
		sp.Error("No relay found")
		return "", peer.NewError("discover relay", err)
	}
	url := svc.URL()
	sp.Success("Found " + svc.Name + " at " + url)
	return url, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(peerCmd)

	f := peerCmd.Flags()
	f.StringVar(&peerOpts.ServerURL, "server", "", "Relay websocket URL (env SERVER_URL, default ws://localhost:8080/ws)")
	f.StringVarP(&flagJoin, "join", "j", "", "Room to join; a new room is created when empty")
	f.StringVarP(&flagName, "name", "n", "", "Name shown to other peers")
	f.BoolVar(&flagDiscover, "discover", false, "Find the relay on the local network over mDNS")
	f.BoolVar(&flagPlain, "plain", false, "Print events as plain lines instead of the interactive console")
	f.DurationVar(&peerOpts.SignalTimeout, "signal-timeout", 0, "How long to wait for room-created and answers (env SIGNAL_TIMEOUT)")
	addICEFlags(peerCmd, &peerOpts.ICE)
	peerCmd.MarkFlagsMutuallyExclusive("server", "discover")
}
