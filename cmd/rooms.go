package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Nexus/internal/config"
	"github.com/BioHazard786/Nexus/internal/server"
	"github.com/BioHazard786/Nexus/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the live rooms of a relay",
	Long: `List the rooms a relay currently holds. The relay must run with --rooms-api.

Examples:
  nexus rooms
  nexus rooms --server wss://relay.example.com/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wsURL := firstSet(flagRoomsServer, os.Getenv(config.EnvServerURL), config.DefaultServerURL)
		base, err := config.HTTPBaseURL(wsURL)
		if err != nil {
			return err
		}

		sp := ui.NewConnectionSpinner("Fetching rooms...")
		sp.Start()
		resp, err := fetchRooms(cmd.Context(), base)
		if err != nil {
			sp.Error("Could not list rooms")
			return err
		}
		sp.Stop()

		fmt.Fprintln(ui.Output, ui.RoomsTableView(base, resp.Rooms, resp.Connections))
		return nil
	},
}

func fetchRooms(ctx context.Context, base string) (*server.RoomsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s does not expose rooms; start it with --rooms-api", base)
	default:
		return nil, fmt.Errorf("fetch rooms: unexpected status %s", res.Status)
	}

	var out server.RoomsResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return &out, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.Flags().StringVar(&flagRoomsServer, "server", "", "Relay websocket URL (env SERVER_URL)")
}
