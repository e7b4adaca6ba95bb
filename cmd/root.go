package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Nexus/internal/logging"
	"github.com/BioHazard786/Nexus/internal/version"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "WebRTC signaling relay with a headless mesh peer",
	Long: `Nexus relays WebRTC signaling (offers, answers and ICE candidates) between
browsers that share a room. The same binary runs the relay, a headless peer that
can smoke-test a deployment, and a small rooms inspector.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := logging.Init(logLevelFor(cmd), flagLogFormat)
		return err
	},
}

// annotationLogLevel sets a command's default log level.
const annotationLogLevel = "nexus.log-level"

func logLevelFor(cmd *cobra.Command) string {
	if flagLogLevel != "" || os.Getenv(logging.EnvLogLevel) != "" {
		return flagLogLevel
	}
	return cmd.Annotations[annotationLogLevel]
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := fang.Execute(ctx, rootCmd); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text or json (env LOG_FORMAT)")
}
