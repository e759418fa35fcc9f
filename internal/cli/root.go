package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	port       string
	logLevel   string
}

// Execute runs the CLI until ctx is canceled.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quiz-service",
		Short:        "Live quiz game engine: PIN lobbies, host-paced questions, real-time scoring",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", defaultConfig, "path to YAML config")
	flags.StringVar(&opts.port, "port", os.Getenv("PORT"), "port to listen on (overrides server.port)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides log.level)")

	cmd.AddCommand(
		newStartCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
	)
	return cmd
}
