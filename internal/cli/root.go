package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
	_ "github.com/mattermost/mattermost-plugin-sbmq/server/backend/forq"   // Register forq adapter factory
	_ "github.com/mattermost/mattermost-plugin-sbmq/server/backend/memory" // Register memory adapter factory
)

// NewRootCommand constructs the sbmqmon command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "sbmqmon",
		Short:        "Service bus queue monitor",
		Long:         "sbmqmon watches the queues of a service bus and prints their messages as they come and go.",
		SilenceUsage: true,
	}

	root.AddCommand(newAdaptersCommand())
	root.AddCommand(newWatchCommand())

	return root
}

func newAdaptersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the compiled-in service bus adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := backend.NewRegistry(backend.NopLogger{})
			for _, d := range registry.ListAvailable() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-8s %s\n", d.Name, d.Version, d.QueueType)
			}
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor the configured queues until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if err := applyFlags(cmd, &cfg); err != nil {
				return err
			}

			demo, _ := cmd.Flags().GetBool("demo")
			pretty, _ := cmd.Flags().GetBool("pretty")

			logger, err := NewLogger(os.Stderr, cfg.LogLevel, pretty)
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}

			return Watch(cmd.Context(), cfg, WatchOptions{
				Out:    cmd.OutOrStdout(),
				Logger: logger,
				Demo:   demo,
			})
		},
	}

	cmd.Flags().String("config", os.Getenv("SBMQ_CONFIG"), "Path to a JSON configuration file")
	cmd.Flags().String("backend", "", "Service bus name, overrides the configuration")
	cmd.Flags().String("version", "", "Service bus version, overrides the configuration")
	cmd.Flags().String("queue-type", "", "Queue type, overrides the configuration")
	cmd.Flags().Int("interval", 0, "Poll interval in seconds, overrides the configuration")
	cmd.Flags().String("db", "", "Forq database path, overrides connectionSettings.dbPath")
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().Bool("pretty", true, "Human readable log output instead of JSON lines")
	cmd.Flags().Bool("demo", false, "Monitor an in-process backend fed with synthetic messages")

	return cmd
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()

	if demo, _ := flags.GetBool("demo"); demo {
		cfg.ApplyDemo()
	}
	if flags.Changed("backend") {
		cfg.ServiceBus, _ = flags.GetString("backend")
	}
	if flags.Changed("version") {
		cfg.Version, _ = flags.GetString("version")
	}
	if flags.Changed("queue-type") {
		cfg.QueueType, _ = flags.GetString("queue-type")
	}
	if flags.Changed("interval") {
		cfg.PollIntervalSeconds, _ = flags.GetInt("interval")
	}
	if flags.Changed("db") {
		if cfg.ConnectionSettings == nil {
			cfg.ConnectionSettings = map[string]string{}
		}
		cfg.ConnectionSettings["dbPath"], _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return cfg.Validate()
}
