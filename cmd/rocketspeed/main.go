package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/BMDan/RocketSpeed/internal/cmd/client"
	serverrun "github.com/BMDan/RocketSpeed/internal/cmd/server"
	cfgpkg "github.com/BMDan/RocketSpeed/internal/config"
	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
	logpkg "github.com/BMDan/RocketSpeed/pkg/log"
)

func main() {
	level := os.Getenv("ROCKETSPEED_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "rocketspeed",
		Short: "RocketSpeed broker CLI",
		Long:  "RocketSpeed is a single-binary pub/sub broker. This CLI starts the server and drives demo publish/subscribe traffic.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the RocketSpeed broker",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			listenAddr, _ := cmd.Flags().GetString("listen")
			internalAddr, _ := cmd.Flags().GetString("internal")
			adminAddr, _ := cmd.Flags().GetString("admin")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			configPath, _ := cmd.Flags().GetString("config")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if logLevel != "" {
				cfg.Level = logLevel
			}
			if logFormat != "" {
				cfg.Format = logFormat
			}
			if adminAddr != "" {
				cfg.AdminAddr = adminAddr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serverrun.Run(ctx, serverrun.Options{
				DataDir:      dataDir,
				ListenAddr:   listenAddr,
				InternalAddr: internalAddr,
				AdminAddr:    cfg.AdminAddr,
				Fsync:        mode,
				Config:       cfg,
			})
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (defaults to the OS-specific application data directory)")
	serverStartCmd.Flags().String("listen", ":8080", "Public client listen address (proxy front door)")
	serverStartCmd.Flags().String("internal", "127.0.0.1:8090", "Internal listen address for the proxy's upstream connections to the broker")
	serverStartCmd.Flags().String("admin", "", "Admin gRPC listen address (defaults to the config file / built-in default)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", os.Getenv("ROCKETSPEED_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("ROCKETSPEED_LOG_FORMAT"), "Log format: text|json")
	serverStartCmd.Flags().String("config", "", "Path to a JSON config file (defaults to built-in defaults)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewPublishCommand())
	rootCmd.AddCommand(clientcmd.NewSubscribeCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
