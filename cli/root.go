// Package cli implements the cowshake command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mteixeira88/cow-shake/config"
	"github.com/Mteixeira88/cow-shake/logger"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	configPath    string
	dataDirFlag   string
	logLevelFlag  string
	transportFlag string
	nameFlag      string

	// Effective configuration, loaded before every command
	cfg *config.Config
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cowshake",
		Short: "Chunked messaging between BLE devices",
		Long: `cowshake exchanges text and JSON messages between two devices over a
single BLE characteristic. Messages are split into 20-byte chunks and
terminated with a marker so the receiver can reassemble them.

By default it runs on a simulated radio (Unix sockets under the data
directory) so several instances on one machine can talk to each other.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <data-dir>/config.yaml)")
	root.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory for the simulated radio")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&transportFlag, "transport", "", "Radio: wire (simulated) or ble")
	root.PersistentFlags().StringVar(&nameFlag, "name", "", "Advertised device name")

	root.AddCommand(
		newServeCmd(),
		newScanCmd(),
		newSendCmd(),
		newChatCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig merges defaults, the config file, env and flags (in that order)
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "completion" || cmd.Name() == "help" {
		return nil
	}

	path := configPath
	if path == "" {
		path = config.Path()
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}

	if dataDirFlag != "" {
		c.DataDir = dataDirFlag
	}
	if logLevelFlag != "" {
		c.LogLevel = logLevelFlag
	}
	if transportFlag != "" {
		c.Transport = transportFlag
	}
	if nameFlag != "" {
		c.DeviceName = nameFlag
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logger.ParseLevel(c.LogLevel))
	cfg = c
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command.
func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

// Main runs the CLI and exits non-zero on error
func Main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errFmt("Error:"), err)
		os.Exit(1)
	}
}
