package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose   bool
	configDir string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agrimind",
	Short: "AgriMind greenhouse dashboard",
	Long: `AgriMind monitors a greenhouse controller through a realtime store,
lets operators switch the water pump and grow light, and asks a generative
model for irrigation, climate and crop advice.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server",
	Long: `Serves the dashboard page, the JSON API and the websocket feed. With a
database it also records readings history; with an MQTT broker it bridges the
device in-process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the device's MQTT topics into the shared realtime store",
	Args:  cobra.NoArgs,
	RunE:  runBridge,
}

var adviseCmd = &cobra.Command{
	Use:   "advise [irrigation|climate|crop <name>]",
	Short: "Run one AI flow against the current state and print the result",
	Example: `  agrimind advise irrigation
  agrimind advise crop Tomato`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAdvise,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".", "Directory holding an optional config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(adviseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
