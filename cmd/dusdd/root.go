package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dusdd",
	Short: "dusdd - collateralized stablecoin accounting daemon",
	Long: `dusdd runs the dUSD accounting engine: a collateral holding vault,
issuance and redemption against oracle-priced collateral, and an AMO
allocator for reserve supply. It exposes a JSON-RPC API, a WebSocket
event stream, and Prometheus metrics.`,
	Version: "1.0.0",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}
