package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagConfigPath string
	flagEndpoint   string
	flagDebug      bool

	rootCmd = &cobra.Command{
		Use:   "scandeck",
		Short: "Compliance Scan Coordinator",
		Long: `Scandeck - Compliance Scan Coordinator

Scandeck coordinates compliance scans against a remote scanning backend:
run a scan for one tenant or fan out across every tenant of a region,
aggregate the partial results, and serve cached metrics to the dashboard.

A run in flight is superseded by the next one; stale results are
discarded, never merged.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Scandeck {{.Version}} - Compliance Scan Coordinator
`)
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "Scanning backend endpoint (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}
