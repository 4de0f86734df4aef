// Package cli implements the strategiq admin command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	apiURL  string
	natsURL string
)

var rootCmd = &cobra.Command{
	Use:   "strategiq",
	Short: "StrategIQ campaign pipeline CLI",
	Long: `strategiq is the operational command-line interface for the
campaign processing pipeline.

Inspect campaign status, list campaigns by lifecycle state, and manage
the dead-letter queue.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "status service base URL")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")

	rootCmd.AddCommand(campaignsCmd)
	rootCmd.AddCommand(dlqCmd)
}
