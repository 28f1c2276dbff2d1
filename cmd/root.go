package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chatpoll",
	Short: "Detect new chat messages and dispatch bot replies",
	Long: "Chatpoll watches a chat source for new messages, either by diffing per-conversation " +
		"message counts in a database or by subscribing to a realtime transport, and relays bot replies back.",
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to chatpoll.json or chatpoll.yaml")
}
