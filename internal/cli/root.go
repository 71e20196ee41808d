// Package cli provides the command-line interface for chatrelay.
package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags for the client commands
	serverURL     string
	clientTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Realtime one-to-one message relay",
	Long: `chatrelay persists one-to-one chat messages and relays them in realtime
to every open connection of the sender and the receiver.

Run "chatrelay serve" to start a node, then "chatrelay chat <user>" to talk
through it from a terminal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "relay server base URL")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 10*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(tokenCmd)
}
