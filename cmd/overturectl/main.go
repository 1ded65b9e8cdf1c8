// overturectl is the command-line client for an overture server. It
// speaks the server's JSON API and streams environment output over
// WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	serverFlag string
	tokenFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "overturectl",
	Short: "Control a running overture orchestration server",
	Long: `overturectl launches, inspects and tears down process environments on
an overture server.

An environment is a group of processes described by directive strings:

  NAME? (#COLOR)? (+DELAY|+DEPNAME)? (|ACTION)* = COMMAND

Examples:

  overturectl launch "API#green=myserver --port 8001" "UI+API=myui"
  overturectl launch --template full_stack
  overturectl status env_1a2b3c4d
  overturectl logs --follow env_1a2b3c4d`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", envOr("OVERTURE_SERVER", "http://127.0.0.1:8420"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("OVERTURE_TOKEN"), "bearer token for the server")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(templatesCmd)
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
