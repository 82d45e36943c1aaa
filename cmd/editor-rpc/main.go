package main

import (
	"editor-rpc/config"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "editor-rpc"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Correlated request/response channel between an MCP server and an editor",
	Long: `editor-rpc connects a tool process to a running editor:
  - serve: run the editor side, answering commands on a Unix socket, TCP, WebSocket or HTTP
  - call: send one command and print its result
  - commands: list the commands the server answers`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(commandsCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
