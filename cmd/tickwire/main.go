package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tickwire",
		Short: "Opcode-framed message protocol over WebSocket",
		Long: `tickwire runs the sample ping/echo protocol group over WebSocket.

  • serve starts a server that answers Ping with Pong and Echo with EchoReply
  • ping connects to a server and measures round trips`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		pingCmd(),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tickwire: %s\n", err)
		os.Exit(1)
	}
}
