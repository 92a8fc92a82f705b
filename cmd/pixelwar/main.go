package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pixelwar",
		Short: "A shared canvas where everyone paints one pixel at a time",
		Long: `pixelwar serves shared pixel canvases. Clients join a canvas, poll for the
cells that changed since they last looked or listen on a websocket, and may
paint one pixel per cooldown window.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCmd(),
		botCmd(),
		inspectCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
