package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/broadcastws"
	"github.com/brettsam/offlinesync/internal/ui"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Broadcast sync lifecycle events over a websocket",
	Long: `Serve opens a SyncContext wired to a websocket event broadcaster:
every operation enqueued, pushed, or pulled through this process is
published to connected clients at /events. Health is reported at /health.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		ws := broadcastws.New(broadcastws.Config{Port: servePort, Logger: logger})
		if err := ws.Start(); err != nil {
			fatal(err)
		}
		defer ws.Stop()

		lc, err := openSyncContextWithBroadcaster(cmd, ws)
		if err != nil {
			fatal(err)
		}
		defer lc.Close()

		fmt.Println(ui.RenderAccent("→"), "broadcasting events on", ws.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println()
		fmt.Println(ui.RenderPass("✓"), "stopped")
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (0 lets the OS pick)")
	rootCmd.AddCommand(serveCmd)
}
