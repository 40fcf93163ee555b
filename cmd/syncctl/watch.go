package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/ui"
	"github.com/brettsam/offlinesync/internal/watcher"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Watch a directory of {table}/{itemId}.json files and apply local mutations",
	Long: `Watch replays file create/write/remove events under --dir as local
mutations: a new file becomes an insert, a changed file an update, and a
removed file a delete. It never pushes by itself; run "syncctl push"
separately, or schedule it.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		lc, err := openSyncContext(cmd)
		if err != nil {
			fatal(err)
		}
		defer lc.Close()

		if err := os.MkdirAll(watchDir, 0o755); err != nil {
			fatal(fmt.Errorf("create watch dir %s: %w", watchDir, err))
		}

		logger := newLogger()
		w, err := watcher.New(lc.syncCtx, watchDir)
		if err != nil {
			fatal(err)
		}
		w.OnError = func(err error) {
			logger.Println(err)
		}
		if err := w.Start(); err != nil {
			fatal(err)
		}
		defer w.Stop()

		fmt.Println(ui.RenderAccent("→"), "watching", watchDir)
		fmt.Println("Press Ctrl+C to stop...")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println()
		fmt.Println(ui.RenderPass("✓"), "stopped")
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", ".syncctl/watch", "root directory of {table}/{itemId}.json files to watch")
	rootCmd.AddCommand(watchCmd)
}
