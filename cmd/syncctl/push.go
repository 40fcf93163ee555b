package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Drain the pending operation queue to the server",
	Run: func(cmd *cobra.Command, args []string) {
		lc, err := openSyncContext(cmd)
		if err != nil {
			fatal(err)
		}
		defer lc.Close()

		fmt.Println(ui.RenderAccent("→"), "pushing", lc.syncCtx.Queue().Count(), "pending operation(s)...")

		done := make(chan error, 1)
		lc.syncCtx.Push(context.Background(), func(err error) { done <- err })
		if err := <-done; err != nil {
			fatal(err)
		}
		fmt.Println(ui.RenderPass("✓"), "push complete")
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
