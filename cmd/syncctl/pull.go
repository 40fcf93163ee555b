package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/syncengine"
	"github.com/brettsam/offlinesync/internal/ui"
)

var (
	pullQueryID string
	pullLimit   int
)

var pullCmd = &cobra.Command{
	Use:     "pull <table>",
	GroupID: "sync",
	Short:   "Pull server-side changes into the local store",
	Long: `Pull reads from the server and merges into the local store.

With --query-id set, the pull is incremental: only rows with __updatedAt
at or after the last persisted delta token for that queryId are fetched,
and the token advances on success. Without --query-id, the pull is a
plain paged read of the whole table.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lc, err := openSyncContext(cmd)
		if err != nil {
			fatal(err)
		}
		defer lc.Close()

		table := lc.syncCtx.Table(args[0])
		query := syncengine.Query{FetchLimit: pullLimit}

		fmt.Println(ui.RenderAccent("→"), "pulling", args[0]+"...")

		done := make(chan struct{})
		var result syncengine.PullResult
		var pullErr error
		table.Pull(context.Background(), query, pullQueryID, func(r syncengine.PullResult, err error) {
			result, pullErr = r, err
			close(done)
		})
		<-done
		if pullErr != nil {
			fatal(pullErr)
		}

		fmt.Printf("%s pulled %s: %d upserted, %d deleted, %d skipped\n",
			ui.RenderPass("✓"), args[0], result.ItemsUpserted, result.ItemsDeleted, result.SkippedRows)
		if result.SkippedRows > 0 {
			fmt.Println(ui.RenderWarn("⚠"), result.SkippedRows, "row(s) skipped: missing or unparsable __updatedAt")
		}
		if result.DeltaToken != "" {
			fmt.Println(ui.RenderDim("delta token now: " + result.DeltaToken))
		}
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullQueryID, "query-id", "", "incremental pull query id (omit for a plain paged pull)")
	pullCmd.Flags().IntVar(&pullLimit, "limit", 0, "page size (0 uses syncengine.DefaultPullPageSize)")
	rootCmd.AddCommand(pullCmd)
}
