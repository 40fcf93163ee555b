package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/ui"
)

var (
	cancelDiscard      bool
	cancelCorrectedRaw string
)

var cancelCmd = &cobra.Command{
	Use:     "cancel <table> <id>",
	GroupID: "mutate",
	Short:   "Cancel a pending local operation",
	Long: `Cancel removes a pending operation without pushing it.

By default the local row is kept, optionally replaced with --item (a
corrected JSON document). With --discard, the local row is deleted
instead.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		table, id := args[0], args[1]

		lc, err := openSyncContext(cmd)
		if err != nil {
			fatal(err)
		}
		defer lc.Close()

		ctx := context.Background()
		if cancelDiscard {
			if err := lc.syncCtx.CancelDiscardingItem(ctx, table, id); err != nil {
				fatal(err)
			}
			fmt.Println(ui.RenderPass("✓"), "cancelled and discarded", table+"/"+id)
			return
		}

		corrected, err := parseItemFlag(cancelCorrectedRaw)
		if err != nil {
			fatal(err)
		}
		if !cmd.Flags().Changed("item") {
			existing, err := lc.syncCtx.Table(table).ReadWithID(ctx, id)
			if err != nil {
				fatal(err)
			}
			if existing != nil {
				corrected = existing
			}
		}
		if err := lc.syncCtx.CancelKeepingItem(ctx, table, id, corrected); err != nil {
			fatal(err)
		}
		fmt.Println(ui.RenderPass("✓"), "cancelled, kept", table+"/"+id)
	},
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelDiscard, "discard", false, "delete the local row instead of keeping it")
	cancelCmd.Flags().StringVar(&cancelCorrectedRaw, "item", "{}", "corrected item as a JSON object (ignored with --discard)")
	rootCmd.AddCommand(cancelCmd)
}
