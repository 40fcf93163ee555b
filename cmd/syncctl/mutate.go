package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/syncengine"
	"github.com/brettsam/offlinesync/internal/ui"
)

func parseItemFlag(raw string) (syncengine.Item, error) {
	var item syncengine.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("parse --item as JSON: %w", err)
	}
	return item, nil
}

func runMutation(cmd *cobra.Command, table, rawItem string, action syncengine.OperationType) {
	item, err := parseItemFlag(rawItem)
	if err != nil {
		fatal(err)
	}

	lc, err := openSyncContext(cmd)
	if err != nil {
		fatal(err)
	}
	defer lc.Close()

	done := make(chan struct{})
	var result syncengine.Item
	var applyErr error
	t := lc.syncCtx.Table(table)
	switch action {
	case syncengine.OperationInsert:
		t.Insert(context.Background(), item, func(it syncengine.Item, err error) { result, applyErr = it, err; close(done) })
	case syncengine.OperationUpdate:
		t.Update(context.Background(), item, func(it syncengine.Item, err error) { result, applyErr = it, err; close(done) })
	case syncengine.OperationDelete:
		t.Delete(context.Background(), item, func(it syncengine.Item, err error) { result, applyErr = it, err; close(done) })
	}
	<-done
	if applyErr != nil {
		fatal(applyErr)
	}
	fmt.Printf("%s %s %s/%s\n", ui.RenderPass("✓"), action, table, result.ID())
}

var insertCmd = &cobra.Command{
	Use:     "insert <table>",
	GroupID: "mutate",
	Short:   "Queue a local insert",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMutation(cmd, args[0], insertItemJSON, syncengine.OperationInsert)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <table>",
	GroupID: "mutate",
	Short:   "Queue a local update",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMutation(cmd, args[0], updateItemJSON, syncengine.OperationUpdate)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <table>",
	GroupID: "mutate",
	Short:   "Queue a local delete",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMutation(cmd, args[0], deleteItemJSON, syncengine.OperationDelete)
	},
}

var (
	insertItemJSON string
	updateItemJSON string
	deleteItemJSON string
)

func init() {
	insertCmd.Flags().StringVar(&insertItemJSON, "item", "{}", "item fields as a JSON object")
	updateCmd.Flags().StringVar(&updateItemJSON, "item", "{}", "item fields as a JSON object, must include \"id\"")
	deleteCmd.Flags().StringVar(&deleteItemJSON, "item", "{}", "item fields as a JSON object, must include \"id\"")

	rootCmd.AddCommand(insertCmd, updateCmd, deleteCmd)
}
