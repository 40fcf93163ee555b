package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/brettsam/offlinesync/internal/syncengine"
	"github.com/brettsam/offlinesync/internal/ui"
)

var (
	purgeForce     bool
	purgeYes       bool
	purgeOlderThan string
	purgeQueryID   string
)

var purgeCmd = &cobra.Command{
	Use:     "purge <table>",
	GroupID: "sync",
	Short:   "Delete local rows from a table",
	Long: `Purge clears rows from the local store for a table.

Without --force, purge aborts if any pending operation exists for the
table. --older-than accepts a natural-language relative time ("3 days
ago", "yesterday") and restricts the purge to rows whose __updatedAt
predates it. With --older-than, purge aborts on pending operations even
with --force. --force without --yes prompts for confirmation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := syncengine.Query{}
		if purgeOlderThan != "" {
			bound, err := parseRelativeTime(purgeOlderThan)
			if err != nil {
				fatal(err)
			}
			query.Predicate = olderThanPredicate(bound)
		}

		if purgeForce && !purgeYes {
			var confirm bool
			err := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Really purge %q with --force? Pending operations will be discarded.", args[0])).
						Affirmative("Yes, purge").
						Negative("Cancel").
						Value(&confirm),
				),
			).Run()
			if err != nil {
				fatal(err)
			}
			if !confirm {
				fmt.Println(ui.RenderWarn("⚠"), "purge cancelled")
				return
			}
		}

		lc, err := openSyncContext(cmd)
		if err != nil {
			fatal(err)
		}
		defer lc.Close()

		table := lc.syncCtx.Table(args[0])
		done := make(chan error, 1)
		table.Purge(context.Background(), query, purgeQueryID, purgeForce, func(err error) { done <- err })
		if err := <-done; err != nil {
			fatal(err)
		}
		fmt.Println(ui.RenderPass("✓"), "purged", args[0])
	},
}

// parseRelativeTime parses a natural-language relative expression like
// "3 days ago" into an absolute time.
func parseRelativeTime(expr string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(expr, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --older-than %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --older-than %q", expr)
	}
	return r.Time, nil
}

func olderThanPredicate(bound time.Time) func(syncengine.Item) bool {
	return func(it syncengine.Item) bool {
		raw, ok := it[syncengine.SystemFieldUpdatedAt].(string)
		if !ok {
			return false
		}
		t, err := syncengine.ParseSyncTime(raw)
		if err != nil {
			return false
		}
		return t.Before(bound)
	}
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "clear pending operations for the table before purging")
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "skip the --force confirmation prompt")
	purgeCmd.Flags().StringVar(&purgeOlderThan, "older-than", "", "natural-language relative time bound, e.g. \"3 days ago\"")
	purgeCmd.Flags().StringVar(&purgeQueryID, "query-id", "", "also drop the delta token for this incremental pull query id")
	rootCmd.AddCommand(purgeCmd)
}
