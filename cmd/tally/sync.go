package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending local changes to the remote store",
	Long: `Reads the remote document to pick up its current version token, diffs the
local cache against it, and pushes the differences in one write. Exits
non-zero if the push fails; local data is never touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := a.mgr.Initialize(true); err != nil {
			fatal("%v", err)
		}
		if err := a.mgr.Adopt(ctx); err != nil {
			fatal("%v", err)
		}

		st := a.mgr.GetState()
		if !st.Pending {
			fmt.Println(ui.RenderSuccess("Already in sync, nothing to push."))
			return
		}
		fmt.Printf("Pushing %s pending record change(s)...\n", ui.RenderAccent(fmt.Sprintf("%d", st.PendingChangeCount)))

		if ok := a.mgr.ForceSync(ctx); !ok {
			fatal("sync failed: %s", a.mgr.GetState().Error)
		}
		fmt.Println(ui.RenderSuccess("Synced."))
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace local data with the remote document",
	Long: `Fetches the remote document and writes its collections into the local
cache, overwriting local records. Use after a conflict, or to bring a new
machine up to date.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := a.mgr.Initialize(false); err != nil {
			fatal("%v", err)
		}
		if err := a.mgr.Pull(ctx); err != nil {
			fatal("%v", err)
		}

		snap, err := a.shop.Snapshot()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s %d records across %d collections.\n",
			ui.RenderSuccess("Pulled"), snap.Count(), len(snap.Names()))
	},
}
