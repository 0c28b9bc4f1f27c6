package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/snapshot"
	"github.com/tallyhq/tally/internal/ui"
)

var statusLocal bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local record counts and sync drift",
	Long: `Prints the record count of every collection in the local cache and, when
a remote is configured, the diff between the cache and the remote document.
Pass --local to skip the network read.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		snap, err := a.shop.Snapshot()
		if err != nil {
			fatal("%v", err)
		}

		fmt.Println(ui.RenderHeader("Local cache"))
		for _, name := range snapshot.DefaultCollections {
			n := len(snap.Records(name))
			line := fmt.Sprintf("  %-14s %d", name, n)
			if n == 0 {
				line = ui.RenderMuted(line)
			}
			fmt.Println(line)
		}
		fmt.Printf("  %-14s %d\n", "total", snap.Count())

		if a.mgr == nil {
			fmt.Println()
			fmt.Println(ui.RenderMuted("No remote configured: purely local."))
			return
		}
		if statusLocal {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := a.mgr.Initialize(false); err != nil {
			fatal("%v", err)
		}
		fmt.Println()
		fmt.Println(ui.RenderHeader("Remote"))
		if err := a.mgr.Adopt(ctx); err != nil {
			fmt.Printf("  %s %v\n", ui.RenderError("unreachable:"), err)
			return
		}

		st := a.mgr.GetState()
		fmt.Printf("  %-14s %s (%s)\n", "store", cfg.Remote.BaseURL, cfg.Remote.Ref)
		if !st.Pending {
			fmt.Printf("  %-14s %s\n", "drift", ui.RenderSuccess("none, cache matches remote"))
			return
		}
		fmt.Printf("  %-14s %s\n", "drift",
			ui.RenderWarn(fmt.Sprintf("%d record change(s) not yet pushed", st.PendingChangeCount)))
		fmt.Println(ui.RenderMuted("  Run 'tally sync' to push, or 'tally pull' to discard local changes."))
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusLocal, "local", false, "skip the remote read, show local counts only")
}
