// Command tally is a small business-management application (inventory,
// sales, ledger, loadings, suppliers) whose data lives in a local cache and
// syncs in the background against one remote versioned JSON document.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Offline-first shop management with background sync",
	Long: `tally keeps your shop data (products, sales, customers, ledger,
loadings) in a local cache that is always readable and writable, and
reconciles it in the background against a single remote document.

Local writes never wait for the network. A debounced sync pushes batched
changes to the remote store; failures are retried on a fixed delay and
surfaced in 'tally status' without ever blocking local work.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tally.yaml, then ~/.config/tally/config.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(saleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
