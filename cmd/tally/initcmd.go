package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/ui"
)

var (
	initURL     string
	initRef     string
	initToken   string
	initNoInput bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the tally config file",
	Long: `Writes a starter config. Interactive by default; pass --url/--ref/--token
with --no-input for scripted setup. Leaving the URL empty configures a
purely local app with sync disabled.`,
	Run: func(cmd *cobra.Command, args []string) {
		fresh := config.Default()
		fresh.Remote.BaseURL = initURL
		if initRef != "" {
			fresh.Remote.Ref = initRef
		}
		fresh.Remote.Token = initToken

		if !initNoInput && ui.IsTerminal() {
			if err := promptConfig(&fresh); err != nil {
				fatal("setup aborted: %v", err)
			}
		}
		fresh.Sync.Enabled = fresh.Remote.BaseURL != ""

		path := config.ConfigPath()
		if _, err := os.Stat(path); err == nil {
			fatal("config already exists at %s (edit it directly, or remove it and re-run init)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fatal("failed to create config directory: %v", err)
		}

		data, err := yaml.Marshal(fresh)
		if err != nil {
			fatal("failed to encode config: %v", err)
		}
		// The token lives in this file; keep it owner-readable.
		if err := os.WriteFile(path, data, 0600); err != nil {
			fatal("failed to write config: %v", err)
		}

		fmt.Printf("%s %s\n", ui.RenderSuccess("Wrote"), path)
		if fresh.Remote.BaseURL == "" {
			fmt.Println(ui.RenderMuted("No remote configured: running purely local. Edit the config to enable sync."))
		} else {
			fmt.Printf("Remote: %s (%s)\n", ui.RenderAccent(fresh.Remote.BaseURL), fresh.Remote.Ref)
			fmt.Println(ui.RenderMuted("Run 'tally pull' to fetch the remote document, then 'tally serve'."))
		}
	},
}

func promptConfig(c *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Remote store URL").
				Description("Document API root, e.g. https://store.example.com/v1. Leave empty for local-only.").
				Value(&c.Remote.BaseURL),
			huh.NewInput().
				Title("Document ref").
				Description("Path of this shop's document under the API root.").
				Value(&c.Remote.Ref),
			huh.NewInput().
				Title("Access token").
				EchoMode(huh.EchoModePassword).
				Value(&c.Remote.Token),
			huh.NewSelect[string]().
				Title("Cross-process notifications").
				Description("How concurrent tally processes on this machine share cache updates.").
				Options(
					huh.NewOption("None (single process)", "none"),
					huh.NewOption("Websocket hub", "ws"),
					huh.NewOption("Spool directory", "spool"),
				).
				Value(&c.Notify.Backend),
		),
	)
	return form.Run()
}

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "", "remote store base URL")
	initCmd.Flags().StringVar(&initRef, "ref", "", "remote document ref")
	initCmd.Flags().StringVar(&initToken, "token", "", "remote access token")
	initCmd.Flags().BoolVar(&initNoInput, "no-input", false, "skip the interactive form")
}
