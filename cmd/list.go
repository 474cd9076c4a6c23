package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/jump-ssh/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the whitelisted servers",
	Long: `List the servers under allowed_hosts as JSON.

Each name (or its match keyword) can be passed to exec --host or probe --host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.AllowedHosts) == 0 {
			return errors.New("allowed_hosts is empty in the config file")
		}
		return writeJSON(os.Stdout, model.HostList{Success: true, Hosts: cfg.AllowedHosts})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
