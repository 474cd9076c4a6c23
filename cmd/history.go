package cmd

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/jump-ssh/internal/audit"
)

var flagHistoryN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent executions from the audit log",
	Long: `Print the last executions recorded by exec and pick, oldest first, one JSON
object per line. The audit log lives at audit_log in the config file, or
$XDG_STATE_HOME/jump-ssh/audit.jsonl by default.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.AuditPath(audit.DefaultPath())
		if path == "" {
			return errors.New("audit log is disabled (audit_log: off)")
		}

		events, err := audit.NewStore(path).Tail(flagHistoryN)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryN, "n", "n", 20, "number of entries to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
