package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/jump-ssh/internal/model"
)

var (
	flagProbeHost string
	flagProbeCmd  string
)

var probeCmd = &cobra.Command{
	Use:   "probe --host <name> [--cmd <command>]",
	Short: "Show what the bastion sends on the way to a server",
	Long: `Log in and navigate to the server like exec does, then report the branch
the menu took (host-list, search-box, direct-shell or direct-connect), the
login banner and, when --cmd is given, the raw unsanitized command output
next to the cleaned one.

Use this to debug prompt patterns against a new bastion. Nothing is written
to the audit log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		host, err := cfg.ResolveHost(flagProbeHost)
		if err != nil {
			return err
		}

		runner, tel, err := newRunner(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer tel.Shutdown(cmd.Context())

		command := flagProbeCmd
		if command != "" {
			command = model.WithWorkdir(command, host.DefaultWorkdir)
		}
		report, err := runner.Probe(cmd.Context(), host, command)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, report)
	},
}

func init() {
	probeCmd.Flags().StringVar(&flagProbeHost, "host", "", "target server name or match keyword from allowed_hosts")
	probeCmd.Flags().StringVar(&flagProbeCmd, "cmd", "", "optional command to run after reaching the shell")
	_ = probeCmd.MarkFlagRequired("host")
	rootCmd.AddCommand(probeCmd)
}
