package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagHost    string
	flagCmd     string
	flagWorkdir string
)

var execCmd = &cobra.Command{
	Use:   "exec --host <name> --cmd <command>",
	Short: "Run a command on a whitelisted server",
	Long: `Connect to the bastion, reach the server and run one command there.

The host is looked up in allowed_hosts by name or match keyword, ignoring
case. When --workdir is not given the host's default_workdir is used, and
the command runs as "cd <workdir> && <command>".

The result is printed as JSON: {success, host, match, workdir, command, output}.
Failures print {success: false, kind, error, buffer} and exit with status 1.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		host, err := cfg.ResolveHost(flagHost)
		if err != nil {
			return err
		}
		return execute(cmd.Context(), cfg, host, flagCmd, flagWorkdir)
	},
}

func init() {
	execCmd.Flags().StringVar(&flagHost, "host", "", "target server name or match keyword from allowed_hosts")
	execCmd.Flags().StringVar(&flagCmd, "cmd", "", "shell command to run")
	execCmd.Flags().StringVar(&flagWorkdir, "workdir", "", "directory to cd into before running the command")
	_ = execCmd.MarkFlagRequired("host")
	_ = execCmd.MarkFlagRequired("cmd")
	rootCmd.AddCommand(execCmd)
}
