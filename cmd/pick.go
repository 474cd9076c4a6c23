package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/timvw/jump-ssh/internal/picker"
)

var (
	flagPickCmd     string
	flagPickWorkdir string
	flagTheme       string
)

var pickCmd = &cobra.Command{
	Use:   "pick --cmd <command>",
	Short: "Choose a whitelisted server interactively, then run a command on it",
	Long: `Open a filterable list of allowed_hosts on the terminal. Type to narrow the
list by name, match keyword, ip or workdir and press Enter to run the command
on the highlighted server. The result is printed the same way as exec.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("pick needs an interactive terminal, use exec --host instead")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		p := &picker.Picker{
			Hosts:   cfg.AllowedHosts,
			Theme:   picker.ThemeByName(flagTheme),
			Command: flagPickCmd,
		}
		host, err := p.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("pick: %w", err)
		}
		return execute(cmd.Context(), cfg, host, flagPickCmd, flagPickWorkdir)
	},
}

func init() {
	pickCmd.Flags().StringVar(&flagPickCmd, "cmd", "", "shell command to run")
	pickCmd.Flags().StringVar(&flagPickWorkdir, "workdir", "", "directory to cd into before running the command")
	pickCmd.Flags().StringVar(&flagTheme, "theme", envOrDefault("JUMP_SSH_THEME", "dark"), "color theme: dark, light")
	_ = pickCmd.MarkFlagRequired("cmd")
	rootCmd.AddCommand(pickCmd)
}
