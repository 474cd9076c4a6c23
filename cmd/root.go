package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/jump-ssh/internal/config"
	"github.com/timvw/jump-ssh/internal/jump"
	"github.com/timvw/jump-ssh/internal/logging"
	"github.com/timvw/jump-ssh/internal/model"
)

// Version is injected at build time.
var Version = "dev"

var (
	// Global flags.
	flagConfig    string
	flagTransport string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "jump-ssh",
	Short: "Run commands on servers behind a JumpServer bastion",
	Long: `jump-ssh logs into a JumpServer bastion, navigates its interactive menu to a
whitelisted server and runs a single command there, printing the output as JSON.

Only hosts listed under allowed_hosts in the config file can be reached.
Hosts with ip and login_user set are reached in direct-connect mode, which
skips the menu by encoding the target into the login identity.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Version:       Version,
}

// Execute runs the root command. Every failure is printed as a JSON result
// on stdout and exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_ = writeJSON(os.Stdout, failure(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOrDefault("JUMP_SSH_CONFIG", ""), "config file (default: ./.jump-ssh.yaml or ~/.config/jump-ssh/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagTransport, "transport", "", "override transport: system, native")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console, json (default from config)")
}

// loadConfig loads the config file, applies flag overrides and initializes
// logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagTransport != "" {
		cfg.Transport = flagTransport
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if flagLogLevel != "" {
		if !logging.ValidLevel(flagLogLevel) {
			return nil, fmt.Errorf("unknown log level %q", flagLogLevel)
		}
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Logging.Format = flagLogFormat
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	logging.Logger.Debug().Str("config", cfg.ConfigFile).Msg("config loaded")
	return cfg, nil
}

// failure converts err into the JSON failure result.
func failure(err error) model.Failure {
	return model.Failure{
		Success: false,
		Kind:    string(jump.KindOf(err)),
		Error:   err.Error(),
		Buffer:  jump.BufferOf(err),
	}
}

// writeJSON prints v indented, leaving non-ASCII text readable.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
