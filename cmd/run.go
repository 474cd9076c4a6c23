package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/timvw/jump-ssh/internal/audit"
	"github.com/timvw/jump-ssh/internal/config"
	"github.com/timvw/jump-ssh/internal/jump"
	"github.com/timvw/jump-ssh/internal/logging"
	"github.com/timvw/jump-ssh/internal/model"
	telem "github.com/timvw/jump-ssh/internal/otel"
	"github.com/timvw/jump-ssh/internal/transport"
)

// newRunner builds the session runner and its telemetry from cfg. The
// caller must shut the telemetry down.
func newRunner(ctx context.Context, cfg *config.Config) (*jump.Runner, *telem.Telemetry, error) {
	// Wire build version into OTEL service metadata
	telem.Version = Version

	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		logging.Logger.Warn().Err(err).Msg("otel init failed, continuing without telemetry")
		tel = telem.Noop()
	}

	password := cfg.JumpServer.Password
	if password == "" && cfg.JumpServer.KeyPath == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		password, err = transport.ReadSecret(fmt.Sprintf("%s@%s's bastion password: ", cfg.JumpServer.User, cfg.JumpServer.Host))
		if err != nil {
			tel.Shutdown(ctx)
			return nil, nil, fmt.Errorf("reading password: %w", err)
		}
	}

	log := logging.Component("jump")
	r := &jump.Runner{
		Mode: cfg.Transport,
		Options: transport.Options{
			Host:       cfg.JumpServer.Host,
			Port:       cfg.JumpServer.Port,
			User:       cfg.JumpServer.User,
			Password:   password,
			KeyPath:    cfg.JumpServer.KeyPath,
			KnownHosts: cfg.JumpServer.KnownHosts,
			Binary:     cfg.SSHBinary,
			Passphrase: transport.TerminalPassphrase,
		},
		Timeouts: jump.Timeouts{
			Connect: cfg.Timeout.Connect.D(),
			Expect:  cfg.Timeout.Expect.D(),
			Command: cfg.Timeout.Command.D(),
		},
		Telemetry: tel,
		Logger:    &log,
	}
	return r, tel, nil
}

// execute runs command on host and prints the result. The execution is
// recorded in the audit log unless it is disabled.
func execute(ctx context.Context, cfg *config.Config, host model.Host, command, workdir string) error {
	if workdir == "" {
		workdir = host.DefaultWorkdir
	}
	line := model.WithWorkdir(command, workdir)

	runner, tel, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer tel.Shutdown(ctx)

	start := time.Now()
	output, runErr := runner.Run(ctx, host, line)
	elapsed := time.Since(start)

	record(cfg, host, line, workdir, elapsed, runErr)
	if runErr != nil {
		return runErr
	}

	return writeJSON(os.Stdout, model.ExecResult{
		Success:    true,
		Host:       host.Name,
		Match:      host.Match,
		Workdir:    workdir,
		Command:    line,
		Output:     output,
		DurationMs: elapsed.Milliseconds(),
	})
}

// record appends one audit event. Failing to write the history only logs a
// warning.
func record(cfg *config.Config, host model.Host, command, workdir string, elapsed time.Duration, runErr error) {
	path := cfg.AuditPath(audit.DefaultPath())
	if path == "" {
		return
	}

	e := audit.NewEvent(time.Now())
	e.Host = host.Name
	e.Match = host.Match
	e.Workdir = workdir
	e.Command = logging.Redact(command, cfg.JumpServer.Password)
	e.Transport = cfg.Transport
	e.DurationMs = elapsed.Milliseconds()
	e.Outcome = audit.OutcomeOK
	if runErr != nil {
		e.Outcome = string(jump.KindOf(runErr))
		if e.Outcome == "" {
			e.Outcome = audit.OutcomeError
		}
		e.Error = runErr.Error()
	}

	if err := audit.NewStore(path).Append(e); err != nil {
		logging.Logger.Warn().Err(err).Str("path", path).Msg("audit log not written")
	}
}
