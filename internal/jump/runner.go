package jump

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/jump-ssh/internal/logging"
	"github.com/timvw/jump-ssh/internal/model"
	"github.com/timvw/jump-ssh/internal/otel"
	"github.com/timvw/jump-ssh/internal/sanitize"
	"github.com/timvw/jump-ssh/internal/transport"
)

// Dialer opens the transport for one session.
type Dialer func(ctx context.Context, opts transport.Options) (transport.Transport, error)

// Runner connects to the bastion, reaches a host and runs a command, one
// fresh session per call. The zero value plus Options is usable.
type Runner struct {
	// Mode selects the transport ("system" or "native") when Dial is nil.
	Mode string
	Dial Dialer
	// Options carries the bastion address and credentials.
	Options transport.Options

	Timeouts  Timeouts
	Timings   Timings
	Prompts   *Prompts
	Telemetry *otel.Telemetry
	Logger    *zerolog.Logger

	Sleep func(time.Duration)
	Now   func() time.Time
}

// Run executes command on host and returns its cleaned output. Failures are
// *Error values. The transport is closed before Run returns.
func (r *Runner) Run(ctx context.Context, host model.Host, command string) (string, error) {
	var out string
	err := r.session(ctx, host, func(ctx context.Context, sess *Session) error {
		return r.phase(ctx, "jump.command", func(ctx context.Context) error {
			var err error
			out, err = sess.RunCommand(ctx, command)
			return err
		})
	})
	return out, err
}

// Probe reaches host like Run and reports the navigation branch, the banner
// and, when command is not empty, the raw text the shell printed for it.
func (r *Runner) Probe(ctx context.Context, host model.Host, command string) (model.ProbeReport, error) {
	report := model.ProbeReport{Host: host.Name}
	err := r.session(ctx, host, func(ctx context.Context, sess *Session) error {
		report.Branch = string(sess.Branch())
		report.Banner = sess.Banner()
		if command == "" {
			return nil
		}
		raw, err := sess.RunCommandRaw(ctx, command)
		if err != nil {
			return err
		}
		report.Raw = raw
		report.Output = sanitize.Clean(raw)
		return nil
	})
	return report, err
}

// session opens a transport, drives it to a ready shell on host and hands it
// to fn. The transport is released on every path.
func (r *Runner) session(ctx context.Context, host model.Host, fn func(context.Context, *Session) error) (err error) {
	tel := r.Telemetry
	if tel == nil {
		tel = otel.Noop()
	}
	mode := r.Mode
	if mode == "" {
		mode = "system"
	}

	ctx, span := tel.Tracer.Start(ctx, "jump.session", trace.WithAttributes(
		attribute.String("jump.host", host.Name),
		attribute.Bool("jump.direct", host.Direct()),
		attribute.String("jump.transport", mode),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		tel.Metrics.RecordSession(ctx, mode, outcome)
		span.End()
	}()

	timeouts := r.Timeouts.withDefaults()
	opts := r.Options
	opts.ConnectTimeout = timeouts.Connect
	if host.Direct() {
		opts.User = host.DirectIdentity(opts.User)
	}

	log := zerolog.Nop()
	if r.Logger != nil {
		log = logging.WithHost(*r.Logger, host.Name)
	}

	t, err := r.dial(ctx, mode, opts)
	if err != nil {
		return &Error{Kind: LoginFailed, Message: "open transport", State: Connecting, Err: err}
	}

	sess := NewSession(t, SessionOptions{
		Password: opts.Password,
		Timeouts: timeouts,
		Timings:  r.Timings,
		Prompts:  r.Prompts,
		Logger:   &log,
		Metrics:  tel.Metrics,
		Sleep:    r.Sleep,
		Now:      r.Now,
	})
	defer func() { _ = sess.Close() }()

	if host.Direct() {
		err = r.phase(ctx, "jump.login", sess.LoginDirect)
	} else {
		err = r.phase(ctx, "jump.login", sess.Login)
		if err == nil {
			err = r.phase(ctx, "jump.navigate", func(ctx context.Context) error {
				return sess.Navigate(ctx, host.Keyword())
			})
		}
	}
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("jump.branch", string(sess.Branch())))
	return fn(ctx, sess)
}

func (r *Runner) dial(ctx context.Context, mode string, opts transport.Options) (transport.Transport, error) {
	if r.Dial != nil {
		return r.Dial(ctx, opts)
	}
	return transport.Open(ctx, mode, opts)
}

func (r *Runner) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	tel := r.Telemetry
	if tel == nil {
		tel = otel.Noop()
	}
	ctx, span := tel.Tracer.Start(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	return err
}
