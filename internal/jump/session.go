// Package jump drives a JumpServer bastion from login to a ready shell on the
// target host, then runs one command at a time and returns its output.
package jump

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timvw/jump-ssh/internal/expect"
	"github.com/timvw/jump-ssh/internal/logging"
	"github.com/timvw/jump-ssh/internal/otel"
	"github.com/timvw/jump-ssh/internal/sanitize"
	"github.com/timvw/jump-ssh/internal/transport"
)

// State is a step of the navigation state machine.
type State int

const (
	Connecting State = iota
	Authenticating
	MenuReady
	SearchSent
	Disambiguating
	ShellReached
	ShellReady
	Closed
)

var stateNames = [...]string{
	Connecting:     "Connecting",
	Authenticating: "Authenticating",
	MenuReady:      "MenuReady",
	SearchSent:     "SearchSent",
	Disambiguating: "Disambiguating",
	ShellReached:   "ShellReached",
	ShellReady:     "ShellReady",
	Closed:         "Closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Branch names the path the menu search took to reach a shell.
type Branch string

const (
	BranchDirectShell Branch = "shell"
	BranchHostList    Branch = "host-list"
	BranchSearchBox   Branch = "search-box"
	BranchDirect      Branch = "direct-connect"
)

// Timeouts bound the three kinds of waits.
type Timeouts struct {
	// Connect bounds the wait for the first password or menu prompt.
	Connect time.Duration
	// Expect bounds every later menu step.
	Expect time.Duration
	// Command bounds a single command's execution.
	Command time.Duration
}

// DefaultTimeouts returns 15s/15s/60s.
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: 15 * time.Second, Expect: 15 * time.Second, Command: 60 * time.Second}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Connect <= 0 {
		t.Connect = d.Connect
	}
	if t.Expect <= 0 {
		t.Expect = d.Expect
	}
	if t.Command <= 0 {
		t.Command = d.Command
	}
	return t
}

// Timings are the fixed delays that absorb the bastion's rendering races.
type Timings struct {
	// RedrawWait is how long to wait for the menu prompt's second render.
	RedrawWait time.Duration
	// Settle is slept after the menu is ready.
	Settle time.Duration
	// ShellSettle is slept after landing on the target shell.
	ShellSettle time.Duration
	// Flush bounds the wait for a fresh prompt after the empty line.
	Flush time.Duration
}

// DefaultTimings returns the delays tuned against a live bastion.
func DefaultTimings() Timings {
	return Timings{
		RedrawWait:  1500 * time.Millisecond,
		Settle:      300 * time.Millisecond,
		ShellSettle: time.Second,
		Flush:       8 * time.Second,
	}
}

// SessionOptions configures a Session. Zero values select defaults.
type SessionOptions struct {
	// Password answers a password prompt, if one is rendered.
	Password string
	Timeouts Timeouts
	// Timings replaces all delays when non-zero.
	Timings Timings
	Prompts *Prompts
	Logger  *zerolog.Logger
	Metrics *otel.Metrics

	Sleep func(time.Duration)
	Now   func() time.Time
}

// Session owns one transport and the text buffer read from it. It is not
// safe for concurrent use; at most one command is in flight at a time.
type Session struct {
	t        transport.Transport
	buf      *expect.Buffer
	prompts  *Prompts
	timeouts Timeouts
	timings  Timings
	password string
	metrics  *otel.Metrics
	log      zerolog.Logger
	sleep    func(time.Duration)
	now      func() time.Time

	state  State
	branch Branch
	banner string

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps t. The session takes ownership of t and closes it in Close.
func NewSession(t transport.Transport, opts SessionOptions) *Session {
	s := &Session{
		t:        t,
		buf:      expect.New(t),
		prompts:  opts.Prompts,
		timeouts: opts.Timeouts.withDefaults(),
		timings:  opts.Timings,
		password: opts.Password,
		metrics:  opts.Metrics,
		sleep:    opts.Sleep,
		now:      opts.Now,
		state:    Connecting,
	}
	if s.prompts == nil {
		s.prompts = DefaultPrompts()
	}
	if s.timings == (Timings{}) {
		s.timings = DefaultTimings()
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = zerolog.Nop()
	}
	if s.metrics != nil {
		m := s.metrics
		s.buf.OnRead = func(n int) { m.RecordBytes(context.Background(), n) }
	}
	return s
}

// State returns the current navigation state.
func (s *Session) State() State { return s.state }

// Branch returns the path taken to reach the shell, once reached.
func (s *Session) Branch() Branch { return s.branch }

// Banner returns the text flushed out of the buffer after landing on the
// target shell.
func (s *Session) Banner() string { return s.banner }

// Transport returns the name of the underlying transport.
func (s *Session) Transport() string { return s.t.Name() }

// Login waits for the bastion's main menu, answering a password prompt on
// the way, and absorbs the menu's redraw.
func (s *Session) Login(ctx context.Context) error {
	s.setState(Authenticating)
	p := s.prompts

	m, err := s.expect(ctx, "login", s.timeouts.Connect, p.Password, p.Menu)
	if err != nil {
		return s.fail(LoginFailed, "no password prompt or menu after connecting", err)
	}
	if m.Label == p.Password.Label {
		if err := s.answerPassword(); err != nil {
			return err
		}
		m, err = s.expect(ctx, "login", s.timeouts.Expect, p.Menu, p.Password)
		if err != nil {
			return s.fail(LoginFailed, "menu did not appear after password", err)
		}
		if m.Label == p.Password.Label {
			return s.fail(LoginFailed, "password rejected", nil)
		}
	}

	// The menu prompt is usually erased and rendered a second time.
	if _, err := s.expect(ctx, "redraw", s.timings.RedrawWait, p.Menu); err != nil && !isTimeout(err) {
		return s.fail(LoginFailed, "menu redraw", err)
	}
	s.sleep(s.timings.Settle)
	s.setState(MenuReady)
	return nil
}

// Navigate searches the menu for keyword and follows the result to a ready
// shell on the target host. A host list is resolved by picking the first
// entry.
func (s *Session) Navigate(ctx context.Context, keyword string) error {
	if s.state != MenuReady {
		return fmt.Errorf("navigate: session is %s, want %s", s.state, MenuReady)
	}
	p := s.prompts

	s.setState(SearchSent)
	if err := s.send(keyword + "\r"); err != nil {
		return err
	}

	m, err := s.expect(ctx, "search", s.timeouts.Expect,
		p.HostList, p.Search, p.Menu, p.ShellDollar, p.ShellHash)
	if err != nil {
		return s.fail(SearchTimeout, fmt.Sprintf("no response to search for %q", keyword), err)
	}

	switch m.Label {
	case p.HostList.Label:
		s.branch = BranchHostList
		if err := s.selectFirst(ctx); err != nil {
			return err
		}
	case p.Search.Label:
		s.branch = BranchSearchBox
		if err := s.send(keyword + "\r"); err != nil {
			return err
		}
		m, err = s.expect(ctx, "search-box", s.timeouts.Expect, p.ShellDollar, p.ShellHash, p.HostList)
		if err != nil {
			return s.fail(SearchTimeout, fmt.Sprintf("search for %q did not reach a shell", keyword), err)
		}
		if m.Label == p.HostList.Label {
			if err := s.selectFirst(ctx); err != nil {
				return err
			}
		}
	case p.Menu.Label:
		return s.fail(NotFound, fmt.Sprintf("no host matches %q, check the match keyword", keyword), nil)
	default:
		s.branch = BranchDirectShell
	}

	s.setState(ShellReached)
	return s.settleShell(ctx)
}

// LoginDirect handles a session whose login identity already names the
// target: answer a password prompt if one appears, then wait for the shell.
func (s *Session) LoginDirect(ctx context.Context) error {
	s.setState(Authenticating)
	p := s.prompts

	m, err := s.expect(ctx, "login", s.timeouts.Connect, p.Password, p.ShellDollar, p.ShellHash)
	if err != nil {
		return s.fail(LoginFailed, "no password prompt or shell after connecting", err)
	}
	if m.Label == p.Password.Label {
		if err := s.answerPassword(); err != nil {
			return err
		}
		m, err = s.expect(ctx, "login", s.timeouts.Expect, p.ShellDollar, p.ShellHash, p.Password)
		if err != nil {
			return s.fail(LoginFailed, "shell did not appear after password", err)
		}
		if !isShell(m, p) {
			return s.fail(LoginFailed, "password rejected", nil)
		}
	}

	s.branch = BranchDirect
	s.setState(ShellReached)
	return s.settleShell(ctx)
}

// RunCommand runs command on the ready shell and returns its cleaned output.
func (s *Session) RunCommand(ctx context.Context, command string) (string, error) {
	raw, err := s.RunCommandRaw(ctx, command)
	if err != nil {
		return "", err
	}
	return sanitize.Clean(raw), nil
}

// RunCommandRaw runs command and returns the text the shell printed before
// the completion marker, including the echoed command line.
func (s *Session) RunCommandRaw(ctx context.Context, command string) (string, error) {
	if s.state != ShellReady {
		return "", fmt.Errorf("run command: session is %s, want %s", s.state, ShellReady)
	}

	sentinel := NewSentinel(s.now(), command)
	if err := s.send(sentinel.Wrap(command) + "\n"); err != nil {
		return "", err
	}

	m, err := s.expect(ctx, "command", s.timeouts.Command, sentinel.Pattern())
	if err != nil {
		return "", s.fail(CommandTimeout, fmt.Sprintf("command did not finish within %s", s.timeouts.Command), err)
	}
	return m.Before, nil
}

// Close releases the transport. It is safe to call more than once; only the
// first call reaches the transport.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.t.Close()
		if s.closeErr != nil {
			s.log.Debug().Err(s.closeErr).Msg("transport close failed")
		}
		s.setState(Closed)
	})
	return s.closeErr
}

func (s *Session) selectFirst(ctx context.Context) error {
	s.setState(Disambiguating)
	if err := s.send("1\r"); err != nil {
		return err
	}
	if _, err := s.expect(ctx, "select", s.timeouts.Expect, s.prompts.shell()...); err != nil {
		return s.fail(SelectionFailed, "no shell prompt after selecting the first host", err)
	}
	return nil
}

// settleShell flushes banner text so the next command starts on a fresh
// prompt. A missing prompt is tolerated.
func (s *Session) settleShell(ctx context.Context) error {
	s.sleep(s.timings.ShellSettle)
	if err := s.send("\n"); err != nil {
		return err
	}
	m, err := s.expect(ctx, "flush", s.timings.Flush, s.prompts.shellEOL()...)
	switch {
	case err == nil:
		s.banner = m.Before
	case isTimeout(err):
		s.log.Debug().Msg("no fresh prompt after flush, continuing")
	default:
		return s.fail(ConnectionClosed, "flushing banner", err)
	}
	s.setState(ShellReady)
	return nil
}

func (s *Session) answerPassword() error {
	if s.password == "" {
		return s.fail(LoginFailed, "password requested but none configured", nil)
	}
	return s.send(s.password + "\n")
}

func (s *Session) send(text string) error {
	if _, err := s.t.Write([]byte(text)); err != nil {
		return &Error{Kind: ConnectionClosed, Message: "write to transport", State: s.state, Err: err}
	}
	return nil
}

func (s *Session) expect(ctx context.Context, step string, timeout time.Duration, patterns ...expect.Pattern) (expect.Match, error) {
	start := s.now()
	m, err := s.buf.Expect(ctx, patterns, timeout)
	s.metrics.RecordExpectWait(ctx, step, float64(s.now().Sub(start).Microseconds())/1000, err == nil)
	if err == nil {
		s.log.Debug().Str("step", step).Str("matched", m.Label).Msg("prompt")
	}
	return m, err
}

// fail builds the session error for a failed step. End of stream is always
// reported as ConnectionClosed; cancellation passes through unchanged.
func (s *Session) fail(kind Kind, msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, expect.ErrConnectionClosed) {
		kind = ConnectionClosed
	}
	e := &Error{
		Kind:    kind,
		Message: msg,
		State:   s.state,
		Buffer:  logging.Redact(unmatched(err), s.password),
		Err:     err,
	}
	s.log.Warn().Str("kind", string(kind)).Str("state", s.state.String()).Msg(msg)
	return e
}

func (s *Session) setState(st State) {
	if s.state != st {
		s.log.Debug().Str("from", s.state.String()).Str("to", st.String()).Msg("state")
	}
	s.state = st
}
