package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoAuthMethods indicates neither a password, key nor agent is available.
var ErrNoAuthMethods = errors.New("no authentication methods available")

// Native opens the ssh connection in-process and runs an interactive shell
// channel with a remote pty. The bastion authenticates at the protocol level,
// so its menu is usually the first thing the channel renders.
type Native struct {
	*stream

	client  *xssh.Client
	session *xssh.Session
	agent   *agentConn
}

// NewNative dials the bastion, authenticates and starts a shell channel.
func NewNative(ctx context.Context, opts Options) (*Native, error) {
	if opts.Host == "" {
		return nil, ErrMissingHost
	}
	opts = opts.withDefaults()

	cfg, ag, err := clientConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}

	n := &Native{agent: ag}
	if err := n.dial(ctx, opts, cfg); err != nil {
		_ = ag.Close()
		return nil, err
	}
	return n, nil
}

func (n *Native) dial(ctx context.Context, opts Options, cfg *xssh.ClientConfig) error {
	addr := opts.addr()
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	// Everything up to a running shell shares the connect budget. A bastion
	// that accepts the socket and then stalls fails the deadline, and
	// cancelling ctx closes the socket under the handshake.
	if err := conn.SetDeadline(time.Now().Add(opts.ConnectTimeout)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set deadline on %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	err = n.open(conn, addr, opts, cfg)
	if !stop() {
		if err == nil {
			_ = n.closeRemote()
		}
		return fmt.Errorf("ssh setup with %s: %w", addr, ctx.Err())
	}
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = n.closeRemote()
		return fmt.Errorf("clear deadline on %s: %w", addr, err)
	}
	return nil
}

// open runs the ssh handshake over conn and starts a shell with a remote pty.
// On failure conn is closed.
func (n *Native) open(conn net.Conn, addr string, opts Options, cfg *xssh.ClientConfig) error {
	c, chans, reqs, err := xssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	n.client = xssh.NewClient(c, chans, reqs)

	session, err := n.client.NewSession()
	if err != nil {
		_ = n.closeRemote()
		return fmt.Errorf("failed to create session: %w", err)
	}
	n.session = session

	modes := xssh.TerminalModes{
		xssh.ECHO:          1,
		xssh.TTY_OP_ISPEED: 14400,
		xssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", opts.Rows, opts.Cols, modes); err != nil {
		_ = n.closeRemote()
		return fmt.Errorf("failed to request PTY: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = n.closeRemote()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = n.closeRemote()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := session.Shell(); err != nil {
		_ = n.closeRemote()
		return fmt.Errorf("failed to start shell: %w", err)
	}

	n.stream = newStream(stdout, stdin, n.shutdown)
	return nil
}

// Name returns "native".
func (n *Native) Name() string {
	return "native"
}

func (n *Native) shutdown() error {
	err := n.closeRemote()
	_ = n.agent.Close()
	return err
}

func (n *Native) closeRemote() error {
	var errs []string
	if n.session != nil {
		if err := n.session.Close(); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, fmt.Sprintf("session close error: %v", err))
		}
		n.session = nil
	}
	if n.client != nil {
		if err := n.client.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("client close error: %v", err))
		}
		n.client = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// clientConfig builds the ssh client configuration. The returned agent
// connection, when non-nil, must stay open until the handshake completes.
func clientConfig(opts Options) (*xssh.ClientConfig, *agentConn, error) {
	var methods []xssh.AuthMethod

	if opts.KeyPath != "" {
		signer, err := LoadPrivateKey(opts.KeyPath, opts.Passphrase)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, xssh.PublicKeys(signer))
	}

	ag, err := connectAgent()
	if err == nil {
		methods = append(methods, ag.authMethod())
	}

	if opts.Password != "" {
		password := opts.Password
		methods = append(methods,
			xssh.Password(password),
			xssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, nil, ErrNoAuthMethods
	}

	hostKey := xssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			_ = ag.Close()
			return nil, nil, fmt.Errorf("load known_hosts %s: %w", opts.KnownHosts, err)
		}
		hostKey = cb
	}

	return &xssh.ClientConfig{
		User:            opts.User,
		Auth:            methods,
		HostKeyCallback: hostKey,
		Timeout:         opts.ConnectTimeout,
	}, ag, nil
}
