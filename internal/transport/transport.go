// Package transport provides the duplex byte streams the session engine talks
// through: the system ssh client running under a pseudo-terminal, or an ssh
// channel opened in-process with a remote pty.
//
// This package is pure transport. It moves bytes, reports read timeouts and
// end of stream, and never interprets what the remote side renders.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrReadTimeout is returned by Read when no bytes arrived within the timeout.
	ErrReadTimeout = errors.New("transport: read timed out")

	// ErrClosed is returned when the transport has already been closed locally.
	ErrClosed = errors.New("transport: closed")

	// ErrMissingHost indicates no bastion host was provided.
	ErrMissingHost = errors.New("transport: host is required")
)

// Transport is an open duplex byte stream to the bastion.
// A Transport belongs to exactly one session and is not safe for concurrent
// Read calls.
type Transport interface {
	// Name returns the transport name (e.g., "system", "native").
	Name() string

	// Write sends raw bytes to the remote side.
	Write(p []byte) (int, error)

	// Read returns at most size bytes. It blocks until bytes are available,
	// the timeout elapses (ErrReadTimeout), or the remote side closes the
	// stream (an error matching io.EOF).
	Read(ctx context.Context, size int, timeout time.Duration) ([]byte, error)

	// Close releases the stream and anything backing it. Calling Close more
	// than once is harmless.
	Close() error
}

// Options configures how the bastion is reached.
type Options struct {
	// Host is the bastion host name or IP.
	Host string

	// Port is the bastion ssh port (defaults to 22).
	Port int

	// User is the login identity. In direct-connect mode this already encodes
	// the target as "bastion-user@target-user@target-ip".
	User string

	// Password authenticates the native transport. The system transport
	// leaves password prompts to the session engine.
	Password string

	// KeyPath is an optional private key for the native transport.
	KeyPath string

	// KnownHosts is an optional known_hosts file. When empty the host key is
	// not verified.
	KnownHosts string

	// ConnectTimeout bounds the TCP connect, the ssh handshake and the shell
	// channel setup (defaults to 15s).
	ConnectTimeout time.Duration

	// Rows and Cols size the pseudo-terminal (defaults 50x220).
	Rows int
	Cols int

	// Binary is the ssh executable used by the system transport.
	Binary string

	// Passphrase is consulted when KeyPath is encrypted.
	Passphrase PassphrasePrompt
}

func (o Options) withDefaults() Options {
	if o.Port <= 0 {
		o.Port = 22
	}
	if o.Rows <= 0 {
		o.Rows = 50
	}
	if o.Cols <= 0 {
		o.Cols = 220
	}
	if o.Binary == "" {
		o.Binary = "ssh"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	return o
}

// addr returns host:port for dialing.
func (o Options) addr() string {
	port := o.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

const defaultConnectTimeout = 15 * time.Second

// Modes lists the supported transport names.
var Modes = []string{"system", "native"}

// ValidMode reports whether name selects a transport. Empty selects "system".
func ValidMode(name string) bool {
	return name == "" || slices.Contains(Modes, name)
}

// Open creates a transport by name. An empty name selects "system".
func Open(ctx context.Context, name string, opts Options) (Transport, error) {
	switch name {
	case "", "system":
		return NewSystem(ctx, opts)
	case "native":
		return NewNative(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown transport: %q (supported: %s)", name, strings.Join(Modes, ", "))
	}
}
