package transport

import (
	"errors"
	"fmt"
	"net"
	"os"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/term"
)

var (
	ErrPassphraseRequired  = errors.New("passphrase required for private key")
	ErrSSHAgentUnavailable = errors.New("ssh agent not available")
)

// PassphrasePrompt returns the passphrase for the provided key path.
type PassphrasePrompt func(keyPath string) (string, error)

// agentConn wraps a live SSH agent connection.
type agentConn struct {
	conn   net.Conn
	client agent.ExtendedAgent
}

// LoadPrivateKey loads a private key from disk, prompting for a passphrase when required.
func LoadPrivateKey(path string, prompt PassphrasePrompt) (xssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	signer, err := xssh.ParsePrivateKey(keyBytes)
	if err == nil {
		return signer, nil
	}

	var missing *xssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if prompt == nil {
		return nil, ErrPassphraseRequired
	}

	passphrase, err := prompt(path)
	if err != nil {
		return nil, fmt.Errorf("passphrase prompt failed: %w", err)
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	signer, err = xssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("parse private key with passphrase: %w", err)
	}
	return signer, nil
}

// TerminalPassphrase reads a key passphrase from the controlling terminal.
func TerminalPassphrase(path string) (string, error) {
	return ReadSecret(fmt.Sprintf("Enter passphrase for %s: ", path))
}

// ReadSecret prints label on stderr and reads a line from stdin without echo.
func ReadSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// connectAgent opens a connection to the SSH agent referenced by SSH_AUTH_SOCK.
func connectAgent() (*agentConn, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, ErrSSHAgentUnavailable
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connect to ssh agent: %w", err)
	}
	return &agentConn{conn: conn, client: agent.NewClient(conn)}, nil
}

func (a *agentConn) authMethod() xssh.AuthMethod {
	return xssh.PublicKeysCallback(a.client.Signers)
}

func (a *agentConn) Close() error {
	if a == nil || a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
