package transport

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// System runs the system ssh client under a pseudo-terminal, the same way an
// operator's terminal would. Password prompts and host menus arrive as
// terminal output and are answered by the session engine.
type System struct {
	*stream

	cmd  *exec.Cmd
	ptmx *os.File
}

// NewSystem spawns ssh to the bastion and returns once the process started.
// Authentication has not happened yet when this returns.
func NewSystem(ctx context.Context, opts Options) (*System, error) {
	if opts.Host == "" {
		return nil, ErrMissingHost
	}
	opts = opts.withDefaults()

	// Not CommandContext: the process lives until Close, not until ctx ends.
	cmd := exec.Command(opts.Binary, buildSSHArgs(opts)...)
	cmd.Env = append(os.Environ(), "TERM=xterm")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(opts.Rows),
		Cols: uint16(opts.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Binary, err)
	}

	s := &System{cmd: cmd, ptmx: ptmx}
	s.stream = newStream(ptmx, ptmx, s.shutdown)
	return s, nil
}

// Name returns "system".
func (s *System) Name() string {
	return "system"
}

func (s *System) shutdown() error {
	err := s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return err
}

// buildSSHArgs returns the ssh argument list for reaching the bastion.
// The user goes through -l so direct-connect identities containing '@'
// survive intact.
func buildSSHArgs(opts Options) []string {
	args := []string{"-p", fmt.Sprintf("%d", opts.Port)}
	if opts.KnownHosts != "" {
		args = append(args,
			"-o", "StrictHostKeyChecking=yes",
			"-o", fmt.Sprintf("UserKnownHostsFile=%s", opts.KnownHosts),
		)
	} else {
		args = append(args,
			"-o", "StrictHostKeyChecking=no",
			"-o", "UserKnownHostsFile=/dev/null",
		)
	}
	if opts.ConnectTimeout > 0 {
		seconds := int(math.Ceil(opts.ConnectTimeout.Seconds()))
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", seconds))
	}
	if opts.KeyPath != "" {
		args = append(args, "-i", opts.KeyPath)
	}
	if opts.User != "" {
		args = append(args, "-l", opts.User)
	}
	return append(args, opts.Host)
}
