package audit

import (
	"os"
	"path/filepath"
)

// DefaultPath returns $XDG_STATE_HOME/jump-ssh/audit.jsonl, falling back to
// ~/.local/state.
func DefaultPath() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "jump-ssh", "audit.jsonl")
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "jump-ssh", "audit.jsonl")
}
