package model

import (
	"fmt"
	"strings"
)

// Host is one whitelisted target reachable through the bastion.
type Host struct {
	// Name is the operator-facing name (e.g., "VM-4-13").
	Name string `yaml:"name" json:"name"`
	// Match is the keyword typed into the bastion's search menu.
	Match string `yaml:"match,omitempty" json:"match,omitempty"`
	// IP and LoginUser, when both set, select direct-connect mode: the
	// target is encoded into the login identity and the menu is skipped.
	IP        string `yaml:"ip,omitempty" json:"ip,omitempty"`
	LoginUser string `yaml:"login_user,omitempty" json:"login_user,omitempty"`
	// DefaultWorkdir is used when a command is run without an explicit workdir.
	DefaultWorkdir string `yaml:"default_workdir,omitempty" json:"default_workdir,omitempty"`
}

// Direct reports whether the host is reached in direct-connect mode.
func (h Host) Direct() bool {
	return h.IP != "" && h.LoginUser != ""
}

// DirectIdentity returns the bastion login identity that lands directly on
// the target: "bastionUser@loginUser@ip".
func (h Host) DirectIdentity(bastionUser string) string {
	return fmt.Sprintf("%s@%s@%s", bastionUser, h.LoginUser, h.IP)
}

// Keyword returns the search keyword sent at the bastion menu.
func (h Host) Keyword() string {
	if h.Match != "" {
		return h.Match
	}
	return h.Name
}

// Matches reports whether selector names this host, by name or match
// keyword, ignoring case.
func (h Host) Matches(selector string) bool {
	return strings.EqualFold(h.Name, selector) ||
		(h.Match != "" && strings.EqualFold(h.Match, selector))
}

// WithWorkdir prefixes command with a cd into workdir. An empty workdir
// leaves the command untouched.
func WithWorkdir(command, workdir string) string {
	if workdir == "" {
		return command
	}
	return fmt.Sprintf("cd %s && %s", workdir, command)
}

// ExecResult is printed on stdout after a successful exec.
type ExecResult struct {
	Success bool   `json:"success"`
	Host    string `json:"host"`
	Match   string `json:"match,omitempty"`
	Workdir string `json:"workdir,omitempty"`
	// Command is the line actually sent, including any cd prefix.
	Command string `json:"command"`
	Output  string `json:"output"`
	// DurationMs is the wall-clock time from connect to output.
	DurationMs int64 `json:"duration_ms"`
}

// Failure is printed on stdout when a command fails.
type Failure struct {
	Success bool `json:"success"`
	// Kind is the failure category (e.g., "NotFound", "CommandTimeout").
	// Empty for failures outside the session engine, such as bad config.
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
	// Buffer is the unmatched terminal text at the time of failure.
	Buffer string `json:"buffer,omitempty"`
}

// HostList is printed by the list command.
type HostList struct {
	Success bool   `json:"success"`
	Hosts   []Host `json:"hosts"`
}

// ProbeReport is printed by the probe command. Raw is the unsanitized text
// preceding the completion marker.
type ProbeReport struct {
	Host   string `json:"host"`
	Branch string `json:"branch"`
	Banner string `json:"banner,omitempty"`
	Raw    string `json:"raw,omitempty"`
	Output string `json:"output,omitempty"`
}
