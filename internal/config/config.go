// Package config loads jump-ssh configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (JUMP_SSH_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order when no path is given:
//  1. $JUMP_SSH_CONFIG
//  2. .jump-ssh.yaml in current directory
//  3. ~/.config/jump-ssh/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timvw/jump-ssh/internal/model"
	"github.com/timvw/jump-ssh/internal/transport"
)

// ErrHostNotAllowed is returned by ResolveHost for hosts outside the whitelist.
var ErrHostNotAllowed = errors.New("host is not in allowed_hosts")

// Config holds all jump-ssh configuration.
type Config struct {
	JumpServer JumpServer `yaml:"jumpserver"`

	// Transport selects how the bastion is reached: "system" spawns the ssh
	// binary under a local pty, "native" speaks ssh in-process.
	Transport string `yaml:"transport"`
	SSHBinary string `yaml:"ssh_binary"`

	Timeout Timeouts `yaml:"timeout"`
	Logging Logging  `yaml:"logging"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// AuditLog is the JSONL history file. Empty selects the default
	// location, "off" disables the history.
	AuditLog string `yaml:"audit_log"`

	AllowedHosts []model.Host `yaml:"allowed_hosts"`

	// ConfigFile is the path to the config file that was loaded.
	ConfigFile string `yaml:"-"`
}

// JumpServer is the bastion endpoint and its credentials.
type JumpServer struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// KeyPath is a private key for the native transport, or passed as -i to
	// the ssh binary.
	KeyPath string `yaml:"key_path"`
	// KnownHosts enables host key verification when set.
	KnownHosts string `yaml:"known_hosts"`
}

// Timeouts are the per-phase waits.
type Timeouts struct {
	Connect Duration `yaml:"connect"`
	Expect  Duration `yaml:"expect"`
	Command Duration `yaml:"command"`
}

// Logging configures the zerolog output.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that reads plain YAML numbers as seconds and
// strings as Go durations ("90s", "2m").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration parses "15" or "1.5" as seconds and anything else as a Go
// duration string.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		JumpServer: JumpServer{Port: 22},
		Transport:  "system",
		SSHBinary:  "ssh",
		Timeout: Timeouts{
			Connect: Duration(15 * time.Second),
			Expect:  Duration(15 * time.Second),
			Command: Duration(60 * time.Second),
		},
		Logging: Logging{Level: "warn", Format: "console"},
	}
}

// Load reads configuration from path (or the first file found in the search
// order when path is empty) and environment variables, then validates it.
// A missing config file is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.ConfigFile = path
	mergeFile(cfg, &fileCfg)

	// Environment variables override everything
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	cfg.JumpServer.KeyPath = expandHome(cfg.JumpServer.KeyPath)
	cfg.JumpServer.KnownHosts = expandHome(cfg.JumpServer.KnownHosts)
	cfg.AuditLog = expandHome(cfg.AuditLog)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SearchPaths returns the config file candidates in search order.
func SearchPaths() []string {
	var paths []string
	if v := os.Getenv("JUMP_SSH_CONFIG"); v != "" {
		paths = append(paths, v)
	}
	paths = append(paths, ".jump-ssh.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jump-ssh", "config.yaml"))
	}
	return paths
}

// findConfigFile returns the path and contents of the config file to load.
func findConfigFile(explicit string) (string, []byte, error) {
	if explicit != "" {
		path := expandHome(explicit)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file: %w", err)
		}
		return path, data, nil
	}

	paths := SearchPaths()
	for _, path := range paths {
		if data, err := os.ReadFile(expandHome(path)); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("no config file found (searched %s)", strings.Join(paths, ", "))
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	js, f := &cfg.JumpServer, file.JumpServer
	if f.Host != "" {
		js.Host = f.Host
	}
	if f.Port != 0 {
		js.Port = f.Port
	}
	if f.User != "" {
		js.User = f.User
	}
	if f.Password != "" {
		js.Password = f.Password
	}
	if f.KeyPath != "" {
		js.KeyPath = f.KeyPath
	}
	if f.KnownHosts != "" {
		js.KnownHosts = f.KnownHosts
	}

	if file.Transport != "" {
		cfg.Transport = file.Transport
	}
	if file.SSHBinary != "" {
		cfg.SSHBinary = file.SSHBinary
	}
	if file.Timeout.Connect != 0 {
		cfg.Timeout.Connect = file.Timeout.Connect
	}
	if file.Timeout.Expect != 0 {
		cfg.Timeout.Expect = file.Timeout.Expect
	}
	if file.Timeout.Command != 0 {
		cfg.Timeout.Command = file.Timeout.Command
	}
	if file.Logging.Level != "" {
		cfg.Logging.Level = file.Logging.Level
	}
	if file.Logging.Format != "" {
		cfg.Logging.Format = file.Logging.Format
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
	if file.AuditLog != "" {
		cfg.AuditLog = file.AuditLog
	}
	if len(file.AllowedHosts) > 0 {
		cfg.AllowedHosts = file.AllowedHosts
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("JUMP_SSH_HOST"); v != "" {
		cfg.JumpServer.Host = v
	}
	if v := os.Getenv("JUMP_SSH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid JUMP_SSH_PORT %q: %w", v, err)
		}
		cfg.JumpServer.Port = port
	}
	if v := os.Getenv("JUMP_SSH_USER"); v != "" {
		cfg.JumpServer.User = v
	}
	if v := os.Getenv("JUMP_SSH_PASSWORD"); v != "" {
		cfg.JumpServer.Password = v
	}
	if v := os.Getenv("JUMP_SSH_KEY_PATH"); v != "" {
		cfg.JumpServer.KeyPath = v
	}
	if v := os.Getenv("JUMP_SSH_KNOWN_HOSTS"); v != "" {
		cfg.JumpServer.KnownHosts = v
	}
	if v := os.Getenv("JUMP_SSH_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("JUMP_SSH_SSH_BINARY"); v != "" {
		cfg.SSHBinary = v
	}
	if v := os.Getenv("JUMP_SSH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("JUMP_SSH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("JUMP_SSH_AUDIT_LOG"); v != "" {
		cfg.AuditLog = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
	return nil
}

// Validate checks that the configuration can drive a session.
func (c *Config) Validate() error {
	var errs []error
	if c.JumpServer.Host == "" {
		errs = append(errs, errors.New("jumpserver.host is required"))
	}
	if c.JumpServer.User == "" {
		errs = append(errs, errors.New("jumpserver.user is required"))
	}
	if c.JumpServer.Port < 1 || c.JumpServer.Port > 65535 {
		errs = append(errs, fmt.Errorf("jumpserver.port %d out of range", c.JumpServer.Port))
	}
	if !transport.ValidMode(c.Transport) {
		errs = append(errs, fmt.Errorf("transport %q must be one of %s", c.Transport, strings.Join(transport.Modes, ", ")))
	}
	for name, d := range map[string]Duration{
		"timeout.connect": c.Timeout.Connect,
		"timeout.expect":  c.Timeout.Expect,
		"timeout.command": c.Timeout.Command,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	seen := make(map[string]bool)
	for i, h := range c.AllowedHosts {
		if h.Name == "" {
			errs = append(errs, fmt.Errorf("allowed_hosts[%d]: name is required", i))
			continue
		}
		key := strings.ToLower(h.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("allowed_hosts[%d]: duplicate name %q", i, h.Name))
		}
		seen[key] = true
		if h.Match == "" && !h.Direct() {
			errs = append(errs, fmt.Errorf("allowed_hosts[%d] %s: needs match, or ip and login_user", i, h.Name))
		}
		if (h.IP == "") != (h.LoginUser == "") {
			errs = append(errs, fmt.Errorf("allowed_hosts[%d] %s: ip and login_user go together", i, h.Name))
		}
	}
	return errors.Join(errs...)
}

// ResolveHost finds the whitelisted host named by selector, comparing it
// case-insensitively against each host's name and match keyword.
func (c *Config) ResolveHost(selector string) (model.Host, error) {
	for _, h := range c.AllowedHosts {
		if h.Matches(selector) {
			return h, nil
		}
	}
	names := make([]string, len(c.AllowedHosts))
	for i, h := range c.AllowedHosts {
		names[i] = h.Name
	}
	return model.Host{}, fmt.Errorf("%w: %q (available: %s)", ErrHostNotAllowed, selector, strings.Join(names, ", "))
}

// AuditPath returns the audit log location: "" when disabled, fallback when
// unset.
func (c *Config) AuditPath(fallback string) string {
	switch strings.ToLower(c.AuditLog) {
	case "off", "disable", "none":
		return ""
	case "":
		return fallback
	}
	return c.AuditLog
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
