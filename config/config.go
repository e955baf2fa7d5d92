// Package config loads and validates the YAML configuration file that
// drives a dateferry run: source/destination roots, the dated-name
// pattern, transport credentials, and scheduling. Field naming and the
// "collect every violation" validation style follow
// abh/rrrgo/recentfile's yaml-tagged MetaData struct.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/callback"
	"github.com/abh/dateferry/transport"
)

// SSHConfig holds the connection parameters for the SSH transport.
type SSHConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port,omitempty"`
	User           string        `yaml:"user"`
	KeyFile        string        `yaml:"key_file,omitempty"`
	KnownHostsFile string        `yaml:"known_hosts_file,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
}

// Config is the top-level shape of a dateferry configuration file.
type Config struct {
	SourceRoot string `yaml:"source_root"`
	DestRoot   string `yaml:"dest_root"`

	Kind       string `yaml:"kind"`        // "directories" or "files"
	DatedRegex string `yaml:"dated_regex,omitempty"`

	RemoveAfterUpload bool `yaml:"remove_after_upload,omitempty"`
	MaxDepth          int  `yaml:"max_depth,omitempty"`

	SSH SSHConfig `yaml:"ssh"`

	// Schedule is a standard five-field cron expression describing when
	// an agent-mode run should fire; empty disables scheduled runs.
	Schedule string `yaml:"schedule,omitempty"`

	// WatchEnabled turns on fsnotify-driven opportunistic runs alongside
	// the cron schedule.
	WatchEnabled bool `yaml:"watch_enabled,omitempty"`

	LogLevel    string `yaml:"log_level,omitempty"`
	MetricsPort int    `yaml:"metrics_port,omitempty"`
}

// Load reads the YAML file at path, applies defaults, and validates the
// result. A malformed or invalid file returns a dateferry.ConfigError (for
// validation failures) or a wrapped I/O or decode error (for everything
// upstream of validation).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &dateferry.IoError{Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DatedRegex == "" {
		c.DatedRegex = `^.*%Y%m%d.*$`
	}
	if c.Kind == "" {
		c.Kind = "directories"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = 9090
	}
}

// Validate aggregates every configuration problem into one ConfigError,
// matching the enumerate-all-violations requirement the callback surface
// itself follows.
func (c *Config) Validate() error {
	var violations []string

	if c.SourceRoot == "" {
		violations = append(violations, "source_root is required")
	}
	if c.DestRoot == "" {
		violations = append(violations, "dest_root is required")
	}
	if _, err := dateferry.ParseItemKind(c.Kind); err != nil {
		violations = append(violations, err.Error())
	}
	if c.SSH.Host == "" {
		violations = append(violations, "ssh.host is required")
	}
	if c.SSH.User == "" {
		violations = append(violations, "ssh.user is required")
	}

	surface := &callback.Surface{DatedRegex: c.DatedRegex}
	if err := surface.Validate(); err != nil {
		cfgErr := err.(*dateferry.ConfigError)
		violations = append(violations, cfgErr.Violations...)
	}

	if len(violations) > 0 {
		return &dateferry.ConfigError{Violations: violations}
	}
	return nil
}

// ItemKind parses the configured Kind. Callers only reach this after
// Validate has already confirmed it parses.
func (c *Config) ItemKind() dateferry.ItemKind {
	kind, _ := dateferry.ParseItemKind(c.Kind)
	return kind
}

// SSHTransportConfig maps the YAML-shaped SSHConfig onto the
// transport.SSHConfig the SSH transport's Dial constructor expects.
func (c *Config) SSHTransportConfig() transport.SSHConfig {
	return transport.SSHConfig{
		Host:           c.SSH.Host,
		Port:           c.SSH.Port,
		User:           c.SSH.User,
		PrivateKeyPath: c.SSH.KeyFile,
		KnownHostsPath: c.SSH.KnownHostsFile,
		Timeout:        c.SSH.ConnectTimeout,
	}
}

// CallbackSurface builds the callback.Surface this configuration
// describes, wiring its logging hooks through l and its abort hook
// through abort (nil means never abort).
func (c *Config) CallbackSurface(l *slog.Logger, abort func() bool) *callback.Surface {
	return callback.FromLogger(l, c.DatedRegex, abort)
}
