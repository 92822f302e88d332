// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/socketrpc/lib/socketpath"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "SOCKETRPC_CONFIG"

// Config is the configuration shared by the daemon and the call tool.
type Config struct {
	// Socket selects the control socket address.
	Socket SocketConfig `yaml:"socket"`

	// Server tunes the daemon's connection handling.
	Server ServerConfig `yaml:"server"`

	// Client bounds a single call.
	Client ClientConfig `yaml:"client"`

	// State configures where the daemon keeps persistent settings.
	State StateConfig `yaml:"state"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// SocketConfig selects the control socket address.
type SocketConfig struct {
	// Basename is combined with the runtime or home directory to form
	// the socket path. Default: Mumble
	Basename string `yaml:"basename"`

	// Path, when set, is used verbatim and Basename is ignored.
	Path string `yaml:"path"`
}

// ServerConfig tunes the daemon's connection handling.
type ServerConfig struct {
	// IdleTimeout closes a connection that sends nothing for this long.
	// "0" disables it. Default: 5m
	IdleTimeout string `yaml:"idle_timeout"`

	// WriteTimeout bounds writing one reply. "0" disables it.
	// Default: 10s
	WriteTimeout string `yaml:"write_timeout"`

	// MaxDocumentSize is the largest request document in bytes.
	// Default: 1048576
	MaxDocumentSize int `yaml:"max_document_size"`

	// RateLimit throttles documents per connection. Zero disables it.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a token bucket applied to each connection.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ClientConfig bounds a single call.
type ClientConfig struct {
	// ConnectTimeout bounds dialing the socket. Default: 1s
	ConnectTimeout string `yaml:"connect_timeout"`

	// ReadTimeout bounds waiting for the reply. Default: 2s
	ReadTimeout string `yaml:"read_timeout"`
}

// StateConfig configures persistent daemon state.
type StateConfig struct {
	// SettingsPath is the audio settings file. Empty keeps settings in
	// memory only.
	SettingsPath string `yaml:"settings_path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given, and
// the base that a loaded file is merged onto.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Basename: socketpath.DefaultBasename,
		},
		Server: ServerConfig{
			IdleTimeout:     "5m",
			WriteTimeout:    "10s",
			MaxDocumentSize: 1 << 20,
		},
		Client: ClientConfig{
			ConnectTimeout: "1s",
			ReadTimeout:    "2s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by SOCKETRPC_CONFIG, or returns Default
// when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, merged onto Default. Only
// ${VAR} and ${VAR:-default} references in path fields are expanded;
// environment variables never override values directly.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// SocketAddress returns the configured socket path, resolving the base
// name when no explicit path is set.
func (c *Config) SocketAddress() (string, error) {
	if c.Socket.Path != "" {
		return c.Socket.Path, nil
	}
	return socketpath.Resolve(c.Socket.Basename)
}

// IdleTimeout returns the parsed server idle timeout. Zero means no
// limit.
func (c *Config) IdleTimeout() (time.Duration, error) {
	return parseLimit("server.idle_timeout", c.Server.IdleTimeout)
}

// WriteTimeout returns the parsed server write timeout. Zero means no
// limit.
func (c *Config) WriteTimeout() (time.Duration, error) {
	return parseLimit("server.write_timeout", c.Server.WriteTimeout)
}

// ConnectTimeout returns the parsed client connect timeout.
func (c *Config) ConnectTimeout() (time.Duration, error) {
	return parseDuration("client.connect_timeout", c.Client.ConnectTimeout)
}

// ReadTimeout returns the parsed client read timeout.
func (c *Config) ReadTimeout() (time.Duration, error) {
	return parseDuration("client.read_timeout", c.Client.ReadTimeout)
}

// LogLevel returns the parsed logging level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// parseLimit is parseDuration that also accepts zero.
func parseLimit(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", field, value)
	}
	return duration, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", field, value)
	}
	return duration, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}
	c.Socket.Path = expandVars(c.Socket.Path, vars)
	c.State.SettingsPath = expandVars(c.State.SettingsPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}. Known vars are
// consulted before the environment; an empty value falls through to
// the default.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value := vars[name]; value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket.Path == "" && c.Socket.Basename == "" {
		errs = append(errs, errors.New("socket.basename or socket.path is required"))
	}

	for _, check := range []func() (time.Duration, error){
		c.IdleTimeout, c.WriteTimeout, c.ConnectTimeout, c.ReadTimeout,
	} {
		if _, err := check(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Server.MaxDocumentSize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_document_size must be positive, got %d", c.Server.MaxDocumentSize))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("server.rate_limit.requests_per_second must not be negative"))
	}
	if c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit.burst must not be negative"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, text, or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
