package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	Addr           string        `yaml:"addr"`            // TCP bind address (e.g. ":4000")
	MetricsAddr    string        `yaml:"metrics_addr"`    // HTTP bind address for /metrics (empty = disabled)
	DBPath         string        `yaml:"db_path"`         // SQLite audit log path (empty = disabled)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`    // max silence before a connection is dropped
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // per-line write deadline
	LoginAttempts  int           `yaml:"login_attempts"`  // failed LOGIN lines before disconnect
	MaxConnections int64         `yaml:"max_connections"` // concurrently handled connections
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`  // wait for handlers before force-closing
	SendQueueSize  int           `yaml:"send_queue_size"` // queued items per connection before senders wait
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":4000",
		IdleTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
		LoginAttempts:  3,
		MaxConnections: 100,
		ShutdownGrace:  5 * time.Second,
		SendQueueSize:  256,
	}
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle_timeout must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write_timeout must be positive"))
	}
	if c.LoginAttempts <= 0 {
		errs = append(errs, errors.New("login_attempts must be positive"))
	}
	if c.MaxConnections <= 0 {
		errs = append(errs, errors.New("max_connections must be positive"))
	}
	if c.ShutdownGrace <= 0 {
		errs = append(errs, errors.New("shutdown_grace must be positive"))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, errors.New("send_queue_size must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server: invalid config: %w", err)
	}
	return nil
}

// LoadConfigFile reads a YAML config file and overlays it onto cfg. Keys
// absent from the file keep their current values; unknown keys are errors.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data, cfg)
}

// ParseConfig overlays YAML data onto cfg.
func ParseConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// AddrForPort turns a positional port argument into a bind address.
func AddrForPort(arg string) (string, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %q: must be 1-65535", arg)
	}
	return net.JoinHostPort("", strconv.Itoa(port)), nil
}
