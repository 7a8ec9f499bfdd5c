// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigEnv names the configuration file when --config is absent.
	ConfigEnv = "TASKCTL_CONFIG"

	// EscapeSequenceEnv overrides attach.escape_sequence.
	EscapeSequenceEnv = "TASKCTL_ESCAPE_SEQUENCE"
)

// Config is the top-level configuration.
type Config struct {
	// Cluster locates the switchboard the CLI talks to.
	Cluster ClusterConfig `yaml:"cluster"`

	// Attach configures interactive sessions.
	Attach AttachConfig `yaml:"attach"`

	// Logs configures task log reads.
	Logs LogsConfig `yaml:"logs"`

	// Switchboard configures the taskctl-switchboard server.
	Switchboard SwitchboardConfig `yaml:"switchboard"`
}

// ClusterConfig locates the switchboard endpoints.
type ClusterConfig struct {
	// SessionAddress is where attach/exec sessions are opened
	// (unix:<path>, tcp:<host:port>, or a bare socket path).
	// Default: unix:/run/taskctl/switchboard.sock
	SessionAddress string `yaml:"session_address"`

	// APIURL is the base URL of the switchboard HTTP API used for task
	// listing and log reads.
	// Default: http://127.0.0.1:5052
	APIURL string `yaml:"api_url"`
}

// AttachConfig configures interactive sessions.
type AttachConfig struct {
	// EscapeSequence is the comma-separated detach key sequence.
	// Default: ctrl-p,ctrl-q
	EscapeSequence string `yaml:"escape_sequence"`

	// HeartbeatInterval is how often an idle session pings the
	// switchboard.
	// Default: 30s
	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

// LogsConfig configures task log reads.
type LogsConfig struct {
	// PollInterval is the wait between empty polls in --follow mode.
	// Default: 1s
	PollInterval string `yaml:"poll_interval"`

	// ChunkSize is the maximum number of bytes requested per poll.
	// Default: 65536
	ChunkSize int `yaml:"chunk_size"`
}

// SwitchboardConfig configures the server side.
type SwitchboardConfig struct {
	// SessionAddress is the listener for attach/exec sessions.
	SessionAddress string `yaml:"session_address"`

	// HTTPAddress is the listen address of the HTTP API.
	HTTPAddress string `yaml:"http_address"`

	// RingBufferSize is the per-stream output retention in bytes.
	// Default: 1048576
	RingBufferSize int `yaml:"ring_buffer_size"`

	// Tasks are launched at startup.
	Tasks []TaskConfig `yaml:"tasks"`
}

// TaskConfig describes one task run by the switchboard.
type TaskConfig struct {
	// Name prefixes the generated task ID.
	Name string `yaml:"name"`

	// Command is the argv to run. Required.
	Command []string `yaml:"command"`

	// Dir is the working directory. Default: the switchboard's.
	Dir string `yaml:"dir"`

	// Env is appended to the switchboard's environment.
	Env []string `yaml:"env"`

	// TTY runs the task on a pseudo-terminal. Only TTY tasks accept
	// attach.
	TTY bool `yaml:"tty"`

	// DisableSwitchboard refuses interactive sessions for the task,
	// as a container launched without the I/O switchboard would.
	DisableSwitchboard bool `yaml:"disable_switchboard"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			SessionAddress: "unix:/run/taskctl/switchboard.sock",
			APIURL:         "http://127.0.0.1:5052",
		},
		Attach: AttachConfig{
			EscapeSequence:    "ctrl-p,ctrl-q",
			HeartbeatInterval: "30s",
		},
		Logs: LogsConfig{
			PollInterval: "1s",
			ChunkSize:    64 * 1024,
		},
		Switchboard: SwitchboardConfig{
			SessionAddress: "unix:/run/taskctl/switchboard.sock",
			HTTPAddress:    "127.0.0.1:5052",
			RingBufferSize: 1024 * 1024,
		},
	}
}

// Load loads the file named by TASKCTL_CONFIG, or returns Default when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default and
// validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EscapeSequence returns the detach sequence setting: the
// TASKCTL_ESCAPE_SEQUENCE environment variable when set, otherwise
// attach.escape_sequence. The value is not validated here.
func (c *Config) EscapeSequence() string {
	if value := os.Getenv(EscapeSequenceEnv); value != "" {
		return value
	}
	return c.Attach.EscapeSequence
}

// HeartbeatInterval returns attach.heartbeat_interval as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	interval, _ := time.ParseDuration(c.Attach.HeartbeatInterval)
	return interval
}

// PollInterval returns logs.poll_interval as a duration.
func (c *Config) PollInterval() time.Duration {
	interval, _ := time.ParseDuration(c.Logs.PollInterval)
	return interval
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Cluster.SessionAddress == "" {
		errs = append(errs, fmt.Errorf("cluster.session_address is required"))
	}
	if c.Cluster.APIURL == "" {
		errs = append(errs, fmt.Errorf("cluster.api_url is required"))
	}
	if err := positiveDuration("attach.heartbeat_interval", c.Attach.HeartbeatInterval); err != nil {
		errs = append(errs, err)
	}
	if err := positiveDuration("logs.poll_interval", c.Logs.PollInterval); err != nil {
		errs = append(errs, err)
	}
	if c.Logs.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("logs.chunk_size must be positive, got %d", c.Logs.ChunkSize))
	}
	if c.Switchboard.RingBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("switchboard.ring_buffer_size must be positive, got %d", c.Switchboard.RingBufferSize))
	}

	names := make(map[string]bool)
	for index, task := range c.Switchboard.Tasks {
		if task.Name == "" {
			errs = append(errs, fmt.Errorf("switchboard.tasks[%d].name is required", index))
		} else if names[task.Name] {
			errs = append(errs, fmt.Errorf("switchboard.tasks[%d]: duplicate task name %q", index, task.Name))
		}
		names[task.Name] = true
		if len(task.Command) == 0 {
			errs = append(errs, fmt.Errorf("switchboard.tasks[%d].command is required", index))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func positiveDuration(field, value string) error {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in address, URL,
// and path fields.
func (c *Config) expandVariables() {
	c.Cluster.SessionAddress = expandVars(c.Cluster.SessionAddress)
	c.Cluster.APIURL = expandVars(c.Cluster.APIURL)
	c.Switchboard.SessionAddress = expandVars(c.Switchboard.SessionAddress)
	c.Switchboard.HTTPAddress = expandVars(c.Switchboard.HTTPAddress)
	for index := range c.Switchboard.Tasks {
		c.Switchboard.Tasks[index].Dir = expandVars(c.Switchboard.Tasks[index].Dir)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
