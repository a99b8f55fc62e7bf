// Package config loads the EMS server's YAML configuration. A missing
// config file is not an error: Load synthesizes the default in
// memory, and no file is written unless the user explicitly runs
// `ems-server init`.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the session server's tunables (spec.md §6 "CLI
// (server)" plus the ambient pool sizing from §4.D/§4.E).
type Config struct {
	ServerPipe    string `yaml:"server_pipe"`
	MaxSessions   int    `yaml:"max_sessions"`
	MaxThreads    int    `yaml:"max_threads"`
	MaxProcesses  int    `yaml:"max_processes"`
	AccessDelayUs int    `yaml:"access_delay_us"`
	MonitorAddr   string `yaml:"monitor_addr"`   // empty disables the live monitor's TCP listener
	MonitorSocket string `yaml:"monitor_socket"` // empty disables the live monitor's unix-socket listener
}

// Default returns the configuration written on first bootstrap.
func Default() Config {
	return Config{
		ServerPipe:    "/tmp/ems-server.sock",
		MaxSessions:   8,
		MaxThreads:    4,
		MaxProcesses:  4,
		AccessDelayUs: 0,
		MonitorAddr:   "",
		MonitorSocket: "",
	}
}

// AccessDelay converts AccessDelayUs to a time.Duration.
func (c Config) AccessDelay() time.Duration {
	return time.Duration(c.AccessDelayUs) * time.Microsecond
}

// Load reads the config at path, returning the in-memory default
// (Default) without touching the filesystem if it does not yet exist.
// Use Bootstrap (wired to `ems-server init`) to actually write one out.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, fmt.Errorf("config: path required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Bootstrap writes the default config to path and returns it.
func Bootstrap(path string) (Config, error) {
	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: marshal default: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Config{}, fmt.Errorf("config: write %s: %w", path, err)
	}
	return cfg, nil
}
