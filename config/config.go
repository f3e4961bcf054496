/*
Package config loads server configuration.

PURPOSE:
  Central place for everything tunable at deploy time: HTTP port, database
  path, CORS origins, the fallback approver, and the accrual scheduler's
  cadence. Values come from an optional TOML file layered over defaults;
  command-line flags in cmd/server override both.

USAGE:
  cfg := config.Default()
  if err := config.LoadFile("leave.toml", &cfg); err != nil {
      log.Fatal(err)
  }
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all server settings.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Approval  ApprovalConfig  `toml:"approval"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// DatabaseConfig controls the SQLite store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ApprovalConfig controls approver resolution.
type ApprovalConfig struct {
	// DefaultApprover receives applications from employees without a
	// manager in the directory. Required: submissions fail without an
	// approver.
	DefaultApprover string `toml:"default_approver"`
}

// SchedulerConfig controls the accrual scheduler.
type SchedulerConfig struct {
	Enabled       bool     `toml:"enabled"`
	CheckInterval duration `toml:"check_interval"`
}

// duration lets TOML carry values like "1h" or "30m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Path: "./data/leave.db",
		},
		Approval: ApprovalConfig{},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			CheckInterval: duration{time.Hour},
		},
	}
}

// Interval returns the scheduler check interval.
func (c SchedulerConfig) Interval() time.Duration {
	if c.CheckInterval.Duration <= 0 {
		return time.Hour
	}
	return c.CheckInterval.Duration
}

// LoadFile overlays the TOML file at path onto cfg. A missing file is not
// an error; defaults stand.
func LoadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
