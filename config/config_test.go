package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "./data/leave.db", cfg.Database.Path)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval())
}

func TestLoadFile_MissingFileKeepsDefaults(t *testing.T) {
	cfg := Default()

	err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"), &cfg)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile_OverlaysValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090
cors_origins = ["https://app.example.com"]

[database]
path = "/var/lib/leave/leave.db"

[approval]
default_approver = "hr-admin"

[scheduler]
enabled = false
check_interval = "30m"
`), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/var/lib/leave/leave.db", cfg.Database.Path)
	assert.Equal(t, "hr-admin", cfg.Approval.DefaultApprover)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval())
}

func TestLoadFile_PartialFileKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 3001
`), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "./data/leave.db", cfg.Database.Path)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoadFile_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	cfg := Default()
	err := LoadFile(path, &cfg)

	assert.Error(t, err)
}

func TestSchedulerInterval_ZeroFallsBack(t *testing.T) {
	var sc SchedulerConfig
	assert.Equal(t, time.Hour, sc.Interval())
}
