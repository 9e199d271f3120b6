package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  bucket: jobs-bucket\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "jobs-bucket", cfg.Storage.Bucket)
	assert.Equal(t, 19, cfg.Fleet.HardCap)
	assert.Equal(t, "Worker", cfg.Fleet.WorkerRole)
	assert.Equal(t, 5, cfg.Manager.JobBatch)
	assert.Equal(t, 10, cfg.Manager.DispatchPool)
	assert.Equal(t, 500*time.Millisecond, cfg.Manager.IdleInterval)
	assert.Equal(t, time.Duration(0), cfg.Manager.TaskDeadline)
	assert.Equal(t, "summary.html", cfg.Manager.ReportName)
	assert.Equal(t, 300, cfg.Queues.VisibilityTimeout)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
fleet:
  hard_cap: 4
  driver: docker
manager:
  task_deadline: 2m
  dispatch_pool: 3
queues:
  driver: memory
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Fleet.HardCap)
	assert.Equal(t, "docker", cfg.Fleet.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Manager.TaskDeadline)
	assert.Equal(t, 3, cfg.Manager.DispatchPool)
	assert.Equal(t, "memory", cfg.Queues.Driver)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Fleet:   FleetConfig{HardCap: 19},
			Manager: ManagerConfig{JobBatch: 5, TaskBatch: 5, DispatchPool: 10, ReportName: "summary.html"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero cap", mutate: func(c *Config) { c.Fleet.HardCap = 0 }, wantErr: true},
		{name: "zero pool", mutate: func(c *Config) { c.Manager.DispatchPool = 0 }, wantErr: true},
		{name: "zero batch", mutate: func(c *Config) { c.Manager.TaskBatch = 0 }, wantErr: true},
		{name: "negative wait", mutate: func(c *Config) { c.Worker.WaitSeconds = -1 }, wantErr: true},
		{name: "no report name", mutate: func(c *Config) { c.Manager.ReportName = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
