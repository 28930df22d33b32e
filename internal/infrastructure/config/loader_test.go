package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

func TestLoadConfig(t *testing.T) {
	content := `version: 1
thresholds:
  critical_min_requests: 50
  critical_error_rate: 2.5
storage:
  driver: file
  dir: data/snapshots
  max_snapshots: 30
inventory:
  path: tests/postman.json
  format: postman
exports_dir: incoming
time_window: 24h
`
	path := filepath.Join(t.TempDir(), ".logpulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Loader{}.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 50, cfg.Thresholds.CriticalMinRequests)
	assert.Equal(t, 2.5, cfg.Thresholds.CriticalErrorRate)
	// Keys not in the file keep their defaults.
	assert.Equal(t, domain.DefaultThresholds().TopN, cfg.Thresholds.TopN)
	assert.Equal(t, domain.DefaultThresholds().VolumeWeight, cfg.Thresholds.VolumeWeight)

	assert.Equal(t, application.StorageFile, cfg.Storage.Driver)
	assert.Equal(t, "data/snapshots", cfg.Storage.Dir)
	assert.Equal(t, 30, cfg.Storage.MaxSnapshots)
	assert.Equal(t, "tests/postman.json", cfg.Inventory.Path)
	assert.Equal(t, application.InventoryPostman, cfg.Inventory.Format)
	assert.Equal(t, "incoming", cfg.ExportsDir)
	assert.Equal(t, 24*time.Hour, cfg.TimeWindow)
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, application.DefaultConfig(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"invalid yaml", "thresholds: [", nil},
		{"bad window", "time_window: soon", nil},
		{"negative window", "time_window: -1h", nil},
		{"unknown driver", "storage:\n  driver: s3", nil},
		{"negative retention", "storage:\n  max_snapshots: -1", nil},
		{"invalid threshold", "thresholds:\n  critical_error_rate: 150", domain.ErrInvalidThreshold},
		{"weights do not sum", "thresholds:\n  volume_weight: 0.9", domain.ErrInvalidWeights},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Loader{}.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".logpulse.yaml")

	ok, err := Loader{}.Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))
	ok, err = Loader{}.Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverlay(t *testing.T) {
	env := map[string]string{
		EnvDatabaseURL: "postgres://localhost/logpulse",
		EnvStorageDir:  "/var/lib/logpulse",
	}
	loader := Loader{Getenv: func(k string) string { return env[k] }}

	cfg := loader.Overlay(application.DefaultConfig())
	assert.Equal(t, application.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/logpulse", cfg.Storage.DSN)
	assert.Equal(t, "/var/lib/logpulse", cfg.Storage.Dir)
}

func TestOverlay_NoEnvKeepsConfig(t *testing.T) {
	loader := Loader{Getenv: func(string) string { return "" }}
	cfg := loader.Overlay(application.DefaultConfig())
	assert.Equal(t, application.DefaultConfig(), cfg)
}

func TestWriteConfig(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, application.DefaultConfig()))

	out := buf.String()
	assert.True(t, strings.Contains(out, "version: 1"))
	assert.True(t, strings.Contains(out, "thresholds:"))
	assert.True(t, strings.Contains(out, "critical_min_requests: 100"))
	assert.True(t, strings.Contains(out, "time_window: 6h0m0s"))

	// What Write produces, Parse reads back.
	cfg, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, application.DefaultConfig(), cfg)
}
