package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stream:
  view_radius: 6
  tick_budget_ms: 4
storage:
  backend: file
  path: /tmp/w
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Stream.ViewRadius)
	assert.Equal(t, 4*time.Millisecond, cfg.Stream.TickBudget())
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 256, cfg.Storage.BatchSize, "незаданные поля берутся из Default")
}

func TestLoadEmptyPathWithoutEnv(t *testing.T) {
	t.Setenv("CHUNKSTREAM_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "s3"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Stream.TickBudgetMs = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Backend = BackendNull
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestMetricsPortFallback(t *testing.T) {
	t.Setenv("CHUNKSTREAM_METRICS_PORT", "9100")
	m := MetricsConfig{}
	assert.Equal(t, 9100, m.GetMetricsPort())
	m.Port = 2200
	assert.Equal(t, 2200, m.GetMetricsPort())
}
