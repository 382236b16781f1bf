package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1.0, cfg.Search.WVec)
	assert.Equal(t, 1.0, cfg.Search.WASR)
	assert.Equal(t, 0.5, cfg.Search.WOCR)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 30, cfg.Search.FPS)
	assert.Equal(t, 1024, cfg.Search.Dimensions)
	assert.Equal(t, 5*time.Second, cfg.Stores.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Embedder.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameseek.yaml")
	body := `
data_root: /srv/keyframes
search:
  w_ocr: 0.25
  fps: 25
server:
  addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/keyframes", cfg.DataRoot)
	assert.Equal(t, 0.25, cfg.Search.WOCR)
	assert.Equal(t, 25, cfg.Search.FPS)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	// Untouched fields keep defaults.
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameseek.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_root: /from/file\n"), 0o644))

	t.Setenv("FRAMESEEK_DATA_ROOT", "/from/env")
	t.Setenv("FRAMESEEK_W_VEC", "2.5")
	t.Setenv("FRAMESEEK_RRF_CONSTANT", "10")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataRoot)
	assert.Equal(t, 2.5, cfg.Search.WVec)
	assert.Equal(t, 10, cfg.Search.RRFConstant)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Search.WASR = -1 }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"zero oversample", func(c *Config) { c.Search.Oversample = 0 }},
		{"zero fps", func(c *Config) { c.Search.FPS = 0 }},
		{"zero dimensions", func(c *Config) { c.Search.Dimensions = 0 }},
		{"zero store timeout", func(c *Config) { c.Stores.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
