package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/pixelgate/internal/capture"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelgate.yaml")
	yaml := `
concurrency: 8
pass_cutoff: 75
navigation_timeout: 10s
headless: false
diff:
  pixel_threshold: 0.25
viewports:
  - name: laptop
    width: 1366
    height: 768
    scale: 1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 75.0, cfg.PassCutoff)
	assert.Equal(t, 10*time.Second, cfg.NavigationTimeout)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 0.25, cfg.Diff.PixelThreshold)
	require.Len(t, cfg.Viewports, 1)
	assert.Equal(t, capture.Viewport{Name: "laptop", Width: 1366, Height: 768, Scale: 1}, cfg.Viewports[0])

	// Untouched settings keep their defaults.
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, Default().Metrics, cfg.Metrics)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no viewports", func(c *Config) { c.Viewports = nil }},
		{"bad viewport", func(c *Config) { c.Viewports = []capture.Viewport{{Name: "zero"}} }},
		{"zero pool", func(c *Config) { c.PoolSize = 0 }},
		{"zero timeout", func(c *Config) { c.NavigationTimeout = 0 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"cutoff above range", func(c *Config) { c.PassCutoff = 101 }},
		{"cutoff below range", func(c *Config) { c.PassCutoff = -1 }},
		{"bad diff threshold", func(c *Config) { c.Diff.PixelThreshold = 2 }},
		{"bad metrics window", func(c *Config) { c.Metrics.SSIMWindow = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestComparisonCoversSemanticsOnly(t *testing.T) {
	cfg := Default()
	base := cfg.Comparison()

	// Capture-side settings do not change comparison identity.
	cfg.Concurrency = 99
	cfg.PoolSize = 99
	assert.Equal(t, base, cfg.Comparison())

	// Comparison tunables do.
	cfg.Diff.PixelThreshold = 0.5
	assert.NotEqual(t, base, cfg.Comparison())
}

func TestCaptureOptions(t *testing.T) {
	cfg := Default()
	cfg.PoolSize = 2
	cfg.NavigationTimeout = 5 * time.Second
	cfg.Headless = false

	opts := cfg.CaptureOptions()
	assert.Equal(t, 2, opts.PoolSize)
	assert.Equal(t, 5*time.Second, opts.NavigationTimeout)
	assert.False(t, opts.Headless)
	assert.True(t, opts.InstallBrowsers)
}
