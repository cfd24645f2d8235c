// Package config holds every tunable of the validation engine and
// validates all of them up front, before any capture begins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/standardbeagle/pixelgate/internal/capture"
	"github.com/standardbeagle/pixelgate/internal/imagediff"
	"github.com/standardbeagle/pixelgate/internal/metrics"
)

// Config is the complete engine configuration.
type Config struct {
	// Diff and Metrics carry the comparison-semantics tunables; both
	// feed the cache key, so changing them invalidates cached results.
	Diff    imagediff.Config `json:"diff" mapstructure:"diff"`
	Metrics metrics.Config   `json:"metrics" mapstructure:"metrics"`

	// Viewports are the device classes every screen is validated at.
	Viewports []capture.Viewport `json:"viewports" mapstructure:"viewports"`

	// PoolSize is the number of pooled browser sessions.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration `json:"navigation_timeout" mapstructure:"navigation_timeout"`
	// Headless controls browser visibility.
	Headless bool `json:"headless" mapstructure:"headless"`

	// Concurrency bounds simultaneous capture+diff pipelines.
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`

	// PassCutoff is the quality score at or above which a job passes.
	PassCutoff float64 `json:"pass_cutoff" mapstructure:"pass_cutoff"`

	// CacheDir is the content-addressed result store location.
	// Empty means ~/.pixelgate/cache.
	CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`

	// ForceRefresh bypasses cache reads (writes still happen).
	ForceRefresh bool `json:"force_refresh" mapstructure:"force_refresh"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Diff:              imagediff.DefaultConfig(),
		Metrics:           metrics.DefaultConfig(),
		Viewports:         capture.Presets(),
		PoolSize:          4,
		NavigationTimeout: 30 * time.Second,
		Headless:          true,
		Concurrency:       4,
		PassCutoff:        90,
	}
}

// Load reads a YAML config file over the defaults. PIXELGATE_-prefixed
// environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PIXELGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate fails fast on any invalid setting. A batch must never start
// with a configuration that would fail mid-run.
func (c Config) Validate() error {
	if err := c.Diff.Validate(); err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if len(c.Viewports) == 0 {
		return fmt.Errorf("at least one viewport is required")
	}
	for _, vp := range c.Viewports {
		if !vp.Valid() {
			return fmt.Errorf("viewport %q has invalid dimensions %dx%d@%g",
				vp.Name, vp.Width, vp.Height, vp.Scale)
		}
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be positive, got %s", c.NavigationTimeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.PassCutoff < 0 || c.PassCutoff > 100 {
		return fmt.Errorf("pass_cutoff must be in [0,100], got %g", c.PassCutoff)
	}
	return nil
}

// ComparisonConfig is the slice of the configuration that affects
// comparison semantics; it feeds the cache key so results computed
// under different semantics never collide.
type ComparisonConfig struct {
	Diff    imagediff.Config `json:"diff"`
	Metrics metrics.Config   `json:"metrics"`
}

// Comparison extracts the cache-key-relevant settings.
func (c Config) Comparison() ComparisonConfig {
	return ComparisonConfig{Diff: c.Diff, Metrics: c.Metrics}
}

// CaptureOptions maps the capture-related settings onto the capture
// service options.
func (c Config) CaptureOptions() capture.Options {
	return capture.Options{
		PoolSize:          c.PoolSize,
		NavigationTimeout: c.NavigationTimeout,
		Headless:          c.Headless,
		InstallBrowsers:   true,
	}
}
