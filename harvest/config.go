package harvest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level harvest configuration.
type Config struct {
	// URL of the page embedding the map widget.
	URL     string        `yaml:"url"`
	Browser BrowserConfig `yaml:"browser"`
	Surface SurfaceConfig `yaml:"surface"`
	Filter  FilterConfig  `yaml:"filter"`
	Tooltip TooltipConfig `yaml:"tooltip"`
	Raster  RasterConfig  `yaml:"raster"`
	// Conflicts selects the dedup tie-break policy: "latest" or "first".
	Conflicts string `yaml:"conflicts"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote      string   `yaml:"remote"`
	Headful     bool     `yaml:"headful"`
	XvfbDisplay string   `yaml:"xvfb_display"`
	Blocking    []string `yaml:"blocking"`
}

// SurfaceConfig controls surface detection.
type SurfaceConfig struct {
	// Override forces a strategy ("vector" or "raster") for
	// troubleshooting; empty or "auto" detects.
	Override     string        `yaml:"override"`
	PathSelector string        `yaml:"path_selector"`
	MinPaths     int           `yaml:"min_paths"`
	Wait         time.Duration `yaml:"wait"`
}

// FilterConfig controls the selection dropdowns and settle detection.
type FilterConfig struct {
	YearSelector    string        `yaml:"year_selector"`
	AgeSelector     string        `yaml:"age_selector"`
	MetalSelector   string        `yaml:"metal_selector"`
	MapSelector     string        `yaml:"map_selector"`
	LoadingSelector string        `yaml:"loading_selector"`
	SettleQuiet     time.Duration `yaml:"settle_quiet"`
	SettleTimeout   time.Duration `yaml:"settle_timeout"`
	Retries         int           `yaml:"retries"`
}

// TooltipConfig controls the hover reader.
type TooltipConfig struct {
	Selectors []string      `yaml:"selectors"`
	Attempts  int           `yaml:"attempts"`
	Poll      time.Duration `yaml:"poll"`
}

// RasterConfig bounds the pixel-grid fallback. Step is the grid spacing in
// CSS pixels: it must stay below the smallest region's on-screen extent or
// that region is never sampled. Coarser is faster; finer is more complete.
type RasterConfig struct {
	Step float64 `yaml:"step"`
}

func (c *Config) defaults() {
	if c.URL == "" {
		c.URL = "https://ideonapi.com/ideon-ichra-insights-by-state/"
	}
	if c.Filter.MapSelector == "" {
		c.Filter.MapSelector = "#ichra-map"
	}
	if c.Raster.Step <= 0 {
		c.Raster.Step = 8
	}
	if c.Conflicts == "" {
		c.Conflicts = "latest"
	}
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harvest: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("harvest: parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}
