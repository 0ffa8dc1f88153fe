// Package config provides configuration loading for the metaball demos.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Viewport   ViewportConfig   `yaml:"viewport"`
	Grid       GridConfig       `yaml:"grid"`
	Metaball   MetaballConfig   `yaml:"metaball"`
	Simulation SimulationConfig `yaml:"simulation"`
	Window     WindowConfig     `yaml:"window"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ViewportConfig holds the world-space viewport and output texture size.
type ViewportConfig struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	TextureWidth  int     `yaml:"texture_width"`  // 0 = viewport width
	TextureHeight int     `yaml:"texture_height"` // 0 = viewport height
}

// GridConfig holds the spatial grid parameters.
type GridConfig struct {
	CellSize float64 `yaml:"cell_size"`
	Workers  int     `yaml:"workers"` // emission workers, 1 = sequential
}

// MetaballConfig holds the core capacities and presentation parameters.
type MetaballConfig struct {
	MaxBalls                int          `yaml:"max_balls"`
	MaxCellsPerBallEstimate int          `yaml:"max_cells_per_ball_estimate"`
	Iso                     float64      `yaml:"iso"`
	NormalZScale            float64      `yaml:"normal_z_scale"`
	DebugValidate           bool         `yaml:"debug_validate"`
	DiagnosticsInterval     int          `yaml:"diagnostics_interval"` // frames, 0 = off
	Palette                 [][4]float32 `yaml:"palette"`
}

// SimulationConfig holds the demo ball simulation parameters.
type SimulationConfig struct {
	Initial     int     `yaml:"initial"`
	Min         int     `yaml:"min"`
	Max         int     `yaml:"max"`
	SpawnRate   float64 `yaml:"spawn_rate"`   // balls per second
	DespawnRate float64 `yaml:"despawn_rate"` // balls per second
	RadiusMin   float64 `yaml:"radius_min"`
	RadiusMax   float64 `yaml:"radius_max"`
	Speed       float64 `yaml:"speed"`
	Clusters    int     `yaml:"clusters"`
	Seed        int64   `yaml:"seed"`
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Title       string     `yaml:"title"`
	PresentMode string     `yaml:"present_mode"` // vsync | uncapped
	ClearColor  [4]float64 `yaml:"clear_color"`
	Software    bool       `yaml:"software"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfCSV  string `yaml:"perf_csv"`
	Window   int    `yaml:"window"`
	Profiler bool   `yaml:"profiler"`
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	ViewW32    float32
	ViewH32    float32
	CellSize32 float32
	TextureW   uint32
	TextureH   uint32
	// EntryCapacity is MaxBalls * MaxCellsPerBallEstimate.
	EntryCapacity uint32
	LogLevel      slog.Level
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
//
// Parameters:
//   - path: the user config file, or "" for defaults only
//
// Returns:
//   - *Config: the effective configuration
//   - error: a read, parse or validation error
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file are overwritten.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	positive("viewport.width", c.Viewport.Width)
	positive("viewport.height", c.Viewport.Height)
	positive("grid.cell_size", c.Grid.CellSize)
	positive("metaball.max_balls", float64(c.Metaball.MaxBalls))
	positive("metaball.max_cells_per_ball_estimate", float64(c.Metaball.MaxCellsPerBallEstimate))
	positive("metaball.normal_z_scale", c.Metaball.NormalZScale)
	if c.Viewport.TextureWidth < 0 || c.Viewport.TextureHeight < 0 {
		errs = append(errs, errors.New("viewport texture size must not be negative"))
	}
	if c.Metaball.Iso <= 0 || c.Metaball.Iso >= 1 {
		errs = append(errs, fmt.Errorf("metaball.iso must be in (0, 1), got %v", c.Metaball.Iso))
	}
	if uint64(c.Metaball.MaxBalls)*uint64(c.Metaball.MaxCellsPerBallEstimate) > 1<<32-1 {
		errs = append(errs, errors.New("metaball entry capacity overflows uint32"))
	}
	if c.Simulation.Min > c.Simulation.Max {
		errs = append(errs, fmt.Errorf("simulation.min %d exceeds simulation.max %d", c.Simulation.Min, c.Simulation.Max))
	}
	if c.Simulation.Max > c.Metaball.MaxBalls {
		errs = append(errs, fmt.Errorf("simulation.max %d exceeds metaball.max_balls %d", c.Simulation.Max, c.Metaball.MaxBalls))
	}
	if c.Simulation.RadiusMin <= 0 || c.Simulation.RadiusMin > c.Simulation.RadiusMax {
		errs = append(errs, fmt.Errorf("simulation radius range [%v, %v] is invalid", c.Simulation.RadiusMin, c.Simulation.RadiusMax))
	}
	switch c.Window.PresentMode {
	case "vsync", "uncapped":
	default:
		errs = append(errs, fmt.Errorf("window.present_mode %q is not vsync or uncapped", c.Window.PresentMode))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ViewW32 = float32(c.Viewport.Width)
	c.Derived.ViewH32 = float32(c.Viewport.Height)
	c.Derived.CellSize32 = float32(c.Grid.CellSize)

	// Texture size defaults to the viewport size
	texW := c.Viewport.TextureWidth
	if texW == 0 {
		texW = int(c.Viewport.Width + 0.5)
	}
	texH := c.Viewport.TextureHeight
	if texH == 0 {
		texH = int(c.Viewport.Height + 0.5)
	}
	c.Derived.TextureW = uint32(max(texW, 1))
	c.Derived.TextureH = uint32(max(texH, 1))

	c.Derived.EntryCapacity = uint32(c.Metaball.MaxBalls * c.Metaball.MaxCellsPerBallEstimate)
	c.Derived.LogLevel, _ = parseLevel(c.Log.Level)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
