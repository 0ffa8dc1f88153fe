package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Metaball.MaxBalls != 4096 || cfg.Metaball.MaxCellsPerBallEstimate != 16 {
		t.Errorf("capacities = %d x %d", cfg.Metaball.MaxBalls, cfg.Metaball.MaxCellsPerBallEstimate)
	}
	if cfg.Derived.EntryCapacity != 4096*16 {
		t.Errorf("entry capacity = %d", cfg.Derived.EntryCapacity)
	}
	if cfg.Derived.TextureW != 1280 || cfg.Derived.TextureH != 720 {
		t.Errorf("texture size = %dx%d, want the viewport size", cfg.Derived.TextureW, cfg.Derived.TextureH)
	}
	if cfg.Derived.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v", cfg.Derived.LogLevel)
	}
	if len(cfg.Metaball.Palette) != 6 {
		t.Errorf("palette has %d colors, want 6", len(cfg.Metaball.Palette))
	}
}

func TestLoad_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	data := []byte(`
viewport:
  width: 200
  texture_width: 64
grid:
  cell_size: 16
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Viewport.Width != 200 || cfg.Viewport.Height != 720 {
		t.Errorf("viewport = %vx%v, want 200x720", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	if cfg.Derived.TextureW != 64 || cfg.Derived.TextureH != 720 {
		t.Errorf("texture size = %dx%d, want 64x720", cfg.Derived.TextureW, cfg.Derived.TextureH)
	}
	if cfg.Derived.CellSize32 != 16 {
		t.Errorf("cell size = %v", cfg.Derived.CellSize32)
	}
	if cfg.Derived.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.Derived.LogLevel)
	}
	if cfg.Metaball.MaxBalls != 4096 {
		t.Errorf("max balls = %d, want the default", cfg.Metaball.MaxBalls)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "zero cell size", yaml: "grid:\n  cell_size: 0\n"},
		{name: "negative width", yaml: "viewport:\n  width: -1\n"},
		{name: "iso out of range", yaml: "metaball:\n  iso: 1.5\n"},
		{name: "zero normal z scale", yaml: "metaball:\n  normal_z_scale: 0\n"},
		{name: "negative normal z scale", yaml: "metaball:\n  normal_z_scale: -0.5\n"},
		{name: "simulation above capacity", yaml: "metaball:\n  max_balls: 10\nsimulation:\n  min: 1\n  initial: 5\n  max: 20\n"},
		{name: "bad present mode", yaml: "window:\n  present_mode: sometimes\n"},
		{name: "bad log level", yaml: "log:\n  level: loud\n"},
		{name: "malformed", yaml: "grid: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error")
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Grid.CellSize = 24
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Grid.CellSize != 24 {
		t.Errorf("cell size = %v, want 24", loaded.Grid.CellSize)
	}
	if loaded.Derived.CellSize32 != 24 || loaded.Derived.EntryCapacity != cfg.Derived.EntryCapacity {
		t.Errorf("derived = %+v", loaded.Derived)
	}
	if len(loaded.Metaball.Palette) != len(cfg.Metaball.Palette) {
		t.Errorf("palette has %d colors, want %d", len(loaded.Metaball.Palette), len(cfg.Metaball.Palette))
	}
}
