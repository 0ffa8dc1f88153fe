// Command fieldview runs the ball simulation against the CPU reference field
// evaluator and draws the result in the terminal. It needs no GPU.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/config"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/simulation"
	"github.com/gdamore/tcell/v2"
)

func main() {
	configPath := flag.String("config", "", "YAML config file; empty uses the embedded defaults")
	fps := flag.Float64("fps", 30, "frames per second")
	frames := flag.Uint64("frames", 0, "stop after this many frames (0 = until quit)")
	logPath := flag.String("log", "", "log file; the terminal is taken by the viewer")
	flag.Parse()

	if err := run(*configPath, *fps, *frames, *logPath); err != nil {
		fmt.Fprintln(os.Stderr, "fieldview:", err)
		os.Exit(1)
	}
}

func run(configPath string, fps float64, frames uint64, logPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %v", fps)
	}

	// The default logger is silent; a log file is the only place output can go.
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		common.SetLogger(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.Derived.LogLevel})))
	}

	viewport := metaball.CenteredViewport(cfg.Derived.ViewW32, cfg.Derived.ViewH32)
	pool := metaball.NewPool(metaball.WithCapacity(uint32(cfg.Metaball.MaxBalls)))
	grid, err := metaball.NewGridBuilder(viewport, cfg.Derived.CellSize32,
		metaball.WithWorkers(cfg.Grid.Workers),
		metaball.WithEntryCapacity(cfg.Derived.EntryCapacity),
		metaball.WithPalette(palette(cfg.Metaball.Palette)),
	)
	if err != nil {
		return err
	}
	defer grid.Close()

	sim, err := simulation.New(simulation.Config{
		Viewport:    viewport,
		Initial:     cfg.Simulation.Initial,
		Min:         cfg.Simulation.Min,
		Max:         cfg.Simulation.Max,
		SpawnRate:   cfg.Simulation.SpawnRate,
		DespawnRate: cfg.Simulation.DespawnRate,
		RadiusMin:   float32(cfg.Simulation.RadiusMin),
		RadiusMax:   float32(cfg.Simulation.RadiusMax),
		Speed:       float32(cfg.Simulation.Speed),
		Clusters:    cfg.Simulation.Clusters,
		Iso:         float32(cfg.Metaball.Iso),
		Seed:        uint64(cfg.Simulation.Seed),
	}, simulation.PoolSink(pool))
	if err != nil {
		return err
	}
	defer sim.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	v := newViewer(screen, pool, grid, sim, float32(cfg.Metaball.Iso), float32(cfg.Metaball.NormalZScale))
	v.run(time.Duration(float64(time.Second)/fps), frames)

	common.Logger().Info("fieldview stopped", "frames", v.frames, "balls", pool.ActiveCount())
	return nil
}

func palette(colors [][4]float32) metaball.Palette {
	if len(colors) == 0 {
		return metaball.DefaultPalette
	}
	p := make(metaball.Palette, len(colors))
	for i, c := range colors {
		p[i] = metaball.Color(c)
	}
	return p
}
