// Command metaballs opens a window and renders a population of metaballs that
// oscillates between the configured minimum and maximum.
//
// Keys: Space pauses the simulation, M cycles the preview mode, 1-4 pick a mode
// directly, Escape quits.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/config"
	"github.com/Carmen-Shannon/oxy-metaballs/engine"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/field"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/profiler"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/scene"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/simulation"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/window"
)

func init() {
	// GLFW must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML config file; empty uses the embedded defaults")
	headless := flag.Bool("headless", false, "run the compute passes without a window")
	frames := flag.Int64("frames", 0, "stop after this many frames (0 = until the window closes)")
	mode := flag.String("mode", "shaded", "initial preview mode: shaded, albedo, field or normals")
	fpsCap := flag.Float64("fps", 0, "frame rate cap (0 = uncapped)")
	flag.Parse()

	if err := run(*configPath, *headless, *frames, *mode, *fpsCap); err != nil {
		common.Logger().Error("metaballs failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool, frames int64, modeName string, fpsCap float64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Derived.LogLevel})))

	if headless && frames == 0 {
		frames = 600
	}

	// ── Window ──────────────────────────────────────────────────────────
	var win window.Window
	var surface renderer.SurfaceSource
	if !headless {
		win, err = window.NewWindow(
			window.WithTitle(cfg.Window.Title),
			window.WithSize(int(cfg.Derived.TextureW), int(cfg.Derived.TextureH)),
		)
		if err != nil {
			return err
		}
		defer win.Close()
		surface = win
	}

	// ── Renderer ────────────────────────────────────────────────────────
	r, err := renderer.NewRenderer(
		renderer.BackendTypeWGPU,
		surface,
		renderer.WithPresentMode(renderer.ParsePresentMode(cfg.Window.PresentMode)),
		renderer.WithClearColor(cfg.Window.ClearColor),
		renderer.WithForceSoftwareRenderer(cfg.Window.Software),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	defer r.Release()

	// ── Field ───────────────────────────────────────────────────────────
	viewport := metaball.CenteredViewport(cfg.Derived.ViewW32, cfg.Derived.ViewH32)
	fr, err := field.NewRenderer(r, viewport, cfg.Derived.CellSize32,
		field.WithMaxBalls(uint32(cfg.Metaball.MaxBalls)),
		field.WithMaxCellsPerBall(uint32(cfg.Metaball.MaxCellsPerBallEstimate)),
		field.WithTextureSize(cfg.Derived.TextureW, cfg.Derived.TextureH),
		field.WithIso(float32(cfg.Metaball.Iso)),
		field.WithNormalZScale(float32(cfg.Metaball.NormalZScale)),
		field.WithWorkers(cfg.Grid.Workers),
		field.WithPalette(palette(cfg.Metaball.Palette)),
		field.WithDiagnosticsInterval(uint64(cfg.Metaball.DiagnosticsInterval)),
		field.WithDebugValidate(cfg.Metaball.DebugValidate),
	)
	if err != nil {
		return fmt.Errorf("create field renderer: %w", err)
	}

	// ── Simulation ──────────────────────────────────────────────────────
	sim, err := simulation.New(simulationConfig(cfg, viewport), fr)
	if err != nil {
		fr.Close()
		return fmt.Errorf("create simulation: %w", err)
	}

	// ── Scene ───────────────────────────────────────────────────────────
	sc, err := scene.NewScene(r, fr, sim,
		scene.WithIso(float32(cfg.Metaball.Iso)),
		scene.WithPreviewMode(scene.ParsePreviewMode(modeName)),
		scene.WithBackground([4]float32{
			float32(cfg.Window.ClearColor[0]),
			float32(cfg.Window.ClearColor[1]),
			float32(cfg.Window.ClearColor[2]),
			float32(cfg.Window.ClearColor[3]),
		}),
	)
	if err != nil {
		sim.Close()
		fr.Close()
		return fmt.Errorf("create scene: %w", err)
	}
	defer sc.Close()

	if win != nil {
		win.SetKeyCallback(func(key window.Key) {
			switch key {
			case window.KeySpace:
				sc.SetPaused(!sc.Paused())
			case window.KeyM:
				common.Logger().Info("preview mode", "mode", sc.CycleMode())
			case window.Key1, window.Key2, window.Key3, window.Key4:
				sc.SetMode(scene.PreviewMode(key - window.Key1))
				common.Logger().Info("preview mode", "mode", sc.Mode())
			}
		})
	}

	// ── Telemetry ───────────────────────────────────────────────────────
	output, err := profiler.NewOutputManager(cfg.Telemetry.PerfCSV)
	if err != nil {
		return err
	}
	defer output.Close()

	// ── Engine ──────────────────────────────────────────────────────────
	eng := engine.NewEngine(
		engine.WithWindow(win),
		engine.WithFrameTarget(r),
		engine.WithScene(0, sc),
		engine.WithPerf(profiler.NewPerfCollector(cfg.Telemetry.Window), output),
		engine.WithProfiling(cfg.Telemetry.Profiler),
		engine.WithMaxFrames(frames),
		engine.WithRenderFrameLimit(fpsCap),
	)

	common.Logger().Info("metaballs started",
		"headless", r.Headless(),
		"max_balls", cfg.Metaball.MaxBalls,
		"entry_capacity", cfg.Derived.EntryCapacity,
		"texture", fmt.Sprintf("%dx%d", cfg.Derived.TextureW, cfg.Derived.TextureH),
	)
	if err := eng.Run(); err != nil {
		return err
	}

	st := sim.Stats()
	common.Logger().Info("metaballs stopped",
		"frames", eng.Frames(),
		"spawned", st.Spawned,
		"despawned", st.Despawned,
		"rejected", st.Rejected,
	)
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

func simulationConfig(cfg *config.Config, viewport metaball.Viewport) simulation.Config {
	s := cfg.Simulation
	return simulation.Config{
		Viewport:    viewport,
		Initial:     s.Initial,
		Min:         s.Min,
		Max:         s.Max,
		SpawnRate:   s.SpawnRate,
		DespawnRate: s.DespawnRate,
		RadiusMin:   float32(s.RadiusMin),
		RadiusMax:   float32(s.RadiusMax),
		Speed:       float32(s.Speed),
		Clusters:    s.Clusters,
		Iso:         float32(cfg.Metaball.Iso),
		Seed:        uint64(s.Seed),
	}
}
