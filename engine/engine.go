package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/profiler"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/scene"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/window"
)

// FrameTarget opens and presents the per-frame render pass. renderer.Renderer satisfies it.
type FrameTarget interface {
	Headless() bool
	Resize(width, height int)
	BeginFrame() error
	EndFrame()
	Present()
}

var _ FrameTarget = renderer.Renderer(nil)

// engine implements the Engine interface.
// The frame goroutine owns every scene; the window message loop stays on the calling thread.
type engine struct {
	mu sync.Mutex
	wg sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	window window.Window
	target FrameTarget

	profiler         *profiler.Profiler
	profilingEnabled bool
	perf             *profiler.PerfCollector
	output           *profiler.OutputManager

	renderCallback func(deltaTime float64)

	scenes map[int]scene.Scene

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        int64         // 0 = run until quit
	frames           int64
	err              error

	now func() time.Time
}

// Engine drives scenes through the frame lifecycle: simulate, grid build and upload,
// compute dispatch, preview draw and present.
type Engine interface {
	// Window returns the window, nil when running headless.
	Window() window.Window

	// EnableProfiler enables the FPS/memory profiler output to the log.
	EnableProfiler()

	// DisableProfiler disables the FPS/memory profiler output.
	DisableProfiler()

	// SetRenderCallback registers the function called at the end of each frame on the
	// frame goroutine.
	//
	// Parameters:
	//   - callback: function receiving the frame delta in seconds
	SetRenderCallback(callback func(deltaTime float64))

	// SetRenderFrameLimit sets an optional frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key.
	// Scenes are driven and drawn in ascending key order.
	//
	// Parameters:
	//   - key: the z-index determining order (lower first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key. The scene is not closed.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key, or nil.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Frames returns the number of completed frames.
	Frames() int64

	// Run starts the frame loop and blocks until the window closes, the frame budget is
	// spent, Quit is called or a frame fails.
	//
	// Returns:
	//   - error: the first frame error, or nil
	Run() error

	// Quit signals the frame loop to stop. Safe to call multiple times.
	Quit()
}

// NewEngine creates a new Engine with the provided options.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		quitChannel: make(chan struct{}),
		scenes:      make(map[int]scene.Scene),
		profiler:    profiler.NewProfiler(time.Second),
		now:         time.Now,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window != nil && e.target != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.target.Resize(width, height)
		})
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

// Run launches the frame goroutine. With a window, the calling goroutine pumps window
// messages until the window closes; without one it waits for the frame loop to end.
func (e *engine) Run() error {
	e.wg.Add(1)
	go e.handleRender()

	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				e.window.RequestClose()
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	e.signalQuit()
}

// handleRender runs the frame loop in its own goroutine until quit.
// A panic inside a frame is recovered and reported as the Run error.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("frame goroutine panic: %v", r))
		}
	}()

	last := e.now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		start := e.now()
		dt := start.Sub(last).Seconds()
		last = start

		if err := e.frame(dt); err != nil {
			e.fail(err)
			return
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}
		if e.profilingEnabled {
			e.profiler.Tick()
		}

		e.mu.Lock()
		e.frames++
		done := e.maxFrames > 0 && e.frames >= e.maxFrames
		e.mu.Unlock()
		if done {
			e.signalQuit()
			return
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - e.now().Sub(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// frame drives every active scene through one frame.
func (e *engine) frame(dt float64) error {
	active := e.activeScenes()
	perf := e.perf
	if perf != nil {
		perf.StartFrame()
		perf.StartPhase(profiler.PhaseSimulate)
	}
	for _, s := range active {
		s.Update(dt)
	}
	if perf != nil {
		perf.EndPhase()
	}

	var balls, entries uint32
	for _, s := range active {
		if err := s.PrepareCompute(); err != nil {
			return fmt.Errorf("scene %s: %w", s.Name(), err)
		}
		st := s.Field().Stats()
		balls += st.ActiveBalls
		entries += st.TotalEntries
		if perf != nil {
			perf.AddPhase(profiler.PhaseGridBuild, st.GridBuild)
			perf.AddPhase(profiler.PhaseUpload, st.Upload)
			perf.AddPhase(profiler.PhaseDispatch, st.Dispatch)
		}
	}

	if e.target != nil && !e.target.Headless() && len(active) > 0 {
		if perf != nil {
			perf.StartPhase(profiler.PhasePresent)
		}
		if err := e.target.BeginFrame(); err != nil {
			// The surface can be briefly unavailable while the window resizes.
			common.Logger().Debug("frame skipped", "err", err)
		} else {
			for _, s := range active {
				if err := s.Draw(); err != nil {
					e.target.EndFrame()
					return fmt.Errorf("scene %s: %w", s.Name(), err)
				}
			}
			e.target.EndFrame()
			e.target.Present()
		}
	}

	if perf != nil && perf.EndFrame() {
		stats := perf.Stats()
		common.Logger().Info("perf", "frame", perf.Frames(), "balls", balls, "entries", entries, "stats", stats)
		if err := e.output.WritePerf(stats.ToCSV(perf.Frames(), balls, entries)); err != nil {
			common.Logger().Warn("perf output failed", "err", err)
		}
	}
	return nil
}

func (e *engine) activeScenes() []scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	active := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		if s := e.scenes[k]; s.Active() {
			active = append(active, s)
		}
	}
	return active
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

func (e *engine) SetRenderCallback(callback func(deltaTime float64)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

func (e *engine) Frames() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
