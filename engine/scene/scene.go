// Package scene ties one ball simulation, its field renderer and the fullscreen preview
// together, and is what the engine loop drives each frame.
package scene

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/field"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/simulation"
	"github.com/cogentcore/webgpu/wgpu"
)

// Device is the subset of the renderer the preview needs. renderer.Renderer satisfies it.
type Device interface {
	Headless() bool
	RegisterPipelines(pipelines ...pipeline.Pipeline) error
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error
	InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error
	WriteBuffers(writes []bind_group_provider.BufferWrite)
	DrawFullscreen(pipelineKey string, bindGroups ...bind_group_provider.BindGroupProvider) error
}

var _ Device = renderer.Renderer(nil)

// Scene drives one simulation and its field renderer.
//
// Update, PrepareCompute and Draw must be called from the frame goroutine. The toggles
// (SetActive, SetPaused, SetMode, CycleMode) may be called from any goroutine, such as
// window input callbacks.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Active reports whether the engine should drive this scene.
	Active() bool

	// SetActive sets whether the engine drives this scene.
	SetActive(active bool)

	// Paused reports whether the simulation is frozen. A paused scene still renders.
	Paused() bool

	// SetPaused freezes or resumes the simulation.
	SetPaused(paused bool)

	// Mode returns the preview mode.
	Mode() PreviewMode

	// SetMode sets the preview mode.
	SetMode(mode PreviewMode)

	// CycleMode advances to the next preview mode and returns it.
	CycleMode() PreviewMode

	// Update advances the simulation by dt seconds in fixed steps.
	//
	// Parameters:
	//   - dt: the wall time since the last update, in seconds
	//
	// Returns:
	//   - int: the number of fixed steps taken
	Update(dt float64) int

	// PrepareCompute rebuilds the grid and records the field passes.
	//
	// Returns:
	//   - error: the field renderer error
	PrepareCompute() error

	// Draw records the preview into the render pass opened by the engine.
	// It does nothing on a headless device.
	//
	// Returns:
	//   - error: an error if the preview pipeline is missing
	Draw() error

	// Field returns the field renderer.
	Field() field.Renderer

	// Simulation returns the ball simulation.
	Simulation() *simulation.Simulation

	// Close releases every ball, the preview resources and the field renderer.
	Close()
}

type scene struct {
	name   string
	active atomic.Bool
	paused atomic.Bool
	mode   atomic.Uint32

	device    Device
	field     field.Renderer
	sim       *simulation.Simulation
	presenter *presenter
	preview   GPUPreviewParams

	step        float64
	maxSteps    int
	accumulator float64
}

var _ Scene = &scene{}

// NewScene creates a scene. The scene takes ownership of fr and sim and closes them in Close.
//
// Parameters:
//   - device: the device the preview draws with
//   - fr: the field renderer the simulation feeds
//   - sim: the simulation, normally created with fr as its sink
//   - options: the SceneBuilderOption functions to apply
//
// Returns:
//   - Scene: the scene, active and unpaused
//   - error: an error if the preview resources cannot be created
func NewScene(device Device, fr field.Renderer, sim *simulation.Simulation, options ...SceneBuilderOption) (Scene, error) {
	s := &scene{
		name:     "metaballs",
		device:   device,
		field:    fr,
		sim:      sim,
		step:     1.0 / 60,
		maxSteps: 4,
		preview: GPUPreviewParams{
			LightDir:   [4]float32{-0.4, 0.5, 0.75, 0},
			Background: [4]float32{0.05, 0.05, 0.07, 1},
			Iso:        field.DefaultIso,
			Edge:       0.02,
			Ambient:    0.3,
		},
	}
	for _, opt := range options {
		opt(s)
	}
	if !(s.step > 0) || s.maxSteps < 1 {
		return nil, fmt.Errorf("scene: fixed step %v x %d is invalid", s.step, s.maxSteps)
	}
	s.active.Store(true)

	if !device.Headless() {
		p, err := newPresenter(device, fr.Textures())
		if err != nil {
			return nil, err
		}
		s.presenter = p
	}
	common.Logger().Info("scene created", "name", s.name, "preview", s.presenter != nil, "mode", s.Mode())
	return s, nil
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Active() bool {
	return s.active.Load()
}

func (s *scene) SetActive(active bool) {
	s.active.Store(active)
}

func (s *scene) Paused() bool {
	return s.paused.Load()
}

func (s *scene) SetPaused(paused bool) {
	s.paused.Store(paused)
}

func (s *scene) Mode() PreviewMode {
	return PreviewMode(s.mode.Load())
}

func (s *scene) SetMode(mode PreviewMode) {
	if mode >= previewModeCount {
		mode = PreviewShaded
	}
	s.mode.Store(uint32(mode))
}

func (s *scene) CycleMode() PreviewMode {
	for {
		cur := s.mode.Load()
		next := (cur + 1) % uint32(previewModeCount)
		if s.mode.CompareAndSwap(cur, next) {
			return PreviewMode(next)
		}
	}
}

func (s *scene) Update(dt float64) int {
	if s.paused.Load() || dt <= 0 {
		return 0
	}
	s.accumulator += dt
	steps := 0
	for s.accumulator >= s.step && steps < s.maxSteps {
		s.sim.Step(s.step)
		s.accumulator -= s.step
		steps++
	}
	// Drop the backlog after a stall instead of spiralling.
	if steps == s.maxSteps {
		s.accumulator = min(s.accumulator, s.step)
	}
	return steps
}

func (s *scene) PrepareCompute() error {
	return s.field.Prepare()
}

func (s *scene) Draw() error {
	if s.presenter == nil {
		return nil
	}
	params := s.preview
	params.Mode = uint32(s.Mode())
	return s.presenter.draw(params)
}

func (s *scene) Field() field.Renderer {
	return s.field
}

func (s *scene) Simulation() *simulation.Simulation {
	return s.sim
}

func (s *scene) Close() {
	s.sim.Close()
	if s.presenter != nil {
		s.presenter.release()
		s.presenter = nil
	}
	s.field.Close()
}
