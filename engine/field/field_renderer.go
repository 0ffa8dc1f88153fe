// Package field runs the GPU side of the metaball core: the fixed-capacity storage
// buffers, the field/albedo compute pass and the normal compute pass that depends on it.
package field

import (
	"fmt"
	"math"
	"time"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/shader"
)

// Stats describes the last prepared frame.
type Stats struct {
	Frame          uint64
	ActiveBalls    uint32
	EmittedBalls   uint32
	TotalEntries   uint32
	DroppedEntries uint32
	Truncated      bool
	GridBuild      time.Duration
	Upload         time.Duration
	Dispatch       time.Duration
}

// Renderer owns the ball pool, the grid builder, the GPU buffers, the output textures
// and the two compute pipelines. It is created explicitly and must be closed by its owner.
//
// All methods must be called from the goroutine that drives the frame.
type Renderer interface {
	// AllocateBall reserves a slot for a new ball.
	//
	// Returns:
	//   - metaball.SlotIndex: the reserved slot
	//   - error: metaball.ErrCapacityExhausted when every slot is in use
	AllocateBall() (metaball.SlotIndex, error)

	// ReleaseBall frees a slot. The ball stops contributing from the next Prepare.
	//
	// Parameters:
	//   - slot: a slot returned by AllocateBall
	ReleaseBall(slot metaball.SlotIndex)

	// SetBall updates the state of an allocated ball.
	//
	// Parameters:
	//   - slot: a slot returned by AllocateBall
	//   - b: the ball state for the next Prepare
	SetBall(slot metaball.SlotIndex, b metaball.Ball)

	// Prepare rebuilds the grid, uploads it and records the field and normal passes in
	// one compute frame. Nothing is read back.
	//
	// Returns:
	//   - error: a GPU encoder error, or a validation error when debug validation is on
	Prepare() error

	// Textures returns the output texture views.
	Textures() Textures

	// Stats returns the counts and timings of the last Prepare.
	Stats() Stats

	// Pool returns the ball pool.
	Pool() metaball.Pool

	// Frame returns the last built grid frame, nil before the first Prepare.
	// It is overwritten by the next Prepare.
	Frame() *metaball.Frame

	// Params returns the params uniform of the last Prepare.
	Params() metaball.GPUFieldParams

	// Buffers returns the fixed storage buffers.
	Buffers() *BufferSet

	// Close stops the grid workers and releases the buffers and textures.
	Close()
}

type fieldRenderer struct {
	device Device

	viewport        metaball.Viewport
	cellSize        float32
	maxBalls        uint32
	maxCellsPerBall uint32
	texW, texH      uint32
	iso             float32
	normalZScale    float32
	workers         int
	palette         metaball.Palette

	diagnosticsInterval uint64
	debugValidate       bool

	pool    metaball.Pool
	grid    metaball.GridBuilder
	buffers *BufferSet

	fieldPipeline   pipeline.Pipeline
	normalsPipeline pipeline.Pipeline
	fieldProvider   bind_group_provider.BindGroupProvider
	normalsProvider bind_group_provider.BindGroupProvider
	textures        Textures

	frame  *metaball.Frame
	params metaball.GPUFieldParams
	stats  Stats
}

var _ Renderer = &fieldRenderer{}

// NewRenderer creates the field renderer. Every GPU buffer and texture it will ever use
// is created here.
//
// Parameters:
//   - device: the GPU device, normally a renderer.Renderer
//   - viewport: the world-space rectangle to render
//   - cellSize: the grid cell edge length in world units
//   - options: the RendererBuilderOption functions to apply
//
// Returns:
//   - Renderer: the field renderer
//   - error: an error if the configuration is invalid or GPU setup fails
func NewRenderer(device Device, viewport metaball.Viewport, cellSize float32, options ...RendererBuilderOption) (Renderer, error) {
	r := &fieldRenderer{
		device:          device,
		viewport:        viewport,
		cellSize:        cellSize,
		maxBalls:        metaball.DefaultMaxBalls,
		maxCellsPerBall: metaball.DefaultMaxCellsPerBallEstimate,
		iso:             DefaultIso,
		normalZScale:    DefaultNormalZScale,
		workers:         1,
		palette:         metaball.DefaultPalette,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.texW == 0 || r.texH == 0 {
		r.texW = uint32(math.Ceil(float64(viewport.Size[0])))
		r.texH = uint32(math.Ceil(float64(viewport.Size[1])))
	}
	if r.texW == 0 || r.texH == 0 {
		return nil, fmt.Errorf("field: texture size %dx%d must be positive", r.texW, r.texH)
	}
	if !(r.normalZScale > 0) || math.IsInf(float64(r.normalZScale), 0) {
		return nil, fmt.Errorf("field: normal z scale %v must be positive and finite", r.normalZScale)
	}

	entryCap64 := uint64(r.maxBalls) * uint64(r.maxCellsPerBall)
	if entryCap64 > math.MaxUint32 {
		return nil, fmt.Errorf("field: entry capacity %d overflows", entryCap64)
	}

	grid, err := metaball.NewGridBuilder(viewport, cellSize,
		metaball.WithEntryCapacity(uint32(entryCap64)),
		metaball.WithWorkers(r.workers),
		metaball.WithPalette(r.palette),
	)
	if err != nil {
		return nil, err
	}
	r.grid = grid
	r.pool = metaball.NewPool(metaball.WithCapacity(r.maxBalls))

	if err := r.initPipelines(); err != nil {
		grid.Close()
		return nil, err
	}
	if err := r.initResources(uint32(entryCap64)); err != nil {
		grid.Close()
		return nil, err
	}

	cx, cy := grid.Dims()
	common.Logger().Info("field renderer created",
		"max_balls", r.maxBalls,
		"entry_capacity", entryCap64,
		"cells_x", cx,
		"cells_y", cy,
		"texture_width", r.texW,
		"texture_height", r.texH)
	return r, nil
}

func (r *fieldRenderer) initPipelines() error {
	fieldShader, err := FieldShader()
	if err != nil {
		return err
	}
	normalsShader, err := NormalsShader()
	if err != nil {
		return err
	}
	r.fieldPipeline = pipeline.NewPipeline(FieldPipelineKey, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(fieldShader))
	r.normalsPipeline = pipeline.NewPipeline(NormalsPipelineKey, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(normalsShader))
	if err := r.device.RegisterPipelines(r.fieldPipeline, r.normalsPipeline); err != nil {
		return fmt.Errorf("field: %w", err)
	}
	return nil
}

func (r *fieldRenderer) initResources(entryCap uint32) error {
	fieldShader := r.fieldPipeline.Shader(shader.ShaderTypeCompute)
	normalsShader := r.normalsPipeline.Shader(shader.ShaderTypeCompute)

	fieldBindings, err := resolveBindings(fieldShader,
		shader.AnnotationArgFieldParams,
		shader.AnnotationArgBall,
		shader.AnnotationArgEntries,
		shader.AnnotationArgGridCell,
		shader.AnnotationArgFieldTexture,
		shader.AnnotationArgAlbedoTexture,
	)
	if err != nil {
		return err
	}
	normalsBindings, err := resolveBindings(normalsShader,
		shader.AnnotationArgFieldParams,
		shader.AnnotationArgFieldTexture,
		shader.AnnotationArgNormalTexture,
	)
	if err != nil {
		return err
	}

	r.fieldProvider = bind_group_provider.NewBindGroupProvider("Metaball Field")
	if err := r.device.InitStorageTexture(r.fieldProvider, fieldBindings[shader.AnnotationArgFieldTexture], common.StorageTextureStagingData{
		Width: r.texW, Height: r.texH, Format: FieldFormat, Label: "Metaball Field Texture",
	}); err != nil {
		return fmt.Errorf("field: field texture: %w", err)
	}
	if err := r.device.InitStorageTexture(r.fieldProvider, fieldBindings[shader.AnnotationArgAlbedoTexture], common.StorageTextureStagingData{
		Width: r.texW, Height: r.texH, Format: AlbedoFormat, Label: "Metaball Albedo Texture",
	}); err != nil {
		return fmt.Errorf("field: albedo texture: %w", err)
	}

	cx, cy := r.grid.Dims()
	r.buffers, err = newBufferSet(r.device, r.fieldProvider, fieldShader, fieldBindings, BufferCapacities{
		MaxBalls:      r.maxBalls,
		EntryCapacity: entryCap,
		Cells:         cx * cy,
	})
	if err != nil {
		return err
	}

	// The normal pass reads the params buffer and the field texture owned by the field pass.
	fieldView := r.fieldProvider.TextureView(fieldBindings[shader.AnnotationArgFieldTexture])
	r.normalsProvider = bind_group_provider.NewBindGroupProvider("Metaball Normals",
		bind_group_provider.WithBorrowedBuffer(normalsBindings[shader.AnnotationArgFieldParams], r.buffers.Handles().Params),
		bind_group_provider.WithBorrowedTextureView(normalsBindings[shader.AnnotationArgFieldTexture], fieldView),
	)
	if err := r.device.InitStorageTexture(r.normalsProvider, normalsBindings[shader.AnnotationArgNormalTexture], common.StorageTextureStagingData{
		Width: r.texW, Height: r.texH, Format: NormalFormat, Label: "Metaball Normal Texture",
	}); err != nil {
		return fmt.Errorf("field: normal texture: %w", err)
	}
	if err := r.device.InitBindGroup(r.normalsProvider, normalsShader.BindGroupLayoutDescriptor(0), nil, nil); err != nil {
		return fmt.Errorf("field: normal bind group: %w", err)
	}

	r.textures = Textures{
		Field:  fieldView,
		Albedo: r.fieldProvider.TextureView(fieldBindings[shader.AnnotationArgAlbedoTexture]),
		Normal: r.normalsProvider.TextureView(normalsBindings[shader.AnnotationArgNormalTexture]),
		Width:  r.texW,
		Height: r.texH,
	}
	return nil
}

func (r *fieldRenderer) AllocateBall() (metaball.SlotIndex, error) {
	return r.pool.Allocate()
}

func (r *fieldRenderer) ReleaseBall(slot metaball.SlotIndex) {
	r.pool.Release(slot)
}

func (r *fieldRenderer) SetBall(slot metaball.SlotIndex, b metaball.Ball) {
	r.pool.Set(slot, b)
}

func (r *fieldRenderer) Prepare() error {
	start := time.Now()
	frame := r.grid.Build(r.pool)
	if r.debugValidate {
		if err := r.pool.Validate(); err != nil {
			return fmt.Errorf("field: pool: %w", err)
		}
		if err := frame.Validate(); err != nil {
			return fmt.Errorf("field: grid: %w", err)
		}
	}
	r.frame = frame
	r.params = frame.Params(r.texW, r.texH, r.iso, r.normalZScale)
	built := time.Now()

	if err := r.buffers.Upload(frame, r.params); err != nil {
		return err
	}
	uploaded := time.Now()

	if err := r.device.BeginComputeFrame(); err != nil {
		return fmt.Errorf("field: begin compute frame: %w", err)
	}
	extent := [3]uint32{r.texW, r.texH, 1}
	r.device.DispatchCompute(FieldPipelineKey, r.fieldProvider, r.fieldPipeline.WorkgroupCount(extent))
	r.device.DispatchCompute(NormalsPipelineKey, r.normalsProvider, r.normalsPipeline.WorkgroupCount(extent))
	r.device.EndComputeFrame()
	dispatched := time.Now()

	r.stats = Stats{
		Frame:          r.stats.Frame + 1,
		ActiveBalls:    frame.ActiveBalls,
		EmittedBalls:   frame.EmittedBalls,
		TotalEntries:   frame.TotalEntries,
		DroppedEntries: frame.DroppedEntries,
		Truncated:      frame.Truncated,
		GridBuild:      built.Sub(start),
		Upload:         uploaded.Sub(built),
		Dispatch:       dispatched.Sub(uploaded),
	}
	if r.diagnosticsInterval > 0 && r.stats.Frame%r.diagnosticsInterval == 0 {
		common.Logger().Info("grid diagnostics", "frame", r.stats.Frame, "grid", metaball.Diagnose(frame))
	}
	return nil
}

func (r *fieldRenderer) Textures() Textures {
	return r.textures
}

func (r *fieldRenderer) Stats() Stats {
	return r.stats
}

func (r *fieldRenderer) Pool() metaball.Pool {
	return r.pool
}

func (r *fieldRenderer) Frame() *metaball.Frame {
	return r.frame
}

func (r *fieldRenderer) Params() metaball.GPUFieldParams {
	return r.params
}

func (r *fieldRenderer) Buffers() *BufferSet {
	return r.buffers
}

func (r *fieldRenderer) Close() {
	r.grid.Close()
	if r.normalsProvider != nil {
		r.normalsProvider.Release()
		r.normalsProvider = nil
	}
	if r.fieldProvider != nil {
		r.fieldProvider.Release()
		r.fieldProvider = nil
	}
}
