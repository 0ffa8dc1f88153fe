package field

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferCapacities are the fixed byte sizes of the storage buffers, decided once at construction.
type BufferCapacities struct {
	MaxBalls uint32
	// EntryCapacity is MaxBalls * MaxCellsPerBallEstimate.
	EntryCapacity uint32
	Cells         uint32
}

// BallBytes returns the ball buffer size.
func (c BufferCapacities) BallBytes() uint64 {
	return uint64(c.MaxBalls) * metaball.GPUBallSize
}

// EntryBytes returns the entry buffer size.
func (c BufferCapacities) EntryBytes() uint64 {
	return uint64(c.EntryCapacity) * metaball.GPUEntrySize
}

// CellBytes returns the cell table buffer size.
func (c BufferCapacities) CellBytes() uint64 {
	return uint64(c.Cells) * metaball.GPUGridCellSize
}

// BufferHandles are the GPU buffer identities of a BufferSet. They do not change for
// the lifetime of the set.
type BufferHandles struct {
	Params  *wgpu.Buffer
	Balls   *wgpu.Buffer
	Entries *wgpu.Buffer
	Cells   *wgpu.Buffer
}

// BufferSet owns the field pass storage buffers. They are created exactly once and
// afterwards only written through partial BufferWrites.
type BufferSet struct {
	device   Device
	provider bind_group_provider.BindGroupProvider
	bindings bindingSet
	caps     BufferCapacities

	params metaball.GPUFieldParams
	writes []bind_group_provider.BufferWrite
}

// newBufferSet creates the buffers and the bind group of the field pass. Every texture
// binding of the layout must already be set on provider.
func newBufferSet(device Device, provider bind_group_provider.BindGroupProvider, s shader.Shader, bindings bindingSet, caps BufferCapacities) (*BufferSet, error) {
	if caps.MaxBalls == 0 || caps.EntryCapacity == 0 || caps.Cells == 0 {
		return nil, fmt.Errorf("field: buffer capacities must be positive, got %+v", caps)
	}

	sizes := map[int]uint64{
		bindings[shader.AnnotationArgFieldParams]: metaball.GPUFieldParamsSize,
		bindings[shader.AnnotationArgBall]:        caps.BallBytes(),
		bindings[shader.AnnotationArgEntries]:     caps.EntryBytes(),
		bindings[shader.AnnotationArgGridCell]:    caps.CellBytes(),
	}
	if err := device.InitBindGroup(provider, s.BindGroupLayoutDescriptor(0), nil, sizes); err != nil {
		return nil, fmt.Errorf("field: init buffers: %w", err)
	}

	b := &BufferSet{
		device:   device,
		provider: provider,
		bindings: bindings,
		caps:     caps,
		writes:   make([]bind_group_provider.BufferWrite, 0, 4),
	}
	common.Logger().Debug("field buffers created",
		"balls_bytes", caps.BallBytes(),
		"entries_bytes", caps.EntryBytes(),
		"cells_bytes", caps.CellBytes())
	return b, nil
}

// Capacities returns the fixed buffer capacities.
func (b *BufferSet) Capacities() BufferCapacities {
	return b.caps
}

// Handles returns the buffer identities.
func (b *BufferSet) Handles() BufferHandles {
	return BufferHandles{
		Params:  b.provider.Buffer(b.bindings[shader.AnnotationArgFieldParams]),
		Balls:   b.provider.Buffer(b.bindings[shader.AnnotationArgBall]),
		Entries: b.provider.Buffer(b.bindings[shader.AnnotationArgEntries]),
		Cells:   b.provider.Buffer(b.bindings[shader.AnnotationArgGridCell]),
	}
}

// Upload writes a frame into the buffers: balls over [0, hwm), entries over
// [0, total entries), the whole cell table and the params uniform. Empty ranges
// are skipped. It never creates GPU resources.
//
// Parameters:
//   - frame: the built grid frame
//   - params: the frame uniform
//
// Returns:
//   - error: an error if a range exceeds its buffer, in which case nothing is written
func (b *BufferSet) Upload(frame *metaball.Frame, params metaball.GPUFieldParams) error {
	if uint32(len(frame.Balls)) > b.caps.MaxBalls {
		return fmt.Errorf("field: %d ball records exceed capacity %d", len(frame.Balls), b.caps.MaxBalls)
	}
	if frame.TotalEntries > b.caps.EntryCapacity {
		return fmt.Errorf("field: %d entries exceed capacity %d", frame.TotalEntries, b.caps.EntryCapacity)
	}
	if uint32(len(frame.Cells)) != b.caps.Cells {
		return fmt.Errorf("field: cell table has %d rows, buffer holds %d", len(frame.Cells), b.caps.Cells)
	}

	b.params = params
	b.writes = b.writes[:0]
	b.appendWrite(shader.AnnotationArgBall, common.SliceToBytes(frame.Balls))
	b.appendWrite(shader.AnnotationArgEntries, common.SliceToBytes(frame.Entries[:frame.TotalEntries]))
	b.appendWrite(shader.AnnotationArgGridCell, common.SliceToBytes(frame.Cells))
	b.appendWrite(shader.AnnotationArgFieldParams, common.StructToBytes(&b.params))

	b.device.WriteBuffers(b.writes)
	return nil
}

func (b *BufferSet) appendWrite(role shader.AnnotationArg, data []byte) {
	if len(data) == 0 {
		return
	}
	b.writes = append(b.writes, bind_group_provider.BufferWrite{
		Provider: b.provider,
		Binding:  b.bindings[role],
		Offset:   0,
		Data:     data,
	})
}
