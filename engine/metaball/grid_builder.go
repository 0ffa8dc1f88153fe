package metaball

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-metaballs/common"
)

// minChunkBalls is the smallest per-task share of balls when emitting in parallel.
const minChunkBalls = 64

// GridBuilder rebuilds the uniform spatial grid from the pool once per frame.
type GridBuilder interface {
	// Build snapshots the pool, emits one (cell, slot) pair per overlapped cell of each
	// non-degenerate ball, sorts the pairs by cell with a stable counting sort and
	// produces the cell index table.
	//
	// Parameters:
	//   - p: the pool to read; it must not be mutated during the call
	//
	// Returns:
	//   - *Frame: the frame, valid until the next Build
	Build(p Pool) *Frame

	// Viewport returns the world-space rectangle covered by the grid.
	Viewport() Viewport

	// CellSize returns the cell edge length in world units.
	CellSize() float32

	// Dims returns the number of cells per axis.
	//
	// Returns:
	//   - uint32: cells_x
	//   - uint32: cells_y
	Dims() (uint32, uint32)

	// EntryCapacity returns the maximum number of (cell, slot) pairs per frame.
	EntryCapacity() uint32

	// Workers returns the number of emission workers; 1 means sequential.
	Workers() int

	// Close stops the emission worker pool, if any.
	Close()
}

// GridBuilderOption is a function that configures a GridBuilder during construction.
type GridBuilderOption func(*gridBuilder)

// WithWorkers is an option builder that enables parallel pair emission on a worker pool.
// Values below 2 keep the build sequential.
//
// Parameters:
//   - n: the number of emission workers
//
// Returns:
//   - GridBuilderOption: a function that applies the workers option to a gridBuilder
func WithWorkers(n int) GridBuilderOption {
	return func(b *gridBuilder) {
		b.workers = max(n, 1)
	}
}

// WithEntryCapacity is an option builder that sets the fixed entry buffer capacity,
// normally MaxBalls * MaxCellsPerBallEstimate. Zero is ignored.
//
// Parameters:
//   - n: the entry capacity
//
// Returns:
//   - GridBuilderOption: a function that applies the capacity option to a gridBuilder
func WithEntryCapacity(n uint32) GridBuilderOption {
	return func(b *gridBuilder) {
		if n > 0 {
			b.entryCap = n
		}
	}
}

// WithPalette is an option builder that sets the palette used to resolve ball colors.
//
// Parameters:
//   - p: the palette
//
// Returns:
//   - GridBuilderOption: a function that applies the palette option to a gridBuilder
func WithPalette(p Palette) GridBuilderOption {
	return func(b *gridBuilder) {
		b.palette = p
	}
}

// pairs is a structure-of-arrays list of (cell id, slot) pairs in emission order.
type pairs struct {
	cells []uint32
	slots []uint32
}

func (p *pairs) reset() {
	p.cells = p.cells[:0]
	p.slots = p.slots[:0]
}

type gridBuilder struct {
	viewport Viewport
	cellSize float32
	entryCap uint32
	palette  Palette
	workers  int

	frame   Frame
	active  []SlotIndex
	emitted pairs
	cursor  []uint32

	pool   worker.DynamicWorkerPool
	chunks []pairs
	counts []uint32

	inOverflow bool
}

var _ GridBuilder = &gridBuilder{}

// NewGridBuilder creates a GridBuilder for a viewport and cell size.
//
// Parameters:
//   - viewport: the world-space rectangle covered by the grid
//   - cellSize: the cell edge length in world units
//   - options: the GridBuilderOption functions to apply
//
// Returns:
//   - GridBuilder: the builder
//   - error: ErrInvalidGrid if the viewport or cell size is not positive and finite, or
//     the grid would have more than math.MaxUint32 cells
func NewGridBuilder(viewport Viewport, cellSize float32, options ...GridBuilderOption) (GridBuilder, error) {
	if !positiveFinite(cellSize) || !positiveFinite(viewport.Size[0]) || !positiveFinite(viewport.Size[1]) {
		return nil, fmt.Errorf("%w: viewport %v, cell size %v", ErrInvalidGrid, viewport.Size, cellSize)
	}
	// Cell indices are uint32 on both sides of the GPU boundary.
	if cells := math.Ceil(float64(viewport.Size[0])/float64(cellSize)) *
		math.Ceil(float64(viewport.Size[1])/float64(cellSize)); cells > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %.0f cells for viewport %v at cell size %v", ErrInvalidGrid, cells, viewport.Size, cellSize)
	}

	b := &gridBuilder{
		viewport: viewport,
		cellSize: cellSize,
		entryCap: DefaultMaxBalls * DefaultMaxCellsPerBallEstimate,
		palette:  DefaultPalette,
		workers:  1,
	}
	for _, opt := range options {
		opt(b)
	}

	cx, cy := gridDims(viewport, cellSize)
	b.frame = Frame{
		Viewport: viewport,
		CellSize: cellSize,
		CellsX:   cx,
		CellsY:   cy,
		GridMin:  gridOrigin(viewport, cellSize, cx, cy),
		Cells:    make([]GPUGridCell, cx*cy),
		Entries:  make([]uint32, 0, b.entryCap),
	}
	b.cursor = make([]uint32, cx*cy)
	b.emitted = pairs{
		cells: make([]uint32, 0, b.entryCap),
		slots: make([]uint32, 0, b.entryCap),
	}

	if b.workers > 1 {
		b.pool = worker.NewDynamicWorkerPool(b.workers, 256, 1*time.Second)
		b.chunks = make([]pairs, b.workers)
		b.counts = make([]uint32, b.workers)
	}
	return b, nil
}

func (b *gridBuilder) Viewport() Viewport {
	return b.viewport
}

func (b *gridBuilder) CellSize() float32 {
	return b.cellSize
}

func (b *gridBuilder) Dims() (uint32, uint32) {
	return b.frame.CellsX, b.frame.CellsY
}

func (b *gridBuilder) EntryCapacity() uint32 {
	return b.entryCap
}

func (b *gridBuilder) Workers() int {
	return b.workers
}

func (b *gridBuilder) Close() {
	if b.pool != nil {
		b.pool.Stop()
		b.pool = nil
	}
}

func (b *gridBuilder) Build(p Pool) *Frame {
	f := &b.frame
	hwm := p.HighWaterMark()

	// Snapshot: every record in [0, hwm) is rewritten, inactive ones as zero.
	f.Balls = growTo(f.Balls, int(hwm))
	clear(f.Balls)
	b.active = b.active[:0]
	for i := range hwm {
		slot := SlotIndex(i)
		if !p.IsActive(slot) {
			continue
		}
		b.active = append(b.active, slot)
		ball := p.Ball(slot)
		if ball.Degenerate() {
			continue
		}
		f.Balls[slot] = NewGPUBall(ball, b.palette)
	}
	f.ActiveBalls = uint32(len(b.active))

	b.emitted.reset()
	var dropped, emittedBalls uint32
	if b.pool != nil && len(b.active) >= 2*minChunkBalls {
		dropped, emittedBalls = b.emitParallel()
	} else {
		dropped, emittedBalls = b.emitRange(b.active, &b.emitted, b.entryCap)
	}
	f.EmittedBalls = emittedBalls
	f.DroppedEntries = dropped
	f.Truncated = dropped > 0
	f.TotalEntries = uint32(len(b.emitted.cells))

	b.countingSort()

	if f.Truncated && !b.inOverflow {
		common.Logger().Warn("grid entry capacity exceeded, truncating",
			"capacity", b.entryCap,
			"dropped", dropped)
	}
	b.inOverflow = f.Truncated
	return f
}

// emitRange appends the pairs of the given slots to dst in ball order, then
// row-major cell order, stopping at limit total pairs.
//
// Returns:
//   - uint32: pairs dropped past the limit
//   - uint32: balls that emitted at least one pair
func (b *gridBuilder) emitRange(slots []SlotIndex, dst *pairs, limit uint32) (uint32, uint32) {
	f := &b.frame
	var dropped, emitted uint32
	for _, slot := range slots {
		x0, y0, x1, y1, ok := b.cellRange(f.Balls[slot])
		if !ok {
			continue
		}
		emitted++
		for cy := y0; cy <= y1; cy++ {
			for cx := x0; cx <= x1; cx++ {
				if uint32(len(dst.cells)) >= limit {
					dropped++
					continue
				}
				dst.cells = append(dst.cells, cy*f.CellsX+cx)
				dst.slots = append(dst.slots, uint32(slot))
			}
		}
	}
	return dropped, emitted
}

// emitParallel splits the active slots into contiguous chunks, emits each chunk on
// the worker pool and concatenates the results in chunk order up to the capacity.
func (b *gridBuilder) emitParallel() (uint32, uint32) {
	n := min(b.workers, len(b.active)/minChunkBalls)
	per := (len(b.active) + n - 1) / n

	var wg sync.WaitGroup
	for i := range n {
		lo := i * per
		hi := min(lo+per, len(b.active))
		chunk := &b.chunks[i]
		chunk.reset()
		if lo >= hi {
			b.counts[i] = 0
			continue
		}
		wg.Add(1)
		idx := i
		b.pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				_, b.counts[idx] = b.emitRange(b.active[lo:hi], chunk, math.MaxUint32)
				return nil, nil
			},
		})
	}
	wg.Wait()

	var dropped, emitted uint32
	for i := range n {
		chunk := &b.chunks[i]
		emitted += b.counts[i]
		room := int(b.entryCap) - len(b.emitted.cells)
		take := min(room, len(chunk.cells))
		b.emitted.cells = append(b.emitted.cells, chunk.cells[:take]...)
		b.emitted.slots = append(b.emitted.slots, chunk.slots[:take]...)
		dropped += uint32(len(chunk.cells) - take)
	}
	return dropped, emitted
}

// countingSort buckets the emitted pairs by cell id into Entries and fills the
// (offset, count) table. The scatter walks pairs in emission order, so ties keep it.
func (b *gridBuilder) countingSort() {
	f := &b.frame
	for i := range f.Cells {
		f.Cells[i] = GPUGridCell{}
	}
	for _, c := range b.emitted.cells {
		f.Cells[c].Count++
	}
	var running uint32
	for i := range f.Cells {
		f.Cells[i].Offset = running
		b.cursor[i] = running
		running += f.Cells[i].Count
	}

	f.Entries = f.Entries[:running]
	for i, c := range b.emitted.cells {
		f.Entries[b.cursor[c]] = b.emitted.slots[i]
		b.cursor[c]++
	}
}

// cellRange returns the inclusive cell range overlapped by a ball's AABB clamped
// to the viewport. ok is false for zero records and balls entirely outside.
func (b *gridBuilder) cellRange(g GPUBall) (x0, y0, x1, y1 uint32, ok bool) {
	if !(g.Radius > 0) {
		return 0, 0, 0, 0, false
	}
	f := &b.frame
	vmin, vmax := f.Viewport.Min, f.Viewport.Max()
	lo := [2]float32{g.Center[0] - g.Radius, g.Center[1] - g.Radius}
	hi := [2]float32{g.Center[0] + g.Radius, g.Center[1] + g.Radius}
	if hi[0] < vmin[0] || lo[0] > vmax[0] || hi[1] < vmin[1] || lo[1] > vmax[1] {
		return 0, 0, 0, 0, false
	}
	for a := range 2 {
		lo[a] = common.Clamp(lo[a], vmin[a], vmax[a])
		hi[a] = common.Clamp(hi[a], vmin[a], vmax[a])
	}
	x0, y0 = f.CellOf(lo)
	x1, y1 = f.CellOf(hi)
	return x0, y0, x1, y1, true
}

// growTo returns s resized to n, reusing its backing array when large enough.
func growTo[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]T, n)
}

func positiveFinite(v float32) bool {
	return v > 0 && !math.IsInf(float64(v), 0)
}
