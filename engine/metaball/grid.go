package metaball

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidGrid is returned when a grid is configured with non-positive extents.
var ErrInvalidGrid = errors.New("metaball: invalid grid configuration")

// Viewport is the world-space rectangle covered by the grid and the output textures.
type Viewport struct {
	Min  [2]float32
	Size [2]float32
}

// CenteredViewport returns a viewport of the given size centered on the world origin.
//
// Parameters:
//   - width: world-space width
//   - height: world-space height
//
// Returns:
//   - Viewport: the viewport spanning [-width/2, width/2] x [-height/2, height/2]
func CenteredViewport(width, height float32) Viewport {
	return Viewport{
		Min:  [2]float32{-width / 2, -height / 2},
		Size: [2]float32{width, height},
	}
}

// Max returns the world-space max corner.
func (v Viewport) Max() [2]float32 {
	return [2]float32{v.Min[0] + v.Size[0], v.Min[1] + v.Size[1]}
}

// Center returns the world-space center.
func (v Viewport) Center() [2]float32 {
	return [2]float32{v.Min[0] + v.Size[0]/2, v.Min[1] + v.Size[1]/2}
}

// Frame is the output of one grid build: the ball snapshot, the sorted slot list
// and the cell index table, ready for upload.
//
// The Frame returned by GridBuilder.Build is owned by the builder and overwritten
// by the next Build. Use Clone to keep a copy.
type Frame struct {
	Viewport Viewport
	CellSize float32
	CellsX   uint32
	CellsY   uint32
	// GridMin is the world-space origin of cell (0, 0).
	GridMin [2]float32

	// Balls holds one record per slot in [0, high water mark). Free and degenerate
	// slots hold the zero record.
	Balls []GPUBall
	// Entries is the slot list sorted by cell id; its length is TotalEntries.
	Entries []uint32
	// Cells is the (offset, count) table, row-major, CellsX*CellsY long.
	Cells []GPUGridCell

	// TotalEntries is the number of (cell, slot) pairs that made it into Entries.
	TotalEntries uint32
	// ActiveBalls is the number of allocated slots seen by the build.
	ActiveBalls uint32
	// EmittedBalls is the number of balls that registered in at least one cell.
	EmittedBalls uint32
	// DroppedEntries is the number of pairs discarded by the entry capacity.
	DroppedEntries uint32
	// Truncated is set when DroppedEntries > 0.
	Truncated bool
}

// CellCount returns CellsX*CellsY.
func (f *Frame) CellCount() uint32 {
	return f.CellsX * f.CellsY
}

// CellOf returns the clamped cell coordinates containing a world position.
//
// Parameters:
//   - p: world-space position
//
// Returns:
//   - uint32: cell column
//   - uint32: cell row
func (f *Frame) CellOf(p [2]float32) (uint32, uint32) {
	return cellCoord(p[0], f.GridMin[0], f.CellSize, f.CellsX),
		cellCoord(p[1], f.GridMin[1], f.CellSize, f.CellsY)
}

// CellEntries returns the slots registered in a cell.
//
// Parameters:
//   - cellID: row-major cell id
//
// Returns:
//   - []uint32: a sub-slice of Entries, not a copy
func (f *Frame) CellEntries(cellID uint32) []uint32 {
	c := f.Cells[cellID]
	return f.Entries[c.Offset : c.Offset+c.Count]
}

// Params builds the field params uniform for this frame.
//
// Parameters:
//   - texW: output texture width in texels
//   - texH: output texture height in texels
//   - iso: presentation iso threshold
//   - normalZScale: z component used by the normal pass
//
// Returns:
//   - GPUFieldParams: the uniform contents
func (f *Frame) Params(texW, texH uint32, iso, normalZScale float32) GPUFieldParams {
	return GPUFieldParams{
		ViewMin:      f.Viewport.Min,
		ViewSize:     f.Viewport.Size,
		GridMin:      f.GridMin,
		CellSize:     f.CellSize,
		Iso:          iso,
		TexSize:      [2]uint32{texW, texH},
		GridDims:     [2]uint32{f.CellsX, f.CellsY},
		NumBalls:     uint32(len(f.Balls)),
		TotalEntries: f.TotalEntries,
		NormalZScale: normalZScale,
	}
}

// Clone returns a deep copy that is not affected by later builds.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Balls = slices.Clone(f.Balls)
	c.Entries = slices.Clone(f.Entries)
	c.Cells = slices.Clone(f.Cells)
	return &c
}

// Validate checks the structural invariants of the cell table: contiguous,
// in-bounds ranges that together cover every entry exactly once.
//
// Returns:
//   - error: the first violation found, nil if the table is consistent
func (f *Frame) Validate() error {
	if uint32(len(f.Cells)) != f.CellCount() {
		return fmt.Errorf("cell table has %d rows, want %d", len(f.Cells), f.CellCount())
	}
	if uint32(len(f.Entries)) != f.TotalEntries {
		return fmt.Errorf("entry list has %d items, want %d", len(f.Entries), f.TotalEntries)
	}
	var sum uint32
	for i, c := range f.Cells {
		if c.Offset+c.Count > f.TotalEntries {
			return fmt.Errorf("cell %d: range [%d, %d) exceeds %d entries", i, c.Offset, c.Offset+c.Count, f.TotalEntries)
		}
		if c.Count > 0 && c.Offset != sum {
			return fmt.Errorf("cell %d: offset %d, want %d", i, c.Offset, sum)
		}
		sum += c.Count
	}
	if sum != f.TotalEntries {
		return fmt.Errorf("cell counts sum to %d, want %d", sum, f.TotalEntries)
	}
	for i, slot := range f.Entries {
		if int(slot) >= len(f.Balls) {
			return fmt.Errorf("entry %d: slot %d outside the %d-record snapshot", i, slot, len(f.Balls))
		}
	}
	return nil
}

// gridDims returns ceil(extent / cell) per axis, each at least 1.
func gridDims(v Viewport, cellSize float32) (uint32, uint32) {
	dim := func(extent float32) uint32 {
		n := uint32(math.Ceil(float64(extent) / float64(cellSize)))
		return max(n, 1)
	}
	return dim(v.Size[0]), dim(v.Size[1])
}

// gridOrigin centers a cellsX x cellsY grid on the viewport center.
func gridOrigin(v Viewport, cellSize float32, cellsX, cellsY uint32) [2]float32 {
	c := v.Center()
	return [2]float32{
		c[0] - float32(cellsX)*cellSize/2,
		c[1] - float32(cellsY)*cellSize/2,
	}
}

// cellCoord is floor((p - origin) / cell) clamped to [0, cells-1].
// The field shader performs the same float32 computation.
func cellCoord(p, origin, cellSize float32, cells uint32) uint32 {
	t := (p - origin) / cellSize
	if !(t > 0) {
		return 0
	}
	c := math.Floor(float64(t))
	if c >= float64(cells-1) {
		return cells - 1
	}
	return uint32(c)
}
