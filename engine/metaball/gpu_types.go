package metaball

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUBallSize is the byte stride of one ball record in the ball storage buffer.
const GPUBallSize = 32

// GPUGridCellSize is the byte stride of one cell record in the cell index buffer.
const GPUGridCellSize = 8

// GPUEntrySize is the byte stride of one slot index in the sorted entry buffer.
const GPUEntrySize = 4

// GPUFieldParamsSize is the byte size of the field params uniform.
const GPUFieldParamsSize = 64

// GPUBallSource is the canonical WGSL definition of the Ball struct.
// Matches GPUBall layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/ball.wgsl
var GPUBallSource string

// GPUBall is the GPU-aligned record of one ball slot.
// Freed and degenerate slots are written as the zero value, which has zero radius
// and contributes nothing.
// Size: 32 bytes.
type GPUBall struct {
	Center     [2]float32 // offset  0: world-space center
	Radius     float32    // offset  8: influence radius
	ColorIndex uint32     // offset 12: palette index, passed through
	Color      [4]float32 // offset 16: resolved palette color
}

// NewGPUBall builds the GPU record of a ball with its palette color resolved.
//
// Parameters:
//   - b: the CPU ball
//   - palette: the palette used to resolve b.ColorIndex
//
// Returns:
//   - GPUBall: the GPU record
func NewGPUBall(b Ball, palette Palette) GPUBall {
	return GPUBall{
		Center:     b.Position,
		Radius:     b.Radius,
		ColorIndex: b.ColorIndex,
		Color:      palette.Lookup(b.ColorIndex),
	}
}

// Size returns the size of the GPUBall struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUBall) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBall struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPUBall) Marshal() []byte {
	buf := make([]byte, GPUBallSize)
	g.MarshalInto(buf)
	return buf
}

// MarshalInto writes the record into the first 32 bytes of buf.
//
// Parameters:
//   - buf: destination, at least 32 bytes long
func (g *GPUBall) MarshalInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Center[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Center[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Radius))
	binary.LittleEndian.PutUint32(buf[12:16], g.ColorIndex)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Color[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Color[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Color[2]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Color[3]))
}

// GPUGridCellSource is the canonical WGSL definition of the GridCell struct.
// Matches GPUGridCell layout exactly (8 bytes).
//
//go:embed assets/grid_cell.wgsl
var GPUGridCellSource string

// GPUGridCell is one row of the cell index table: the cell's entries are
// entries[Offset : Offset+Count].
// Size: 8 bytes.
type GPUGridCell struct {
	Offset uint32 // offset 0: first entry of the cell in the sorted entry list
	Count  uint32 // offset 4: number of entries in the cell
}

// Size returns the size of the GPUGridCell struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (c *GPUGridCell) Size() int {
	return int(unsafe.Sizeof(*c))
}

// Marshal serializes the GPUGridCell struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 8-byte buffer ready for GPU upload
func (c *GPUGridCell) Marshal() []byte {
	buf := make([]byte, GPUGridCellSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.Offset)
	binary.LittleEndian.PutUint32(buf[4:8], c.Count)
	return buf
}

// GPUFieldParamsSource is the canonical WGSL definition of the FieldParams struct.
// Matches GPUFieldParams layout exactly (64 bytes, uniform aligned).
//
//go:embed assets/field_params.wgsl
var GPUFieldParamsSource string

// GPUFieldParams is the per-frame uniform shared by the field and normal passes.
// Size: 64 bytes.
type GPUFieldParams struct {
	ViewMin      [2]float32 // offset  0: world-space min corner of the viewport
	ViewSize     [2]float32 // offset  8: world-space viewport extent
	GridMin      [2]float32 // offset 16: world-space origin of cell (0, 0)
	CellSize     float32    // offset 24: cell edge length in world units
	Iso          float32    // offset 28: presentation iso threshold, passed through
	TexSize      [2]uint32  // offset 32: output texture size in texels
	GridDims     [2]uint32  // offset 40: cells_x, cells_y
	NumBalls     uint32     // offset 48: ball records written this frame (high water mark)
	TotalEntries uint32     // offset 52: valid entries in the sorted entry list
	NormalZScale float32    // offset 56: z component before normalizing the gradient
	_pad         uint32     // offset 60: padding to 64 bytes
}

// Size returns the size of the GPUFieldParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (p *GPUFieldParams) Size() int {
	return int(unsafe.Sizeof(*p))
}

// Marshal serializes the GPUFieldParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (p *GPUFieldParams) Marshal() []byte {
	buf := make([]byte, GPUFieldParamsSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.ViewMin[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.ViewMin[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(p.ViewSize[0]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(p.ViewSize[1]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(p.GridMin[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(p.GridMin[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(p.CellSize))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(p.Iso))
	binary.LittleEndian.PutUint32(buf[32:36], p.TexSize[0])
	binary.LittleEndian.PutUint32(buf[36:40], p.TexSize[1])
	binary.LittleEndian.PutUint32(buf[40:44], p.GridDims[0])
	binary.LittleEndian.PutUint32(buf[44:48], p.GridDims[1])
	binary.LittleEndian.PutUint32(buf[48:52], p.NumBalls)
	binary.LittleEndian.PutUint32(buf[52:56], p.TotalEntries)
	binary.LittleEndian.PutUint32(buf[56:60], math.Float32bits(p.NormalZScale))
	binary.LittleEndian.PutUint32(buf[60:64], 0) // padding
	return buf
}
