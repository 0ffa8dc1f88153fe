package metaball

import "math"

// FieldImage is a CPU evaluation of the field pass: one value per texel of the
// field, contributor count and albedo outputs, plus normals once ComputeNormals ran.
type FieldImage struct {
	Width  uint32
	Height uint32
	// Field holds the summed falloff per texel, row-major.
	Field []float32
	// Count holds the number of balls with a nonzero term per texel.
	Count []uint32
	// Albedo holds the contribution-weighted color; alpha is 1 where Field > 0.
	Albedo []Color
	// Normal holds xyz normal and the field in w, filled by ComputeNormals.
	Normal [][4]float32
}

// NewFieldImage allocates an empty image.
//
// Parameters:
//   - width: texels per row
//   - height: rows
//
// Returns:
//   - *FieldImage: the zeroed image
func NewFieldImage(width, height uint32) *FieldImage {
	n := int(width) * int(height)
	return &FieldImage{
		Width:  width,
		Height: height,
		Field:  make([]float32, n),
		Count:  make([]uint32, n),
		Albedo: make([]Color, n),
	}
}

// Index returns the row-major index of texel (x, y).
func (img *FieldImage) Index(x, y uint32) int {
	return int(y)*int(img.Width) + int(x)
}

// At returns the field value of texel (x, y).
func (img *FieldImage) At(x, y uint32) float32 {
	return img.Field[img.Index(x, y)]
}

// MaxField returns the largest field value and its texel.
//
// Returns:
//   - float32: the maximum
//   - uint32: texel x of the maximum
//   - uint32: texel y of the maximum
func (img *FieldImage) MaxField() (float32, uint32, uint32) {
	var best float32
	var bx, by uint32
	for y := range img.Height {
		for x := range img.Width {
			if v := img.At(x, y); v > best {
				best, bx, by = v, x, y
			}
		}
	}
	return best, bx, by
}

// Falloff is the per-ball kernel (1 - d²/r²)³ inside the radius and 0 outside.
// It is 1 at the center, decreases monotonically and reaches exactly 0 at d = r.
//
// Parameters:
//   - d2: squared distance from the ball center
//   - r2: squared radius
//
// Returns:
//   - float32: the falloff value
func Falloff(d2, r2 float32) float32 {
	q := d2 / r2
	if !(q < 1) {
		return 0
	}
	k := 1 - q
	return k * k * k
}

// TexelWorld returns the world-space sample point of texel (x, y).
// The field shader computes the same point.
//
// Parameters:
//   - params: the frame uniform
//   - x: texel column
//   - y: texel row
//
// Returns:
//   - [2]float32: world-space point at the texel center
func TexelWorld(params GPUFieldParams, x, y uint32) [2]float32 {
	return [2]float32{
		params.ViewMin[0] + (float32(x)+0.5)*params.ViewSize[0]/float32(params.TexSize[0]),
		params.ViewMin[1] + (float32(y)+0.5)*params.ViewSize[1]/float32(params.TexSize[1]),
	}
}

// accumulator sums contributions for one texel in the order they are added.
type accumulator struct {
	field float32
	count uint32
	color [3]float32
}

func (a *accumulator) add(b GPUBall, p [2]float32) {
	if !(b.Radius > 0) {
		return
	}
	dx := p[0] - b.Center[0]
	dy := p[1] - b.Center[1]
	f := Falloff(dx*dx+dy*dy, b.Radius*b.Radius)
	if f <= 0 {
		return
	}
	a.field += f
	a.count++
	a.color[0] += f * b.Color[0]
	a.color[1] += f * b.Color[1]
	a.color[2] += f * b.Color[2]
}

func (a *accumulator) store(img *FieldImage, i int) {
	img.Field[i] = a.field
	img.Count[i] = a.count
	if a.field > 0 {
		img.Albedo[i] = Color{a.color[0] / a.field, a.color[1] / a.field, a.color[2] / a.field, 1}
	} else {
		img.Albedo[i] = Color{}
	}
}

// EvaluateBruteForce evaluates the field by visiting every ball record for every texel,
// in ascending slot order.
//
// Parameters:
//   - balls: the ball records, indexed by slot
//   - params: the frame uniform; TexSize sets the image size
//
// Returns:
//   - *FieldImage: the evaluated image
func EvaluateBruteForce(balls []GPUBall, params GPUFieldParams) *FieldImage {
	img := NewFieldImage(params.TexSize[0], params.TexSize[1])
	for y := range img.Height {
		for x := range img.Width {
			p := TexelWorld(params, x, y)
			var acc accumulator
			for _, b := range balls {
				acc.add(b, p)
			}
			acc.store(img, img.Index(x, y))
		}
	}
	return img
}

// EvaluateGrid evaluates the field the way the compute shader does: each texel
// visits only the slots registered in its cell, in cell table order.
//
// Parameters:
//   - frame: the built grid frame
//   - params: the frame uniform; TexSize sets the image size
//
// Returns:
//   - *FieldImage: the evaluated image
func EvaluateGrid(frame *Frame, params GPUFieldParams) *FieldImage {
	img := NewFieldImage(params.TexSize[0], params.TexSize[1])
	for y := range img.Height {
		for x := range img.Width {
			p := TexelWorld(params, x, y)
			cx, cy := frame.CellOf(p)
			var acc accumulator
			for _, slot := range frame.CellEntries(cy*frame.CellsX + cx) {
				acc.add(frame.Balls[slot], p)
			}
			acc.store(img, img.Index(x, y))
		}
	}
	return img
}

// ComputeNormals fills img.Normal from central differences of the field, clamping
// reads at the image edges, as the normal pass does.
//
// Parameters:
//   - img: the evaluated image
//   - zScale: the z component before normalization; smaller values exaggerate relief
func ComputeNormals(img *FieldImage, zScale float32) {
	img.Normal = growTo(img.Normal, len(img.Field))
	load := func(x, y int) float32 {
		x = min(max(x, 0), int(img.Width)-1)
		y = min(max(y, 0), int(img.Height)-1)
		return img.Field[y*int(img.Width)+x]
	}
	for y := range int(img.Height) {
		for x := range int(img.Width) {
			gx := (load(x+1, y) - load(x-1, y)) * 0.5
			gy := (load(x, y+1) - load(x, y-1)) * 0.5
			n := normalize3(-gx, -gy, zScale)
			img.Normal[y*int(img.Width)+x] = [4]float32{n[0], n[1], n[2], load(x, y)}
		}
	}
}

func normalize3(x, y, z float32) [3]float32 {
	l := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	if l == 0 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{x / l, y / l, z / l}
}
