// Package metaball holds the CPU side of the metaball renderer: the fixed-capacity
// ball pool and its free list, the per-frame spatial grid builder, the GPU struct
// layouts consumed by the compute shaders, and a CPU reference of the field passes.
package metaball

import "math"

// SlotIndex is the stable position of a ball inside the fixed-capacity GPU ball buffer.
type SlotIndex uint32

// Color is a linear RGBA color.
type Color [4]float32

// Ball is one active metaball as seen by the core. Position and Radius are in world units.
type Ball struct {
	// Position is the world-space center.
	Position [2]float32
	// Radius is the influence radius. The field reaches exactly zero at this distance.
	Radius float32
	// ColorIndex is the palette / cluster identity. It is opaque to the core beyond the palette lookup.
	ColorIndex uint32
}

// Degenerate reports whether the ball cannot contribute to the field: a non-positive
// radius or any non-finite component. Degenerate balls are skipped by the grid builder.
//
// Returns:
//   - bool: true if the ball must be excluded from the grid
func (b Ball) Degenerate() bool {
	if !(b.Radius > 0) || math.IsInf(float64(b.Radius), 0) {
		return true
	}
	for _, v := range b.Position {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return true
		}
	}
	return false
}

// Palette maps a ball's ColorIndex to the color written into its GPU record.
type Palette []Color

// DefaultPalette is used when no palette is configured.
var DefaultPalette = Palette{
	{0.95, 0.36, 0.30, 1},
	{0.27, 0.62, 0.95, 1},
	{0.40, 0.85, 0.45, 1},
	{0.98, 0.80, 0.25, 1},
	{0.72, 0.45, 0.95, 1},
	{0.25, 0.85, 0.85, 1},
}

// Lookup returns the color for a color index, wrapping around the palette length.
// An empty palette yields opaque white.
//
// Parameters:
//   - index: the ball's color index
//
// Returns:
//   - Color: the resolved palette color
func (p Palette) Lookup(index uint32) Color {
	if len(p) == 0 {
		return Color{1, 1, 1, 1}
	}
	return p[index%uint32(len(p))]
}

// RadiusScaleForIso returns the factor that turns a visual radius into an influence
// radius such that an isolated ball's iso contour lands on the visual radius.
// For the falloff (1 - d²/r²)³ the contour f = iso sits at d = r*sqrt(1 - iso^(1/3)).
//
// Parameters:
//   - iso: the iso threshold used by presentation, in (0, 1)
//
// Returns:
//   - float32: the multiplier to apply to the visual radius
func RadiusScaleForIso(iso float32) float32 {
	iso = min(max(iso, 1e-6), 1)
	k := 1 - math.Cbrt(float64(iso))
	return float32(1 / math.Sqrt(math.Max(k, 1e-4)))
}
