package field

import "github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"

// Defaults for the presentation parameters carried in the params uniform.
const (
	DefaultIso          = 0.5
	DefaultNormalZScale = 0.25
)

// RendererBuilderOption is a function that configures a field Renderer during construction.
type RendererBuilderOption func(*fieldRenderer)

// WithMaxBalls is an option builder that sets MaxBalls, the fixed ball capacity.
//
// Parameters:
//   - n: the ball capacity, ignored when zero
//
// Returns:
//   - RendererBuilderOption: a function that applies the capacity option to a field renderer
func WithMaxBalls(n uint32) RendererBuilderOption {
	return func(r *fieldRenderer) {
		if n > 0 {
			r.maxBalls = n
		}
	}
}

// WithMaxCellsPerBall is an option builder that sets the per-ball cell estimate used to
// size the entry buffer.
//
// Parameters:
//   - n: the estimate, ignored when zero
//
// Returns:
//   - RendererBuilderOption: a function that applies the estimate option to a field renderer
func WithMaxCellsPerBall(n uint32) RendererBuilderOption {
	return func(r *fieldRenderer) {
		if n > 0 {
			r.maxCellsPerBall = n
		}
	}
}

// WithTextureSize is an option builder that sets the output texture size. It defaults
// to the viewport size rounded up to whole texels.
//
// Parameters:
//   - width: texture width in texels
//   - height: texture height in texels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size option to a field renderer
func WithTextureSize(width, height uint32) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.texW, r.texH = width, height
	}
}

// WithIso is an option builder that sets the iso threshold passed to presentation.
func WithIso(iso float32) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.iso = iso
	}
}

// WithNormalZScale is an option builder that sets the z component of the normal
// before normalization. NewRenderer rejects values that are not positive.
func WithNormalZScale(z float32) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.normalZScale = z
	}
}

// WithWorkers is an option builder that sets the grid builder's emission workers.
func WithWorkers(n int) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.workers = n
	}
}

// WithPalette is an option builder that sets the palette resolving ball colors.
func WithPalette(p metaball.Palette) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.palette = p
	}
}

// WithDiagnosticsInterval is an option builder that logs grid diagnostics every n frames.
// Zero disables them.
func WithDiagnosticsInterval(n uint64) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.diagnosticsInterval = n
	}
}

// WithDebugValidate is an option builder that checks the free list and the cell table
// every frame. Prepare fails on the first violation.
func WithDebugValidate(enabled bool) RendererBuilderOption {
	return func(r *fieldRenderer) {
		r.debugValidate = enabled
	}
}
