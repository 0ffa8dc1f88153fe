package metaball

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
)

// CoordinateMapper converts between world space, texture pixel space and UV space
// for a viewport rendered into a texture of fixed size.
type CoordinateMapper struct {
	viewport Viewport
	texW     float32
	texH     float32
}

// NewCoordinateMapper creates a mapper for a viewport and texture size.
//
// Parameters:
//   - viewport: the world-space rectangle shown by the texture
//   - texW: texture width in pixels
//   - texH: texture height in pixels
//
// Returns:
//   - *CoordinateMapper: the mapper
//   - error: ErrInvalidGrid wrapped with details when any extent is not positive
func NewCoordinateMapper(viewport Viewport, texW, texH uint32) (*CoordinateMapper, error) {
	if texW == 0 || texH == 0 || !positiveFinite(viewport.Size[0]) || !positiveFinite(viewport.Size[1]) {
		return nil, fmt.Errorf("%w: viewport %v, texture %dx%d", ErrInvalidGrid, viewport.Size, texW, texH)
	}
	return &CoordinateMapper{viewport: viewport, texW: float32(texW), texH: float32(texH)}, nil
}

// Viewport returns the mapped viewport.
func (m *CoordinateMapper) Viewport() Viewport {
	return m.viewport
}

// WorldToTexture maps a world position to continuous pixel coordinates.
// Texel (x, y) covers [x, x+1) x [y, y+1).
func (m *CoordinateMapper) WorldToTexture(p [2]float32) [2]float32 {
	return [2]float32{
		(p[0] - m.viewport.Min[0]) / m.viewport.Size[0] * m.texW,
		(p[1] - m.viewport.Min[1]) / m.viewport.Size[1] * m.texH,
	}
}

// TextureToWorld is the inverse of WorldToTexture.
func (m *CoordinateMapper) TextureToWorld(px [2]float32) [2]float32 {
	return [2]float32{
		m.viewport.Min[0] + px[0]/m.texW*m.viewport.Size[0],
		m.viewport.Min[1] + px[1]/m.texH*m.viewport.Size[1],
	}
}

// TextureToUV maps pixel coordinates to normalized [0, 1] UV coordinates.
func (m *CoordinateMapper) TextureToUV(px [2]float32) [2]float32 {
	return [2]float32{px[0] / m.texW, px[1] / m.texH}
}

// WorldRadiusToTexture scales a world-space radius to pixels along x.
func (m *CoordinateMapper) WorldRadiusToTexture(r float32) float32 {
	return r * m.texW / m.viewport.Size[0]
}

// ClampWorld clamps a world position into the viewport.
func (m *CoordinateMapper) ClampWorld(p [2]float32) [2]float32 {
	hi := m.viewport.Max()
	return [2]float32{
		common.Clamp(p[0], m.viewport.Min[0], hi[0]),
		common.Clamp(p[1], m.viewport.Min[1], hi[1]),
	}
}
