package field

import "github.com/cogentcore/webgpu/wgpu"

// Texture formats of the pass outputs. They must match the storage texture
// declarations of the compute shaders.
const (
	FieldFormat  = wgpu.TextureFormatRGBA16Float
	AlbedoFormat = wgpu.TextureFormatRGBA8Unorm
	NormalFormat = wgpu.TextureFormatRGBA16Float
)

// Textures are the views of the three output textures. They are created once and
// hold the results of the last completed compute frame.
//
// Field texels hold (field, contributors, 0, 1). Albedo texels hold the
// contribution-weighted ball color with alpha 1 where the field is positive.
// Normal texels hold (unit normal, field).
type Textures struct {
	Field  *wgpu.TextureView
	Albedo *wgpu.TextureView
	Normal *wgpu.TextureView
	Width  uint32
	Height uint32
}
