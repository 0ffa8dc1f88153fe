// package common contains small helpers and plain data types shared across the engine packages.
package common

import "github.com/cogentcore/webgpu/wgpu"

// StorageTextureStagingData describes a GPU texture that a compute pass writes and later passes sample.
// The Renderer uses it to create the texture and store its view on a BindGroupProvider.
type StorageTextureStagingData struct {
	// Width is the width of the texture in texels.
	Width uint32
	// Height is the height of the texture in texels.
	Height uint32
	// Format is the texel format. It must be a valid WGSL storage texel format (e.g. rgba16float, rgba8unorm).
	Format wgpu.TextureFormat
	// Label is an optional debug label, defaulting to the provider label.
	Label string
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// Zero fields fall back to the Renderer's defaults via Coalesce.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range.
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail.
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level.
	MaxAnisotropy uint16
}
