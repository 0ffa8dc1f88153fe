package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer sets an owned buffer for a specific binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetBuffer(binding, buf)
	}
}

// WithBorrowedBuffer shares a buffer owned by another provider at a binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the shared buffer
//
// Returns:
//   - BindGroupProviderOption: a function that borrows the buffer for the specified binding
func WithBorrowedBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.BorrowBuffer(binding, buf)
	}
}

// WithBorrowedTextureView shares a texture view owned by another provider at a binding index.
//
// Parameters:
//   - binding: the binding index for this view
//   - tv: the shared texture view
//
// Returns:
//   - BindGroupProviderOption: a function that borrows the view for the specified binding
func WithBorrowedTextureView(binding int, tv *wgpu.TextureView) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.BorrowTextureView(binding, tv)
	}
}
