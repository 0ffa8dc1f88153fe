package bind_group_provider

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestBindGroupProvider_Borrowed(t *testing.T) {
	shared := &wgpu.Buffer{}
	view := &wgpu.TextureView{}
	p := NewBindGroupProvider("normals",
		WithBorrowedBuffer(0, shared),
		WithBorrowedTextureView(1, view),
	)

	if p.Label() != "normals" {
		t.Errorf("label = %q, want normals", p.Label())
	}
	if p.Buffer(0) != shared || p.TextureView(1) != view {
		t.Fatal("borrowed resources not stored")
	}

	// Borrowed resources are forgotten, never released.
	p.Release()
	if p.Buffer(0) != nil || p.TextureView(1) != nil {
		t.Error("Release kept borrowed resources")
	}
	if len(p.Buffers()) != 0 || len(p.TextureViews()) != 0 {
		t.Error("Release left entries in the maps")
	}
}

func TestBindGroupProvider_SetClearsBorrow(t *testing.T) {
	impl := NewBindGroupProvider("x").(*bindGroupProvider)
	impl.BorrowBuffer(2, &wgpu.Buffer{})
	impl.SetBuffer(2, nil)
	if impl.borrowedBuffers[2] {
		t.Error("SetBuffer did not take ownership")
	}
	impl.BorrowTextureView(3, nil)
	impl.SetTextureView(3, nil)
	if impl.borrowedViews[3] {
		t.Error("SetTextureView did not take ownership")
	}
}

func TestBufferWrite_Range(t *testing.T) {
	w := BufferWrite{Binding: 1, Offset: 64, Data: make([]byte, 32)}
	if w.Len() != 32 || w.End() != 96 {
		t.Errorf("len/end = %d/%d, want 32/96", w.Len(), w.End())
	}
}
