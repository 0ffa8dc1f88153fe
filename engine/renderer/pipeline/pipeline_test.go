package pipeline

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestPipeline_WorkgroupCount(t *testing.T) {
	cs := shader.MustShader("cs", shader.ShaderTypeCompute, "@compute @workgroup_size(8, 8) fn main() {}")
	p := NewPipeline("field", PipelineTypeCompute, WithComputeShader(cs))

	tests := []struct {
		name   string
		extent [3]uint32
		want   [3]uint32
	}{
		{"exact", [3]uint32{64, 32, 1}, [3]uint32{8, 4, 1}},
		{"rounds up", [3]uint32{100, 100, 1}, [3]uint32{13, 13, 1}},
		{"zero extent", [3]uint32{0, 0, 0}, [3]uint32{1, 1, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.WorkgroupCount(tc.extent); got != tc.want {
				t.Errorf("WorkgroupCount(%v) = %v, want %v", tc.extent, got, tc.want)
			}
		})
	}

	render := NewPipeline("preview", PipelineTypeRender)
	if got := render.WorkgroupCount([3]uint32{64, 64, 1}); got != [3]uint32{} {
		t.Errorf("render WorkgroupCount = %v, want zeros", got)
	}
}

func TestPipeline_Validate(t *testing.T) {
	cs := shader.MustShader("cs", shader.ShaderTypeCompute, "@compute @workgroup_size(1) fn main() {}")
	vs := shader.MustShader("vs", shader.ShaderTypeVertex, "@vertex fn vs_main() -> @builtin(position) vec4f { return vec4f(); }")

	tests := []struct {
		name    string
		p       Pipeline
		wantErr bool
	}{
		{"compute ok", NewPipeline("a", PipelineTypeCompute, WithComputeShader(cs)), false},
		{"compute missing", NewPipeline("b", PipelineTypeCompute), true},
		{"render missing fragment", NewPipeline("c", PipelineTypeRender, WithVertexShader(vs)), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.wantErr != (err != nil) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingShader) {
				t.Errorf("err = %v, want ErrMissingShader", err)
			}
		})
	}
}

func TestPipeline_Defaults(t *testing.T) {
	p := NewPipeline("preview", PipelineTypeRender, WithBlendEnabled(true))
	if !p.BlendEnabled() || p.BlendState() == nil {
		t.Error("blend state not configured")
	}
	if p.Topology() != wgpu.PrimitiveTopologyTriangleList {
		t.Errorf("topology = %v, want triangle list", p.Topology())
	}
}
