package scene

import (
	_ "embed"
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/field"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/shader"
)

// PreviewPipelineKey is the pipeline key of the fullscreen presenter.
const PreviewPipelineKey = "metaball_preview"

//go:embed assets/preview.wgsl
var previewSource string

// PreviewMode selects what the presenter draws.
type PreviewMode uint32

const (
	// PreviewShaded thresholds the field at the iso value and lights the albedo with the normals.
	PreviewShaded PreviewMode = iota
	// PreviewAlbedo shows the raw albedo texture.
	PreviewAlbedo
	// PreviewField shows the field as a heat map, iso at the midpoint.
	PreviewField
	// PreviewNormals shows the normals remapped to [0, 1].
	PreviewNormals
	previewModeCount
)

var previewModeNames = [previewModeCount]string{
	PreviewShaded:  "shaded",
	PreviewAlbedo:  "albedo",
	PreviewField:   "field",
	PreviewNormals: "normals",
}

func (m PreviewMode) String() string {
	if m >= previewModeCount {
		return "unknown"
	}
	return previewModeNames[m]
}

// ParsePreviewMode maps a name from configuration to a PreviewMode.
// Unknown names yield PreviewShaded.
func ParsePreviewMode(s string) PreviewMode {
	for m, name := range previewModeNames {
		if name == s {
			return PreviewMode(m)
		}
	}
	return PreviewShaded
}

// GPUPreviewParams is the presenter uniform. Size: 48 bytes.
type GPUPreviewParams struct {
	LightDir   [4]float32 // offset  0: xyz light direction, w unused
	Background [4]float32 // offset 16: color outside the iso contour
	Mode       uint32     // offset 32: PreviewMode
	Iso        float32    // offset 36: contour threshold
	Edge       float32    // offset 40: half width of the antialiased contour band
	Ambient    float32    // offset 44: ambient light share
}

// GPUPreviewParamsSize is the size of GPUPreviewParams in bytes.
const GPUPreviewParamsSize = uint64(unsafe.Sizeof(GPUPreviewParams{}))

// presenter draws the field textures to the surface with one fullscreen triangle.
type presenter struct {
	device   Device
	pipeline pipeline.Pipeline
	provider bind_group_provider.BindGroupProvider
	params   int
}

// previewShaders parses the vertex and fragment stages of the presenter.
func previewShaders() (vs, fs shader.Shader, err error) {
	vs, err = shader.NewShader(PreviewPipelineKey+"_vs", shader.ShaderTypeVertex, previewSource)
	if err != nil {
		return nil, nil, err
	}
	fs, err = shader.NewShader(PreviewPipelineKey+"_fs", shader.ShaderTypeFragment, previewSource)
	if err != nil {
		return nil, nil, err
	}
	return vs, fs, nil
}

func newPresenter(device Device, textures field.Textures) (*presenter, error) {
	vs, fs, err := previewShaders()
	if err != nil {
		return nil, err
	}
	binding := func(role shader.AnnotationArg) (int, error) {
		group, b, ok := fs.Binding(role)
		if !ok || group != 0 {
			return 0, fmt.Errorf("scene: preview shader has no group 0 binding for %q", role)
		}
		return b, nil
	}
	var b [4]int
	for i, role := range []shader.AnnotationArg{
		shader.AnnotationArgPreviewParams,
		shader.AnnotationArgAlbedoTexture,
		shader.AnnotationArgNormalTexture,
		shader.AnnotationArgPreviewSampler,
	} {
		if b[i], err = binding(role); err != nil {
			return nil, err
		}
	}

	p := &presenter{
		device: device,
		pipeline: pipeline.NewPipeline(PreviewPipelineKey, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(vs),
			pipeline.WithFragmentShader(fs),
		),
		params: b[0],
	}
	if err := device.RegisterPipelines(p.pipeline); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	// The textures belong to the field renderer.
	p.provider = bind_group_provider.NewBindGroupProvider("Metaball Preview",
		bind_group_provider.WithBorrowedTextureView(b[1], textures.Albedo),
		bind_group_provider.WithBorrowedTextureView(b[2], textures.Normal),
	)
	if err := device.InitSampler(p.provider, b[3], common.SamplerStagingData{}); err != nil {
		return nil, fmt.Errorf("scene: preview sampler: %w", err)
	}
	layout := shader.MergeBindGroupLayouts(vs, fs)[0]
	if err := device.InitBindGroup(p.provider, layout, nil, map[int]uint64{b[0]: GPUPreviewParamsSize}); err != nil {
		p.provider.Release()
		return nil, fmt.Errorf("scene: preview bind group: %w", err)
	}
	return p, nil
}

func (p *presenter) draw(params GPUPreviewParams) error {
	p.device.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: p.provider,
		Binding:  p.params,
		Data:     common.StructToBytes(&params),
	}})
	return p.device.DrawFullscreen(PreviewPipelineKey, p.provider)
}

func (p *presenter) release() {
	p.provider.Release()
}
