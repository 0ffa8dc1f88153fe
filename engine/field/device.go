package field

import (
	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// Device is the subset of the renderer used by the field passes. renderer.Renderer
// satisfies it; tests use a recording fake.
type Device interface {
	RegisterPipelines(pipelines ...pipeline.Pipeline) error
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error
	InitStorageTexture(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.StorageTextureStagingData) error
	WriteBuffers(writes []bind_group_provider.BufferWrite)
	BeginComputeFrame() error
	DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32)
	EndComputeFrame()
}

var _ Device = renderer.Renderer(nil)
