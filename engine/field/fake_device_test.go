package field

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// recordedWrite is a copy of a BufferWrite taken when it was issued.
type recordedWrite struct {
	provider string
	binding  int
	offset   uint64
	data     []byte
}

// recordedDispatch is one DispatchCompute call.
type recordedDispatch struct {
	key       string
	provider  string
	workgroup [3]uint32
}

// fakeDevice records what the field renderer asks of the GPU. Its buffers, views and
// bind groups are zero values that must never be released.
type fakeDevice struct {
	events         []string
	pipelines      []string
	bindGroupInits int
	textures       map[string]common.StorageTextureStagingData
	bufferSizes    map[string]uint64
	writes         [][]recordedWrite
	dispatches     []recordedDispatch
	beginErr       error
}

var _ Device = &fakeDevice{}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		textures:    make(map[string]common.StorageTextureStagingData),
		bufferSizes: make(map[string]uint64),
	}
}

func bindingKey(label string, binding int) string {
	return fmt.Sprintf("%s/%d", label, binding)
}

func (f *fakeDevice) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	for _, p := range pipelines {
		if err := p.Validate(); err != nil {
			return err
		}
		f.pipelines = append(f.pipelines, p.PipelineKey())
	}
	return nil
}

func (f *fakeDevice) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, _ map[int]wgpu.BufferUsage, sizes map[int]uint64) error {
	f.bindGroupInits++
	for _, e := range descriptor.Entries {
		b := int(e.Binding)
		isTexture := e.Texture.SampleType != wgpu.TextureSampleTypeUndefined ||
			e.StorageTexture.Access != wgpu.StorageTextureAccessUndefined
		if isTexture {
			if provider.TextureView(b) == nil {
				return fmt.Errorf("%s: binding %d has no texture view", provider.Label(), b)
			}
			continue
		}
		if provider.Buffer(b) != nil {
			continue
		}
		size := e.Buffer.MinBindingSize
		if s, ok := sizes[b]; ok {
			size = s
		}
		provider.SetBuffer(b, &wgpu.Buffer{})
		f.bufferSizes[bindingKey(provider.Label(), b)] = size
	}
	provider.SetBindGroup(&wgpu.BindGroup{})
	return nil
}

func (f *fakeDevice) InitStorageTexture(provider bind_group_provider.BindGroupProvider, binding int, data common.StorageTextureStagingData) error {
	provider.SetTexture(binding, &wgpu.Texture{}, &wgpu.TextureView{})
	f.textures[bindingKey(provider.Label(), binding)] = data
	return nil
}

func (f *fakeDevice) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	f.events = append(f.events, "write")
	batch := make([]recordedWrite, 0, len(writes))
	for _, w := range writes {
		batch = append(batch, recordedWrite{
			provider: w.Provider.Label(),
			binding:  w.Binding,
			offset:   w.Offset,
			data:     slices.Clone(w.Data),
		})
	}
	f.writes = append(f.writes, batch)
}

func (f *fakeDevice) BeginComputeFrame() error {
	if f.beginErr != nil {
		return f.beginErr
	}
	f.events = append(f.events, "begin")
	return nil
}

func (f *fakeDevice) DispatchCompute(key string, provider bind_group_provider.BindGroupProvider, wg [3]uint32) {
	f.events = append(f.events, "dispatch:"+key)
	f.dispatches = append(f.dispatches, recordedDispatch{key: key, provider: provider.Label(), workgroup: wg})
}

func (f *fakeDevice) EndComputeFrame() {
	f.events = append(f.events, "end")
}

// lastWrites returns the most recent WriteBuffers batch keyed by binding.
func (f *fakeDevice) lastWrites() map[int]recordedWrite {
	out := make(map[int]recordedWrite)
	if len(f.writes) == 0 {
		return out
	}
	for _, w := range f.writes[len(f.writes)-1] {
		out[w.binding] = w
	}
	return out
}
