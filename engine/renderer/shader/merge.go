package shader

import (
	"maps"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

// MergeBindGroupLayouts combines the bind group layouts of the shaders of one render pipeline.
// A binding declared by more than one stage keeps the first declaration with the visibility
// flags of every stage OR'd together. Entries are sorted by binding.
//
// Parameters:
//   - shaders: the shaders whose layouts to merge, typically vertex then fragment
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func MergeBindGroupLayouts(shaders ...Shader) map[int]wgpu.BindGroupLayoutDescriptor {
	byGroup := make(map[int]map[uint32]wgpu.BindGroupLayoutEntry)
	for _, s := range shaders {
		if s == nil {
			continue
		}
		for g, desc := range s.BindGroupLayoutDescriptors() {
			if byGroup[g] == nil {
				byGroup[g] = make(map[uint32]wgpu.BindGroupLayoutEntry)
			}
			for _, e := range desc.Entries {
				if existing, ok := byGroup[g][e.Binding]; ok {
					existing.Visibility |= e.Visibility
					byGroup[g][e.Binding] = existing
					continue
				}
				byGroup[g][e.Binding] = e
			}
		}
	}

	merged := make(map[int]wgpu.BindGroupLayoutDescriptor, len(byGroup))
	for g, entries := range byGroup {
		keys := slices.Sorted(maps.Keys(entries))
		desc := wgpu.BindGroupLayoutDescriptor{Entries: make([]wgpu.BindGroupLayoutEntry, 0, len(keys))}
		for _, k := range keys {
			desc.Entries = append(desc.Entries, entries[k])
		}
		merged[g] = desc
	}
	return merged
}
