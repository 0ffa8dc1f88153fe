package shader

import (
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// scalarLayout returns the layout of the 32-bit scalars a metaball buffer can hold.
func scalarLayout(name string) (wgslTypeLayout, bool) {
	switch name {
	case "f32", "u32", "i32":
		return wgslTypeLayout{size: 4, align: 4}, true
	}
	return wgslTypeLayout{}, false
}

// vectorLayout resolves vec2/vec3/vec4 of a 32-bit scalar, in either the
// vecN<T> or the vecNf/vecNu/vecNi spelling. A vec3 aligns like a vec4.
func vectorLayout(name string) (wgslTypeLayout, bool) {
	if len(name) < 5 || !strings.HasPrefix(name, "vec") {
		return wgslTypeLayout{}, false
	}
	n := uint64(name[3] - '0')
	if n < 2 || n > 4 {
		return wgslTypeLayout{}, false
	}

	elem := name[4:]
	switch elem {
	case "f", "u", "i":
		elem += "32"
	default:
		elem = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(elem, "<"), ">"))
	}
	if _, ok := scalarLayout(elem); !ok {
		return wgslTypeLayout{}, false
	}

	align := uint64(8)
	if n > 2 {
		align = 16
	}
	return wgslTypeLayout{size: 4 * n, align: align}, true
}

// alignTo rounds value up to a power-of-two alignment.
func alignTo(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	return (value + align - 1) &^ (align - 1)
}

// layoutResolver computes buffer layouts for the structs of one shader module.
// Struct layouts are memoized; a struct that refers to itself fails to resolve.
type layoutResolver struct {
	structs  map[string]parsedStruct
	resolved map[string]wgslTypeLayout
	visiting map[string]bool
}

func newLayoutResolver(structs []parsedStruct) *layoutResolver {
	r := &layoutResolver{
		structs:  make(map[string]parsedStruct, len(structs)),
		resolved: make(map[string]wgslTypeLayout, len(structs)),
		visiting: make(map[string]bool),
	}
	for _, s := range structs {
		r.structs[s.name] = s
	}
	return r
}

// resolve returns the layout of a type name. A runtime-sized array resolves to one
// element, which is the minimum binding size for a storage buffer of it; the
// caller sizes the real buffer from its capacity.
//
// Parameters:
//   - typeName: a scalar, vector, struct or array type name
//
// Returns:
//   - wgslTypeLayout: the resolved size and alignment
//   - bool: false if the type is unknown or unsupported
func (r *layoutResolver) resolve(typeName string) (wgslTypeLayout, bool) {
	if l, ok := scalarLayout(typeName); ok {
		return l, true
	}
	if l, ok := vectorLayout(typeName); ok {
		return l, true
	}
	if inner, ok := strings.CutPrefix(typeName, "array<"); ok && strings.HasSuffix(inner, ">") {
		return r.array(strings.TrimSuffix(inner, ">"))
	}
	return r.structLayout(typeName)
}

// array resolves the body of array<T> or array<T, N>.
func (r *layoutResolver) array(body string) (wgslTypeLayout, bool) {
	elemName, countStr, fixed := strings.Cut(body, ",")
	elem, ok := r.resolve(strings.TrimSpace(elemName))
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := alignTo(elem.size, elem.align)
	if !fixed {
		return wgslTypeLayout{size: stride, align: elem.align}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(countStr), 10, 64)
	if err != nil || count == 0 {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{size: count * stride, align: elem.align}, true
}

// structLayout places each member at its aligned offset and pads the total to the
// largest member alignment. A trailing runtime-sized array contributes nothing, so
// the struct reports its fixed prefix, or one element if there is no prefix.
func (r *layoutResolver) structLayout(name string) (wgslTypeLayout, bool) {
	if l, ok := r.resolved[name]; ok {
		return l, true
	}
	s, ok := r.structs[name]
	if !ok || r.visiting[name] {
		return wgslTypeLayout{}, false
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	var offset uint64
	align := uint64(1)
	for i, f := range s.fields {
		l, ok := r.resolve(f.typeName)
		if !ok {
			return wgslTypeLayout{}, false
		}
		align = max(align, l.align)
		if i == len(s.fields)-1 && isRuntimeArray(f.typeName) && offset > 0 {
			break
		}
		offset = alignTo(offset, l.align) + l.size
	}

	l := wgslTypeLayout{size: alignTo(offset, align), align: align}
	r.resolved[name] = l
	return l, true
}

func isRuntimeArray(typeName string) bool {
	return strings.HasPrefix(typeName, "array<") && !strings.Contains(typeName, ",")
}

// classifyResource builds the layout entry for one @group/@binding declaration.
// Declarations with an address space are buffers; the rest are textures or samplers.
//
// Parameters:
//   - binding: the @binding index
//   - visibility: the stage that declared the resource
//   - addressSpace: the var<...> qualifier, empty for handle types
//   - typeName: the declared type
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the populated entry
func classifyResource(binding uint32, visibility wgpu.ShaderStage, addressSpace, typeName string) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}

	space, access, _ := strings.Cut(addressSpace, ",")
	switch strings.TrimSpace(space) {
	case "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		return entry
	case "storage":
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		if strings.TrimSpace(access) == "read_write" {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		}
		return entry
	}

	base, params := splitTypeParams(typeName)
	switch {
	case base == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case strings.HasPrefix(base, "texture_storage_"):
		entry.StorageTexture.ViewDimension = wgslStorageTextureDimMap[base]
		format, mode, _ := strings.Cut(params, ",")
		entry.StorageTexture.Format = wgslTexelFormatMap[strings.TrimSpace(format)]
		entry.StorageTexture.Access = wgslStorageAccessMap[strings.TrimSpace(mode)]
	case strings.HasPrefix(base, "texture_"):
		if info, ok := wgslSampledTextureMap[base]; ok {
			entry.Texture.ViewDimension = info.viewDimension
			entry.Texture.Multisampled = info.multisampled
		}
		entry.Texture.SampleType = wgslSampleTypeMap[params]
	}
	return entry
}

// splitTypeParams splits "texture_2d<f32>" into "texture_2d" and "f32".
func splitTypeParams(typeName string) (string, string) {
	base, params, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return base, strings.TrimSpace(strings.TrimSuffix(params, ">"))
}

// stripComments blanks out // and nested /* */ comments in one pass. Newlines
// inside comments are kept so declarations stay on their original lines.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	line := false
	for i := 0; i < len(source); i++ {
		c := source[i]
		var next byte
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case line:
			if c == '\n' {
				line = false
				sb.WriteByte(c)
			}
		case c == '/' && next == '*':
			depth++
			i++
		case depth > 0 && c == '*' && next == '/':
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte(c)
			}
		case c == '/' && next == '/':
			line = true
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a struct body on commas outside <...>, so that
// array<T, N> stays one member.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := range len(s) {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
