// annotations.go defines the annotation types, argument constants, and parser for the
// Oxy WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed
// with @oxy: that drive struct injection, bind group declaration, and resource
// provider registration. The parsed results are stored as Annotation values and consumed
// by the field renderer to resolve binding indices from the shader itself.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition
	// at the annotation site. It is consumed entirely during pre-processing.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include ball
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// for a registered struct type (optionally wrapped in array<>) and records it as a
	// declaration.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 1 storage_read balls array<ball>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider registers a provider identity and optional binding role for a
	// hand-written binding directly below it, typically a texture, sampler or primitive
	// array with no registered struct.
	//
	// Syntax:
	//   //@oxy:provider <group> <binding> <provider_identity>
	//   //@oxy:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Example: //@oxy:provider 0 4 field field_texture
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed (include, group, or provider).
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = struct type key (e.g. "ball")
	//   - group:    [0] = address space, [1] = var name, [2] = WGSL type key
	//   - provider: [0] = provider identity, [1] = binding role (optional)
	Args []AnnotationArg

	// Line is the 1-based source line of the annotation.
	Line int

	// Group is the @group index for group and provider annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil for include annotations.
	Binding *int
}

// Role returns the binding role of a provider annotation, or the struct type key of a
// group annotation with any array<> wrapper removed.
//
// Returns:
//   - AnnotationArg: the role or type key, empty for include annotations
func (a Annotation) Role() AnnotationArg {
	switch a.Type {
	case AnnotationTypeProvider:
		if len(a.Args) > 1 {
			return a.Args[1]
		}
	case AnnotationTypeBindingGroup:
		t := string(a.Args[2])
		if inner, ok := strings.CutPrefix(t, "array<"); ok {
			t = strings.TrimSuffix(inner, ">")
		}
		return AnnotationArg(t)
	}
	return ""
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// ── Struct type arguments ──────────────────────────────────────────────────────
// Each maps to a Go GPU type in engine/metaball with an embedded .wgsl asset file.

const (
	// AnnotationArgBall identifies the Ball struct.
	// Source: engine/metaball/assets/ball.wgsl
	AnnotationArgBall AnnotationArg = "ball"

	// AnnotationArgGridCell identifies the GridCell (offset, count) struct.
	// Source: engine/metaball/assets/grid_cell.wgsl
	AnnotationArgGridCell AnnotationArg = "grid_cell"

	// AnnotationArgFieldParams identifies the FieldParams uniform struct.
	// Source: engine/metaball/assets/field_params.wgsl
	AnnotationArgFieldParams AnnotationArg = "field_params"
)

// ── Address space arguments ────────────────────────────────────────────────────

const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Provider identity arguments ────────────────────────────────────────────────

const (
	// AnnotationArgField identifies the field/albedo pass resources.
	AnnotationArgField AnnotationArg = "field"

	// AnnotationArgNormals identifies the normal pass resources.
	AnnotationArgNormals AnnotationArg = "normals"

	// AnnotationArgPreview identifies the preview presenter resources.
	AnnotationArgPreview AnnotationArg = "preview"
)

// ── Binding role arguments ─────────────────────────────────────────────────────

const (
	// AnnotationArgEntries identifies the sorted slot list (array<u32>).
	AnnotationArgEntries AnnotationArg = "entries"

	// AnnotationArgFieldTexture identifies the field texture, written by the field pass
	// and read by the normal pass and the presenter.
	AnnotationArgFieldTexture AnnotationArg = "field_texture"

	// AnnotationArgAlbedoTexture identifies the albedo texture.
	AnnotationArgAlbedoTexture AnnotationArg = "albedo_texture"

	// AnnotationArgNormalTexture identifies the normal texture.
	AnnotationArgNormalTexture AnnotationArg = "normal_texture"

	// AnnotationArgPreviewSampler identifies the presenter's sampler.
	AnnotationArgPreviewSampler AnnotationArg = "preview_sampler"

	// AnnotationArgPreviewParams identifies the presenter's uniform block.
	AnnotationArgPreviewParams AnnotationArg = "preview_params"
)

// validStructTypes lists the struct type keys accepted by include and group annotations.
var validStructTypes = []AnnotationArg{
	AnnotationArgBall,
	AnnotationArgGridCell,
	AnnotationArgFieldParams,
}

// validAddressSpaces lists the address space keys accepted by group annotations.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validProviderIdentities lists the provider identities accepted by provider annotations.
var validProviderIdentities = []AnnotationArg{
	AnnotationArgField,
	AnnotationArgNormals,
	AnnotationArgPreview,
}

// validBindingRoles lists the binding roles accepted by provider annotations.
var validBindingRoles = []AnnotationArg{
	AnnotationArgEntries,
	AnnotationArgFieldTexture,
	AnnotationArgAlbedoTexture,
	AnnotationArgNormalTexture,
	AnnotationArgPreviewSampler,
	AnnotationArgPreviewParams,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires five arguments (group, binding, address space, var name, type)", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		elem := args[5]
		if inner, ok := strings.CutPrefix(elem, "array<"); ok {
			elem = strings.TrimSuffix(inner, ">")
		}
		if !slices.Contains(validStructTypes, AnnotationArg(elem)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", lineNum, elem)
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	case AnnotationTypeProvider:
		if len(args) < 4 || len(args) > 5 {
			return nil, fmt.Errorf("line %d: @oxy provider annotation requires three or four arguments (group, binding, provider identity[, binding role])", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validProviderIdentities, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown provider identity %q in @oxy provider annotation", lineNum, args[3])
		}
		providerArgs := []AnnotationArg{AnnotationArg(args[3])}
		if len(args) == 5 {
			if !slices.Contains(validBindingRoles, AnnotationArg(args[4])) {
				return nil, fmt.Errorf("line %d: unknown binding role %q in @oxy provider annotation", lineNum, args[4])
			}
			providerArgs = append(providerArgs, AnnotationArg(args[4]))
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    providerArgs,
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func parseGroupBinding(groupArg, bindingArg string, lineNum int) (int, int, error) {
	group, err := strconv.Atoi(groupArg)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q: %w", lineNum, groupArg, err)
	}
	binding, err := strconv.Atoi(bindingArg)
	if err != nil {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q: %w", lineNum, bindingArg, err)
	}
	return group, binding, nil
}
