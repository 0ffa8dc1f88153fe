package field

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-metaballs/engine/renderer/shader"
)

// Pipeline keys of the two compute passes.
const (
	FieldPipelineKey   = "metaball_field"
	NormalsPipelineKey = "metaball_normals"
)

//go:embed assets/compute_field.wgsl
var computeFieldSource string

//go:embed assets/compute_normals.wgsl
var computeNormalsSource string

// FieldShader parses the field/albedo compute shader.
//
// Returns:
//   - shader.Shader: the parsed shader
//   - error: a pre-processing error
func FieldShader() (shader.Shader, error) {
	return shader.NewShader(FieldPipelineKey, shader.ShaderTypeCompute, computeFieldSource)
}

// NormalsShader parses the normal compute shader.
//
// Returns:
//   - shader.Shader: the parsed shader
//   - error: a pre-processing error
func NormalsShader() (shader.Shader, error) {
	return shader.NewShader(NormalsPipelineKey, shader.ShaderTypeCompute, computeNormalsSource)
}

// bindingSet is the group 0 binding index of every resource role used by a pass.
type bindingSet map[shader.AnnotationArg]int

// resolveBindings looks up the binding of each role in the shader's declarations.
func resolveBindings(s shader.Shader, roles ...shader.AnnotationArg) (bindingSet, error) {
	set := make(bindingSet, len(roles))
	for _, role := range roles {
		group, binding, ok := s.Binding(role)
		if !ok {
			return nil, fmt.Errorf("shader %s: no binding declared for %q", s.Key(), role)
		}
		if group != 0 {
			return nil, fmt.Errorf("shader %s: %q is in group %d, want 0", s.Key(), role, group)
		}
		set[role] = binding
	}
	return set, nil
}
