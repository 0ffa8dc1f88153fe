package scene

// SceneBuilderOption is a functional option for configuring a Scene.
type SceneBuilderOption func(*scene)

// WithName sets the scene's identifier.
//
// Parameters:
//   - name: the identifier used in logs
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithFixedStep sets the simulation step and the most steps taken per Update.
//
// Parameters:
//   - step: the fixed step in seconds (default 1/60)
//   - maxSteps: the catch-up limit per Update (default 4)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithFixedStep(step float64, maxSteps int) SceneBuilderOption {
	return func(s *scene) {
		s.step = step
		s.maxSteps = maxSteps
	}
}

// WithPreviewMode sets the initial preview mode.
func WithPreviewMode(mode PreviewMode) SceneBuilderOption {
	return func(s *scene) {
		s.SetMode(mode)
	}
}

// WithBackground sets the color drawn outside the contour in shaded mode.
func WithBackground(c [4]float32) SceneBuilderOption {
	return func(s *scene) {
		s.preview.Background = c
	}
}

// WithLight sets the light direction and ambient share of shaded mode.
//
// Parameters:
//   - dir: the light direction; z points out of the screen
//   - ambient: the unlit share of the albedo in [0, 1]
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLight(dir [3]float32, ambient float32) SceneBuilderOption {
	return func(s *scene) {
		s.preview.LightDir = [4]float32{dir[0], dir[1], dir[2], 0}
		s.preview.Ambient = ambient
	}
}

// WithContourEdge sets the half width of the antialiased band around the iso contour,
// in field units.
func WithContourEdge(edge float32) SceneBuilderOption {
	return func(s *scene) {
		s.preview.Edge = edge
	}
}

// WithIso sets the contour threshold. It should match the field renderer's iso.
func WithIso(iso float32) SceneBuilderOption {
	return func(s *scene) {
		s.preview.Iso = iso
	}
}
