package simulation

import "github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"

// Position is the world-space center of a ball.
type Position struct {
	X, Y float32
}

// Velocity is in world units per second.
type Velocity struct {
	X, Y float32
}

// Body holds the shape and identity of a ball.
type Body struct {
	// VisualRadius is where the iso contour of an isolated ball should sit.
	VisualRadius float32
	// Radius is the influence radius handed to the core.
	Radius     float32
	ColorIndex uint32
}

// Slot links an entity to its ball slot in the core.
type Slot struct {
	Index metaball.SlotIndex
}
