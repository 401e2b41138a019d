package physics

import "scene-engine/internal/envelope"

// Body is a rigid body with position, velocity and an axis-aligned box
// given by half extents. Static bodies do not move and ignore gravity.
type Body struct {
	ID          string
	Position    [3]float32
	Rotation    [4]float32
	Velocity    [3]float32
	HalfExtents [3]float32
	Mass        float32
	Static      bool
}

// NewBody returns a body at rest built from the Game context's body record.
func NewBody(b envelope.Body) *Body {
	half := b.HalfExtents
	for i := range half {
		if half[i] <= 0 {
			half[i] = 0.5
		}
	}
	return &Body{
		ID:          b.ID,
		Position:    b.Position,
		Rotation:    b.Rotation,
		HalfExtents: half,
		Mass:        1,
		Static:      b.Static,
	}
}

// Pose returns the body's current world pose.
func (b *Body) Pose() envelope.Pose {
	return envelope.Pose{ID: b.ID, Position: b.Position, Rotation: b.Rotation}
}
