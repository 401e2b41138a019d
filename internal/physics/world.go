package physics

import (
	"github.com/chewxy/math32"
)

// DefaultGravity points down the Y axis.
var DefaultGravity = [3]float32{0, -9.8, 0}

// World holds a set of bodies and runs a simple step: gravity, integration,
// AABB separation. Bodies keep insertion order so results are deterministic.
type World struct {
	Gravity [3]float32
	bodies  []*Body
	index   map[string]int
}

// NewWorld returns an empty world with DefaultGravity.
func NewWorld() *World {
	return &World{Gravity: DefaultGravity, index: make(map[string]int)}
}

// SetGravity sets the gravity vector.
func (w *World) SetGravity(g [3]float32) {
	w.Gravity = g
}

// Put adds b or replaces the body with the same id, keeping its velocity.
func (w *World) Put(b *Body) {
	if i, ok := w.index[b.ID]; ok {
		b.Velocity = w.bodies[i].Velocity
		w.bodies[i] = b
		return
	}
	w.index[b.ID] = len(w.bodies)
	w.bodies = append(w.bodies, b)
}

// Remove deletes the body with the given id.
func (w *World) Remove(id string) bool {
	i, ok := w.index[id]
	if !ok {
		return false
	}
	w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
	delete(w.index, id)
	for j := i; j < len(w.bodies); j++ {
		w.index[w.bodies[j].ID] = j
	}
	return true
}

// Reset drops every body.
func (w *World) Reset() {
	w.bodies = nil
	w.index = make(map[string]int)
}

// Body returns the body with the given id.
func (w *World) Body(id string) (*Body, bool) {
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return w.bodies[i], true
}

// Bodies returns the bodies in insertion order.
func (w *World) Bodies() []*Body { return w.bodies }

// aabb is an axis-aligned bounding box.
type aabb struct {
	min, max [3]float32
}

func bodyAABB(b *Body) aabb {
	var box aabb
	for i := 0; i < 3; i++ {
		box.min[i] = b.Position[i] - b.HalfExtents[i]
		box.max[i] = b.Position[i] + b.HalfExtents[i]
	}
	return box
}

// penetrationAxis returns the overlap and axis (0=X, 1=Y, 2=Z) of minimum
// penetration, or (0, -1) when the boxes do not overlap.
func penetrationAxis(a, b aabb) (depth float32, axis int) {
	axis = -1
	for i := 0; i < 3; i++ {
		overlap := math32.Min(a.max[i], b.max[i]) - math32.Max(a.min[i], b.min[i])
		if overlap <= 0 {
			return 0, -1
		}
		if axis < 0 || overlap < depth {
			depth, axis = overlap, i
		}
	}
	return depth, axis
}

// Step advances the simulation by dt seconds and returns the bodies that moved.
// There is no floor: dynamic bodies fall until they hit another body.
func (w *World) Step(dt float32) []*Body {
	moved := make(map[int]bool)
	for i, b := range w.bodies {
		if b.Static {
			continue
		}
		for k := 0; k < 3; k++ {
			b.Velocity[k] += w.Gravity[k] * dt
			b.Position[k] += b.Velocity[k] * dt
		}
		if b.Velocity != ([3]float32{}) {
			moved[i] = true
		}
	}

	for i := 0; i < len(w.bodies); i++ {
		bi := w.bodies[i]
		for j := i + 1; j < len(w.bodies); j++ {
			bj := w.bodies[j]
			if bi.Static && bj.Static {
				continue
			}
			depth, axis := penetrationAxis(bodyAABB(bi), bodyAABB(bj))
			if axis < 0 {
				continue
			}
			// Push bi towards its own side of bj.
			dir := float32(-1)
			if bi.Position[axis] > bj.Position[axis] {
				dir = 1
			}
			var moveI, moveJ float32
			switch {
			case bi.Static:
				moveJ = -dir * depth
			case bj.Static:
				moveI = dir * depth
			default:
				total := bi.Mass + bj.Mass
				moveI = dir * depth * (bj.Mass / total)
				moveJ = -dir * depth * (bi.Mass / total)
			}
			if !bi.Static {
				bi.Position[axis] += moveI
				bi.Velocity[axis] = 0
				moved[i] = true
			}
			if !bj.Static {
				bj.Position[axis] += moveJ
				bj.Velocity[axis] = 0
				moved[j] = true
			}
		}
	}

	out := make([]*Body, 0, len(moved))
	for i, b := range w.bodies {
		if moved[i] {
			out = append(out, b)
		}
	}
	return out
}
