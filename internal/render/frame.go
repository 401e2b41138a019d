package render

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"scene-engine/internal/scene"
)

// Editor grid on the XZ plane, drawn when visuals are on.
const (
	gridExtent    = 50
	gridMinorStep = 1
	gridMajorStep = 10
)

// Draw is one mesh instance of a frame.
type Draw struct {
	EntityID string
	World    mgl32.Mat4
	Mesh     scene.Mesh
	Material *scene.Material
}

// LineKind tells a backend how to color a debug line.
type LineKind int

const (
	LineMinor LineKind = iota
	LineMajor
	LineAxisX
	LineAxisY
	LineAxisZ
	LineCollider
)

// Line is one debug line segment in world space.
type Line struct {
	From, To mgl32.Vec3
	Kind     LineKind
}

// Frame is everything a backend needs to draw one frame.
type Frame struct {
	Number         uint64
	Skybox         Skybox
	DefaultAvatar  string
	AnimationsPath string
	Draws          []Draw
	Lines          []Line
}

// Backend draws frames. Implementations own all GPU state.
type Backend interface {
	DrawFrame(f Frame) error
	Close() error
}

// Headless is a Backend that records frames instead of drawing them.
type Headless struct {
	mu     sync.Mutex
	frames uint64
	last   Frame
	closed bool
}

// NewHeadless returns an empty headless backend.
func NewHeadless() *Headless { return &Headless{} }

// DrawFrame records f.
func (h *Headless) DrawFrame(f Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames++
	h.last = f
	return nil
}

// Close marks the backend closed.
func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Frames returns the number of frames drawn.
func (h *Headless) Frames() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Last returns the most recent frame.
func (h *Headless) Last() Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Closed reports whether Close was called.
func (h *Headless) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// GridLines returns the editor grid with major/minor lines and axis lines through the origin.
func GridLines() []Line {
	lines := make([]Line, 0, 2*(2*gridExtent/gridMinorStep+1)+3)
	for x := -gridExtent; x <= gridExtent; x += gridMinorStep {
		kind := LineMajor
		if x%gridMajorStep != 0 {
			kind = LineMinor
		}
		lines = append(lines, Line{mgl32.Vec3{float32(x), 0, -gridExtent}, mgl32.Vec3{float32(x), 0, gridExtent}, kind})
	}
	for z := -gridExtent; z <= gridExtent; z += gridMinorStep {
		kind := LineMajor
		if z%gridMajorStep != 0 {
			kind = LineMinor
		}
		lines = append(lines, Line{mgl32.Vec3{-gridExtent, 0, float32(z)}, mgl32.Vec3{gridExtent, 0, float32(z)}, kind})
	}
	return append(lines,
		Line{mgl32.Vec3{-gridExtent, 0, 0}, mgl32.Vec3{gridExtent, 0, 0}, LineAxisX},
		Line{mgl32.Vec3{0, -gridExtent, 0}, mgl32.Vec3{0, gridExtent, 0}, LineAxisY},
		Line{mgl32.Vec3{0, 0, -gridExtent}, mgl32.Vec3{0, 0, gridExtent}, LineAxisZ},
	)
}

// ColliderLines returns the 12 edges of a collider's local box transformed by world.
func ColliderLines(c scene.Collider, world mgl32.Mat4) []Line {
	h := c.HalfExtents()
	var corners [8]mgl32.Vec3
	for i := range corners {
		local := mgl32.Vec3{h[0], h[1], h[2]}
		if i&1 != 0 {
			local[0] = -local[0]
		}
		if i&2 != 0 {
			local[1] = -local[1]
		}
		if i&4 != 0 {
			local[2] = -local[2]
		}
		corners[i] = mgl32.TransformCoordinate(local, world)
	}
	lines := make([]Line, 0, 12)
	for i := range corners {
		for bit := 1; bit < 8; bit <<= 1 {
			if j := i | bit; j != i {
				lines = append(lines, Line{corners[i], corners[j], LineCollider})
			}
		}
	}
	return lines
}
