package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/envelope"
)

func TestDynamicBodyLandsOnStaticFloor(t *testing.T) {
	w := NewWorld()
	w.Put(NewBody(envelope.Body{ID: "floor", HalfExtents: [3]float32{10, 0.5, 10}, Static: true}))
	w.Put(NewBody(envelope.Body{ID: "box", Position: [3]float32{0, 3, 0}, HalfExtents: [3]float32{0.5, 0.5, 0.5}}))

	for i := 0; i < 240; i++ {
		w.Step(1.0 / 60)
	}
	floor, _ := w.Body("floor")
	box, _ := w.Body("box")
	assert.Equal(t, [3]float32{0, 0, 0}, floor.Position)
	assert.InDelta(t, 1.0, box.Position[1], 0.2)
	assert.InDelta(t, 0, box.Velocity[1], 0.5)
}

func TestStepReportsMovedBodies(t *testing.T) {
	w := NewWorld()
	w.Put(NewBody(envelope.Body{ID: "static", Static: true}))
	assert.Empty(t, w.Step(0.1))

	w.Put(NewBody(envelope.Body{ID: "dyn", Position: [3]float32{5, 0, 0}}))
	moved := w.Step(0.1)
	require.Len(t, moved, 1)
	assert.Equal(t, "dyn", moved[0].ID)
}

func TestOverlappingDynamicBodiesSeparate(t *testing.T) {
	w := NewWorld()
	w.SetGravity([3]float32{})
	w.Put(NewBody(envelope.Body{ID: "a", Position: [3]float32{0, 0, 0}, HalfExtents: [3]float32{1, 1, 1}}))
	w.Put(NewBody(envelope.Body{ID: "b", Position: [3]float32{1.5, 0, 0}, HalfExtents: [3]float32{1, 1, 1}}))

	w.Step(0.01)
	a, _ := w.Body("a")
	b, _ := w.Body("b")
	assert.InDelta(t, -0.25, a.Position[0], 1e-5)
	assert.InDelta(t, 1.75, b.Position[0], 1e-5)
}

func TestPutKeepsVelocityAndRemoveReindexes(t *testing.T) {
	w := NewWorld()
	w.Put(NewBody(envelope.Body{ID: "a"}))
	w.Put(NewBody(envelope.Body{ID: "b"}))
	w.Put(NewBody(envelope.Body{ID: "c"}))
	w.Step(0.5)

	w.Put(NewBody(envelope.Body{ID: "b", Position: [3]float32{0, 10, 0}}))
	b, _ := w.Body("b")
	assert.NotZero(t, b.Velocity[1])

	assert.True(t, w.Remove("a"))
	assert.False(t, w.Remove("a"))
	c, ok := w.Body("c")
	require.True(t, ok)
	assert.Equal(t, "c", c.ID)
	assert.Len(t, w.Bodies(), 2)
}
