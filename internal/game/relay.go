package game

import (
	"scene-engine/internal/envelope"
	"scene-engine/internal/scene"
)

// entityData pairs an entity with its current world matrix.
func (g *Game) entityData(e scene.Entity) envelope.EntityData {
	world, err := g.store.WorldMatrix(e.ID)
	if err != nil {
		g.loop.Logger().Warn("world matrix unavailable", "entity", e.ID, "error", err)
	}
	return envelope.EntityData{Entity: e, World: world}
}

// body builds the physics view of e, or false when e has no collider.
func (g *Game) body(e scene.Entity) (envelope.Body, bool) {
	if e.Collider == nil {
		return envelope.Body{}, false
	}
	pos, rot, err := g.store.WorldTransform(e.ID)
	if err != nil {
		return envelope.Body{}, false
	}
	world, _ := g.store.WorldMatrix(e.ID)
	half := e.Collider.HalfExtents()
	for i := 0; i < 3; i++ {
		half[i] *= world.Col(i).Vec3().Len()
	}
	return envelope.Body{
		ID:          e.ID,
		Position:    pos,
		Rotation:    rot,
		HalfExtents: half,
		Static:      !e.Collider.IsDynamic(),
	}, true
}

// subtree returns id followed by all of its descendants.
func (g *Game) subtree(id string) []string {
	out := []string{id}
	for i := 0; i < len(out); i++ {
		out = append(out, g.store.Children(out[i])...)
	}
	return out
}

// relayEntities sends the current state of each entity and its descendants to
// render, and refreshes physics bodies unless skipBodies is set.
func (g *Game) relayEntities(ids []string, skipBodies bool) {
	seen := make(map[string]bool)
	for _, root := range ids {
		for _, id := range g.subtree(root) {
			if seen[id] {
				continue
			}
			seen[id] = true
			e, ok := g.store.Entity(id)
			if !ok {
				continue
			}
			g.emitRender(envelope.EntityUpdated, g.entityData(e))
			if skipBodies {
				continue
			}
			g.relayBody(e)
		}
	}
}

// relayBody adds, updates or removes the physics body of e.
func (g *Game) relayBody(e scene.Entity) {
	b, ok := g.body(e)
	switch {
	case ok && g.bodies[e.ID]:
		g.emitPhysics(envelope.BodyUpdated, envelope.BodyData{Body: b})
	case ok:
		g.bodies[e.ID] = true
		g.emitPhysics(envelope.BodyAdded, envelope.BodyData{Body: b})
	case g.bodies[e.ID]:
		delete(g.bodies, e.ID)
		g.emitPhysics(envelope.BodyRemoved, envelope.Target{ID: e.ID})
	}
}

// syncAll pushes the whole store to render and physics.
func (g *Game) syncAll() {
	snap := g.store.Snapshot()
	world := make(map[string][16]float32, len(snap.Entities))
	bodies := envelope.Bodies{Bodies: []envelope.Body{}}
	clear(g.bodies)
	for _, e := range snap.Entities {
		m, _ := g.store.WorldMatrix(e.ID)
		world[e.ID] = m
		if b, ok := g.body(e); ok {
			bodies.Bodies = append(bodies.Bodies, b)
			g.bodies[e.ID] = true
		}
	}
	g.emitRender(envelope.SyncScene, &envelope.Snapshot{Scene: snap, World: world})
	g.emitPhysics(envelope.SyncBodies, bodies)
}
