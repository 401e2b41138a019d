package game

import (
	"context"

	"scene-engine/internal/envelope"
)

func (g *Game) loadJSON(_ context.Context, s envelope.Snapshot) error {
	if err := g.store.LoadSnapshot(s.Scene); err != nil {
		return err
	}
	g.loop.Logger().Info("scene loaded", "records", g.store.Len())
	g.syncAll()
	return nil
}

func (g *Game) addEntity(_ context.Context, d envelope.EntityData) error {
	id, err := g.store.AddEntity(d.Entity)
	if err != nil {
		return err
	}
	e, _ := g.store.Entity(id)
	g.emitRender(envelope.EntityAdded, g.entityData(e))
	g.relayBody(e)
	return nil
}

func (g *Game) removeEntity(_ context.Context, t envelope.Target) error {
	r, err := g.store.RemoveEntity(t.ID)
	if err != nil {
		return err
	}
	g.emitRender(envelope.EntityRemoved, t)
	if g.bodies[t.ID] {
		delete(g.bodies, t.ID)
		g.emitPhysics(envelope.BodyRemoved, t)
	}
	// Reparented children keep their local transform, so their world pose moves.
	g.relayEntities(r.Entities, false)
	return nil
}

func (g *Game) updateEntity(_ context.Context, u envelope.EntityUpdate) error {
	if err := g.store.UpdateEntity(u.ID, u.Patch); err != nil {
		return err
	}
	if u.Seq > 0 {
		g.fence[u.ID] = u.Seq
	}
	if u.Patch.TouchesTransform() || u.Patch.Collider.Set {
		g.relayEntities([]string{u.ID}, false)
		return nil
	}
	e, _ := g.store.Entity(u.ID)
	g.emitRender(envelope.EntityUpdated, g.entityData(e))
	return nil
}

func (g *Game) updateGlobalTransform(_ context.Context, p envelope.Pose) error {
	if err := g.store.UpdateGlobalTransform(p.ID, p.Position, p.Rotation); err != nil {
		return err
	}
	if p.Seq > 0 {
		g.fence[p.ID] = p.Seq
	}
	g.relayEntities([]string{p.ID}, false)
	return nil
}

// applyTransforms stores poses simulated by physics. Bodies are not echoed
// back to physics; render and the orchestrator mirror get the new poses.
func (g *Game) applyTransforms(_ context.Context, p envelope.Poses) error {
	applied := envelope.Poses{Poses: make([]envelope.Pose, 0, len(p.Poses))}
	ids := make([]string, 0, len(p.Poses))
	for _, pose := range p.Poses {
		if err := g.store.UpdateGlobalTransform(pose.ID, pose.Position, pose.Rotation); err != nil {
			// The entity may have been removed while the step was in flight.
			g.loop.Logger().Debug("pose dropped", "entity", pose.ID, "error", err)
			continue
		}
		pose.Seq = g.fence[pose.ID]
		applied.Poses = append(applied.Poses, pose)
		ids = append(ids, pose.ID)
	}
	g.relayEntities(ids, true)
	if len(applied.Poses) > 0 {
		g.loop.Emit(g.engine, envelope.ChannelEngine, envelope.Transforms, applied)
	}
	return nil
}

func (g *Game) addMaterial(_ context.Context, d envelope.MaterialData) error {
	id, err := g.store.AddMaterial(d.Material)
	if err != nil {
		return err
	}
	m, _ := g.store.Material(id)
	g.emitRender(envelope.MaterialAdded, envelope.MaterialData{Material: m})
	return nil
}

func (g *Game) updateMaterial(_ context.Context, u envelope.MaterialUpdate) error {
	if err := g.store.UpdateMaterial(u.ID, u.Patch); err != nil {
		return err
	}
	m, _ := g.store.Material(u.ID)
	g.emitRender(envelope.MaterialAdded, envelope.MaterialData{Material: m})
	return nil
}

func (g *Game) removeMaterial(_ context.Context, t envelope.Target) error {
	r, err := g.store.RemoveMaterial(t.ID)
	if err != nil {
		return err
	}
	g.emitRender(envelope.MaterialRemoved, t)
	g.relayEntities(r.Entities, true)
	return nil
}

func (g *Game) addAccessor(_ context.Context, d envelope.AccessorData) error {
	id, err := g.store.AddAccessor(d.Accessor)
	if err != nil {
		return err
	}
	a, _ := g.store.Accessor(id)
	g.emitRender(envelope.AccessorAdded, &envelope.AccessorData{Accessor: a})
	return nil
}

func (g *Game) removeAccessor(_ context.Context, t envelope.Target) error {
	r, err := g.store.RemoveAccessor(t.ID)
	if err != nil {
		return err
	}
	g.emitRender(envelope.AccessorRemoved, t)
	g.relayEntities(r.Entities, true)
	return nil
}

func (g *Game) addImage(_ context.Context, d envelope.ImageData) error {
	id, err := g.store.AddImage(d.Image)
	if err != nil {
		return err
	}
	img, _ := g.store.Image(id)
	g.emitRender(envelope.ImageAdded, &envelope.ImageData{Image: img})
	return nil
}

func (g *Game) removeImage(_ context.Context, t envelope.Target) error {
	r, err := g.store.RemoveImage(t.ID)
	if err != nil {
		return err
	}
	g.emitRender(envelope.ImageRemoved, t)
	for _, id := range r.Materials {
		m, _ := g.store.Material(id)
		g.emitRender(envelope.MaterialAdded, envelope.MaterialData{Material: m})
	}
	return nil
}

func (g *Game) sweep(context.Context, envelope.Signal) error {
	swept := g.store.Sweep()
	for _, id := range swept.Accessors {
		g.emitRender(envelope.AccessorRemoved, envelope.Target{ID: id})
	}
	for _, id := range swept.Images {
		g.emitRender(envelope.ImageRemoved, envelope.Target{ID: id})
	}
	if !swept.Empty() {
		g.loop.Logger().Debug("swept", "accessors", len(swept.Accessors), "images", len(swept.Images))
	}
	return nil
}
