package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/buffer"
	"scene-engine/internal/envelope"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/logger"
	"scene-engine/internal/scene"
)

type rig struct {
	inbox, render, physics, engine *envelope.Mailbox
}

func startGame(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		inbox:   envelope.NewMailbox(Name),
		render:  envelope.NewMailbox("render"),
		physics: envelope.NewMailbox("physics"),
		engine:  envelope.NewMailbox("engine"),
	}
	g := New(Options{Inbox: r.inbox, Render: r.render, Physics: r.physics, Engine: r.engine, Log: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = g.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return r.engine.Len() == 1 }, 2*time.Second, time.Millisecond)
	ready := r.engine.Drain()[0]
	require.Equal(t, envelope.Ready, ready.Subject)
	return r
}

func (r *rig) send(t *testing.T, subject envelope.Subject, data any) {
	t.Helper()
	require.NoError(t, envelope.Post(r.inbox, "engine", envelope.ChannelScene, subject, data))
}

// wait blocks until mb holds n envelopes and returns their subjects.
func wait(t *testing.T, mb *envelope.Mailbox, n int) []envelope.Envelope {
	t.Helper()
	require.Eventually(t, func() bool { return mb.Len() >= n }, 2*time.Second, time.Millisecond)
	return mb.Drain()
}

func subjects(envs []envelope.Envelope) []envelope.Subject {
	out := make([]envelope.Subject, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Subject)
	}
	return out
}

func TestAddEntityRelaysToRenderAndPhysics(t *testing.T) {
	r := startGame(t)
	e := scene.NewEntity("crate")
	e.Position = scene.Triplet{0, 4, 0}
	e.Scale = scene.Triplet{2, 2, 2}
	e.Mesh = scene.BoxMesh{Width: 1, Height: 1, Depth: 1}
	e.Collider = scene.BoxCollider{Size: scene.Triplet{1, 1, 1}, Dynamic: true}
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: e})

	renderEnvs := wait(t, r.render, 1)
	assert.Equal(t, envelope.EntityAdded, renderEnvs[0].Subject)
	added := renderEnvs[0].Data.(envelope.EntityData)
	assert.Equal(t, float32(4), added.World[13])

	physicsEnvs := wait(t, r.physics, 1)
	assert.Equal(t, envelope.BodyAdded, physicsEnvs[0].Subject)
	body := physicsEnvs[0].Data.(envelope.BodyData).Body
	assert.Equal(t, "crate", body.ID)
	assert.False(t, body.Static)
	assert.InDelta(t, 1, body.HalfExtents[0], 1e-5)
}

func TestInvalidCommandReportsErrorAndContinues(t *testing.T) {
	r := startGame(t)
	orphan := scene.NewEntity("orphan")
	orphan.ParentID = "ghost"
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: orphan})
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: scene.NewEntity("ok")})

	report := wait(t, r.engine, 1)[0]
	assert.Equal(t, envelope.Error, report.Subject)
	data := report.Data.(envelope.ErrorData)
	assert.Equal(t, Name, data.Context)
	assert.Equal(t, envelope.AddEntity, data.Subject)
	assert.Equal(t, string(errs.CodeReferenceIntegrity), data.Code)

	renderEnvs := wait(t, r.render, 1)
	assert.Equal(t, "ok", renderEnvs[0].Data.(envelope.EntityData).Entity.ID)
}

func TestTransformsFromPhysics(t *testing.T) {
	r := startGame(t)
	parent := scene.NewEntity("parent")
	parent.Position = scene.Triplet{10, 0, 0}
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: parent})
	child := scene.NewEntity("child")
	child.ParentID = "parent"
	child.Collider = scene.SphereCollider{Radius: 1, Dynamic: true}
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: child})
	wait(t, r.render, 2)
	wait(t, r.physics, 1)

	require.NoError(t, envelope.Post(r.inbox, "physics", envelope.ChannelScene, envelope.Transforms, envelope.Poses{Poses: []envelope.Pose{
		{ID: "child", Position: scene.Triplet{10, -1, 0}, Rotation: scene.IdentityRotation},
		{ID: "removed-meanwhile", Rotation: scene.IdentityRotation},
	}}))

	up := wait(t, r.engine, 1)[0]
	assert.Equal(t, envelope.Transforms, up.Subject)
	poses := up.Data.(envelope.Poses).Poses
	require.Len(t, poses, 1)
	assert.Equal(t, "child", poses[0].ID)

	updated := wait(t, r.render, 1)[0].Data.(envelope.EntityData)
	assert.InDelta(t, 0, updated.Entity.Position[0], 1e-5)
	assert.InDelta(t, -1, updated.Entity.Position[1], 1e-5)
	assert.Zero(t, r.physics.Len(), "poses from physics are not echoed back")
}

func TestAppliedPosesCarryCallerSeq(t *testing.T) {
	r := startGame(t)
	ball := scene.NewEntity("ball")
	ball.Collider = scene.SphereCollider{Radius: 1, Dynamic: true}
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: ball})
	wait(t, r.render, 1)
	wait(t, r.physics, 1)

	simulated := func(y float32) {
		require.NoError(t, envelope.Post(r.inbox, "physics", envelope.ChannelScene, envelope.Transforms, envelope.Poses{Poses: []envelope.Pose{
			{ID: "ball", Position: scene.Triplet{0, y, 0}, Rotation: scene.IdentityRotation},
		}}))
	}

	simulated(-1)
	up := wait(t, r.engine, 1)[0].Data.(envelope.Poses).Poses
	assert.Zero(t, up[0].Seq)

	r.send(t, envelope.UpdateGlobalTransform, envelope.Pose{ID: "ball", Position: scene.Triplet{0, 5, 0}, Rotation: scene.IdentityRotation, Seq: 3})
	simulated(4)
	up = wait(t, r.engine, 1)[0].Data.(envelope.Poses).Poses
	assert.Equal(t, uint64(3), up[0].Seq)
}

func TestRemoveEntityRelaysReparentedChildren(t *testing.T) {
	r := startGame(t)
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: scene.NewEntity("root")})
	mid := scene.NewEntity("mid")
	mid.ParentID = "root"
	mid.Collider = scene.BoxCollider{Size: scene.Triplet{1, 1, 1}}
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: mid})
	leaf := scene.NewEntity("leaf")
	leaf.ParentID = "mid"
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: leaf})
	wait(t, r.render, 3)
	wait(t, r.physics, 1)

	r.send(t, envelope.RemoveEntity, envelope.Target{ID: "mid"})
	envs := wait(t, r.render, 2)
	assert.Equal(t, []envelope.Subject{envelope.EntityRemoved, envelope.EntityUpdated}, subjects(envs))
	assert.Equal(t, scene.Ref("root"), envs[1].Data.(envelope.EntityData).Entity.ParentID)

	phys := wait(t, r.physics, 1)
	assert.Equal(t, envelope.BodyRemoved, phys[0].Subject)
}

func TestLoadJSONSyncsEveryone(t *testing.T) {
	r := startGame(t)
	e := scene.NewEntity("e")
	e.Collider = scene.BoxCollider{Size: scene.Triplet{1, 1, 1}}
	r.send(t, envelope.LoadJSON, &envelope.Snapshot{Scene: scene.Snapshot{
		Entities:  []scene.Entity{e},
		Accessors: []scene.Accessor{{ID: "a", Array: buffer.Float32Array{1}, ElementSize: 1}},
	}})

	renderEnv := wait(t, r.render, 1)[0]
	assert.Equal(t, envelope.SyncScene, renderEnv.Subject)
	snap := renderEnv.Data.(envelope.Snapshot)
	assert.Len(t, snap.Scene.Accessors, 1)
	assert.Contains(t, snap.World, "e")

	physEnv := wait(t, r.physics, 1)[0]
	assert.Equal(t, envelope.SyncBodies, physEnv.Subject)
	assert.Len(t, physEnv.Data.(envelope.Bodies).Bodies, 1)
}

func TestMaterialAndImageRelays(t *testing.T) {
	r := startGame(t)
	r.send(t, envelope.AddMaterial, envelope.MaterialData{Material: scene.NewMaterial("m")})
	r.send(t, envelope.UpdateMaterial, envelope.MaterialUpdate{ID: "m", Patch: scene.MaterialPatch{Roughness: scene.Some[float32](0.2)}})
	r.send(t, envelope.SetVisuals, envelope.Flag{Enabled: true})
	r.send(t, envelope.RemoveMaterial, envelope.Target{ID: "m"})

	envs := wait(t, r.render, 4)
	assert.Equal(t, []envelope.Subject{
		envelope.MaterialAdded, envelope.MaterialAdded, envelope.SetVisuals, envelope.MaterialRemoved,
	}, subjects(envs))
	assert.Equal(t, float32(0.2), envs[1].Data.(envelope.MaterialData).Material.Roughness)
}

func TestSweepRelaysRemovals(t *testing.T) {
	r := startGame(t)
	r.send(t, envelope.AddAccessor, &envelope.AccessorData{Accessor: scene.Accessor{ID: "pos", Array: buffer.Float32Array{0, 0, 0}, ElementSize: 3}})
	r.send(t, envelope.AddAccessor, &envelope.AccessorData{Accessor: scene.Accessor{ID: "kept", Array: buffer.Float32Array{0, 1, 0}, ElementSize: 3}})
	e := scene.NewEntity("tri")
	e.Mesh = &scene.PrimitiveMesh{Mode: scene.ModeTriangles, Position: "kept"}
	r.send(t, envelope.AddEntity, envelope.EntityData{Entity: e})
	wait(t, r.render, 3)

	r.send(t, envelope.Sweep, envelope.Signal{})
	envs := wait(t, r.render, 1)
	require.Len(t, envs, 1)
	assert.Equal(t, envelope.AccessorRemoved, envs[0].Subject)
	assert.Equal(t, "pos", envs[0].Data.(envelope.Target).ID)
}
