package envelope

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/scene"
)

func TestKnownSubjects(t *testing.T) {
	assert.True(t, Known(ChannelScene, AddEntity))
	assert.True(t, Known(ChannelRender, SetSkybox))
	assert.True(t, Known(ChannelPhysics, Start))
	assert.True(t, Known(ChannelEngine, Ready))
	assert.False(t, Known(ChannelPhysics, SetSkybox))
	assert.False(t, Known(ChannelScene, "explode"))
}

func TestPostTransfersAccessorArray(t *testing.T) {
	mb := NewMailbox("game")
	payload := &AccessorData{Accessor: scene.Accessor{ID: "a", Array: buffer.Float32Array{1, 2, 3}, ElementSize: 3}}
	require.NoError(t, Post(mb, "engine", ChannelScene, AddAccessor, payload))

	assert.Nil(t, payload.Accessor.Array, "sender keeps no reference after transfer")
	got := mb.Drain()
	require.Len(t, got, 1)
	data := got[0].Data.(AccessorData)
	assert.Equal(t, buffer.Float32Array{1, 2, 3}, data.Accessor.Array)
	assert.Equal(t, "engine", got[0].Origin)
}

func TestPostTransfersBitmap(t *testing.T) {
	mb := NewMailbox("render")
	bmp := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	payload := &ImageData{Image: scene.Image{ID: "img", Bitmap: bmp}}
	require.NoError(t, Post(mb, "game", ChannelRender, ImageAdded, payload))

	assert.Nil(t, payload.Image.Bitmap)
	data := mb.Drain()[0].Data.(ImageData)
	assert.Same(t, bmp, data.Image.Bitmap)
}

func TestPostTransfersSnapshotBuffers(t *testing.T) {
	mb := NewMailbox("game")
	payload := &Snapshot{Scene: scene.Snapshot{
		Entities:  []scene.Entity{scene.NewEntity("e")},
		Accessors: []scene.Accessor{{ID: "a", Array: buffer.Uint16Array{1}, ElementSize: 1}},
	}}
	require.NoError(t, Post(mb, "engine", ChannelScene, LoadJSON, payload))

	assert.Nil(t, payload.Scene.Accessors[0].Array)
	assert.Equal(t, "e", payload.Scene.Entities[0].ID)
	data := mb.Drain()[0].Data.(Snapshot)
	assert.Equal(t, buffer.Uint16Array{1}, data.Scene.Accessors[0].Array)
	assert.Equal(t, "e", data.Scene.Entities[0].ID)
}

func TestPostCopiesEverythingElse(t *testing.T) {
	mb := NewMailbox("game")
	entity := scene.NewEntity("e")
	entity.Mesh = &scene.SkinMesh{Joints: []string{"j"}}
	payload := EntityData{Entity: entity}
	require.NoError(t, Post(mb, "engine", ChannelScene, AddEntity, payload))
	entity.Mesh.(*scene.SkinMesh).Joints[0] = "mutated"

	data := mb.Drain()[0].Data.(EntityData)
	assert.Equal(t, []string{"j"}, data.Entity.Mesh.(*scene.SkinMesh).Joints)

	poses := Poses{Poses: []Pose{{ID: "e", Position: scene.Triplet{1, 2, 3}}}}
	require.NoError(t, Post(mb, "physics", ChannelScene, Transforms, poses))
	poses.Poses[0].ID = "mutated"
	got := mb.Drain()[0].Data.(Poses)
	assert.Equal(t, "e", got.Poses[0].ID)

	require.NoError(t, Post(mb, "engine", ChannelScene, SetVisuals, &Flag{Enabled: true}))
	assert.Equal(t, Flag{Enabled: true}, mb.Drain()[0].Data)
}

func TestPostRejectsForeignSubject(t *testing.T) {
	mb := NewMailbox("physics")
	err := Post(mb, "engine", ChannelPhysics, SetSkybox, Path{URI: "sky.png"})
	assert.True(t, errors.Is(err, errs.ErrProtocol))
	assert.Zero(t, mb.Len())
}

func TestMailboxFIFOAndClose(t *testing.T) {
	mb := NewMailbox("game")
	for i := 0; i < 5; i++ {
		require.NoError(t, mb.Send(Envelope{Subject: Subject(rune('a' + i))}))
	}
	select {
	case <-mb.Ready():
	default:
		t.Fatal("mailbox should signal readiness")
	}
	got := mb.Drain()
	require.Len(t, got, 5)
	for i, env := range got {
		assert.Equal(t, Subject(rune('a'+i)), env.Subject)
	}

	require.NoError(t, mb.Send(Envelope{Subject: "pending"}))
	assert.Equal(t, 1, mb.Close())
	assert.Equal(t, 0, mb.Close())
	err := mb.Send(Envelope{Subject: "late"})
	assert.True(t, errors.Is(err, errs.ErrLifecycle))
	assert.Empty(t, mb.Drain())
}

func TestMailboxConcurrentSendersKeepPerSenderOrder(t *testing.T) {
	mb := NewMailbox("game")
	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = mb.Send(Envelope{Origin: string(rune('A' + sender)), Data: i})
			}
		}(s)
	}
	wg.Wait()

	last := map[string]int{}
	for _, env := range mb.Drain() {
		n := env.Data.(int)
		prev, seen := last[env.Origin]
		if seen {
			assert.Greater(t, n, prev)
		}
		last[env.Origin] = n
	}
	assert.Len(t, last, 4)
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(ChannelRender)
	var got string
	On(r, SetSkybox, func(_ context.Context, p Path) error {
		got = p.URI
		return nil
	})

	require.NoError(t, r.Dispatch(context.Background(), Envelope{Channel: ChannelRender, Subject: SetSkybox, Data: Path{URI: "sky.hdr"}}))
	assert.Equal(t, "sky.hdr", got)

	err := r.Dispatch(context.Background(), Envelope{Channel: ChannelRender, Subject: "set_weather"})
	assert.Equal(t, errs.CodeProtocol, errs.CodeOf(err))

	err = r.Dispatch(context.Background(), Envelope{Channel: ChannelRender, Subject: SetSkybox, Data: 42})
	assert.Equal(t, errs.CodeProtocol, errs.CodeOf(err))

	assert.Panics(t, func() { r.Handle(AddEntity, nil) })
}
