package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/envelope"
	"scene-engine/internal/logger"
	"scene-engine/internal/scene"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func assetFS(t *testing.T) hackpadfs.FS {
	t.Helper()
	fs, err := mem.NewFS()
	require.NoError(t, err)
	require.NoError(t, hackpadfs.MkdirAll(fs, "sky", 0o755))
	require.NoError(t, hackpadfs.WriteFullFile(fs, "sky/pano.png", pngBytes(t, 200, 100), 0o644))
	require.NoError(t, hackpadfs.WriteFullFile(fs, "sky/cross.png", pngBytes(t, 400, 300), 0o644))
	return fs
}

func TestIsEquirect(t *testing.T) {
	assert.True(t, IsEquirect(2048, 1024))
	assert.True(t, IsEquirect(1800, 1000))
	assert.False(t, IsEquirect(1024, 1024))
	assert.False(t, IsEquirect(4, 3))
	assert.False(t, IsEquirect(0, 0))
}

func TestResolveSkybox(t *testing.T) {
	fs := assetFS(t)

	sky := ResolveSkybox(fs, "/sky/pano.png")
	assert.True(t, sky.Resolved)
	assert.True(t, sky.Equirect)
	assert.Equal(t, "sky/pano.png", sky.Path)

	sky = ResolveSkybox(fs, "file://sky/cross.png")
	assert.True(t, sky.Resolved)
	assert.False(t, sky.Equirect)

	sky = ResolveSkybox(fs, "missing.png")
	assert.False(t, sky.Resolved)
	assert.Equal(t, "missing.png", sky.URI)
}

func TestGridAndColliderLines(t *testing.T) {
	lines := GridLines()
	assert.Len(t, lines, 2*101+3)
	assert.Equal(t, LineMajor, lines[0].Kind)
	assert.Equal(t, LineMinor, lines[1].Kind)

	edges := ColliderLines(scene.BoxCollider{Size: scene.Triplet{2, 2, 2}}, mgl32.Translate3D(0, 5, 0))
	require.Len(t, edges, 12)
	for _, l := range edges {
		assert.InDelta(t, 2, l.From.Sub(l.To).Len(), 1e-5)
		assert.GreaterOrEqual(t, l.From.Y(), float32(4))
	}
}

func TestRenderDrawsSortedFrames(t *testing.T) {
	inbox := envelope.NewMailbox(Name)
	engine := envelope.NewMailbox("engine")
	backend := NewHeadless()
	r := New(Options{Inbox: inbox, Engine: engine, Backend: backend, Assets: assetFS(t), FrameHz: 500, Log: logger.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	send := func(subject envelope.Subject, data any) {
		require.NoError(t, envelope.Post(inbox, "game", envelope.ChannelRender, subject, data))
	}
	mat := scene.NewMaterial("red")
	b := scene.NewEntity("b")
	b.Mesh = scene.BoxMesh{Width: 1, Height: 1, Depth: 1}
	b.MaterialID = "red"
	b.Collider = scene.BoxCollider{Size: scene.Triplet{1, 1, 1}}
	a := scene.NewEntity("a")
	a.Mesh = scene.SphereMesh{Radius: 1, WidthSegments: 8, HeightSegments: 4}
	empty := scene.NewEntity("group")

	send(envelope.SetSkybox, envelope.Path{URI: "sky/pano.png"})
	send(envelope.SetDefaultAvatar, envelope.Path{URI: "avatar.vrm"})
	send(envelope.SetAnimationsPath, envelope.Path{URI: "/animations"})
	send(envelope.SetVisuals, envelope.Flag{Enabled: true})
	send(envelope.SyncScene, envelope.Snapshot{Scene: scene.Snapshot{
		Entities:  []scene.Entity{b, empty},
		Materials: []scene.Material{mat},
	}})
	send(envelope.EntityAdded, envelope.EntityData{Entity: a, World: mgl32.Ident4()})
	send(envelope.Start, envelope.Signal{})

	require.Eventually(t, func() bool { return backend.Frames() >= 2 }, 2*time.Second, time.Millisecond)
	f := backend.Last()
	require.Len(t, f.Draws, 2)
	assert.Equal(t, "a", f.Draws[0].EntityID)
	assert.Equal(t, "b", f.Draws[1].EntityID)
	require.NotNil(t, f.Draws[1].Material)
	assert.Equal(t, "red", f.Draws[1].Material.ID)
	assert.True(t, f.Skybox.Equirect)
	assert.Equal(t, "avatar.vrm", f.DefaultAvatar)
	assert.Equal(t, "/animations", f.AnimationsPath)
	assert.Len(t, f.Lines, 12+len(GridLines()))

	send(envelope.EntityRemoved, envelope.Target{ID: "a"})
	send(envelope.Stop, envelope.Signal{})
	require.Eventually(t, func() bool { return len(backend.Last().Draws) == 1 || inbox.Len() == 0 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, backend.Closed())
	assert.Zero(t, engine.Len())
}
