package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/engine"
	"scene-engine/internal/engineconfig"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/gltf"
	"scene-engine/internal/logger"
	"scene-engine/internal/scene"
	"scene-engine/internal/storage/sqlite"
)

type rig struct {
	eng *engine.Engine
	reg *Registry
	out *bytes.Buffer
}

func newRig(t *testing.T) *rig {
	t.Helper()
	eng, err := engine.New(engine.Options{Prefs: engineconfig.Default(), Log: logger.Discard()})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Destroy)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "scenes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r := &rig{eng: eng, reg: NewRegistry(), out: &bytes.Buffer{}}
	RegisterScene(r.reg, eng, store, r.out)
	return r
}

func (r *rig) run(t *testing.T, line string) error {
	t.Helper()
	args, ok := Parse(line)
	require.True(t, ok)
	return r.reg.Execute(args)
}

func (r *rig) entities(t *testing.T) []scene.Entity {
	t.Helper()
	snap, err := r.eng.Snapshot()
	require.NoError(t, err)
	return snap.Entities
}

func TestAddPrimitive(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.run(t, "add -type sphere -name ball -pos 0,5,0 -color #ff000080"))
	id := strings.TrimSpace(r.out.String())

	ents := r.entities(t)
	require.Len(t, ents, 1)
	e := ents[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "ball", e.Name)
	assert.Equal(t, scene.Triplet{0, 5, 0}, e.Position)
	assert.Equal(t, scene.MeshSphere, e.Mesh.MeshType())
	require.NotNil(t, e.Collider)
	assert.True(t, e.Collider.IsDynamic())

	snap, err := r.eng.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Materials, 1)
	assert.Equal(t, scene.AlphaBlend, snap.Materials[0].AlphaMode)
	assert.InDelta(t, 128.0/255, snap.Materials[0].Alpha, 1e-6)

	// Flags reset between runs.
	require.NoError(t, r.run(t, "add -collider=false"))
	ents = r.entities(t)
	require.Len(t, ents, 2)
	assert.Empty(t, ents[1].Name)
	assert.Equal(t, scene.MeshBox, ents[1].Mesh.MeshType())
	assert.Nil(t, ents[1].Collider)

	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(r.run(t, "add -type torus")))
}

func TestSpawnMoveParentRemove(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.run(t, "spawn -type box -count 4 -pattern line -spacing 3"))
	ents := r.entities(t)
	require.Len(t, ents, 4)
	assert.Equal(t, scene.Triplet{9, 0, 0}, ents[3].Position)

	a, b := ents[0].ID, ents[1].ID
	require.NoError(t, r.run(t, "move "+a+" -pos 1,1,1"))
	require.NoError(t, r.run(t, "parent "+b+" "+a))
	assert.Equal(t, errs.CodeReferenceIntegrity, errs.CodeOf(r.run(t, "parent "+a+" "+b)))

	require.NoError(t, r.run(t, "list"))
	assert.Contains(t, r.out.String(), "parent="+a)

	require.NoError(t, r.run(t, "remove "+a))
	ents = r.entities(t)
	require.Len(t, ents, 3)
	for _, e := range ents {
		assert.NotEqual(t, a, e.ID)
		if e.ID == b {
			assert.Empty(t, e.ParentID)
		}
	}
	assert.Equal(t, errs.CodeReferenceIntegrity, errs.CodeOf(r.run(t, "remove "+a)))
}

func TestSettingsCommands(t *testing.T) {
	r := newRig(t)
	for _, line := range []string{
		"physics start", "physics stop", "render start", "render stop",
		"visuals on", "visuals off", "gravity 0,-1,0", "step -dt 0.1 -n 2",
		"skybox sky.png", "avatar hero.glb", "animations anims",
	} {
		assert.NoError(t, r.run(t, line), line)
	}
	assert.Error(t, r.run(t, "physics pause"))
	assert.Error(t, r.run(t, "visuals maybe"))
	assert.Error(t, r.run(t, "gravity 1,2"))
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(r.run(t, "step -dt 0")))
}

func TestExportDumpOpen(t *testing.T) {
	r := newRig(t)
	dir := t.TempDir()
	require.NoError(t, r.run(t, "add -type cylinder -name pillar"))

	glbPath := filepath.Join(dir, "out", "scene.glb")
	require.NoError(t, r.run(t, "export "+glbPath))
	glb, err := os.ReadFile(glbPath)
	require.NoError(t, err)
	doc, _, err := gltf.ReadGLB(glb)
	require.NoError(t, err)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "pillar", doc.Nodes[0].Name)

	jsonPath := filepath.Join(dir, "scene.json")
	require.NoError(t, r.run(t, "dump "+jsonPath))
	require.NoError(t, r.run(t, "remove "+r.entities(t)[0].ID))
	assert.Empty(t, r.entities(t))

	require.NoError(t, r.run(t, "open "+jsonPath))
	ents := r.entities(t)
	require.Len(t, ents, 1)
	assert.Equal(t, "pillar", ents[0].Name)

	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(r.run(t, "open "+filepath.Join(dir, "missing.json"))))
}

func TestImportRoundTrip(t *testing.T) {
	r := newRig(t)
	dir := t.TempDir()
	require.NoError(t, r.run(t, "add -name crate"))
	glbPath := filepath.Join(dir, "crate.glb")
	require.NoError(t, r.run(t, "export "+glbPath))
	r.out.Reset()

	require.NoError(t, r.run(t, "import "+glbPath))
	assert.Contains(t, r.out.String(), "added")
	names := 0
	for _, e := range r.entities(t) {
		if e.Name == "crate" {
			names++
		}
	}
	assert.Equal(t, 2, names)

	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(r.run(t, "import "+filepath.Join(dir, "nope.glb"))))
}

func TestStoreCommands(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.run(t, "add -name keep"))
	require.NoError(t, r.run(t, "save level"))
	require.NoError(t, r.run(t, "add -name extra"))
	require.Len(t, r.entities(t), 2)

	require.NoError(t, r.run(t, "load level"))
	ents := r.entities(t)
	require.Len(t, ents, 1)
	assert.Equal(t, "keep", ents[0].Name)

	require.NoError(t, r.run(t, "scenes"))
	assert.Contains(t, r.out.String(), "level\t1 entities")

	require.NoError(t, r.run(t, "forget level"))
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(r.run(t, "load level")))
}

func TestReadFilesDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.gltf"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tex", "b.png"), []byte("png"), 0o644))

	files, err := ReadFiles(dir)
	require.NoError(t, err)
	names := []string{}
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.gltf", "tex/b.png"}, names)
}

func TestTerrain(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.run(t, "terrain -width 6 -depth 5 -seed 11"))
	rootID := strings.TrimSpace(r.out.String())

	snap, err := r.eng.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Entities, 1)
	root := snap.Entities[0]
	assert.Equal(t, rootID, root.ID)
	mesh, ok := root.Mesh.(*scene.PrimitiveMesh)
	require.True(t, ok)
	assert.Equal(t, scene.ModeTriangles, mesh.Mode)
	assert.Len(t, snap.Accessors, 4)

	glb, err := r.eng.Export()
	require.NoError(t, err)
	doc, _, err := gltf.ReadGLB(glb)
	require.NoError(t, err)
	require.Len(t, doc.Meshes, 1)
	assert.NotNil(t, doc.Meshes[0].Primitives[0].Indices)

	r.out.Reset()
	require.NoError(t, r.run(t, "terrain -cubes -width 3 -depth 2 -seed 11"))
	cubesRoot := strings.TrimSpace(r.out.String())
	children := 0
	for _, e := range r.entities(t) {
		if string(e.ParentID) == cubesRoot {
			children++
		}
	}
	assert.Equal(t, 6, children)
}

func TestSweep(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.run(t, "terrain -width 2 -depth 2 -seed 5"))
	rootID := strings.TrimSpace(r.out.String())

	r.out.Reset()
	require.NoError(t, r.run(t, "sweep"))
	assert.Contains(t, r.out.String(), "swept 0 accessors")

	require.NoError(t, r.run(t, "remove "+rootID))
	r.out.Reset()
	require.NoError(t, r.run(t, "sweep"))
	assert.Contains(t, r.out.String(), "swept 4 accessors, 0 images")

	snap, err := r.eng.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Accessors)
}
