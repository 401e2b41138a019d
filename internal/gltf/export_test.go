package gltf

import (
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/scene"
)

// testScene has two triangles sharing positions, a box child, a textured
// material and one translation animation.
func testScene() scene.Snapshot {
	bmp := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	bmp.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})

	mat := scene.NewMaterial("mat")
	mat.ColorTexture = scene.NewTexture("img")
	mat.NormalTexture = scene.NewTexture("img")
	mat.AlphaMode = scene.AlphaMask
	mat.AlphaCutoff = 0.25

	tri := scene.NewEntity("tri")
	tri.Name = "triangle"
	tri.Position = scene.Triplet{1, 2, 3}
	tri.Mesh = &scene.PrimitiveMesh{Mode: scene.ModeTriangles, IndicesID: "idx", Position: "pos"}
	tri.MaterialID = "mat"

	box := scene.NewEntity("box")
	box.ParentID = "tri"
	box.Mesh = scene.BoxMesh{Width: 1, Height: 1, Depth: 1}

	twin := scene.NewEntity("twin")
	twin.Mesh = &scene.PrimitiveMesh{Mode: scene.ModeTriangles, Position: "pos"}

	return scene.Snapshot{
		Entities:  []scene.Entity{tri, box, twin},
		Materials: []scene.Material{mat},
		Accessors: []scene.Accessor{
			{ID: "pos", Array: buffer.Float32Array{0, 0, 0, 1, 0, 0, 0, 1, 0}, ElementSize: 3},
			{ID: "idx", Array: buffer.Uint16Array{0, 1, 2}, ElementSize: 1},
			{ID: "times", Array: buffer.Float32Array{0, 1}, ElementSize: 1},
			{ID: "moves", Array: buffer.Float32Array{0, 0, 0, 0, 1, 0}, ElementSize: 3},
		},
		Images: []scene.Image{{ID: "img", Bitmap: bmp}},
		Animations: []scene.Animation{{
			ID:   "anim",
			Name: "bob",
			Channels: []scene.AnimationChannel{{
				TargetID: "tri",
				Path:     "translation",
				Sampler:  scene.AnimationSampler{Interpolation: scene.InterpolationLinear, InputID: "times", OutputID: "moves"},
			}},
		}},
	}
}

func TestExportDocument(t *testing.T) {
	doc, bin, err := Export(testScene())
	require.NoError(t, err)

	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, []int{1}, doc.Nodes[0].Children)
	assert.Equal(t, []int{0, 2}, doc.Scenes[0].Nodes)
	assert.Equal(t, &[3]float32{1, 2, 3}, doc.Nodes[0].Translation)
	assert.Nil(t, doc.Nodes[0].Rotation)
	assert.Equal(t, "tri", doc.Nodes[0].Extras["id"])

	require.Len(t, doc.Meshes, 3)
	// Shared positions are packed once.
	assert.Equal(t, doc.Meshes[0].Primitives[0].Attributes["POSITION"], doc.Meshes[2].Primitives[0].Attributes["POSITION"])
	box := doc.Meshes[1].Primitives[0]
	assert.Contains(t, box.Attributes, "NORMAL")
	assert.Contains(t, box.Attributes, "TEXCOORD_0")
	require.NotNil(t, box.Indices)
	assert.Equal(t, 36, doc.Accessors[*box.Indices].Count)

	require.Len(t, doc.Materials, 1)
	m := doc.Materials[0]
	assert.Equal(t, "MASK", m.AlphaMode)
	require.NotNil(t, m.AlphaCutoff)
	assert.Equal(t, float32(0.25), *m.AlphaCutoff)
	assert.Equal(t, &[4]float32{1, 1, 1, 1}, m.PBRMetallicRoughness.BaseColorFactor)
	// Color and normal slots share one image, sampler and texture.
	assert.Len(t, doc.Images, 1)
	assert.Len(t, doc.Samplers, 1)
	assert.Len(t, doc.Textures, 1)
	assert.Equal(t, m.PBRMetallicRoughness.BaseColorTexture.Index, m.NormalTexture.Index)
	assert.Equal(t, "image/png", doc.Images[0].MimeType)

	require.Len(t, doc.Animations, 1)
	ch := doc.Animations[0].Channels[0]
	assert.Equal(t, 0, *ch.Target.Node)
	assert.Equal(t, "translation", ch.Target.Path)
	in := doc.Accessors[doc.Animations[0].Samplers[ch.Sampler].Input]
	assert.Equal(t, []float64{0}, in.Min)
	assert.Equal(t, []float64{1}, in.Max)

	require.Len(t, doc.Buffers, 1)
	assert.Equal(t, len(bin), doc.Buffers[0].ByteLength)
	for _, v := range doc.BufferViews {
		assert.Equal(t, 0, v.Buffer)
		assert.Zero(t, v.ByteOffset%4)
		assert.LessOrEqual(t, v.ByteOffset+v.ByteLength, len(bin))
	}

	js, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(js), "bufferIndex")
}

func TestExportSeparatesIndexAndVertexUses(t *testing.T) {
	snap := testScene()
	// "idx" is the triangle's index buffer and a vertex attribute here.
	other := scene.NewEntity("other")
	other.Mesh = &scene.PrimitiveMesh{Mode: scene.ModeTriangles, Position: "pos", Weights0: "idx"}
	snap.Entities = append(snap.Entities, other)

	doc, _, err := Export(snap)
	require.NoError(t, err)
	require.Len(t, doc.Meshes, 4)

	tri := doc.Meshes[0].Primitives[0]
	require.NotNil(t, tri.Indices)
	indexView := doc.BufferViews[*doc.Accessors[*tri.Indices].BufferView]
	assert.Equal(t, TargetElementArrayBuffer, indexView.Target)

	weights := doc.Meshes[3].Primitives[0].Attributes["WEIGHTS_0"]
	assert.NotEqual(t, *tri.Indices, weights)
	vertexView := doc.BufferViews[*doc.Accessors[weights].BufferView]
	assert.Equal(t, TargetArrayBuffer, vertexView.Target)
}

func TestExportOpaqueMaterialOmitsCutoff(t *testing.T) {
	snap := testScene()
	snap.Materials[0].AlphaMode = scene.AlphaOpaque
	doc, _, err := Export(snap)
	require.NoError(t, err)
	assert.Nil(t, doc.Materials[0].AlphaCutoff)
	assert.Empty(t, doc.Materials[0].AlphaMode)
}

func TestExportRejectsUnsupportedAccessor(t *testing.T) {
	snap := testScene()
	snap.Accessors[0].Array = buffer.Int16Array{0, 0, 0, 1, 0, 0, 0, 1, 0}
	_, _, err := Export(snap)
	assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err))
}

func TestGLBRoundTrip(t *testing.T) {
	src := testScene()
	data, err := ExportGLB(src)
	require.NoError(t, err)
	require.True(t, IsGLB(data))
	assert.Zero(t, len(data)%4)

	snap, err := Decode("scene.glb", data, ImportOptions{})
	require.NoError(t, err)

	require.Len(t, snap.Entities, 3)
	tri, box, twin := snap.Entities[0], snap.Entities[1], snap.Entities[2]
	assert.Equal(t, "triangle", tri.Name)
	assert.Equal(t, scene.Triplet{1, 2, 3}, tri.Position)
	assert.Equal(t, scene.Ref(tri.ID), box.ParentID)
	assert.Empty(t, twin.ParentID)

	byID := map[string]scene.Accessor{}
	for _, a := range snap.Accessors {
		byID[a.ID] = a
	}
	mesh, ok := tri.Mesh.(*scene.PrimitiveMesh)
	require.True(t, ok)
	assert.Equal(t, buffer.Float32Array{0, 0, 0, 1, 0, 0, 0, 1, 0}, byID[string(mesh.Position)].Array)
	assert.Equal(t, buffer.Uint16Array{0, 1, 2}, byID[string(mesh.IndicesID)].Array)
	assert.Equal(t, mesh.Position, twin.Mesh.(*scene.PrimitiveMesh).Position)

	boxMesh, ok := box.Mesh.(*scene.PrimitiveMesh)
	require.True(t, ok)
	assert.Equal(t, 72, byID[string(boxMesh.Position)].Array.Len())

	require.Len(t, snap.Images, 1)
	assert.Equal(t, image.Rect(0, 0, 2, 2), snap.Images[0].Bitmap.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, snap.Images[0].Bitmap.NRGBAAt(1, 1))

	require.Len(t, snap.Materials, 1)
	m := snap.Materials[0]
	assert.Equal(t, scene.AlphaMask, m.AlphaMode)
	assert.Equal(t, float32(0.25), m.AlphaCutoff)
	require.NotNil(t, m.ColorTexture)
	assert.Equal(t, scene.Ref(snap.Images[0].ID), m.ColorTexture.ImageID)
	assert.Equal(t, scene.Ref(m.ID), tri.MaterialID)

	require.Len(t, snap.Animations, 1)
	assert.Equal(t, tri.ID, snap.Animations[0].Channels[0].TargetID)

	store := scene.New()
	require.NoError(t, store.LoadSnapshot(snap))
}

func TestDecodeExternalBuffer(t *testing.T) {
	doc, bin, err := Export(testScene())
	require.NoError(t, err)
	doc.Buffers[0].URI = "tri%20data.bin"
	js, err := json.Marshal(doc)
	require.NoError(t, err)

	fs, err := mem.NewFS()
	require.NoError(t, err)
	require.NoError(t, hackpadfs.MkdirAll(fs, "models", 0o755))
	require.NoError(t, hackpadfs.WriteFullFile(fs, "models/tri data.bin", bin, 0o644))

	snap, err := Decode("models/tri.gltf", js, ImportOptions{FS: fs})
	require.NoError(t, err)
	assert.Len(t, snap.Entities, 3)

	_, err = Decode("models/tri.gltf", js, ImportOptions{})
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestImportSplitsExtraPrimitivesAndSkins(t *testing.T) {
	doc, w := newDoc()
	pos, _, err := ProcessAccessor(&Attribute{Array: buffer.Float32Array{0, 0, 0, 1, 0, 0, 0, 1, 0}, ItemSize: 3}, doc, w)
	require.NoError(t, err)
	ident := mgl32.Ident4()
	ibm, _, err := ProcessAccessor(&Attribute{Array: buffer.Float32Array(ident[:]), ItemSize: 16}, doc, w)
	require.NoError(t, err)
	bin := w.Merge()

	doc.Meshes = []Mesh{{Primitives: []Primitive{
		{Attributes: map[string]int{"POSITION": pos}},
		{Attributes: map[string]int{"POSITION": pos}, Mode: ptr(scene.ModeLines)},
	}}}
	doc.Skins = []Skin{{InverseBindMatrices: ptr(ibm), Joints: []int{1}}}
	doc.Nodes = []Node{
		{Name: "body", Mesh: ptr(0), Skin: ptr(0), Children: []int{1}},
		{Name: "bone"},
	}

	snap, err := Import(doc, bin, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, snap.Entities, 4)
	body, extra, bone, skin := snap.Entities[0], snap.Entities[1], snap.Entities[2], snap.Entities[3]
	assert.Equal(t, "body", body.Name)
	assert.True(t, extra.IsInternal)
	assert.Equal(t, scene.Ref(body.ID), extra.ParentID)
	assert.Equal(t, scene.ModeLines, extra.Mesh.(*scene.PrimitiveMesh).Mode)
	assert.Equal(t, scene.Ref(body.ID), bone.ParentID)
	assert.True(t, skin.IsInternal)
	assert.Equal(t, []string{bone.ID}, skin.Mesh.(*scene.SkinMesh).Joints)

	require.NoError(t, scene.New().LoadSnapshot(snap))
}

func TestImportRejectsNodeCycle(t *testing.T) {
	doc := &Document{Nodes: []Node{{Children: []int{1}}, {Children: []int{0}}}}
	_, err := Import(doc, nil, ImportOptions{})
	assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err))
}

func TestImportRejectsMalformedAccessors(t *testing.T) {
	bin := make([]byte, 12)
	withView := func(v BufferView, a Accessor) *Document {
		a.BufferView = ptr(0)
		return &Document{
			Buffers:     []Buffer{{ByteLength: len(bin)}},
			BufferViews: []BufferView{v},
			Accessors:   []Accessor{a},
		}
	}
	vec3 := Accessor{ComponentType: ComponentFloat, Type: "VEC3", Count: 1}
	negCount := vec3
	negCount.Count = -1
	negOffset := vec3
	negOffset.ByteOffset = -4
	tooMany := vec3
	tooMany.Count = 1 << 40

	cases := map[string]*Document{
		"negative view offset": withView(BufferView{ByteOffset: -4, ByteLength: 12}, vec3),
		"negative view length": withView(BufferView{ByteLength: -1}, vec3),
		"negative stride":      withView(BufferView{ByteLength: 12, ByteStride: -12}, vec3),
		"view past buffer":     withView(BufferView{ByteOffset: 8, ByteLength: 8}, vec3),
		"negative count":       withView(BufferView{ByteLength: 12}, negCount),
		"negative offset":      withView(BufferView{ByteLength: 12}, negOffset),
		"count overflows view": withView(BufferView{ByteLength: 12}, tooMany),
		"viewless negative":    {Accessors: []Accessor{negCount}},
		"viewless oversized":   {Accessors: []Accessor{tooMany}},
		"negative buffer size": {Buffers: []Buffer{{ByteLength: -1}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = Import(doc, bin, ImportOptions{}) })
			assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err))
		})
	}

	snap, err := Import(withView(BufferView{ByteLength: 12}, vec3), bin, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, buffer.Float32Array{0, 0, 0}, snap.Accessors[0].Array)
}

func TestDecompose(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))).Mul4(mgl32.Scale3D(2, 2, 2))
	pos, rot, scale := decompose([16]float32(m))
	assert.InDeltaSlice(t, []float32{1, 2, 3}, pos[:], 1e-5)
	assert.InDeltaSlice(t, []float32{2, 2, 2}, scale[:], 1e-5)
	if rot[3] < 0 {
		rot = scene.Quad{-rot[0], -rot[1], -rot[2], -rot[3]}
	}
	s := float32(0.70710677)
	assert.InDeltaSlice(t, []float32{0, s, 0, s}, rot[:], 1e-4)
}

func TestReadGLBRejectsGarbage(t *testing.T) {
	_, _, err := ReadGLB([]byte("not a glb at all"))
	assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err))

	data, err := WriteGLB(&Document{Asset: Asset{Version: "2.0"}}, nil)
	require.NoError(t, err)
	doc, bin, err := ReadGLB(data)
	require.NoError(t, err)
	assert.Equal(t, "2.0", doc.Asset.Version)
	assert.Nil(t, bin)

	_, _, err = ReadGLB(data[:len(data)-4])
	assert.Error(t, err)
}
