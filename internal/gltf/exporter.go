package gltf

import (
	"bytes"
	"image/png"

	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/primitives"
	"scene-engine/internal/scene"
)

// Generator is written into asset.generator.
const Generator = "scene-engine"

// Exporter converts one scene snapshot into a glTF document and its binary
// buffer. An Exporter is single use.
type Exporter struct {
	snap scene.Snapshot
	doc  *Document
	w    *BufferWriter

	nodes     map[string]int
	materials map[string]int
	accessors map[string]*scene.Accessor
	images    map[string]*scene.Image

	// packed caches accessors already written per id, buffer view target and
	// draw range, so each use of a store accessor is written once.
	packed      map[packKey]int
	imageIndex  map[string]int
	samplerKeys map[Sampler]int
	textureKeys map[[2]int]int
}

// NewExporter prepares an export of snap.
func NewExporter(snap scene.Snapshot) *Exporter {
	doc := &Document{Asset: Asset{Version: "2.0", Generator: Generator}}
	x := &Exporter{
		snap:        snap,
		doc:         doc,
		w:           NewBufferWriter(doc),
		nodes:       make(map[string]int),
		materials:   make(map[string]int),
		accessors:   make(map[string]*scene.Accessor),
		images:      make(map[string]*scene.Image),
		packed:      make(map[packKey]int),
		imageIndex:  make(map[string]int),
		samplerKeys: make(map[Sampler]int),
		textureKeys: make(map[[2]int]int),
	}
	for i := range snap.Accessors {
		x.accessors[snap.Accessors[i].ID] = &snap.Accessors[i]
	}
	for i := range snap.Images {
		x.images[snap.Images[i].ID] = &snap.Images[i]
	}
	return x
}

// Export builds the document and merged binary buffer.
func Export(snap scene.Snapshot) (*Document, []byte, error) {
	return NewExporter(snap).Run()
}

// ExportGLB exports snap as a GLB container.
func ExportGLB(snap scene.Snapshot) ([]byte, error) {
	doc, bin, err := Export(snap)
	if err != nil {
		return nil, err
	}
	return WriteGLB(doc, bin)
}

// Run performs the export.
func (x *Exporter) Run() (*Document, []byte, error) {
	for i := range x.snap.Materials {
		if err := x.material(&x.snap.Materials[i]); err != nil {
			return nil, nil, err
		}
	}

	// Images went into the first group; geometry gets its own.
	x.w.NewGroup()
	for _, e := range x.snap.Entities {
		x.nodes[e.ID] = len(x.doc.Nodes)
		x.doc.Nodes = append(x.doc.Nodes, node(e))
	}
	var roots []int
	for _, e := range x.snap.Entities {
		idx := x.nodes[e.ID]
		if p, ok := x.nodes[string(e.ParentID)]; ok && e.ParentID != "" {
			x.doc.Nodes[p].Children = append(x.doc.Nodes[p].Children, idx)
		} else {
			roots = append(roots, idx)
		}
		if err := x.mesh(e, &x.doc.Nodes[idx]); err != nil {
			return nil, nil, err
		}
	}
	x.doc.Scenes = []Scene{{Nodes: roots}}
	x.doc.Scene = ptr(0)

	for _, a := range x.snap.Animations {
		if err := x.animation(a); err != nil {
			return nil, nil, err
		}
	}
	return x.doc, x.w.Merge(), nil
}

func node(e scene.Entity) Node {
	n := Node{Name: e.Name}
	if e.Position != (scene.Triplet{}) {
		n.Translation = ptr([3]float32(e.Position))
	}
	if e.Rotation != scene.IdentityRotation && e.Rotation != (scene.Quad{}) {
		n.Rotation = ptr([4]float32(e.Rotation))
	}
	if e.Scale != (scene.Triplet{1, 1, 1}) {
		n.Scale = ptr([3]float32(e.Scale))
	}
	n.Extras = map[string]any{"id": e.ID}
	if e.IsInternal {
		n.Extras["isInternal"] = true
	}
	return n
}

type packKey struct {
	id                   string
	target               int
	drawStart, drawCount int
}

// storeAccessor packs the store accessor id once per use and returns its index.
func (x *Exporter) storeAccessor(id scene.Ref, g *Geometry, index bool) (int, bool, error) {
	if id == "" {
		return 0, false, nil
	}
	key := packKey{id: string(id)}
	if g != nil {
		key.target = TargetArrayBuffer
		if index {
			key.target = TargetElementArrayBuffer
		}
		key.drawStart, key.drawCount = g.DrawStart, g.DrawCount
	}
	if idx, ok := x.packed[key]; ok {
		return idx, true, nil
	}
	a, ok := x.accessors[string(id)]
	if !ok {
		return 0, false, errs.New(errs.CodeReferenceIntegrity, "accessor %s not in snapshot", id)
	}
	attr := &Attribute{Array: a.Array, ItemSize: a.ElementSize, Normalized: a.Normalized}
	var opts []AccessorOption
	if g != nil {
		if index {
			g.Index = attr
		}
		opts = append(opts, WithGeometry(g))
	}
	idx, ok, err := ProcessAccessor(attr, x.doc, x.w, opts...)
	if err != nil {
		return 0, false, errs.Wrap(errs.CodeOf(err), err, "accessor %s", id)
	}
	if ok {
		x.packed[key] = idx
	}
	return idx, ok, nil
}

func (x *Exporter) mesh(e scene.Entity, n *Node) error {
	var (
		prim    Primitive
		weights []float32
	)
	switch m := e.Mesh.(type) {
	case nil:
		return nil
	case scene.GLTFMesh:
		n.Extras["uri"] = string(m.URI)
		return nil
	case *scene.SkinMesh:
		return x.skin(m, n)
	case *scene.PrimitiveMesh:
		p, err := x.primitive(m)
		if err != nil {
			return err
		}
		prim = p
		weights = append(weights, m.Weights...)
	default:
		p, err := x.parametric(m)
		if err != nil {
			return err
		}
		prim = p
	}
	if idx, ok := x.materials[string(e.MaterialID)]; ok && e.MaterialID != "" {
		prim.Material = ptr(idx)
	}
	n.Mesh = ptr(len(x.doc.Meshes))
	x.doc.Meshes = append(x.doc.Meshes, Mesh{Name: e.Name, Primitives: []Primitive{prim}, Weights: weights})
	return nil
}

func (x *Exporter) primitive(m *scene.PrimitiveMesh) (Primitive, error) {
	prim := Primitive{Attributes: map[string]int{}}
	if m.Mode != scene.ModeTriangles {
		prim.Mode = ptr(m.Mode)
	}
	g := &Geometry{DrawCount: Infinite}
	if idx, ok, err := x.storeAccessor(m.IndicesID, g, true); err != nil {
		return prim, err
	} else if ok {
		prim.Indices = ptr(idx)
	}
	for _, slot := range m.Attributes() {
		idx, ok, err := x.storeAccessor(*slot.Ref, g, false)
		if err != nil {
			return prim, err
		}
		if ok {
			prim.Attributes[slot.Name] = idx
		}
	}
	return prim, nil
}

// parametric generates geometry for box, sphere and cylinder meshes. The
// generated accessors belong to this entity alone.
func (x *Exporter) parametric(m scene.Mesh) (Primitive, error) {
	geo, err := primitives.ForMesh(m)
	if err != nil {
		return Primitive{}, errs.Wrap(errs.CodeUnsupportedFormat, err, "export mesh")
	}
	prim := Primitive{Attributes: map[string]int{}}
	index := &Attribute{Array: geo.Indices, ItemSize: 1}
	g := &Geometry{Index: index, DrawCount: Infinite}
	idx, ok, err := ProcessAccessor(index, x.doc, x.w, WithGeometry(g))
	if err != nil {
		return prim, err
	}
	if ok {
		prim.Indices = ptr(idx)
	}
	for _, a := range []struct {
		name string
		arr  buffer.Array
		size int
	}{
		{"POSITION", geo.Positions, 3},
		{"NORMAL", geo.Normals, 3},
		{"TEXCOORD_0", geo.UVs, 2},
	} {
		idx, ok, err := ProcessAccessor(&Attribute{Array: a.arr, ItemSize: a.size}, x.doc, x.w, WithGeometry(g))
		if err != nil {
			return prim, err
		}
		if ok {
			prim.Attributes[a.name] = idx
		}
	}
	return prim, nil
}

func (x *Exporter) skin(m *scene.SkinMesh, n *Node) error {
	var s Skin
	idx, ok, err := x.storeAccessor(m.InverseBindMatricesID, nil, false)
	if err != nil {
		return err
	}
	if ok {
		s.InverseBindMatrices = ptr(idx)
	}
	s.Joints = make([]int, 0, len(m.Joints))
	for _, j := range m.Joints {
		ni, ok := x.nodes[j]
		if !ok {
			return errs.New(errs.CodeReferenceIntegrity, "skin joint %s not in snapshot", j)
		}
		s.Joints = append(s.Joints, ni)
	}
	n.Skin = ptr(len(x.doc.Skins))
	x.doc.Skins = append(x.doc.Skins, s)
	return nil
}

func (x *Exporter) material(m *scene.Material) error {
	out := Material{
		Name:        m.Name,
		DoubleSided: m.DoubleSided,
		PBRMetallicRoughness: &PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{m.Color[0], m.Color[1], m.Color[2], m.Alpha},
			MetallicFactor:  ptr(m.Metalness),
			RoughnessFactor: ptr(m.Roughness),
		},
	}
	if m.AlphaMode != scene.AlphaOpaque && m.AlphaMode != "" {
		out.AlphaMode = string(m.AlphaMode)
	}
	if m.AlphaMode == scene.AlphaMask {
		out.AlphaCutoff = ptr(m.AlphaCutoff)
	}
	if m.Emissive != (scene.Triplet{}) {
		out.EmissiveFactor = ptr([3]float32(m.Emissive))
	}

	var err error
	texture := func(t *scene.Texture) *int {
		if err != nil || t == nil || t.ImageID == "" {
			return nil
		}
		var idx int
		idx, err = x.texture(t)
		if err != nil {
			return nil
		}
		return ptr(idx)
	}
	if i := texture(m.ColorTexture); i != nil {
		out.PBRMetallicRoughness.BaseColorTexture = &TextureInfo{Index: *i}
	}
	if i := texture(m.MetallicRoughnessTexture); i != nil {
		out.PBRMetallicRoughness.MetallicRoughnessTexture = &TextureInfo{Index: *i}
	}
	if i := texture(m.EmissiveTexture); i != nil {
		out.EmissiveTexture = &TextureInfo{Index: *i}
	}
	if i := texture(m.NormalTexture); i != nil {
		out.NormalTexture = &NormalTextureInfo{Index: *i, Scale: ptr(m.NormalScale)}
	}
	if i := texture(m.OcclusionTexture); i != nil {
		out.OcclusionTexture = &OcclusionTextureInfo{Index: *i, Strength: ptr(m.OcclusionStrength)}
	}
	if err != nil {
		return err
	}

	x.materials[m.ID] = len(x.doc.Materials)
	x.doc.Materials = append(x.doc.Materials, out)
	return nil
}

// texture returns the index of a texture for t, sharing identical samplers
// and image/sampler pairs.
func (x *Exporter) texture(t *scene.Texture) (int, error) {
	src, err := x.image(string(t.ImageID))
	if err != nil {
		return 0, err
	}
	s := Sampler{MagFilter: int(t.MagFilter), MinFilter: int(t.MinFilter), WrapS: int(t.WrapS), WrapT: int(t.WrapT)}
	si, ok := x.samplerKeys[s]
	if !ok {
		si = len(x.doc.Samplers)
		x.samplerKeys[s] = si
		x.doc.Samplers = append(x.doc.Samplers, s)
	}
	key := [2]int{si, src}
	ti, ok := x.textureKeys[key]
	if !ok {
		ti = len(x.doc.Textures)
		x.textureKeys[key] = ti
		x.doc.Textures = append(x.doc.Textures, Texture{Sampler: ptr(si), Source: ptr(src)})
	}
	return ti, nil
}

// image encodes the bitmap as PNG into its own buffer view once.
func (x *Exporter) image(id string) (int, error) {
	if idx, ok := x.imageIndex[id]; ok {
		return idx, nil
	}
	img, ok := x.images[id]
	if !ok || img.Bitmap == nil {
		return 0, errs.New(errs.CodeReferenceIntegrity, "image %s not in snapshot", id)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Bitmap); err != nil {
		return 0, errs.Wrap(errs.CodeUnsupportedFormat, err, "encode image %s", id)
	}
	view := x.w.WriteBytes(buf.Bytes())
	idx := len(x.doc.Images)
	x.doc.Images = append(x.doc.Images, Image{Name: id, MimeType: "image/png", BufferView: ptr(view)})
	x.imageIndex[id] = idx
	return idx, nil
}

func (x *Exporter) animation(a scene.Animation) error {
	out := Animation{Name: a.Name}
	samplers := make(map[AnimationSampler]int)
	for _, ch := range a.Channels {
		target, ok := x.nodes[ch.TargetID]
		if !ok {
			return errs.New(errs.CodeReferenceIntegrity, "animation %s targets missing entity %s", a.ID, ch.TargetID)
		}
		in, inOK, err := x.storeAccessor(scene.Ref(ch.Sampler.InputID), nil, false)
		if err != nil {
			return err
		}
		outIdx, outOK, err := x.storeAccessor(scene.Ref(ch.Sampler.OutputID), nil, false)
		if err != nil {
			return err
		}
		if !inOK || !outOK {
			continue
		}
		s := AnimationSampler{Input: in, Output: outIdx, Interpolation: string(ch.Sampler.Interpolation)}
		si, ok := samplers[s]
		if !ok {
			si = len(out.Samplers)
			samplers[s] = si
			out.Samplers = append(out.Samplers, s)
		}
		out.Channels = append(out.Channels, AnimationChannel{
			Sampler: si,
			Target:  ChannelTarget{Node: ptr(target), Path: string(ch.Path)},
		})
	}
	if len(out.Channels) == 0 {
		return nil
	}
	x.doc.Animations = append(x.doc.Animations, out)
	return nil
}
