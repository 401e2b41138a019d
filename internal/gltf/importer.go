package gltf

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs"
	"github.com/segmentio/ksuid"

	"scene-engine/internal/buffer"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/scene"
)

// ImageDecoder turns encoded image bytes into a store bitmap.
type ImageDecoder func(data []byte) (*image.NRGBA, error)

// ImportOptions controls how external references are resolved.
type ImportOptions struct {
	// FS resolves relative buffer and image uris. Nil allows only
	// embedded and data: uris.
	FS hackpadfs.FS
	// Dir is the directory uris are relative to.
	Dir string
	// DecodeImage defaults to image.Decode with png and jpeg registered.
	DecodeImage ImageDecoder
}

// DecodeImage is the default ImageDecoder.
func DecodeImage(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return scene.ToNRGBA(img), nil
}

// Decode reads a .glb or .gltf file named name and imports it.
func Decode(name string, data []byte, opts ImportOptions) (scene.Snapshot, error) {
	var (
		doc *Document
		bin []byte
		err error
	)
	if IsGLB(data) {
		doc, bin, err = ReadGLB(data)
	} else {
		doc, err = ParseGLTF(data)
	}
	if err != nil {
		return scene.Snapshot{}, errs.Wrap(errs.CodeOf(err), err, "decode %s", name)
	}
	if opts.Dir == "" {
		opts.Dir = path.Dir(name)
	}
	return Import(doc, bin, opts)
}

type importer struct {
	doc     *Document
	opts    ImportOptions
	buffers [][]byte
	snap    scene.Snapshot

	accessorIDs []string
	imageIDs    []string
	materialIDs []string
	nodeIDs     []string
}

// Import converts doc (with the GLB binary chunk, if any) into scene records:
// images, accessors, materials, one entity per node and animations. Nodes
// with several primitives or a skin get internal child entities for them.
// Every record gets a fresh id.
func Import(doc *Document, bin []byte, opts ImportOptions) (scene.Snapshot, error) {
	if opts.DecodeImage == nil {
		opts.DecodeImage = DecodeImage
	}
	im := &importer{doc: doc, opts: opts}
	im.snap = scene.Snapshot{
		Entities:   []scene.Entity{},
		Materials:  []scene.Material{},
		Accessors:  []scene.Accessor{},
		Images:     []scene.Image{},
		Animations: []scene.Animation{},
	}
	steps := []func(bin []byte) error{
		im.loadBuffers,
		func([]byte) error { return im.loadImages() },
		func([]byte) error { return im.loadAccessors() },
		func([]byte) error { return im.loadMaterials() },
		func([]byte) error { return im.loadNodes() },
		func([]byte) error { return im.loadAnimations() },
	}
	for _, step := range steps {
		if err := step(bin); err != nil {
			return scene.Snapshot{}, err
		}
	}
	return im.snap, nil
}

func newID() string { return ksuid.New().String() }

func formatErr(format string, args ...any) error {
	return errs.New(errs.CodeUnsupportedFormat, format, args...)
}

// readURI resolves a data: uri or a path relative to opts.Dir.
func (im *importer) readURI(uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "data:") {
		i := strings.Index(uri, ",")
		if i < 0 || !strings.HasSuffix(uri[:i], ";base64") {
			return nil, formatErr("unsupported data uri")
		}
		return base64.StdEncoding.DecodeString(uri[i+1:])
	}
	if im.opts.FS == nil {
		return nil, errs.New(errs.CodeNotFound, "no filesystem to resolve %s", uri)
	}
	name, err := url.PathUnescape(uri)
	if err != nil {
		name = uri
	}
	p := strings.TrimPrefix(path.Clean(path.Join(im.opts.Dir, name)), "/")
	f, err := im.opts.FS.Open(p)
	if err != nil {
		return nil, errs.Wrap(errs.CodeNotFound, err, "open %s", p).With("uri", uri)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (im *importer) loadBuffers(bin []byte) error {
	im.buffers = make([][]byte, len(im.doc.Buffers))
	for i, b := range im.doc.Buffers {
		var (
			data []byte
			err  error
		)
		if b.URI == "" {
			if i != 0 || bin == nil {
				return formatErr("buffer %d has no uri and no glb chunk", i)
			}
			data = bin
		} else if data, err = im.readURI(b.URI); err != nil {
			return err
		}
		if b.ByteLength < 0 || len(data) < b.ByteLength {
			return formatErr("buffer %d has %d bytes, want %d", i, len(data), b.ByteLength)
		}
		im.buffers[i] = data
	}
	return nil
}

// view returns the bytes of buffer view i.
func (im *importer) view(i int) (BufferView, []byte, error) {
	if i < 0 || i >= len(im.doc.BufferViews) {
		return BufferView{}, nil, formatErr("buffer view %d out of range", i)
	}
	v := im.doc.BufferViews[i]
	if v.Buffer < 0 || v.Buffer >= len(im.buffers) {
		return v, nil, formatErr("buffer view %d references buffer %d", i, v.Buffer)
	}
	if v.ByteOffset < 0 || v.ByteLength < 0 || v.ByteStride < 0 {
		return v, nil, formatErr("buffer view %d has a negative offset, length or stride", i)
	}
	data := im.buffers[v.Buffer]
	if v.ByteOffset > len(data) || v.ByteLength > len(data)-v.ByteOffset {
		return v, nil, formatErr("buffer view %d overruns its buffer", i)
	}
	return v, data[v.ByteOffset : v.ByteOffset+v.ByteLength], nil
}

func (im *importer) loadImages() error {
	for i, img := range im.doc.Images {
		var (
			data []byte
			err  error
		)
		switch {
		case img.BufferView != nil:
			_, data, err = im.view(*img.BufferView)
		case img.URI != "":
			data, err = im.readURI(img.URI)
		default:
			err = formatErr("image %d has no source", i)
		}
		if err != nil {
			return err
		}
		bmp, err := im.opts.DecodeImage(data)
		if err != nil {
			return errs.Wrap(errs.CodeUnsupportedFormat, err, "decode image %d", i)
		}
		id := newID()
		im.imageIDs = append(im.imageIDs, id)
		im.snap.Images = append(im.snap.Images, scene.Image{ID: id, Bitmap: bmp})
	}
	return nil
}

// maxAccessorBytes caps accessors without a buffer view, which are
// allocated zero-filled from the declared count alone.
const maxAccessorBytes = 1 << 28

// readAccessor copies accessor i out of its (possibly strided) view into a
// tightly packed array.
func (im *importer) readAccessor(i int) (buffer.Array, int, error) {
	a := im.doc.Accessors[i]
	kind, ok := importKinds[a.ComponentType]
	if !ok {
		return nil, 0, formatErr("accessor %d: unsupported component type %d", i, a.ComponentType)
	}
	size, ok := itemSizes[a.Type]
	if !ok {
		return nil, 0, formatErr("accessor %d: unsupported type %q", i, a.Type)
	}
	if a.Count < 0 || a.ByteOffset < 0 {
		return nil, 0, formatErr("accessor %d has a negative count or offset", i)
	}
	elem := size * kind.ByteSize()
	if a.BufferView == nil {
		if a.Count > maxAccessorBytes/elem {
			return nil, 0, formatErr("accessor %d: %d elements exceed the size limit", i, a.Count)
		}
		arr, err := buffer.FromBytes(kind, make([]byte, a.Count*elem))
		return arr, size, err
	}
	v, data, err := im.view(*a.BufferView)
	if err != nil {
		return nil, 0, err
	}
	stride := v.ByteStride
	if stride == 0 {
		stride = elem
	}
	if a.Count > 0 {
		room := len(data) - a.ByteOffset - elem
		if room < 0 || (a.Count-1) > room/stride {
			return nil, 0, formatErr("accessor %d overruns buffer view %d", i, *a.BufferView)
		}
	}
	out := make([]byte, 0, a.Count*elem)
	for k := range a.Count {
		off := a.ByteOffset + k*stride
		out = append(out, data[off:off+elem]...)
	}
	arr, err := buffer.FromBytes(kind, out)
	return arr, size, err
}

func (im *importer) loadAccessors() error {
	for i, a := range im.doc.Accessors {
		arr, size, err := im.readAccessor(i)
		if err != nil {
			return err
		}
		id := newID()
		im.accessorIDs = append(im.accessorIDs, id)
		im.snap.Accessors = append(im.snap.Accessors, scene.Accessor{
			ID:          id,
			Array:       arr,
			ElementSize: size,
			Normalized:  a.Normalized,
		})
	}
	return nil
}

func (im *importer) accessorRef(i *int) (scene.Ref, error) {
	if i == nil {
		return "", nil
	}
	if *i < 0 || *i >= len(im.accessorIDs) {
		return "", formatErr("accessor %d out of range", *i)
	}
	return scene.Ref(im.accessorIDs[*i]), nil
}

// texture converts a glTF texture index into a store texture slot.
func (im *importer) texture(i int) (*scene.Texture, error) {
	if i < 0 || i >= len(im.doc.Textures) {
		return nil, formatErr("texture %d out of range", i)
	}
	t := im.doc.Textures[i]
	if t.Source == nil {
		return nil, nil
	}
	if *t.Source < 0 || *t.Source >= len(im.imageIDs) {
		return nil, formatErr("texture %d: image %d out of range", i, *t.Source)
	}
	out := scene.NewTexture(im.imageIDs[*t.Source])
	if t.Sampler != nil && *t.Sampler >= 0 && *t.Sampler < len(im.doc.Samplers) {
		s := im.doc.Samplers[*t.Sampler]
		if s.MagFilter != 0 {
			out.MagFilter = scene.Filter(s.MagFilter)
		}
		if s.MinFilter != 0 {
			out.MinFilter = scene.Filter(s.MinFilter)
		}
		if s.WrapS != 0 {
			out.WrapS = scene.Wrap(s.WrapS)
		}
		if s.WrapT != 0 {
			out.WrapT = scene.Wrap(s.WrapT)
		}
	}
	return out, nil
}

type textureSlot struct {
	dst   **scene.Texture
	index int
}

func (im *importer) loadMaterials() error {
	for _, m := range im.doc.Materials {
		out := scene.NewMaterial(newID())
		out.Name = m.Name
		out.DoubleSided = m.DoubleSided
		if m.AlphaMode != "" {
			out.AlphaMode = scene.AlphaMode(m.AlphaMode)
		}
		if m.AlphaCutoff != nil {
			out.AlphaCutoff = *m.AlphaCutoff
		}
		if m.EmissiveFactor != nil {
			out.Emissive = scene.Triplet(*m.EmissiveFactor)
		}

		var slots []textureSlot
		if pbr := m.PBRMetallicRoughness; pbr != nil {
			if c := pbr.BaseColorFactor; c != nil {
				out.Color = scene.Quad{c[0], c[1], c[2], 1}
				out.Alpha = c[3]
			}
			if pbr.MetallicFactor != nil {
				out.Metalness = *pbr.MetallicFactor
			} else {
				out.Metalness = 1
			}
			if pbr.RoughnessFactor != nil {
				out.Roughness = *pbr.RoughnessFactor
			}
			if t := pbr.BaseColorTexture; t != nil {
				slots = append(slots, textureSlot{&out.ColorTexture, t.Index})
			}
			if t := pbr.MetallicRoughnessTexture; t != nil {
				slots = append(slots, textureSlot{&out.MetallicRoughnessTexture, t.Index})
			}
		}
		if t := m.EmissiveTexture; t != nil {
			slots = append(slots, textureSlot{&out.EmissiveTexture, t.Index})
		}
		if t := m.NormalTexture; t != nil {
			if t.Scale != nil {
				out.NormalScale = *t.Scale
			}
			slots = append(slots, textureSlot{&out.NormalTexture, t.Index})
		}
		if t := m.OcclusionTexture; t != nil {
			if t.Strength != nil {
				out.OcclusionStrength = *t.Strength
			}
			slots = append(slots, textureSlot{&out.OcclusionTexture, t.Index})
		}
		for _, s := range slots {
			tex, err := im.texture(s.index)
			if err != nil {
				return err
			}
			*s.dst = tex
		}

		im.materialIDs = append(im.materialIDs, out.ID)
		im.snap.Materials = append(im.snap.Materials, out)
	}
	return nil
}

// decompose splits a column-major matrix into translation, rotation and scale.
func decompose(m [16]float32) (scene.Triplet, scene.Quad, scene.Triplet) {
	mat := mgl32.Mat4(m)
	t := mat.Col(3)
	sx, sy, sz := mat.Col(0).Vec3().Len(), mat.Col(1).Vec3().Len(), mat.Col(2).Vec3().Len()
	if mat.Det() < 0 {
		sx = -sx
	}
	rot := mgl32.Ident4()
	for c, s := range []float32{sx, sy, sz} {
		if s != 0 {
			rot.SetCol(c, mat.Col(c).Mul(1/s))
		}
	}
	rot.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
	q := mgl32.Mat4ToQuat(rot).Normalize()
	return scene.Triplet{t[0], t[1], t[2]},
		scene.Quad{q.V[0], q.V[1], q.V[2], q.W},
		scene.Triplet{sx, sy, sz}
}

func (im *importer) entity(n Node) scene.Entity {
	e := scene.NewEntity(newID())
	e.Name = n.Name
	switch {
	case n.Matrix != nil:
		e.Position, e.Rotation, e.Scale = decompose(*n.Matrix)
	default:
		if n.Translation != nil {
			e.Position = scene.Triplet(*n.Translation)
		}
		if n.Rotation != nil {
			e.Rotation = scene.Quad(*n.Rotation)
		}
		if n.Scale != nil {
			e.Scale = scene.Triplet(*n.Scale)
		}
	}
	return e
}

func (im *importer) primitive(p Primitive, weights []float32) (*scene.PrimitiveMesh, scene.Ref, error) {
	m := &scene.PrimitiveMesh{Mode: scene.ModeTriangles, Weights: append([]float32(nil), weights...)}
	if p.Mode != nil {
		m.Mode = *p.Mode
	}
	ref, err := im.accessorRef(p.Indices)
	if err != nil {
		return nil, "", err
	}
	m.IndicesID = ref
	for _, slot := range m.Attributes() {
		i, ok := p.Attributes[slot.Name]
		if !ok {
			continue
		}
		if *slot.Ref, err = im.accessorRef(&i); err != nil {
			return nil, "", err
		}
	}
	var material scene.Ref
	if p.Material != nil {
		if *p.Material < 0 || *p.Material >= len(im.materialIDs) {
			return nil, "", formatErr("material %d out of range", *p.Material)
		}
		material = scene.Ref(im.materialIDs[*p.Material])
	}
	return m, material, nil
}

// loadNodes walks the node forest parents first. Extra primitives follow
// their node; skin entities go last so every joint precedes them.
func (im *importer) loadNodes() error {
	nodes := im.doc.Nodes
	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = -1
	}
	for i, n := range nodes {
		for _, c := range n.Children {
			if c < 0 || c >= len(nodes) || parent[c] != -1 || c == i {
				return formatErr("node %d has invalid child %d", i, c)
			}
			parent[c] = i
		}
	}

	im.nodeIDs = make([]string, len(nodes))
	for i := range nodes {
		im.nodeIDs[i] = newID()
	}

	var skins []scene.Entity
	var visit func(i int) error
	visited := make([]bool, len(nodes))
	visit = func(i int) error {
		if visited[i] {
			return formatErr("node %d visited twice", i)
		}
		visited[i] = true
		n := nodes[i]
		e := im.entity(n)
		e.ID = im.nodeIDs[i]
		if parent[i] >= 0 {
			e.ParentID = scene.Ref(im.nodeIDs[parent[i]])
		}

		var extra []scene.Entity
		if n.Mesh != nil {
			if *n.Mesh < 0 || *n.Mesh >= len(im.doc.Meshes) {
				return formatErr("node %d: mesh %d out of range", i, *n.Mesh)
			}
			mesh := im.doc.Meshes[*n.Mesh]
			if e.Name == "" {
				e.Name = mesh.Name
			}
			for k, p := range mesh.Primitives {
				pm, material, err := im.primitive(p, mesh.Weights)
				if err != nil {
					return err
				}
				if k == 0 {
					e.Mesh, e.MaterialID = pm, material
					continue
				}
				child := scene.NewEntity(newID())
				child.ParentID = scene.Ref(e.ID)
				child.IsInternal = true
				child.Mesh, child.MaterialID = pm, material
				extra = append(extra, child)
			}
		}
		if n.Skin != nil {
			s, err := im.skin(*n.Skin)
			if err != nil {
				return err
			}
			child := scene.NewEntity(newID())
			child.ParentID = scene.Ref(e.ID)
			child.IsInternal = true
			child.Mesh = s
			skins = append(skins, child)
		}

		im.snap.Entities = append(im.snap.Entities, e)
		im.snap.Entities = append(im.snap.Entities, extra...)
		for _, c := range n.Children {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range nodes {
		if parent[i] == -1 {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	for i := range nodes {
		if !visited[i] {
			return formatErr("node %d is part of a cycle", i)
		}
	}
	im.snap.Entities = append(im.snap.Entities, skins...)
	return nil
}

func (im *importer) skin(i int) (*scene.SkinMesh, error) {
	if i < 0 || i >= len(im.doc.Skins) {
		return nil, formatErr("skin %d out of range", i)
	}
	s := im.doc.Skins[i]
	ibm, err := im.accessorRef(s.InverseBindMatrices)
	if err != nil {
		return nil, err
	}
	out := &scene.SkinMesh{InverseBindMatricesID: ibm, Joints: make([]string, 0, len(s.Joints))}
	for _, j := range s.Joints {
		if j < 0 || j >= len(im.nodeIDs) {
			return nil, formatErr("skin %d: joint %d out of range", i, j)
		}
		out.Joints = append(out.Joints, im.nodeIDs[j])
	}
	return out, nil
}

func (im *importer) loadAnimations() error {
	for _, a := range im.doc.Animations {
		out := scene.Animation{ID: newID(), Name: a.Name, Channels: []scene.AnimationChannel{}}
		for _, ch := range a.Channels {
			if ch.Target.Node == nil {
				continue
			}
			if ch.Sampler < 0 || ch.Sampler >= len(a.Samplers) {
				return formatErr("animation %q: sampler %d out of range", a.Name, ch.Sampler)
			}
			node := *ch.Target.Node
			if node < 0 || node >= len(im.nodeIDs) {
				return formatErr("animation %q: node %d out of range", a.Name, node)
			}
			s := a.Samplers[ch.Sampler]
			in, err := im.accessorRef(&s.Input)
			if err != nil {
				return err
			}
			outRef, err := im.accessorRef(&s.Output)
			if err != nil {
				return err
			}
			interp := scene.Interpolation(s.Interpolation)
			if interp == "" {
				interp = scene.InterpolationLinear
			}
			out.Channels = append(out.Channels, scene.AnimationChannel{
				TargetID: im.nodeIDs[node],
				Path:     scene.Ref(ch.Target.Path),
				Sampler: scene.AnimationSampler{
					Interpolation: interp,
					InputID:       string(in),
					OutputID:      string(outRef),
				},
			})
		}
		im.snap.Animations = append(im.snap.Animations, out)
	}
	return nil
}
