package primitives

import (
	"fmt"

	"github.com/chewxy/math32"

	"scene-engine/internal/buffer"
	"scene-engine/internal/scene"
)

// Geometry is an indexed triangle list.
type Geometry struct {
	Positions buffer.Float32Array // 3 per vertex
	Normals   buffer.Float32Array // 3 per vertex
	UVs       buffer.Float32Array // 2 per vertex
	Indices   buffer.Array        // Uint16Array, or Uint32Array past 65535 vertices
}

// VertexCount returns the number of vertices.
func (g Geometry) VertexCount() int { return len(g.Positions) / 3 }

type builder struct {
	pos, nrm, uv []float32
	idx          []uint32
}

func (b *builder) vertex(p, n [3]float32, u, v float32) {
	b.pos = append(b.pos, p[0], p[1], p[2])
	b.nrm = append(b.nrm, n[0], n[1], n[2])
	b.uv = append(b.uv, u, v)
}

func (b *builder) geometry() Geometry {
	g := Geometry{Positions: b.pos, Normals: b.nrm, UVs: b.uv}
	if len(b.pos)/3 > 65535 {
		g.Indices = buffer.Uint32Array(b.idx)
		return g
	}
	idx := make(buffer.Uint16Array, len(b.idx))
	for i, v := range b.idx {
		idx[i] = uint16(v)
	}
	g.Indices = idx
	return g
}

// NewGeometry builds an indexed triangle list from flat vertex channels.
func NewGeometry(positions, normals, uvs []float32, indices []uint32) Geometry {
	b := builder{pos: positions, nrm: normals, uv: uvs, idx: indices}
	return b.geometry()
}

// Records turns g into accessor records and a triangle mesh referencing
// them. newID names each accessor.
func (g Geometry) Records(newID func() string) (*scene.PrimitiveMesh, []scene.Accessor) {
	acc := []scene.Accessor{
		{ID: newID(), Array: g.Positions.Clone(), ElementSize: 3},
		{ID: newID(), Array: g.Normals.Clone(), ElementSize: 3},
		{ID: newID(), Array: g.UVs.Clone(), ElementSize: 2},
		{ID: newID(), Array: g.Indices.Clone(), ElementSize: 1},
	}
	mesh := &scene.PrimitiveMesh{
		Mode:      scene.ModeTriangles,
		Position:  scene.Ref(acc[0].ID),
		Normal:    scene.Ref(acc[1].ID),
		Texcoord0: scene.Ref(acc[2].ID),
		IndicesID: scene.Ref(acc[3].ID),
	}
	return mesh, acc
}

// Box returns a box centered on the origin with 4 vertices per face.
func Box(width, height, depth float32) Geometry {
	hw, hh, hd := width/2, height/2, depth/2
	// Each face: normal, then the two in-plane axes scaled to the half size.
	faces := [6][3][3]float32{
		{{1, 0, 0}, {0, 0, -hd}, {0, hh, 0}},
		{{-1, 0, 0}, {0, 0, hd}, {0, hh, 0}},
		{{0, 1, 0}, {hw, 0, 0}, {0, 0, -hd}},
		{{0, -1, 0}, {hw, 0, 0}, {0, 0, hd}},
		{{0, 0, 1}, {hw, 0, 0}, {0, hh, 0}},
		{{0, 0, -1}, {-hw, 0, 0}, {0, hh, 0}},
	}
	half := [3]float32{hw, hh, hd}
	var b builder
	for _, f := range faces {
		n, u, v := f[0], f[1], f[2]
		base := uint32(len(b.pos) / 3)
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			var p [3]float32
			for k := 0; k < 3; k++ {
				p[k] = n[k]*half[k] + c[0]*u[k] + c[1]*v[k]
			}
			b.vertex(p, n, (c[0]+1)/2, 1-(c[1]+1)/2)
		}
		b.idx = append(b.idx, base, base+1, base+2, base, base+2, base+3)
	}
	return b.geometry()
}

// Sphere returns a UV sphere; segment counts below the minimum are raised.
func Sphere(radius float32, widthSegments, heightSegments int) Geometry {
	widthSegments = max(widthSegments, 3)
	heightSegments = max(heightSegments, 2)
	var b builder
	for y := 0; y <= heightSegments; y++ {
		v := float32(y) / float32(heightSegments)
		theta := v * math32.Pi
		for x := 0; x <= widthSegments; x++ {
			u := float32(x) / float32(widthSegments)
			phi := u * 2 * math32.Pi
			n := [3]float32{
				-math32.Cos(phi) * math32.Sin(theta),
				math32.Cos(theta),
				math32.Sin(phi) * math32.Sin(theta),
			}
			b.vertex([3]float32{n[0] * radius, n[1] * radius, n[2] * radius}, n, u, v)
		}
	}
	row := uint32(widthSegments + 1)
	for y := 0; y < heightSegments; y++ {
		for x := 0; x < widthSegments; x++ {
			a := uint32(y)*row + uint32(x)
			c := a + row
			if y != 0 {
				b.idx = append(b.idx, a, c, a+1)
			}
			if y != heightSegments-1 {
				b.idx = append(b.idx, a+1, c, c+1)
			}
		}
	}
	return b.geometry()
}

// Cylinder returns a capped cylinder along Y centered on the origin.
func Cylinder(radius, height float32, radialSegments int) Geometry {
	radialSegments = max(radialSegments, 3)
	hh := height / 2
	var b builder
	// Side: two rings with outward normals.
	for i := 0; i <= radialSegments; i++ {
		u := float32(i) / float32(radialSegments)
		a := u * 2 * math32.Pi
		s, c := math32.Sin(a), math32.Cos(a)
		n := [3]float32{s, 0, c}
		b.vertex([3]float32{radius * s, hh, radius * c}, n, u, 0)
		b.vertex([3]float32{radius * s, -hh, radius * c}, n, u, 1)
	}
	for i := 0; i < radialSegments; i++ {
		top, bottom := uint32(2*i), uint32(2*i+1)
		b.idx = append(b.idx, top, bottom, top+2, bottom, bottom+2, top+2)
	}
	// Caps: a center vertex and a ring each.
	for _, sign := range []float32{1, -1} {
		center := uint32(len(b.pos) / 3)
		n := [3]float32{0, sign, 0}
		b.vertex([3]float32{0, sign * hh, 0}, n, 0.5, 0.5)
		for i := 0; i <= radialSegments; i++ {
			a := float32(i) / float32(radialSegments) * 2 * math32.Pi
			s, c := math32.Sin(a), math32.Cos(a)
			b.vertex([3]float32{radius * s, sign * hh, radius * c}, n, (s+1)/2, (c+1)/2)
		}
		for i := uint32(1); i <= uint32(radialSegments); i++ {
			if sign > 0 {
				b.idx = append(b.idx, center, center+i, center+i+1)
			} else {
				b.idx = append(b.idx, center, center+i+1, center+i)
			}
		}
	}
	return b.geometry()
}

// ForMesh generates geometry for the parametric mesh variants.
func ForMesh(m scene.Mesh) (Geometry, error) {
	switch m := m.(type) {
	case scene.BoxMesh:
		return Box(m.Width, m.Height, m.Depth), nil
	case scene.SphereMesh:
		return Sphere(m.Radius, m.WidthSegments, m.HeightSegments), nil
	case scene.CylinderMesh:
		return Cylinder(m.Radius, m.Height, m.RadialSegments), nil
	}
	return Geometry{}, fmt.Errorf("mesh %T has no parametric geometry", m)
}
