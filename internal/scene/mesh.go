package scene

import (
	"encoding/json"
	"fmt"
)

// MeshType is the discriminant of the closed Mesh variant set.
type MeshType string

const (
	MeshBox       MeshType = "Box"
	MeshSphere    MeshType = "Sphere"
	MeshCylinder  MeshType = "Cylinder"
	MeshGLTF      MeshType = "glTF"
	MeshPrimitive MeshType = "Primitive"
	MeshSkin      MeshType = "Skin"
)

// Mesh is one of BoxMesh, SphereMesh, CylinderMesh, GLTFMesh, PrimitiveMesh or SkinMesh.
// The unexported clone method keeps the set closed to this package.
type Mesh interface {
	MeshType() MeshType
	clone() Mesh
}

// BoxMesh is a parametric box centered on the origin.
type BoxMesh struct {
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
	Depth  float32 `json:"depth"`
}

// SphereMesh is a parametric UV sphere.
type SphereMesh struct {
	Radius         float32 `json:"radius"`
	WidthSegments  int     `json:"widthSegments"`
	HeightSegments int     `json:"heightSegments"`
}

// CylinderMesh is a parametric capped cylinder along Y.
type CylinderMesh struct {
	Radius         float32 `json:"radius"`
	Height         float32 `json:"height"`
	RadialSegments int     `json:"radialSegments"`
}

// GLTFMesh is an opaque external asset referenced by URI.
type GLTFMesh struct {
	URI Ref `json:"uri"`
}

// Draw modes for PrimitiveMesh.Mode (glTF primitive.mode).
const (
	ModePoints        = 0
	ModeLines         = 1
	ModeLineLoop      = 2
	ModeLineStrip     = 3
	ModeTriangles     = 4
	ModeTriangleStrip = 5
	ModeTriangleFan   = 6
)

// PrimitiveMesh references accessors for each vertex channel.
type PrimitiveMesh struct {
	Mode      int       `json:"mode"`
	IndicesID Ref       `json:"indicesId"`
	Weights   []float32 `json:"weights"`
	Position  Ref       `json:"POSITION"`
	Normal    Ref       `json:"NORMAL"`
	Tangent   Ref       `json:"TANGENT"`
	Texcoord0 Ref       `json:"TEXCOORD_0"`
	Texcoord1 Ref       `json:"TEXCOORD_1"`
	Color0    Ref       `json:"COLOR_0"`
	Joints0   Ref       `json:"JOINTS_0"`
	Weights0  Ref       `json:"WEIGHTS_0"`
}

// AttributeSlot names one PrimitiveMesh accessor reference.
type AttributeSlot struct {
	Name string
	Ref  *Ref
}

// Attributes returns the vertex channels in glTF attribute-name order.
func (m *PrimitiveMesh) Attributes() []AttributeSlot {
	return []AttributeSlot{
		{"POSITION", &m.Position},
		{"NORMAL", &m.Normal},
		{"TANGENT", &m.Tangent},
		{"TEXCOORD_0", &m.Texcoord0},
		{"TEXCOORD_1", &m.Texcoord1},
		{"COLOR_0", &m.Color0},
		{"JOINTS_0", &m.Joints0},
		{"WEIGHTS_0", &m.Weights0},
	}
}

// SkinMesh references an inverse-bind-matrix accessor and the joint entities.
type SkinMesh struct {
	InverseBindMatricesID Ref      `json:"inverseBindMatricesId"`
	Joints                []string `json:"joints"`
}

func (BoxMesh) MeshType() MeshType        { return MeshBox }
func (SphereMesh) MeshType() MeshType     { return MeshSphere }
func (CylinderMesh) MeshType() MeshType   { return MeshCylinder }
func (GLTFMesh) MeshType() MeshType       { return MeshGLTF }
func (*PrimitiveMesh) MeshType() MeshType { return MeshPrimitive }
func (*SkinMesh) MeshType() MeshType      { return MeshSkin }

func (m BoxMesh) clone() Mesh      { return m }
func (m SphereMesh) clone() Mesh   { return m }
func (m CylinderMesh) clone() Mesh { return m }
func (m GLTFMesh) clone() Mesh     { return m }

func (m *PrimitiveMesh) clone() Mesh {
	c := *m
	c.Weights = cloneSlice(m.Weights)
	return &c
}

func (m *SkinMesh) clone() Mesh {
	c := *m
	c.Joints = cloneSlice(m.Joints)
	return &c
}

// accessorRefs lists every accessor id a mesh points at.
func accessorRefs(m Mesh) []*Ref {
	switch m := m.(type) {
	case *PrimitiveMesh:
		refs := []*Ref{&m.IndicesID}
		for _, a := range m.Attributes() {
			refs = append(refs, a.Ref)
		}
		return refs
	case *SkinMesh:
		return []*Ref{&m.InverseBindMatricesID}
	}
	return nil
}

// marshalTagged encodes v with an extra "type" field.
func marshalTagged(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(typ)
	fields["type"] = tag
	return json.Marshal(fields)
}

func marshalMesh(m Mesh) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return marshalTagged(string(m.MeshType()), m)
}

func unmarshalMesh(b []byte) (Mesh, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var head struct {
		Type MeshType `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	var m Mesh
	switch head.Type {
	case MeshBox:
		var v BoxMesh
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		m = v
	case MeshSphere:
		var v SphereMesh
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		m = v
	case MeshCylinder:
		var v CylinderMesh
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		m = v
	case MeshGLTF:
		var v GLTFMesh
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		m = v
	case MeshPrimitive:
		v := &PrimitiveMesh{}
		if err := json.Unmarshal(b, v); err != nil {
			return nil, err
		}
		m = v
	case MeshSkin:
		v := &SkinMesh{}
		if err := json.Unmarshal(b, v); err != nil {
			return nil, err
		}
		m = v
	default:
		return nil, fmt.Errorf("unknown mesh type %q", head.Type)
	}
	return m, nil
}

// ColliderType is the discriminant of the closed Collider variant set.
type ColliderType string

const (
	ColliderBox      ColliderType = "Box"
	ColliderSphere   ColliderType = "Sphere"
	ColliderCylinder ColliderType = "Cylinder"
)

// Collider is one of BoxCollider, SphereCollider or CylinderCollider.
type Collider interface {
	ColliderType() ColliderType
	// HalfExtents is the local axis-aligned half size of the shape.
	HalfExtents() Triplet
	// IsDynamic reports whether the body falls under gravity; static bodies never move.
	IsDynamic() bool
}

// BoxCollider is an axis-aligned box of the given full size.
type BoxCollider struct {
	Size    Triplet `json:"size"`
	Dynamic bool    `json:"dynamic,omitempty"`
}

// SphereCollider is a sphere of the given radius.
type SphereCollider struct {
	Radius  float32 `json:"radius"`
	Dynamic bool    `json:"dynamic,omitempty"`
}

// CylinderCollider is a Y-aligned cylinder.
type CylinderCollider struct {
	Radius  float32 `json:"radius"`
	Height  float32 `json:"height"`
	Dynamic bool    `json:"dynamic,omitempty"`
}

func (c BoxCollider) IsDynamic() bool      { return c.Dynamic }
func (c SphereCollider) IsDynamic() bool   { return c.Dynamic }
func (c CylinderCollider) IsDynamic() bool { return c.Dynamic }

func (BoxCollider) ColliderType() ColliderType      { return ColliderBox }
func (SphereCollider) ColliderType() ColliderType   { return ColliderSphere }
func (CylinderCollider) ColliderType() ColliderType { return ColliderCylinder }

func (c BoxCollider) HalfExtents() Triplet {
	return Triplet{c.Size[0] / 2, c.Size[1] / 2, c.Size[2] / 2}
}

func (c SphereCollider) HalfExtents() Triplet {
	return Triplet{c.Radius, c.Radius, c.Radius}
}

func (c CylinderCollider) HalfExtents() Triplet {
	return Triplet{c.Radius, c.Height / 2, c.Radius}
}

func marshalCollider(c Collider) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	return marshalTagged(string(c.ColliderType()), c)
}

func unmarshalCollider(b []byte) (Collider, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var head struct {
		Type ColliderType `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case ColliderBox:
		var v BoxCollider
		err := json.Unmarshal(b, &v)
		return v, err
	case ColliderSphere:
		var v SphereCollider
		err := json.Unmarshal(b, &v)
		return v, err
	case ColliderCylinder:
		var v CylinderCollider
		err := json.Unmarshal(b, &v)
		return v, err
	}
	return nil, fmt.Errorf("unknown collider type %q", head.Type)
}

type entityJSON struct {
	ID         string          `json:"id"`
	IsInternal bool            `json:"isInternal"`
	Name       string          `json:"name"`
	ParentID   Ref             `json:"parentId"`
	Position   Triplet         `json:"position"`
	Rotation   Quad            `json:"rotation"`
	Scale      Triplet         `json:"scale"`
	Mesh       json.RawMessage `json:"mesh"`
	MaterialID Ref             `json:"materialId"`
	Collider   json.RawMessage `json:"collider"`
}

func (e Entity) MarshalJSON() ([]byte, error) {
	mesh, err := marshalMesh(e.Mesh)
	if err != nil {
		return nil, fmt.Errorf("entity %s mesh: %w", e.ID, err)
	}
	collider, err := marshalCollider(e.Collider)
	if err != nil {
		return nil, fmt.Errorf("entity %s collider: %w", e.ID, err)
	}
	return json.Marshal(entityJSON{
		ID:         e.ID,
		IsInternal: e.IsInternal,
		Name:       e.Name,
		ParentID:   e.ParentID,
		Position:   e.Position,
		Rotation:   e.Rotation,
		Scale:      e.Scale,
		Mesh:       mesh,
		MaterialID: e.MaterialID,
		Collider:   collider,
	})
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	var raw entityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	mesh, err := unmarshalMesh(raw.Mesh)
	if err != nil {
		return fmt.Errorf("entity %s mesh: %w", raw.ID, err)
	}
	collider, err := unmarshalCollider(raw.Collider)
	if err != nil {
		return fmt.Errorf("entity %s collider: %w", raw.ID, err)
	}
	*e = Entity{
		ID:         raw.ID,
		IsInternal: raw.IsInternal,
		Name:       raw.Name,
		ParentID:   raw.ParentID,
		Position:   raw.Position,
		Rotation:   raw.Rotation,
		Scale:      raw.Scale,
		Mesh:       mesh,
		MaterialID: raw.MaterialID,
		Collider:   collider,
	}
	return nil
}
