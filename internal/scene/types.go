// Package scene is the Scene Store: flat, id-keyed records for entities,
// materials, accessors, images and animations, with the mutation rules that
// keep the entity forest and every cross-record reference consistent.
package scene

import (
	"bytes"
	"encoding/json"
	"image"
	"image/draw"
	"image/png"

	"scene-engine/internal/buffer"
)

// Triplet is a 3-component vector (position, scale, emissive color).
type Triplet [3]float32

// Quad is a 4-component vector: an RGBA color or an (x, y, z, w) quaternion.
type Quad [4]float32

// IdentityRotation is the (x, y, z, w) identity quaternion.
var IdentityRotation = Quad{0, 0, 0, 1}

// Ref is an optional record id. The empty Ref encodes as JSON null.
type Ref string

// MarshalJSON encodes the empty Ref as null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON decodes null as the empty Ref.
func (r *Ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = Ref(s)
	return nil
}

// Entity is one node of the scene forest. Position, Rotation and Scale are local to the parent.
type Entity struct {
	ID         string
	Name       string
	ParentID   Ref
	IsInternal bool
	Position   Triplet
	Rotation   Quad
	Scale      Triplet
	Mesh       Mesh
	MaterialID Ref
	Collider   Collider
}

// NewEntity returns an entity with an identity transform.
func NewEntity(id string) Entity {
	return Entity{ID: id, Rotation: IdentityRotation, Scale: Triplet{1, 1, 1}}
}

// Clone returns a deep copy; the mesh is copied so the result never aliases the store.
func (e Entity) Clone() Entity {
	if e.Mesh != nil {
		e.Mesh = e.Mesh.clone()
	}
	return e
}

// AlphaMode selects how material alpha is interpreted.
type AlphaMode string

const (
	AlphaOpaque AlphaMode = "OPAQUE"
	AlphaMask   AlphaMode = "MASK"
	AlphaBlend  AlphaMode = "BLEND"
)

// Valid reports whether m is one of the three modes.
func (m AlphaMode) Valid() bool {
	return m == AlphaOpaque || m == AlphaMask || m == AlphaBlend
}

// Filter is a texture sampler filter (glTF/WebGL enum values).
type Filter int

const (
	FilterNearest              Filter = 9728
	FilterLinear               Filter = 9729
	FilterNearestMipmapNearest Filter = 9984
	FilterLinearMipmapNearest  Filter = 9985
	FilterNearestMipmapLinear  Filter = 9986
	FilterLinearMipmapLinear   Filter = 9987
)

// Wrap is a texture sampler wrap mode (glTF/WebGL enum values).
type Wrap int

const (
	WrapClampToEdge    Wrap = 33071
	WrapMirroredRepeat Wrap = 33648
	WrapRepeat         Wrap = 10497
)

// Texture is one material texture slot: an image plus sampler state.
type Texture struct {
	ImageID   Ref    `json:"imageId"`
	MagFilter Filter `json:"magFilter"`
	MinFilter Filter `json:"minFilter"`
	WrapS     Wrap   `json:"wrapS"`
	WrapT     Wrap   `json:"wrapT"`
}

// NewTexture returns a texture slot with linear filtering and repeat wrapping.
func NewTexture(imageID string) *Texture {
	return &Texture{
		ImageID:   Ref(imageID),
		MagFilter: FilterLinear,
		MinFilter: FilterLinearMipmapLinear,
		WrapS:     WrapRepeat,
		WrapT:     WrapRepeat,
	}
}

// Material holds PBR parameters and up to five texture slots.
// AlphaCutoff is only meaningful when AlphaMode is AlphaMask.
type Material struct {
	ID                       string    `json:"id"`
	IsInternal               bool      `json:"isInternal"`
	Name                     string    `json:"name"`
	DoubleSided              bool      `json:"doubleSided"`
	Color                    Quad      `json:"color"`
	Emissive                 Triplet   `json:"emissive"`
	Roughness                float32   `json:"roughness"`
	Metalness                float32   `json:"metalness"`
	Alpha                    float32   `json:"alpha"`
	AlphaCutoff              float32   `json:"alphaCutoff"`
	AlphaMode                AlphaMode `json:"alphaMode"`
	NormalScale              float32   `json:"normalScale"`
	OcclusionStrength        float32   `json:"occlusionStrength"`
	ColorTexture             *Texture  `json:"colorTexture"`
	EmissiveTexture          *Texture  `json:"emissiveTexture"`
	NormalTexture            *Texture  `json:"normalTexture"`
	OcclusionTexture         *Texture  `json:"occlusionTexture"`
	MetallicRoughnessTexture *Texture  `json:"metallicRoughnessTexture"`
}

// NewMaterial returns a white, opaque, fully rough material.
func NewMaterial(id string) Material {
	return Material{
		ID:                id,
		Color:             Quad{1, 1, 1, 1},
		Roughness:         1,
		Metalness:         0,
		Alpha:             1,
		AlphaCutoff:       0.5,
		AlphaMode:         AlphaOpaque,
		NormalScale:       1,
		OcclusionStrength: 1,
	}
}

// Textures returns pointers to the five slots in a fixed order.
func (m *Material) Textures() []**Texture {
	return []**Texture{
		&m.ColorTexture,
		&m.EmissiveTexture,
		&m.NormalTexture,
		&m.OcclusionTexture,
		&m.MetallicRoughnessTexture,
	}
}

// Clone returns a deep copy.
func (m Material) Clone() Material {
	for _, slot := range m.Textures() {
		if *slot != nil {
			t := **slot
			*slot = &t
		}
	}
	return m
}

// Accessor is a typed numeric array plus its per-item component count.
// ElementSize is checked against the semantic type mapping at export, not here.
type Accessor struct {
	ID          string
	IsInternal  bool
	Array       buffer.Array
	ElementSize int
	Normalized  bool
}

// Count is the number of items (Len / ElementSize).
func (a Accessor) Count() int {
	if a.Array == nil || a.ElementSize <= 0 {
		return 0
	}
	return a.Array.Len() / a.ElementSize
}

// Clone returns a deep copy including the backing array.
func (a Accessor) Clone() Accessor {
	if a.Array != nil {
		a.Array = a.Array.Clone()
	}
	return a
}

type accessorJSON struct {
	ID          string      `json:"id"`
	IsInternal  bool        `json:"isInternal"`
	Array       buffer.JSON `json:"array"`
	ElementSize int         `json:"elementSize"`
	Normalized  bool        `json:"normalized"`
}

func (a Accessor) MarshalJSON() ([]byte, error) {
	return json.Marshal(accessorJSON{
		ID:          a.ID,
		IsInternal:  a.IsInternal,
		Array:       buffer.JSON{Array: a.Array},
		ElementSize: a.ElementSize,
		Normalized:  a.Normalized,
	})
}

func (a *Accessor) UnmarshalJSON(b []byte) error {
	var raw accessorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Accessor{
		ID:          raw.ID,
		IsInternal:  raw.IsInternal,
		Array:       raw.Array.Array,
		ElementSize: raw.ElementSize,
		Normalized:  raw.Normalized,
	}
	return nil
}

// Image is a decoded bitmap owned by the store.
type Image struct {
	ID         string
	IsInternal bool
	Bitmap     *image.NRGBA
}

// ToNRGBA converts any decoded image to the store's bitmap form.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Clone returns a deep copy of the bitmap.
func (i Image) Clone() Image {
	if i.Bitmap != nil {
		c := *i.Bitmap
		c.Pix = append([]uint8(nil), i.Bitmap.Pix...)
		i.Bitmap = &c
	}
	return i
}

type imageJSON struct {
	ID         string `json:"id"`
	IsInternal bool   `json:"isInternal"`
	Bitmap     []byte `json:"bitmap"`
}

// MarshalJSON stores the bitmap as PNG bytes.
func (i Image) MarshalJSON() ([]byte, error) {
	raw := imageJSON{ID: i.ID, IsInternal: i.IsInternal}
	if i.Bitmap != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, i.Bitmap); err != nil {
			return nil, err
		}
		raw.Bitmap = buf.Bytes()
	}
	return json.Marshal(raw)
}

func (i *Image) UnmarshalJSON(b []byte) error {
	var raw imageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*i = Image{ID: raw.ID, IsInternal: raw.IsInternal}
	if len(raw.Bitmap) > 0 {
		img, err := png.Decode(bytes.NewReader(raw.Bitmap))
		if err != nil {
			return err
		}
		i.Bitmap = ToNRGBA(img)
	}
	return nil
}

// Interpolation is an animation sampler interpolation mode.
type Interpolation string

const (
	InterpolationLinear      Interpolation = "LINEAR"
	InterpolationStep        Interpolation = "STEP"
	InterpolationCubicSpline Interpolation = "CUBICSPLINE"
)

// AnimationSampler pairs keyframe times (input) with values (output).
type AnimationSampler struct {
	Interpolation Interpolation `json:"interpolation"`
	InputID       string        `json:"inputId"`
	OutputID      string        `json:"outputId"`
}

// AnimationChannel drives one property path of one entity.
type AnimationChannel struct {
	TargetID string           `json:"targetId"`
	Path     Ref              `json:"path"`
	Sampler  AnimationSampler `json:"sampler"`
}

// Animation is an ordered set of channels.
type Animation struct {
	ID         string             `json:"id"`
	IsInternal bool               `json:"isInternal"`
	Name       string             `json:"name"`
	Channels   []AnimationChannel `json:"channels"`
}

// Clone returns a deep copy.
func (a Animation) Clone() Animation {
	a.Channels = cloneSlice(a.Channels)
	return a
}

// cloneSlice copies s, keeping nil and empty distinct so JSON output is stable.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
