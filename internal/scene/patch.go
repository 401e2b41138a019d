package scene

import "scene-engine/internal/buffer"

// Field is one optional member of a patch. Set distinguishes "leave alone"
// from "overwrite with the zero value" (e.g. clearing a mesh).
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

func (f Field[T]) apply(dst *T) {
	if f.Set {
		*dst = f.Value
	}
}

// EntityPatch lists the entity fields to overwrite. The id is not patchable.
type EntityPatch struct {
	Name       Field[string]
	ParentID   Field[Ref]
	IsInternal Field[bool]
	Position   Field[Triplet]
	Rotation   Field[Quad]
	Scale      Field[Triplet]
	Mesh       Field[Mesh]
	MaterialID Field[Ref]
	Collider   Field[Collider]
}

// Apply writes the set fields onto e.
func (p EntityPatch) Apply(e *Entity) {
	p.Name.apply(&e.Name)
	p.ParentID.apply(&e.ParentID)
	p.IsInternal.apply(&e.IsInternal)
	p.Position.apply(&e.Position)
	p.Rotation.apply(&e.Rotation)
	p.Scale.apply(&e.Scale)
	if p.Mesh.Set {
		e.Mesh = nil
		if p.Mesh.Value != nil {
			e.Mesh = p.Mesh.Value.clone()
		}
	}
	p.MaterialID.apply(&e.MaterialID)
	p.Collider.apply(&e.Collider)
}

// TouchesTransform reports whether the patch can move the entity in world space.
func (p EntityPatch) TouchesTransform() bool {
	return p.ParentID.Set || p.Position.Set || p.Rotation.Set || p.Scale.Set
}

// MaterialPatch lists the material fields to overwrite.
type MaterialPatch struct {
	Name                     Field[string]
	IsInternal               Field[bool]
	DoubleSided              Field[bool]
	Color                    Field[Quad]
	Emissive                 Field[Triplet]
	Roughness                Field[float32]
	Metalness                Field[float32]
	Alpha                    Field[float32]
	AlphaCutoff              Field[float32]
	AlphaMode                Field[AlphaMode]
	NormalScale              Field[float32]
	OcclusionStrength        Field[float32]
	ColorTexture             Field[*Texture]
	EmissiveTexture          Field[*Texture]
	NormalTexture            Field[*Texture]
	OcclusionTexture         Field[*Texture]
	MetallicRoughnessTexture Field[*Texture]
}

// Apply writes the set fields onto m. Texture values are copied.
func (p MaterialPatch) Apply(m *Material) {
	p.Name.apply(&m.Name)
	p.IsInternal.apply(&m.IsInternal)
	p.DoubleSided.apply(&m.DoubleSided)
	p.Color.apply(&m.Color)
	p.Emissive.apply(&m.Emissive)
	p.Roughness.apply(&m.Roughness)
	p.Metalness.apply(&m.Metalness)
	p.Alpha.apply(&m.Alpha)
	p.AlphaCutoff.apply(&m.AlphaCutoff)
	p.AlphaMode.apply(&m.AlphaMode)
	p.NormalScale.apply(&m.NormalScale)
	p.OcclusionStrength.apply(&m.OcclusionStrength)
	textures := []Field[*Texture]{
		p.ColorTexture,
		p.EmissiveTexture,
		p.NormalTexture,
		p.OcclusionTexture,
		p.MetallicRoughnessTexture,
	}
	for i, slot := range m.Textures() {
		f := textures[i]
		if !f.Set {
			continue
		}
		*slot = nil
		if f.Value != nil {
			t := *f.Value
			*slot = &t
		}
	}
}

// AccessorPatch lists the accessor fields to overwrite.
type AccessorPatch struct {
	IsInternal  Field[bool]
	Array       Field[buffer.Array]
	ElementSize Field[int]
	Normalized  Field[bool]
}

// Apply writes the set fields onto a. The array is copied.
func (p AccessorPatch) Apply(a *Accessor) {
	p.IsInternal.apply(&a.IsInternal)
	if p.Array.Set {
		a.Array = nil
		if p.Array.Value != nil {
			a.Array = p.Array.Value.Clone()
		}
	}
	p.ElementSize.apply(&a.ElementSize)
	p.Normalized.apply(&a.Normalized)
}

// AnimationPatch lists the animation fields to overwrite.
type AnimationPatch struct {
	Name       Field[string]
	IsInternal Field[bool]
	Channels   Field[[]AnimationChannel]
}

// Apply writes the set fields onto a.
func (p AnimationPatch) Apply(a *Animation) {
	p.Name.apply(&a.Name)
	p.IsInternal.apply(&a.IsInternal)
	if p.Channels.Set {
		a.Channels = cloneSlice(p.Channels.Value)
	}
}

// Clone returns a patch that shares no mesh with p.
func (p EntityPatch) Clone() EntityPatch {
	if p.Mesh.Value != nil {
		p.Mesh.Value = p.Mesh.Value.clone()
	}
	return p
}

// Clone returns a patch that shares no texture with p.
func (p MaterialPatch) Clone() MaterialPatch {
	for _, f := range []*Field[*Texture]{
		&p.ColorTexture,
		&p.EmissiveTexture,
		&p.NormalTexture,
		&p.OcclusionTexture,
		&p.MetallicRoughnessTexture,
	} {
		if f.Value != nil {
			t := *f.Value
			f.Value = &t
		}
	}
	return p
}

// Clone returns a patch that shares no array with p.
func (p AccessorPatch) Clone() AccessorPatch {
	if p.Array.Value != nil {
		p.Array.Value = p.Array.Value.Clone()
	}
	return p
}
