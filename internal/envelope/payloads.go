package envelope

import (
	"scene-engine/internal/scene"
)

// Target names one record by id (remove_* and *_removed subjects).
type Target struct {
	ID string
}

// Snapshot carries a whole scene (load_json, sync_scene).
type Snapshot struct {
	Scene scene.Snapshot
	// World holds the world matrix of every entity, column-major (sync_scene only).
	World map[string][16]float32
}

// EntityData carries one entity (add_entity, entity_added, entity_updated).
type EntityData struct {
	Entity scene.Entity
	// World is the entity's world matrix, filled by the Game context when relaying.
	World [16]float32
}

// EntityUpdate patches one entity (update_entity).
type EntityUpdate struct {
	ID    string
	Patch scene.EntityPatch
	// Seq is the orchestrator's sequence number for patches that move the entity.
	Seq uint64
}

// Pose is a world-space position and rotation of one entity.
//
// Seq orders caller poses against simulated ones. The orchestrator stamps
// each caller pose; the Game context stamps applied simulated poses with the
// last caller Seq it applied to that entity. Physics leaves it zero.
type Pose struct {
	ID       string
	Position scene.Triplet
	Rotation scene.Quad
	Seq      uint64
}

// Poses carries many poses (transforms).
type Poses struct {
	Poses []Pose
}

// MaterialData carries one material (add_material, material_added).
type MaterialData struct {
	Material scene.Material
}

// MaterialUpdate patches one material (update_material).
type MaterialUpdate struct {
	ID    string
	Patch scene.MaterialPatch
}

// AccessorData carries one accessor (add_accessor, accessor_added).
// Posting a *AccessorData moves the backing array.
type AccessorData struct {
	Accessor scene.Accessor
}

// ImageData carries one image (add_image, image_added).
// Posting a *ImageData moves the bitmap.
type ImageData struct {
	Image scene.Image
}

// AnimationData carries one animation (add_animation).
type AnimationData struct {
	Animation scene.Animation
}

// Flag carries a boolean setting (set_visuals).
type Flag struct {
	Enabled bool
}

// Path carries a file path or URI (set_animations_path, set_default_avatar, set_skybox).
type Path struct {
	URI string
}

// Vector carries a 3-component value (set_gravity).
type Vector struct {
	Value scene.Triplet
}

// Step advances a simulation by Dt seconds (step).
type Step struct {
	Dt float32
}

// Body is the physics view of an entity with a collider.
type Body struct {
	ID          string
	Position    scene.Triplet
	Rotation    scene.Quad
	HalfExtents scene.Triplet
	Static      bool
}

// Bodies carries the full body set (sync_bodies).
type Bodies struct {
	Bodies []Body
}

// BodyData carries one body (body_added, body_updated).
type BodyData struct {
	Body Body
}

// ReadyData is the one-shot readiness signal (ready).
type ReadyData struct {
	Context string
}

// ErrorData is a structured failure reported upward by a context (error).
type ErrorData struct {
	Context string
	Subject Subject
	Code    string
	Message string
}

// Cloner payloads produce their own deep copy instead of going through copier.
// Payloads holding sealed interfaces (meshes, colliders) or bitmaps implement it.
type Cloner interface {
	CloneData() any
}

// Transferable payloads give up their bulk buffers when posted. Transfer
// returns the payload that travels and clears the sender's references.
type Transferable interface {
	Transfer() any
}

func (p EntityData) CloneData() any {
	p.Entity = p.Entity.Clone()
	return p
}

func (p EntityUpdate) CloneData() any {
	p.Patch = p.Patch.Clone()
	return p
}

func (p MaterialData) CloneData() any {
	p.Material = p.Material.Clone()
	return p
}

func (p MaterialUpdate) CloneData() any {
	p.Patch = p.Patch.Clone()
	return p
}

func (p AccessorData) CloneData() any {
	p.Accessor = p.Accessor.Clone()
	return p
}

func (p ImageData) CloneData() any {
	p.Image = p.Image.Clone()
	return p
}

func (p AnimationData) CloneData() any {
	p.Animation = p.Animation.Clone()
	return p
}

func (p Snapshot) CloneData() any {
	out := Snapshot{Scene: scene.Snapshot{
		Entities:   make([]scene.Entity, 0, len(p.Scene.Entities)),
		Materials:  make([]scene.Material, 0, len(p.Scene.Materials)),
		Accessors:  make([]scene.Accessor, 0, len(p.Scene.Accessors)),
		Images:     make([]scene.Image, 0, len(p.Scene.Images)),
		Animations: make([]scene.Animation, 0, len(p.Scene.Animations)),
	}}
	for _, e := range p.Scene.Entities {
		out.Scene.Entities = append(out.Scene.Entities, e.Clone())
	}
	for _, m := range p.Scene.Materials {
		out.Scene.Materials = append(out.Scene.Materials, m.Clone())
	}
	for _, a := range p.Scene.Accessors {
		out.Scene.Accessors = append(out.Scene.Accessors, a.Clone())
	}
	for _, img := range p.Scene.Images {
		out.Scene.Images = append(out.Scene.Images, img.Clone())
	}
	for _, a := range p.Scene.Animations {
		out.Scene.Animations = append(out.Scene.Animations, a.Clone())
	}
	if p.World != nil {
		out.World = make(map[string][16]float32, len(p.World))
		for k, v := range p.World {
			out.World[k] = v
		}
	}
	return out
}

// Transfer moves the array into the returned payload.
func (p *AccessorData) Transfer() any {
	out := *p
	p.Accessor.Array = nil
	return out
}

// Transfer moves the bitmap into the returned payload.
func (p *ImageData) Transfer() any {
	out := *p
	p.Image.Bitmap = nil
	return out
}

// Transfer moves every accessor array and bitmap; the rest of the
// snapshot is copied.
func (p *Snapshot) Transfer() any {
	arrays := make([]scene.Accessor, len(p.Scene.Accessors))
	copy(arrays, p.Scene.Accessors)
	images := make([]scene.Image, len(p.Scene.Images))
	copy(images, p.Scene.Images)
	for i := range p.Scene.Accessors {
		p.Scene.Accessors[i].Array = nil
	}
	for i := range p.Scene.Images {
		p.Scene.Images[i].Bitmap = nil
	}
	rest := Snapshot{Scene: scene.Snapshot{
		Entities:   p.Scene.Entities,
		Materials:  p.Scene.Materials,
		Animations: p.Scene.Animations,
	}, World: p.World}.CloneData().(Snapshot)
	rest.Scene.Accessors = arrays
	rest.Scene.Images = images
	return rest
}
