package scene

import (
	"fmt"

	"github.com/segmentio/ksuid"

	errs "scene-engine/internal/errors"
)

// Store is the authoritative in-memory database of scene records.
// It is single-writer: the owning context mutates it, everyone else holds a
// copy. Every mutation validates first and only then writes, so a failed call
// leaves the store untouched.
type Store struct {
	entities   records[Entity]
	materials  records[Material]
	accessors  records[Accessor]
	images     records[Image]
	animations records[Animation]

	// used holds every id ever assigned so retired ids are never handed out again.
	used  map[string]struct{}
	newID func() string
}

// New returns an empty store that generates ksuid ids.
func New() *Store {
	return &Store{
		entities:   newRecords[Entity](),
		materials:  newRecords[Material](),
		accessors:  newRecords[Accessor](),
		images:     newRecords[Image](),
		animations: newRecords[Animation](),
		used:       make(map[string]struct{}),
		newID:      func() string { return ksuid.New().String() },
	}
}

// Removal reports the records a removal rewrote besides the removed one.
type Removal struct {
	Entities   []string
	Materials  []string
	Animations []string
}

func refError(format string, args ...any) *errs.Error {
	return errs.New(errs.CodeReferenceIntegrity, format, args...)
}

func notFound(kind, id string) error {
	return errs.New(errs.CodeReferenceIntegrity, "%s %q not found", kind, id).With("id", id)
}

// resolveID picks the id for a new record without claiming it.
func (s *Store) resolveID(id string) (string, error) {
	if id == "" {
		for {
			id = s.newID()
			if _, taken := s.used[id]; !taken {
				return id, nil
			}
		}
	}
	if _, taken := s.used[id]; taken {
		return "", refError("id %q already used", id)
	}
	return id, nil
}

// Used reports whether id was ever assigned in this store.
func (s *Store) Used(id string) bool {
	_, ok := s.used[id]
	return ok
}

// Entity returns a copy of the entity with the given id.
func (s *Store) Entity(id string) (Entity, bool) {
	e, ok := s.entities.get(id)
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

// Entities returns copies of all entities in insertion order.
func (s *Store) Entities() []Entity { return s.entities.values(Entity.Clone) }

// Children returns the ids of the direct children of id ("" lists roots).
func (s *Store) Children(id string) []string {
	var out []string
	for _, k := range s.entities.keys {
		if string(s.entities.m[k].ParentID) == id {
			out = append(out, k)
		}
	}
	return out
}

// isAncestor reports whether ancestor appears on the parent chain of id.
func (s *Store) isAncestor(ancestor, id string) bool {
	for steps := 0; id != "" && steps <= s.entities.len(); steps++ {
		e, ok := s.entities.get(id)
		if !ok {
			return false
		}
		if string(e.ParentID) == ancestor {
			return true
		}
		id = string(e.ParentID)
	}
	return false
}

func (s *Store) validateEntity(e Entity) error {
	if e.ParentID != "" {
		if string(e.ParentID) == e.ID {
			return refError("entity %q cannot be its own parent", e.ID)
		}
		if !s.entities.has(string(e.ParentID)) {
			return notFound("parent entity", string(e.ParentID))
		}
	}
	if e.MaterialID != "" && !s.materials.has(string(e.MaterialID)) {
		return notFound("material", string(e.MaterialID))
	}
	for _, ref := range accessorRefs(e.Mesh) {
		if *ref != "" && !s.accessors.has(string(*ref)) {
			return notFound("accessor", string(*ref))
		}
	}
	switch m := e.Mesh.(type) {
	case *PrimitiveMesh:
		if m.Mode < ModePoints || m.Mode > ModeTriangleFan {
			return errs.New(errs.CodeInvalidArgument, "entity %q: invalid draw mode %d", e.ID, m.Mode)
		}
	case *SkinMesh:
		for _, j := range m.Joints {
			if j != e.ID && !s.entities.has(j) {
				return notFound("joint entity", j)
			}
		}
	}
	return nil
}

// AddEntity inserts e and returns its id (generated when e.ID is empty).
func (s *Store) AddEntity(e Entity) (string, error) {
	e = e.Clone()
	id, err := s.resolveID(e.ID)
	if err != nil {
		return "", err
	}
	e.ID = id
	if e.Rotation == (Quad{}) {
		e.Rotation = IdentityRotation
	}
	if err := s.validateEntity(e); err != nil {
		return "", err
	}
	s.used[id] = struct{}{}
	s.entities.put(id, e)
	return id, nil
}

// UpdateEntity applies patch to the entity. Reparenting onto the entity itself
// or one of its descendants is a reference-integrity error.
func (s *Store) UpdateEntity(id string, patch EntityPatch) error {
	cur, ok := s.entities.get(id)
	if !ok {
		return notFound("entity", id)
	}
	next := cur.Clone()
	patch.Apply(&next)
	if patch.ParentID.Set && next.ParentID != "" {
		parent := string(next.ParentID)
		if parent == id || s.isAncestor(id, parent) {
			return refError("reparenting %q under %q would create a cycle", id, parent).With("id", id)
		}
	}
	if err := s.validateEntity(next); err != nil {
		return err
	}
	s.entities.put(id, next)
	return nil
}

// RemoveEntity deletes the entity. Its children are reparented to its parent,
// skin joint lists drop it, and animation channels targeting it are pruned.
func (s *Store) RemoveEntity(id string) (Removal, error) {
	var r Removal
	cur, ok := s.entities.get(id)
	if !ok {
		return r, notFound("entity", id)
	}
	s.entities.del(id)
	for _, k := range s.entities.keys {
		e := s.entities.m[k]
		changed := false
		if string(e.ParentID) == id {
			e.ParentID = cur.ParentID
			changed = true
		}
		if skin, ok := e.Mesh.(*SkinMesh); ok {
			joints := skin.Joints[:0:0]
			for _, j := range skin.Joints {
				if j != id {
					joints = append(joints, j)
				}
			}
			if len(joints) != len(skin.Joints) {
				c := skin.clone().(*SkinMesh)
				c.Joints = joints
				e.Mesh = c
				changed = true
			}
		}
		if changed {
			s.entities.m[k] = e
			r.Entities = append(r.Entities, k)
		}
	}
	r.Animations = s.pruneChannels(func(c AnimationChannel) bool { return c.TargetID == id })
	return r, nil
}

// pruneChannels drops matching channels and returns the touched animation ids.
func (s *Store) pruneChannels(drop func(AnimationChannel) bool) []string {
	var touched []string
	for _, k := range s.animations.keys {
		a := s.animations.m[k]
		kept := make([]AnimationChannel, 0, len(a.Channels))
		for _, c := range a.Channels {
			if !drop(c) {
				kept = append(kept, c)
			}
		}
		if len(kept) != len(a.Channels) {
			a.Channels = kept
			s.animations.m[k] = a
			touched = append(touched, k)
		}
	}
	return touched
}

// Material returns a copy of the material with the given id.
func (s *Store) Material(id string) (Material, bool) {
	m, ok := s.materials.get(id)
	if !ok {
		return Material{}, false
	}
	return m.Clone(), true
}

// Materials returns copies of all materials in insertion order.
func (s *Store) Materials() []Material { return s.materials.values(Material.Clone) }

func (s *Store) validateMaterial(m Material) error {
	if !m.AlphaMode.Valid() {
		return errs.New(errs.CodeInvalidArgument, "material %q: invalid alpha mode %q", m.ID, m.AlphaMode)
	}
	for _, slot := range m.Textures() {
		if t := *slot; t != nil && t.ImageID != "" && !s.images.has(string(t.ImageID)) {
			return notFound("image", string(t.ImageID))
		}
	}
	return nil
}

// AddMaterial inserts m and returns its id.
func (s *Store) AddMaterial(m Material) (string, error) {
	m = m.Clone()
	id, err := s.resolveID(m.ID)
	if err != nil {
		return "", err
	}
	m.ID = id
	if m.AlphaMode == "" {
		m.AlphaMode = AlphaOpaque
	}
	if err := s.validateMaterial(m); err != nil {
		return "", err
	}
	s.used[id] = struct{}{}
	s.materials.put(id, m)
	return id, nil
}

// UpdateMaterial applies patch to the material.
func (s *Store) UpdateMaterial(id string, patch MaterialPatch) error {
	cur, ok := s.materials.get(id)
	if !ok {
		return notFound("material", id)
	}
	next := cur.Clone()
	patch.Apply(&next)
	if err := s.validateMaterial(next); err != nil {
		return err
	}
	s.materials.put(id, next)
	return nil
}

// RemoveMaterial deletes the material and nulls every entity reference to it.
func (s *Store) RemoveMaterial(id string) (Removal, error) {
	var r Removal
	if !s.materials.del(id) {
		return r, notFound("material", id)
	}
	for _, k := range s.entities.keys {
		e := s.entities.m[k]
		if string(e.MaterialID) == id {
			e.MaterialID = ""
			s.entities.m[k] = e
			r.Entities = append(r.Entities, k)
		}
	}
	return r, nil
}

// Accessor returns a copy of the accessor with the given id.
func (s *Store) Accessor(id string) (Accessor, bool) {
	a, ok := s.accessors.get(id)
	if !ok {
		return Accessor{}, false
	}
	return a.Clone(), true
}

// Accessors returns copies of all accessors in insertion order.
func (s *Store) Accessors() []Accessor { return s.accessors.values(Accessor.Clone) }

func validateAccessor(a Accessor) error {
	if a.Array == nil {
		return errs.New(errs.CodeInvalidArgument, "accessor %q has no array", a.ID)
	}
	if a.ElementSize <= 0 {
		return errs.New(errs.CodeInvalidArgument, "accessor %q: element size must be positive", a.ID)
	}
	return nil
}

// AddAccessor inserts a and returns its id. The element size is not checked
// against the export type mapping here.
func (s *Store) AddAccessor(a Accessor) (string, error) {
	a = a.Clone()
	id, err := s.resolveID(a.ID)
	if err != nil {
		return "", err
	}
	a.ID = id
	if err := validateAccessor(a); err != nil {
		return "", err
	}
	s.used[id] = struct{}{}
	s.accessors.put(id, a)
	return id, nil
}

// UpdateAccessor applies patch to the accessor.
func (s *Store) UpdateAccessor(id string, patch AccessorPatch) error {
	cur, ok := s.accessors.get(id)
	if !ok {
		return notFound("accessor", id)
	}
	next := cur
	patch.Apply(&next)
	if err := validateAccessor(next); err != nil {
		return err
	}
	s.accessors.put(id, next)
	return nil
}

// RemoveAccessor deletes the accessor, nulls mesh references to it and prunes
// animation channels whose sampler reads it.
func (s *Store) RemoveAccessor(id string) (Removal, error) {
	var r Removal
	if !s.accessors.del(id) {
		return r, notFound("accessor", id)
	}
	for _, k := range s.entities.keys {
		e := s.entities.m[k]
		if e.Mesh == nil {
			continue
		}
		mesh := e.Mesh.clone()
		changed := false
		for _, ref := range accessorRefs(mesh) {
			if string(*ref) == id {
				*ref = ""
				changed = true
			}
		}
		if changed {
			e.Mesh = mesh
			s.entities.m[k] = e
			r.Entities = append(r.Entities, k)
		}
	}
	r.Animations = s.pruneChannels(func(c AnimationChannel) bool {
		return c.Sampler.InputID == id || c.Sampler.OutputID == id
	})
	return r, nil
}

// Image returns a copy of the image with the given id.
func (s *Store) Image(id string) (Image, bool) {
	img, ok := s.images.get(id)
	if !ok {
		return Image{}, false
	}
	return img.Clone(), true
}

// Images returns copies of all images in insertion order.
func (s *Store) Images() []Image { return s.images.values(Image.Clone) }

// AddImage inserts img and returns its id.
func (s *Store) AddImage(img Image) (string, error) {
	img = img.Clone()
	id, err := s.resolveID(img.ID)
	if err != nil {
		return "", err
	}
	if img.Bitmap == nil {
		return "", errs.New(errs.CodeInvalidArgument, "image %q has no bitmap", id)
	}
	img.ID = id
	s.used[id] = struct{}{}
	s.images.put(id, img)
	return id, nil
}

// RemoveImage deletes the image and nulls every texture slot pointing at it.
func (s *Store) RemoveImage(id string) (Removal, error) {
	var r Removal
	if !s.images.del(id) {
		return r, notFound("image", id)
	}
	for _, k := range s.materials.keys {
		m := s.materials.m[k].Clone()
		changed := false
		for _, slot := range m.Textures() {
			if t := *slot; t != nil && string(t.ImageID) == id {
				t.ImageID = ""
				changed = true
			}
		}
		if changed {
			s.materials.m[k] = m
			r.Materials = append(r.Materials, k)
		}
	}
	return r, nil
}

// Animation returns a copy of the animation with the given id.
func (s *Store) Animation(id string) (Animation, bool) {
	a, ok := s.animations.get(id)
	if !ok {
		return Animation{}, false
	}
	return a.Clone(), true
}

// Animations returns copies of all animations in insertion order.
func (s *Store) Animations() []Animation { return s.animations.values(Animation.Clone) }

func (s *Store) validateAnimation(a Animation) error {
	for i, c := range a.Channels {
		if !s.entities.has(c.TargetID) {
			return notFound("animation target entity", c.TargetID)
		}
		switch c.Sampler.Interpolation {
		case InterpolationLinear, InterpolationStep, InterpolationCubicSpline:
		default:
			return errs.New(errs.CodeInvalidArgument, "animation %q channel %d: invalid interpolation %q",
				a.ID, i, c.Sampler.Interpolation)
		}
		for _, acc := range []string{c.Sampler.InputID, c.Sampler.OutputID} {
			if !s.accessors.has(acc) {
				return notFound("accessor", acc)
			}
		}
	}
	return nil
}

// AddAnimation inserts a and returns its id.
func (s *Store) AddAnimation(a Animation) (string, error) {
	a = a.Clone()
	id, err := s.resolveID(a.ID)
	if err != nil {
		return "", err
	}
	a.ID = id
	if err := s.validateAnimation(a); err != nil {
		return "", err
	}
	s.used[id] = struct{}{}
	s.animations.put(id, a)
	return id, nil
}

// UpdateAnimation applies patch to the animation.
func (s *Store) UpdateAnimation(id string, patch AnimationPatch) error {
	cur, ok := s.animations.get(id)
	if !ok {
		return notFound("animation", id)
	}
	next := cur.Clone()
	patch.Apply(&next)
	if err := s.validateAnimation(next); err != nil {
		return err
	}
	s.animations.put(id, next)
	return nil
}

// RemoveAnimation deletes the animation.
func (s *Store) RemoveAnimation(id string) error {
	if !s.animations.del(id) {
		return notFound("animation", id)
	}
	return nil
}

// Swept lists the records removed by Sweep.
type Swept struct {
	Accessors []string
	Images    []string
}

// Empty reports whether nothing was removed.
func (w Swept) Empty() bool { return len(w.Accessors) == 0 && len(w.Images) == 0 }

// Sweep removes accessors and images that nothing references any more.
// Removal of orphaned geometry only ever happens here.
func (s *Store) Sweep() Swept {
	liveAccessors := make(map[string]bool)
	for _, k := range s.entities.keys {
		for _, ref := range accessorRefs(s.entities.m[k].Mesh) {
			liveAccessors[string(*ref)] = true
		}
	}
	for _, k := range s.animations.keys {
		for _, c := range s.animations.m[k].Channels {
			liveAccessors[c.Sampler.InputID] = true
			liveAccessors[c.Sampler.OutputID] = true
		}
	}
	liveImages := make(map[string]bool)
	for _, k := range s.materials.keys {
		m := s.materials.m[k]
		for _, slot := range m.Textures() {
			if t := *slot; t != nil {
				liveImages[string(t.ImageID)] = true
			}
		}
	}
	var swept Swept
	for _, k := range append([]string(nil), s.accessors.keys...) {
		if !liveAccessors[k] {
			s.accessors.del(k)
			swept.Accessors = append(swept.Accessors, k)
		}
	}
	for _, k := range append([]string(nil), s.images.keys...) {
		if !liveImages[k] {
			s.images.del(k)
			swept.Images = append(swept.Images, k)
		}
	}
	return swept
}

// Len returns the number of records of every kind, for logging.
func (s *Store) Len() string {
	return fmt.Sprintf("entities=%d materials=%d accessors=%d images=%d animations=%d",
		s.entities.len(), s.materials.len(), s.accessors.len(), s.images.len(), s.animations.len())
}
