package scene

import (
	"encoding/json"
	"maps"

	errs "scene-engine/internal/errors"
)

// Snapshot is the whole store as one document. Arrays keep insertion order
// and are never null.
type Snapshot struct {
	Entities   []Entity    `json:"entities"`
	Materials  []Material  `json:"materials"`
	Accessors  []Accessor  `json:"accessors"`
	Images     []Image     `json:"images"`
	Animations []Animation `json:"animations"`
}

// Snapshot returns a deep copy of every record.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Entities:   s.Entities(),
		Materials:  s.Materials(),
		Accessors:  s.Accessors(),
		Images:     s.Images(),
		Animations: s.Animations(),
	}
}

// MarshalJSON serializes the store as a snapshot document.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// LoadJSON replaces the whole store with the decoded document. On any decode
// or validation error the store is left untouched.
func (s *Store) LoadJSON(b []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, err, "decode snapshot")
	}
	return s.LoadSnapshot(snap)
}

// LoadSnapshot validates snap in a fresh store and swaps it in.
func (s *Store) LoadSnapshot(snap Snapshot) error {
	fresh := New()
	fresh.newID = s.newID

	claim := func(kind, id string) error {
		if id == "" {
			return errs.New(errs.CodeInvalidArgument, "snapshot %s without id", kind)
		}
		if _, dup := fresh.used[id]; dup {
			return refError("snapshot reuses id %q", id)
		}
		fresh.used[id] = struct{}{}
		return nil
	}
	for _, e := range snap.Entities {
		if err := claim("entity", e.ID); err != nil {
			return err
		}
		fresh.entities.put(e.ID, e.Clone())
	}
	for _, m := range snap.Materials {
		if err := claim("material", m.ID); err != nil {
			return err
		}
		fresh.materials.put(m.ID, m.Clone())
	}
	for _, a := range snap.Accessors {
		if err := claim("accessor", a.ID); err != nil {
			return err
		}
		fresh.accessors.put(a.ID, a.Clone())
	}
	for _, img := range snap.Images {
		if err := claim("image", img.ID); err != nil {
			return err
		}
		if img.Bitmap == nil {
			return errs.New(errs.CodeInvalidArgument, "image %q has no bitmap", img.ID)
		}
		fresh.images.put(img.ID, img.Clone())
	}
	for _, a := range snap.Animations {
		if err := claim("animation", a.ID); err != nil {
			return err
		}
		fresh.animations.put(a.ID, a.Clone())
	}
	if err := fresh.validate(); err != nil {
		return err
	}

	maps.Copy(fresh.used, s.used)
	*s = *fresh
	return nil
}

// validate checks every cross-record reference of a fully populated store.
func (s *Store) validate() error {
	for _, id := range s.entities.keys {
		e := s.entities.m[id]
		if err := s.validateEntity(e); err != nil {
			return err
		}
		if e.ParentID != "" && s.isAncestor(id, string(e.ParentID)) {
			return refError("entity %q is part of a parent cycle", id).With("id", id)
		}
	}
	for _, id := range s.materials.keys {
		if err := s.validateMaterial(s.materials.m[id]); err != nil {
			return err
		}
	}
	for _, id := range s.accessors.keys {
		if err := validateAccessor(s.accessors.m[id]); err != nil {
			return err
		}
	}
	for _, id := range s.animations.keys {
		if err := s.validateAnimation(s.animations.m[id]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy of the store, including retired ids.
func (s *Store) Clone() *Store {
	c := New()
	c.newID = s.newID
	maps.Copy(c.used, s.used)
	for _, e := range s.Entities() {
		c.entities.put(e.ID, e)
	}
	for _, m := range s.Materials() {
		c.materials.put(m.ID, m)
	}
	for _, a := range s.Accessors() {
		c.accessors.put(a.ID, a)
	}
	for _, img := range s.Images() {
		c.images.put(img.ID, img)
	}
	for _, a := range s.Animations() {
		c.animations.put(a.ID, a)
	}
	return c
}
