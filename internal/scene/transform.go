package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	errs "scene-engine/internal/errors"
)

func quat(q Quad) mgl32.Quat {
	return mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
}

func quad(q mgl32.Quat) Quad {
	return Quad{q.V[0], q.V[1], q.V[2], q.W}
}

// LocalMatrix returns T * R * S for the entity's local transform.
func LocalMatrix(e Entity) mgl32.Mat4 {
	t := mgl32.Translate3D(e.Position[0], e.Position[1], e.Position[2])
	r := quat(e.Rotation).Normalize().Mat4()
	s := mgl32.Scale3D(e.Scale[0], e.Scale[1], e.Scale[2])
	return t.Mul4(r).Mul4(s)
}

// WorldMatrix composes local matrices from the root down to id.
func (s *Store) WorldMatrix(id string) (mgl32.Mat4, error) {
	m := mgl32.Ident4()
	for steps := 0; id != ""; steps++ {
		e, ok := s.entities.get(id)
		if !ok {
			return m, notFound("entity", id)
		}
		if steps > s.entities.len() {
			return m, refError("parent chain of %q does not terminate", id)
		}
		m = LocalMatrix(e).Mul4(m)
		id = string(e.ParentID)
	}
	return m, nil
}

// worldRotation composes rotations only, ignoring scale.
func (s *Store) worldRotation(id string) mgl32.Quat {
	q := mgl32.QuatIdent()
	for steps := 0; id != "" && steps <= s.entities.len(); steps++ {
		e, ok := s.entities.get(id)
		if !ok {
			break
		}
		q = quat(e.Rotation).Normalize().Mul(q)
		id = string(e.ParentID)
	}
	return q
}

// WorldTransform returns the world-space position and rotation of an entity.
func (s *Store) WorldTransform(id string) (Triplet, Quad, error) {
	m, err := s.WorldMatrix(id)
	if err != nil {
		return Triplet{}, Quad{}, err
	}
	p := m.Col(3)
	return Triplet{p[0], p[1], p[2]}, quad(s.worldRotation(id)), nil
}

// UpdateGlobalTransform stores a world-space pose as the local transform
// relative to the entity's current parent. Scale is left as is.
func (s *Store) UpdateGlobalTransform(id string, position Triplet, rotation Quad) error {
	e, ok := s.entities.get(id)
	if !ok {
		return notFound("entity", id)
	}
	parentWorld := mgl32.Ident4()
	parentRot := mgl32.QuatIdent()
	if e.ParentID != "" {
		var err error
		if parentWorld, err = s.WorldMatrix(string(e.ParentID)); err != nil {
			return err
		}
		parentRot = s.worldRotation(string(e.ParentID))
	}
	if mgl32.Abs(parentWorld.Det()) < 1e-12 {
		return errs.New(errs.CodeInvalidArgument, "entity %q: parent transform is singular", id)
	}
	local := parentWorld.Inv().Mul4x1(mgl32.Vec4{position[0], position[1], position[2], 1})
	rot := parentRot.Inverse().Mul(quat(rotation).Normalize()).Normalize()

	e.Position = Triplet{local[0], local[1], local[2]}
	e.Rotation = quad(rot)
	s.entities.put(id, e)
	return nil
}
