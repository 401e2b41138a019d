package engine

import (
	"context"

	"scene-engine/internal/assets"
	"scene-engine/internal/envelope"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/gltf"
	"scene-engine/internal/scene"
)

const origin = "engine"

// running must be called with mu held.
func (e *Engine) running(op string) error {
	if e.state != Running {
		return errs.New(errs.CodeLifecycle, "%s: engine is %s", op, e.state).With("op", op)
	}
	return nil
}

// do runs fn with mu held once the engine is Running.
func (e *Engine) do(op string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.running(op); err != nil {
		return err
	}
	return fn()
}

func (e *Engine) toGame(subject envelope.Subject, data any) error {
	return envelope.Post(e.sceneMB, origin, envelope.ChannelScene, subject, data)
}

func (e *Engine) toRender(subject envelope.Subject, data any) error {
	return envelope.Post(e.renderMB, origin, envelope.ChannelRender, subject, data)
}

func (e *Engine) toPhysics(subject envelope.Subject, data any) error {
	return envelope.Post(e.physicsMB, origin, envelope.ChannelPhysics, subject, data)
}

// nextSeq stamps a caller pose for id. Called with mu held.
func (e *Engine) nextSeq(id string) uint64 {
	e.seq++
	e.moved[id] = e.seq
	return e.seq
}

// LoadJSON replaces the scene with a snapshot document.
func (e *Engine) LoadJSON(b []byte) error {
	return e.do("load_json", func() error {
		if err := e.mirror.LoadJSON(b); err != nil {
			return err
		}
		clear(e.moved)
		snap := e.mirror.Snapshot()
		return e.toGame(envelope.LoadJSON, &envelope.Snapshot{Scene: snap})
	})
}

// AddEntity adds an entity and returns its id.
func (e *Engine) AddEntity(ent scene.Entity) (id string, err error) {
	err = e.do("add_entity", func() error {
		if id, err = e.mirror.AddEntity(ent); err != nil {
			return err
		}
		stored, _ := e.mirror.Entity(id)
		return e.toGame(envelope.AddEntity, envelope.EntityData{Entity: stored})
	})
	return id, err
}

// RemoveEntity removes an entity; its children move up to its parent.
func (e *Engine) RemoveEntity(id string) error {
	return e.do("remove_entity", func() error {
		if _, err := e.mirror.RemoveEntity(id); err != nil {
			return err
		}
		delete(e.moved, id)
		return e.toGame(envelope.RemoveEntity, envelope.Target{ID: id})
	})
}

// UpdateEntity patches an entity.
func (e *Engine) UpdateEntity(id string, patch scene.EntityPatch) error {
	return e.do("update_entity", func() error {
		if err := e.mirror.UpdateEntity(id, patch); err != nil {
			return err
		}
		u := envelope.EntityUpdate{ID: id, Patch: patch}
		if patch.TouchesTransform() {
			u.Seq = e.nextSeq(id)
		}
		return e.toGame(envelope.UpdateEntity, u)
	})
}

// UpdateGlobalTransform sets an entity's world position and rotation.
func (e *Engine) UpdateGlobalTransform(id string, position scene.Triplet, rotation scene.Quad) error {
	return e.do("update_global_transform", func() error {
		if err := e.mirror.UpdateGlobalTransform(id, position, rotation); err != nil {
			return err
		}
		return e.toGame(envelope.UpdateGlobalTransform, envelope.Pose{ID: id, Position: position, Rotation: rotation, Seq: e.nextSeq(id)})
	})
}

// AddMaterial adds a material and returns its id.
func (e *Engine) AddMaterial(m scene.Material) (id string, err error) {
	err = e.do("add_material", func() error {
		if id, err = e.mirror.AddMaterial(m); err != nil {
			return err
		}
		stored, _ := e.mirror.Material(id)
		return e.toGame(envelope.AddMaterial, envelope.MaterialData{Material: stored})
	})
	return id, err
}

func (e *Engine) RemoveMaterial(id string) error {
	return e.do("remove_material", func() error {
		if _, err := e.mirror.RemoveMaterial(id); err != nil {
			return err
		}
		return e.toGame(envelope.RemoveMaterial, envelope.Target{ID: id})
	})
}

func (e *Engine) UpdateMaterial(id string, patch scene.MaterialPatch) error {
	return e.do("update_material", func() error {
		if err := e.mirror.UpdateMaterial(id, patch); err != nil {
			return err
		}
		return e.toGame(envelope.UpdateMaterial, envelope.MaterialUpdate{ID: id, Patch: patch})
	})
}

// AddAccessor adds an accessor and returns its id. The Game context
// receives its own copy of the array.
func (e *Engine) AddAccessor(a scene.Accessor) (id string, err error) {
	err = e.do("add_accessor", func() error {
		if id, err = e.mirror.AddAccessor(a); err != nil {
			return err
		}
		stored, _ := e.mirror.Accessor(id)
		return e.toGame(envelope.AddAccessor, &envelope.AccessorData{Accessor: stored})
	})
	return id, err
}

func (e *Engine) RemoveAccessor(id string) error {
	return e.do("remove_accessor", func() error {
		if _, err := e.mirror.RemoveAccessor(id); err != nil {
			return err
		}
		return e.toGame(envelope.RemoveAccessor, envelope.Target{ID: id})
	})
}

// AddImage adds an image and returns its id.
func (e *Engine) AddImage(img scene.Image) (id string, err error) {
	err = e.do("add_image", func() error {
		if id, err = e.mirror.AddImage(img); err != nil {
			return err
		}
		stored, _ := e.mirror.Image(id)
		return e.toGame(envelope.AddImage, &envelope.ImageData{Image: stored})
	})
	return id, err
}

func (e *Engine) RemoveImage(id string) error {
	return e.do("remove_image", func() error {
		if _, err := e.mirror.RemoveImage(id); err != nil {
			return err
		}
		return e.toGame(envelope.RemoveImage, envelope.Target{ID: id})
	})
}

// AddAnimation adds an animation and returns its id.
func (e *Engine) AddAnimation(a scene.Animation) (id string, err error) {
	err = e.do("add_animation", func() error {
		if id, err = e.mirror.AddAnimation(a); err != nil {
			return err
		}
		stored, _ := e.mirror.Animation(id)
		return e.toGame(envelope.AddAnimation, envelope.AnimationData{Animation: stored})
	})
	return id, err
}

func (e *Engine) RemoveAnimation(id string) error {
	return e.do("remove_animation", func() error {
		if err := e.mirror.RemoveAnimation(id); err != nil {
			return err
		}
		return e.toGame(envelope.RemoveAnimation, envelope.Target{ID: id})
	})
}

// Sweep drops accessors and images nothing references and returns what
// was removed.
func (e *Engine) Sweep() (swept scene.Swept, err error) {
	err = e.do("sweep", func() error {
		swept = e.mirror.Sweep()
		return e.toGame(envelope.Sweep, envelope.Signal{})
	})
	return swept, err
}

// SetVisuals toggles collider and grid debug drawing.
func (e *Engine) SetVisuals(on bool) error {
	return e.do("set_visuals", func() error {
		return e.toGame(envelope.SetVisuals, envelope.Flag{Enabled: on})
	})
}

func (e *Engine) SetSkybox(uri string) error {
	return e.do("set_skybox", func() error {
		return e.toRender(envelope.SetSkybox, envelope.Path{URI: uri})
	})
}

func (e *Engine) SetDefaultAvatar(uri string) error {
	return e.do("set_default_avatar", func() error {
		return e.toRender(envelope.SetDefaultAvatar, envelope.Path{URI: uri})
	})
}

func (e *Engine) SetAnimationsPath(uri string) error {
	return e.do("set_animations_path", func() error {
		return e.toRender(envelope.SetAnimationsPath, envelope.Path{URI: uri})
	})
}

// StartRender starts the render frame loop.
func (e *Engine) StartRender() error {
	return e.do("start_render", func() error {
		return e.toRender(envelope.Start, envelope.Signal{})
	})
}

func (e *Engine) StopRender() error {
	return e.do("stop_render", func() error {
		return e.toRender(envelope.Stop, envelope.Signal{})
	})
}

// StartPhysics starts stepping the simulation.
func (e *Engine) StartPhysics() error {
	return e.do("start_physics", func() error {
		return e.toPhysics(envelope.Start, envelope.Signal{})
	})
}

func (e *Engine) StopPhysics() error {
	return e.do("stop_physics", func() error {
		return e.toPhysics(envelope.Stop, envelope.Signal{})
	})
}

func (e *Engine) SetGravity(g scene.Triplet) error {
	return e.do("set_gravity", func() error {
		return e.toPhysics(envelope.SetGravity, envelope.Vector{Value: g})
	})
}

// StepPhysics advances the simulation once by dt seconds.
func (e *Engine) StepPhysics(dt float32) error {
	if dt <= 0 {
		return errs.New(errs.CodeInvalidArgument, "step dt must be positive, got %v", dt)
	}
	return e.do("step", func() error {
		return e.toPhysics(envelope.StepOnce, envelope.Step{Dt: dt})
	})
}

// AddFile ingests one asset file. See AddFiles.
func (e *Engine) AddFile(f assets.File) (scene.Snapshot, error) {
	return e.AddFiles(f)
}

// AddFiles ingests a primary glTF asset plus side-car files (or zip
// bundles), adds every resulting record, and returns the added records.
// Either every record is added or none is.
func (e *Engine) AddFiles(files ...assets.File) (scene.Snapshot, error) {
	if err := e.do("add_files", func() error { return nil }); err != nil {
		return scene.Snapshot{}, err
	}
	snap, err := assets.IngestFiles(files, e.prefs.MaxTextureSize)
	if err != nil {
		return scene.Snapshot{}, err
	}
	err = e.do("add_files", func() error {
		if err := e.addSnapshot(snap); err != nil {
			return err
		}
		for _, f := range files {
			if err := e.stage.Add(f); err != nil {
				e.log.Debug("asset not kept for lookups", "file", f.Name, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return scene.Snapshot{}, err
	}
	e.log.Info("assets added", "files", len(files), "entities", len(snap.Entities), "images", len(snap.Images))
	return snap, nil
}

// AddURL fetches a remote asset and ingests it.
func (e *Engine) AddURL(ctx context.Context, url string) (scene.Snapshot, error) {
	f, err := assets.Fetch(ctx, e.client, url)
	if err != nil {
		return scene.Snapshot{}, errs.Wrap(errs.CodeNotFound, err, "fetch asset").With("url", url)
	}
	return e.AddFiles(f)
}

// addSnapshot validates every record on a copy of the mirror, then swaps the
// copy in and broadcasts the add_* envelopes. Called with mu held.
func (e *Engine) addSnapshot(snap scene.Snapshot) error {
	next := e.mirror.Clone()
	for _, img := range snap.Images {
		if _, err := next.AddImage(img); err != nil {
			return err
		}
	}
	for _, a := range snap.Accessors {
		if _, err := next.AddAccessor(a); err != nil {
			return err
		}
	}
	for _, m := range snap.Materials {
		if _, err := next.AddMaterial(m); err != nil {
			return err
		}
	}
	for _, ent := range snap.Entities {
		if _, err := next.AddEntity(ent); err != nil {
			return err
		}
	}
	for _, a := range snap.Animations {
		if _, err := next.AddAnimation(a); err != nil {
			return err
		}
	}
	e.mirror = next

	var posts []func() error
	for _, img := range snap.Images {
		img := img.Clone()
		posts = append(posts, func() error { return e.toGame(envelope.AddImage, &envelope.ImageData{Image: img}) })
	}
	for _, a := range snap.Accessors {
		a := a.Clone()
		posts = append(posts, func() error { return e.toGame(envelope.AddAccessor, &envelope.AccessorData{Accessor: a}) })
	}
	for _, m := range snap.Materials {
		posts = append(posts, func() error { return e.toGame(envelope.AddMaterial, envelope.MaterialData{Material: m}) })
	}
	for _, ent := range snap.Entities {
		posts = append(posts, func() error { return e.toGame(envelope.AddEntity, envelope.EntityData{Entity: ent}) })
	}
	for _, a := range snap.Animations {
		posts = append(posts, func() error { return e.toGame(envelope.AddAnimation, envelope.AnimationData{Animation: a}) })
	}
	for _, post := range posts {
		if err := post(); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of the orchestrator's view of the scene.
func (e *Engine) Snapshot() (snap scene.Snapshot, err error) {
	err = e.do("snapshot", func() error {
		snap = e.mirror.Snapshot()
		return nil
	})
	return snap, err
}

// SnapshotJSON serializes the scene as a snapshot document.
func (e *Engine) SnapshotJSON() (b []byte, err error) {
	err = e.do("snapshot", func() error {
		b, err = e.mirror.MarshalJSON()
		return err
	})
	return b, err
}

// Export packs the current scene into a GLB container.
func (e *Engine) Export() ([]byte, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	return gltf.ExportGLB(snap)
}
