// Package render is the Render context: it mirrors the drawable part of the
// scene from envelopes relayed by the Game context and hands frames to a
// Backend while started.
package render

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs"

	"scene-engine/internal/envelope"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/scene"
	"scene-engine/internal/worker"
)

// Name is the context name used in logs and error reports.
const Name = "render"

// Options configures the Render context.
type Options struct {
	Inbox   *envelope.Mailbox // render channel
	Engine  *envelope.Mailbox // receives error reports
	Backend Backend           // defaults to a Headless backend
	Assets  hackpadfs.FS      // where skybox files are looked up
	FrameHz float64
	Log     *slog.Logger
}

type entityState struct {
	entity scene.Entity
	world  mgl32.Mat4
}

// Render holds the mirror and render configuration. All state lives on the loop goroutine.
type Render struct {
	loop     *worker.Loop
	backend  Backend
	assets   hackpadfs.FS
	interval time.Duration

	entities  map[string]entityState
	materials map[string]scene.Material
	images    map[string]scene.Image
	accessors map[string]scene.Accessor

	skybox         Skybox
	defaultAvatar  string
	animationsPath string
	visuals        bool
	frame          uint64
}

// New builds the context and registers its handlers.
func New(opts Options) *Render {
	if opts.Backend == nil {
		opts.Backend = NewHeadless()
	}
	if opts.FrameHz <= 0 {
		opts.FrameHz = 60
	}
	r := &Render{
		backend:   opts.Backend,
		assets:    opts.Assets,
		interval:  time.Duration(float64(time.Second) / opts.FrameHz),
		entities:  make(map[string]entityState),
		materials: make(map[string]scene.Material),
		images:    make(map[string]scene.Image),
		accessors: make(map[string]scene.Accessor),
	}
	rt := envelope.NewRouter(envelope.ChannelRender)
	envelope.On(rt, envelope.SetSkybox, func(_ context.Context, p envelope.Path) error {
		r.skybox = ResolveSkybox(r.assets, p.URI)
		if p.URI != "" && !r.skybox.Resolved {
			r.loop.Logger().Warn("skybox not found", "uri", p.URI)
		}
		return nil
	})
	envelope.On(rt, envelope.SetDefaultAvatar, func(_ context.Context, p envelope.Path) error {
		r.defaultAvatar = p.URI
		return nil
	})
	envelope.On(rt, envelope.SetAnimationsPath, func(_ context.Context, p envelope.Path) error {
		r.animationsPath = p.URI
		return nil
	})
	envelope.On(rt, envelope.SetVisuals, func(_ context.Context, f envelope.Flag) error {
		r.visuals = f.Enabled
		return nil
	})
	envelope.On(rt, envelope.Start, r.start)
	envelope.On(rt, envelope.Stop, r.stop)
	envelope.On(rt, envelope.SyncScene, r.sync)
	envelope.On(rt, envelope.EntityAdded, r.putEntity)
	envelope.On(rt, envelope.EntityUpdated, r.putEntity)
	envelope.On(rt, envelope.EntityRemoved, func(_ context.Context, t envelope.Target) error {
		delete(r.entities, t.ID)
		return nil
	})
	envelope.On(rt, envelope.MaterialAdded, func(_ context.Context, m envelope.MaterialData) error {
		r.materials[m.Material.ID] = m.Material
		return nil
	})
	envelope.On(rt, envelope.MaterialRemoved, func(_ context.Context, t envelope.Target) error {
		delete(r.materials, t.ID)
		return nil
	})
	envelope.On(rt, envelope.ImageAdded, func(_ context.Context, img envelope.ImageData) error {
		if img.Image.Bitmap == nil {
			return errs.New(errs.CodeInvalidArgument, "image %q arrived without bitmap", img.Image.ID)
		}
		r.images[img.Image.ID] = img.Image
		return nil
	})
	envelope.On(rt, envelope.ImageRemoved, func(_ context.Context, t envelope.Target) error {
		delete(r.images, t.ID)
		return nil
	})
	envelope.On(rt, envelope.AccessorAdded, func(_ context.Context, a envelope.AccessorData) error {
		r.accessors[a.Accessor.ID] = a.Accessor
		return nil
	})
	envelope.On(rt, envelope.AccessorRemoved, func(_ context.Context, t envelope.Target) error {
		delete(r.accessors, t.ID)
		return nil
	})
	r.loop = worker.New(Name, opts.Inbox, rt, opts.Engine, opts.Log)
	return r
}

// Run processes envelopes until ctx is done, then closes the backend.
func (r *Render) Run(ctx context.Context) error {
	err := r.loop.Run(ctx)
	if cerr := r.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (r *Render) sync(_ context.Context, s envelope.Snapshot) error {
	clear(r.entities)
	clear(r.materials)
	clear(r.images)
	clear(r.accessors)
	for _, e := range s.Scene.Entities {
		world, ok := s.World[e.ID]
		if !ok {
			world = mgl32.Ident4()
		}
		r.entities[e.ID] = entityState{entity: e, world: mgl32.Mat4(world)}
	}
	for _, m := range s.Scene.Materials {
		r.materials[m.ID] = m
	}
	for _, img := range s.Scene.Images {
		r.images[img.ID] = img
	}
	for _, a := range s.Scene.Accessors {
		r.accessors[a.ID] = a
	}
	return nil
}

func (r *Render) putEntity(_ context.Context, e envelope.EntityData) error {
	r.entities[e.Entity.ID] = entityState{entity: e.Entity, world: mgl32.Mat4(e.World)}
	return nil
}

func (r *Render) start(context.Context, envelope.Signal) error {
	if r.loop.Ticking() {
		return nil
	}
	r.loop.StartTicking(r.interval, func(context.Context) error { return r.drawFrame() })
	return nil
}

func (r *Render) stop(context.Context, envelope.Signal) error {
	r.loop.StopTicking()
	return nil
}

// buildFrame assembles the draw list, sorted by entity id.
func (r *Render) buildFrame() Frame {
	r.frame++
	f := Frame{
		Number:         r.frame,
		Skybox:         r.skybox,
		DefaultAvatar:  r.defaultAvatar,
		AnimationsPath: r.animationsPath,
	}
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := r.entities[id]
		if st.entity.Mesh != nil {
			d := Draw{EntityID: id, World: st.world, Mesh: st.entity.Mesh}
			if m, ok := r.materials[string(st.entity.MaterialID)]; ok {
				d.Material = &m
			}
			f.Draws = append(f.Draws, d)
		}
		if r.visuals && st.entity.Collider != nil {
			f.Lines = append(f.Lines, ColliderLines(st.entity.Collider, st.world)...)
		}
	}
	if r.visuals {
		f.Lines = append(f.Lines, GridLines()...)
	}
	return f
}

func (r *Render) drawFrame() error {
	if err := r.backend.DrawFrame(r.buildFrame()); err != nil {
		return errs.Wrap(errs.CodeContextFailure, err, "draw frame %d", r.frame)
	}
	return nil
}
