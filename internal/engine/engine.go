// Package engine is the orchestrator: it owns the Game, Render and Physics
// contexts, performs the one-time startup handshake, validates commands
// against a mirror of the scene and forwards them as envelopes.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hack-pad/hackpadfs"
	"golang.org/x/sync/errgroup"

	"scene-engine/internal/assets"
	"scene-engine/internal/engineconfig"
	"scene-engine/internal/envelope"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/game"
	"scene-engine/internal/physics"
	"scene-engine/internal/render"
	"scene-engine/internal/scene"
)

// State is the orchestrator lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initializing
	Running
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// errorBuffer is how many error reports Errors() holds before dropping.
const errorBuffer = 64

// backlogCheck is how often mailbox depths are compared to the warn depth.
const backlogCheck = time.Second

// Options configures an Engine.
type Options struct {
	Prefs engineconfig.Prefs
	Log   *slog.Logger
	// Backend draws render frames; nil uses a headless backend.
	Backend render.Backend
	// Assets is where render resolves skybox files. Nil uses the engine's
	// asset stage, which holds every file passed to AddFile.
	Assets hackpadfs.FS
	// Client downloads AddURL assets; nil uses assets.DefaultClient.
	Client *http.Client

	// readyGate, when set, holds the Game context's readiness back until
	// it is closed.
	readyGate <-chan struct{}
}

// worker is one running context.
type worker struct {
	name   string
	inbox  *envelope.Mailbox
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine is the public API. All methods are safe for concurrent use.
type Engine struct {
	prefs   engineconfig.Prefs
	log     *slog.Logger
	backend render.Backend
	stage   *assets.Stage
	assets  hackpadfs.FS
	client  *http.Client

	mu     sync.Mutex
	state  State
	mirror *scene.Store
	// seq numbers caller poses; moved holds the latest one per entity so
	// simulated poses applied before it are not written back over it.
	seq   uint64
	moved map[string]uint64

	sceneMB, renderMB, physicsMB, engineMB *envelope.Mailbox

	// workers in teardown order.
	workers []*worker
	group   *errgroup.Group
	cancel  context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	readyGate <-chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
	errors    chan envelope.ErrorData
}

// New builds an engine in the Uninitialized state.
func New(opts Options) (*Engine, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	stage, err := assets.NewStage()
	if err != nil {
		return nil, err
	}
	fs := opts.Assets
	if fs == nil {
		fs = stage.FS()
	}
	if opts.Client == nil {
		opts.Client = assets.DefaultClient
	}
	return &Engine{
		client:    opts.Client,
		readyGate: opts.readyGate,
		prefs:     opts.Prefs,
		log:       opts.Log.With("context", "engine"),
		backend:   opts.Backend,
		stage:     stage,
		assets:    fs,
		mirror:    scene.New(),
		moved:     make(map[string]uint64),
		ready:     make(chan struct{}),
		stopped:   make(chan struct{}),
		errors:    make(chan envelope.ErrorData, errorBuffer),
	}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Errors delivers structured failures reported by the contexts. It is closed
// after Destroy.
func (e *Engine) Errors() <-chan envelope.ErrorData { return e.errors }

// Start builds the contexts and blocks until the Game context signals
// readiness, the handshake timeout expires, ctx is done or Destroy is called.
// On any failure the engine is destroyed.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Uninitialized {
		st := e.state
		e.mu.Unlock()
		return errs.New(errs.CodeLifecycle, "start: engine is %s", st)
	}
	e.state = Initializing
	e.launch()
	e.mu.Unlock()

	timeout := e.prefs.HandshakeTimeout()
	if timeout <= 0 {
		timeout = engineconfig.Default().HandshakeTimeout()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.ready:
	case <-timer.C:
		e.Destroy()
		return errs.New(errs.CodeHandshakeTimeout, "game context not ready after %s", timeout)
	case <-ctx.Done():
		e.Destroy()
		return errs.Wrap(errs.CodeLifecycle, ctx.Err(), "start cancelled")
	case <-e.stopped:
		return errs.New(errs.CodeLifecycle, "engine destroyed during startup")
	}

	e.mu.Lock()
	if e.state != Initializing {
		e.mu.Unlock()
		return errs.New(errs.CodeLifecycle, "engine destroyed during startup")
	}
	e.state = Running
	e.mu.Unlock()
	e.log.Info("engine running")
	e.applyPrefs()
	return nil
}

// launch creates mailboxes and runs every context. Called with mu held.
func (e *Engine) launch() {
	e.sceneMB = envelope.NewMailbox(game.Name)
	e.renderMB = envelope.NewMailbox(render.Name)
	e.physicsMB = envelope.NewMailbox(physics.Name)
	e.engineMB = envelope.NewMailbox("engine")

	g := game.New(game.Options{
		Inbox:   e.sceneMB,
		Render:  e.renderMB,
		Physics: e.physicsMB,
		Engine:  e.engineMB,
		Log:     e.log,
	})
	r := render.New(render.Options{
		Inbox:   e.renderMB,
		Engine:  e.engineMB,
		Backend: e.backend,
		Assets:  e.assets,
		FrameHz: e.prefs.RenderHz,
		Log:     e.log,
	})
	p := physics.New(physics.Options{
		Inbox:   e.physicsMB,
		Game:    e.sceneMB,
		Engine:  e.engineMB,
		TickHz:  e.prefs.PhysicsHz,
		Gravity: e.prefs.Gravity,
		Log:     e.log,
	})

	base, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	group, gctx := errgroup.WithContext(base)
	e.group = group

	run := func(name string, inbox *envelope.Mailbox, fn func(context.Context) error) *worker {
		ctx, cancel := context.WithCancel(gctx)
		w := &worker{name: name, inbox: inbox, cancel: cancel, done: make(chan struct{})}
		group.Go(func() error {
			defer close(w.done)
			return fn(ctx)
		})
		return w
	}
	e.workers = []*worker{
		run(render.Name, e.renderMB, r.Run),
		run(physics.Name, e.physicsMB, p.Run),
		run(game.Name, e.sceneMB, g.Run),
	}
	group.Go(func() error {
		e.pump(gctx)
		return nil
	})
}

// pump drains upward reports: readiness, errors and applied poses.
func (e *Engine) pump(ctx context.Context) {
	ticker := time.NewTicker(backlogCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.engineMB.Close()
			return
		case <-ticker.C:
			e.checkBacklog()
		case <-e.engineMB.Ready():
			for _, env := range e.engineMB.Drain() {
				e.report(env)
			}
			if e.engineMB.Closed() {
				return
			}
		}
	}
}

func (e *Engine) report(env envelope.Envelope) {
	switch d := env.Data.(type) {
	case envelope.ReadyData:
		if d.Context == game.Name {
			e.signalReady()
		}
	case envelope.ErrorData:
		select {
		case e.errors <- d:
		default:
			e.log.Warn("error report dropped: queue full", "from", d.Context, "subject", d.Subject)
		}
	case envelope.Poses:
		e.mu.Lock()
		for _, p := range d.Poses {
			if p.Seq < e.moved[p.ID] {
				e.log.Debug("stale pose dropped", "entity", p.ID, "seq", p.Seq)
				continue
			}
			if err := e.mirror.UpdateGlobalTransform(p.ID, p.Position, p.Rotation); err != nil {
				e.log.Debug("mirror pose dropped", "entity", p.ID, "error", err)
			}
		}
		e.mu.Unlock()
	default:
		e.log.Warn("unexpected upward envelope", "subject", env.Subject, "origin", env.Origin)
	}
}

func (e *Engine) signalReady() {
	open := func() { e.readyOnce.Do(func() { close(e.ready) }) }
	if e.readyGate == nil {
		open()
		return
	}
	go func() {
		select {
		case <-e.readyGate:
			open()
		case <-e.stopped:
		}
	}()
}

func (e *Engine) checkBacklog() {
	limit := e.prefs.MailboxWarnDepth
	if limit <= 0 {
		return
	}
	for _, mb := range []*envelope.Mailbox{e.sceneMB, e.renderMB, e.physicsMB, e.engineMB} {
		if n := mb.Len(); n > limit {
			e.log.Warn("mailbox backlog", "mailbox", mb.Name(), "depth", n, "limit", limit)
		}
	}
}

// applyPrefs forwards configured render settings once running.
func (e *Engine) applyPrefs() {
	var err error
	if e.prefs.Skybox != "" {
		err = e.SetSkybox(e.prefs.Skybox)
	}
	if err == nil && e.prefs.DefaultAvatar != "" {
		err = e.SetDefaultAvatar(e.prefs.DefaultAvatar)
	}
	if err == nil && e.prefs.AnimationsPath != "" {
		err = e.SetAnimationsPath(e.prefs.AnimationsPath)
	}
	if err == nil && e.prefs.Visuals {
		err = e.SetVisuals(true)
	}
	if err != nil {
		e.log.Warn("apply preferences", "error", err)
	}
}

// Destroy tears the contexts down (render, then physics, then game) and
// moves to Destroyed. It is idempotent and safe in any state.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.state == Destroyed {
		e.mu.Unlock()
		return
	}
	prev := e.state
	e.state = Destroyed
	e.mu.Unlock()
	e.stopOnce.Do(func() { close(e.stopped) })

	if prev != Uninitialized {
		for _, w := range e.workers {
			w.cancel()
			<-w.done
			e.log.Debug("context destroyed", "name", w.name)
		}
		e.cancel()
		if err := e.group.Wait(); err != nil {
			e.log.Error("context exited with error", "error", err)
		}
	}
	close(e.errors)
	e.log.Info("engine destroyed")
}
