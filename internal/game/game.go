// Package game is the Game context: it owns the authoritative scene store,
// applies scene commands, and relays the derived state to the Render and
// Physics contexts.
package game

import (
	"context"
	"log/slog"

	"scene-engine/internal/envelope"
	"scene-engine/internal/scene"
	"scene-engine/internal/worker"
)

// Name is the context name used in logs and error reports.
const Name = "game"

// Options configures the Game context.
type Options struct {
	Inbox   *envelope.Mailbox // scene channel
	Render  *envelope.Mailbox
	Physics *envelope.Mailbox
	Engine  *envelope.Mailbox // ready, error and transforms reports
	Log     *slog.Logger
}

// Game is the single writer of the scene store. All state lives on the loop goroutine.
type Game struct {
	store   *scene.Store
	loop    *worker.Loop
	render  *envelope.Mailbox
	physics *envelope.Mailbox
	engine  *envelope.Mailbox
	// bodies tracks which entities physics currently simulates.
	bodies map[string]bool
	// fence holds the last caller pose Seq applied per entity.
	fence map[string]uint64
}

// New builds the context and registers its handlers.
func New(opts Options) *Game {
	g := &Game{
		store:   scene.New(),
		render:  opts.Render,
		physics: opts.Physics,
		engine:  opts.Engine,
		bodies:  make(map[string]bool),
		fence:   make(map[string]uint64),
	}
	r := envelope.NewRouter(envelope.ChannelScene)
	envelope.On(r, envelope.LoadJSON, g.loadJSON)
	envelope.On(r, envelope.AddEntity, g.addEntity)
	envelope.On(r, envelope.RemoveEntity, g.removeEntity)
	envelope.On(r, envelope.UpdateEntity, g.updateEntity)
	envelope.On(r, envelope.UpdateGlobalTransform, g.updateGlobalTransform)
	envelope.On(r, envelope.AddMaterial, g.addMaterial)
	envelope.On(r, envelope.RemoveMaterial, g.removeMaterial)
	envelope.On(r, envelope.UpdateMaterial, g.updateMaterial)
	envelope.On(r, envelope.AddAccessor, g.addAccessor)
	envelope.On(r, envelope.RemoveAccessor, g.removeAccessor)
	envelope.On(r, envelope.AddImage, g.addImage)
	envelope.On(r, envelope.RemoveImage, g.removeImage)
	envelope.On(r, envelope.AddAnimation, func(_ context.Context, a envelope.AnimationData) error {
		_, err := g.store.AddAnimation(a.Animation)
		return err
	})
	envelope.On(r, envelope.RemoveAnimation, func(_ context.Context, t envelope.Target) error {
		return g.store.RemoveAnimation(t.ID)
	})
	envelope.On(r, envelope.SetVisuals, func(_ context.Context, f envelope.Flag) error {
		g.emitRender(envelope.SetVisuals, f)
		return nil
	})
	envelope.On(r, envelope.Sweep, g.sweep)
	envelope.On(r, envelope.Transforms, g.applyTransforms)
	g.loop = worker.New(Name, opts.Inbox, r, opts.Engine, opts.Log)
	return g
}

// Run signals readiness once and then processes envelopes until ctx is done.
func (g *Game) Run(ctx context.Context) error {
	g.loop.Emit(g.engine, envelope.ChannelEngine, envelope.Ready, envelope.ReadyData{Context: Name})
	return g.loop.Run(ctx)
}

func (g *Game) emitRender(subject envelope.Subject, data any) {
	g.loop.Emit(g.render, envelope.ChannelRender, subject, data)
}

func (g *Game) emitPhysics(subject envelope.Subject, data any) {
	g.loop.Emit(g.physics, envelope.ChannelPhysics, subject, data)
}
