// Package physics is the Physics context: it mirrors bodies built from entity
// colliders, steps them on a ticker while started, and sends moved poses back
// to the Game context.
package physics

import (
	"context"
	"log/slog"
	"time"

	"scene-engine/internal/envelope"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/worker"
)

// Name is the context name used in logs and error reports.
const Name = "physics"

// Options configures the Physics context.
type Options struct {
	Inbox   *envelope.Mailbox // physics channel
	Game    *envelope.Mailbox // receives transforms
	Engine  *envelope.Mailbox // receives error reports
	TickHz  float64
	Gravity [3]float32
	Log     *slog.Logger
}

// Physics owns the simulation world. All state lives on the loop goroutine.
type Physics struct {
	world    *World
	loop     *worker.Loop
	game     *envelope.Mailbox
	interval time.Duration
}

// New builds the context and registers its handlers.
func New(opts Options) *Physics {
	if opts.TickHz <= 0 {
		opts.TickHz = 60
	}
	p := &Physics{
		world:    NewWorld(),
		game:     opts.Game,
		interval: time.Duration(float64(time.Second) / opts.TickHz),
	}
	if opts.Gravity != ([3]float32{}) {
		p.world.SetGravity(opts.Gravity)
	}
	r := envelope.NewRouter(envelope.ChannelPhysics)
	envelope.On(r, envelope.Start, p.start)
	envelope.On(r, envelope.Stop, p.stop)
	envelope.On(r, envelope.SetGravity, func(_ context.Context, v envelope.Vector) error {
		p.world.SetGravity(v.Value)
		return nil
	})
	envelope.On(r, envelope.StepOnce, func(_ context.Context, s envelope.Step) error {
		if s.Dt <= 0 {
			return errs.New(errs.CodeInvalidArgument, "step dt must be positive, got %v", s.Dt)
		}
		p.step(s.Dt)
		return nil
	})
	envelope.On(r, envelope.SyncBodies, func(_ context.Context, b envelope.Bodies) error {
		p.world.Reset()
		for _, body := range b.Bodies {
			p.world.Put(NewBody(body))
		}
		return nil
	})
	envelope.On(r, envelope.BodyAdded, p.putBody)
	envelope.On(r, envelope.BodyUpdated, p.putBody)
	envelope.On(r, envelope.BodyRemoved, func(_ context.Context, t envelope.Target) error {
		p.world.Remove(t.ID)
		return nil
	})
	p.loop = worker.New(Name, opts.Inbox, r, opts.Engine, opts.Log)
	return p
}

// Run processes envelopes until ctx is done.
func (p *Physics) Run(ctx context.Context) error {
	return p.loop.Run(ctx)
}

func (p *Physics) putBody(_ context.Context, b envelope.BodyData) error {
	p.world.Put(NewBody(b.Body))
	return nil
}

func (p *Physics) start(context.Context, envelope.Signal) error {
	if p.loop.Ticking() {
		return nil
	}
	dt := float32(p.interval.Seconds())
	p.loop.StartTicking(p.interval, func(context.Context) error {
		p.step(dt)
		return nil
	})
	p.loop.Logger().Info("simulation started", "bodies", len(p.world.Bodies()))
	return nil
}

func (p *Physics) stop(context.Context, envelope.Signal) error {
	if p.loop.Ticking() {
		p.loop.StopTicking()
		p.loop.Logger().Info("simulation stopped")
	}
	return nil
}

func (p *Physics) step(dt float32) {
	moved := p.world.Step(dt)
	if len(moved) == 0 {
		return
	}
	poses := envelope.Poses{Poses: make([]envelope.Pose, 0, len(moved))}
	for _, b := range moved {
		poses.Poses = append(poses.Poses, b.Pose())
	}
	p.loop.Emit(p.game, envelope.ChannelScene, envelope.Transforms, poses)
}
