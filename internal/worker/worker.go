// Package worker runs one execution context: it drains the context's mailbox
// in order, routes each envelope, and turns failures into error envelopes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scene-engine/internal/envelope"
	errs "scene-engine/internal/errors"
	"scene-engine/internal/telemetry"
)

// TickFunc runs on every tick of a started loop.
type TickFunc func(ctx context.Context) error

// Loop is the run loop of one context. Handlers and the tick function all run
// on the loop goroutine, so context state needs no locking.
type Loop struct {
	name   string
	inbox  *envelope.Mailbox
	router *envelope.Router
	upward *envelope.Mailbox
	log    *slog.Logger
	tracer trace.Tracer

	ticker *time.Ticker
	tick   TickFunc
}

// New returns a loop named name that reads inbox and reports failures to
// upward. upward may be nil, in which case failures are only logged.
func New(name string, inbox *envelope.Mailbox, router *envelope.Router, upward *envelope.Mailbox, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		name:   name,
		inbox:  inbox,
		router: router,
		upward: upward,
		log:    log.With("context", name),
		tracer: otel.Tracer(telemetry.TracerName),
	}
}

// Name returns the context name.
func (l *Loop) Name() string { return l.name }

// Logger returns the context-tagged logger.
func (l *Loop) Logger() *slog.Logger { return l.log }

// StartTicking calls fn every interval until StopTicking. Only call it from a
// handler or tick running on this loop.
func (l *Loop) StartTicking(interval time.Duration, fn TickFunc) {
	l.StopTicking()
	if interval <= 0 {
		interval = time.Second / 60
	}
	l.ticker = time.NewTicker(interval)
	l.tick = fn
}

// StopTicking stops the ticker, if any.
func (l *Loop) StopTicking() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	l.ticker = nil
	l.tick = nil
}

// Ticking reports whether a ticker is active.
func (l *Loop) Ticking() bool { return l.ticker != nil }

// Run processes envelopes until ctx is cancelled or the inbox is closed.
// Pending envelopes are discarded on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer l.StopTicking()
	l.log.Debug("context started")
	for {
		var tickC <-chan time.Time
		if l.ticker != nil {
			tickC = l.ticker.C
		}
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-l.inbox.Ready():
			for _, env := range l.inbox.Drain() {
				if ctx.Err() != nil {
					break
				}
				l.Dispatch(ctx, env)
			}
			if l.inbox.Closed() {
				l.log.Debug("context stopped: inbox closed")
				return nil
			}
		case <-tickC:
			l.runTick(ctx)
		}
	}
}

func (l *Loop) shutdown() {
	if dropped := l.inbox.Close(); dropped > 0 {
		l.log.Debug("discarded in-flight envelopes", "count", dropped)
	}
	l.log.Debug("context stopped")
}

// Dispatch routes one envelope with panic recovery and tracing.
func (l *Loop) Dispatch(ctx context.Context, env envelope.Envelope) {
	ctx, span := l.tracer.Start(ctx, "envelope "+string(env.Subject), trace.WithAttributes(
		attribute.String("engine.context", l.name),
		attribute.String("envelope.channel", string(env.Channel)),
		attribute.String("envelope.subject", string(env.Subject)),
		attribute.String("envelope.origin", env.Origin),
	))
	defer span.End()

	err := l.guard(func() error { return l.router.Dispatch(ctx, env) })
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	l.fail(env.Subject, err)
}

func (l *Loop) runTick(ctx context.Context) {
	if l.tick == nil {
		return
	}
	fn := l.tick
	if err := l.guard(func() error { return fn(ctx) }); err != nil {
		l.fail("tick", err)
	}
}

// guard converts a panic in fn into a CONTEXT_FAILURE error.
func (l *Loop) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.CodeContextFailure, "%s: panic: %v", l.name, r).With("stack", string(debug.Stack()))
		}
	}()
	return fn()
}

// fail logs err; anything but a protocol error is also reported upward.
func (l *Loop) fail(subject envelope.Subject, err error) {
	code := errs.CodeOf(err)
	if code == errs.CodeProtocol {
		l.log.Warn("dropped envelope", "subject", subject, "error", err)
		return
	}
	l.log.Error("envelope failed", "subject", subject, "code", code, "error", err)
	l.Report(subject, err)
}

// Report sends err upward as an engine/error envelope.
func (l *Loop) Report(subject envelope.Subject, err error) {
	if l.upward == nil {
		return
	}
	data := envelope.ErrorData{
		Context: l.name,
		Subject: subject,
		Code:    string(errs.CodeOf(err)),
		Message: err.Error(),
	}
	if postErr := envelope.Post(l.upward, l.name, envelope.ChannelEngine, envelope.Error, data); postErr != nil {
		l.log.Debug("error report dropped", "error", fmt.Sprint(postErr))
	}
}

// Emit posts data to mb, logging instead of failing when mb is closed.
func (l *Loop) Emit(mb *envelope.Mailbox, ch envelope.Channel, subject envelope.Subject, data any) {
	if mb == nil {
		return
	}
	if err := envelope.Post(mb, l.name, ch, subject, data); err != nil {
		l.log.Debug("emit failed", "to", mb.Name(), "subject", subject, "error", err)
	}
}
