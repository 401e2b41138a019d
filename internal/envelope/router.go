package envelope

import (
	"context"

	errs "scene-engine/internal/errors"
)

// Handler applies one envelope. A returned error is reported upward; the
// receiving context keeps processing later envelopes.
type Handler func(ctx context.Context, env Envelope) error

// Router maps the subjects of one channel to handlers.
type Router struct {
	channel  Channel
	handlers map[Subject]Handler
}

// NewRouter returns an empty router for ch.
func NewRouter(ch Channel) *Router {
	return &Router{channel: ch, handlers: make(map[Subject]Handler)}
}

// Channel returns the channel this router serves.
func (r *Router) Channel() Channel { return r.channel }

// Handle registers h for subject. Subjects outside the channel's set panic,
// since that is a programming error.
func (r *Router) Handle(subject Subject, h Handler) {
	if !Known(r.channel, subject) {
		panic("envelope: subject " + string(subject) + " not in channel " + string(r.channel))
	}
	r.handlers[subject] = h
}

// On registers a handler that receives the payload already asserted to T.
// A payload of another type is a protocol error.
func On[T any](r *Router, subject Subject, fn func(ctx context.Context, data T) error) {
	r.Handle(subject, func(ctx context.Context, env Envelope) error {
		data, ok := env.Data.(T)
		if !ok {
			return errs.New(errs.CodeProtocol, "malformed %s payload: got %T", subject, env.Data).
				With("subject", string(subject))
		}
		return fn(ctx, data)
	})
}

// Dispatch runs the handler for env. Unknown or unregistered subjects are
// protocol errors.
func (r *Router) Dispatch(ctx context.Context, env Envelope) error {
	h, ok := r.handlers[env.Subject]
	if !ok || (env.Channel != "" && env.Channel != r.channel) {
		return errs.New(errs.CodeProtocol, "unknown subject %q on channel %s", env.Subject, r.channel).
			With("subject", string(env.Subject))
	}
	return h(ctx, env)
}
