package envelope

import (
	"reflect"
	"sync"

	"github.com/jinzhu/copier"

	errs "scene-engine/internal/errors"
)

// Mailbox is an unbounded FIFO of envelopes for one receiving context.
// Send never blocks; envelopes from one sender are received in send order.
type Mailbox struct {
	name   string
	mu     sync.Mutex
	queue  []Envelope
	notify chan struct{}
	closed bool
}

// NewMailbox returns an open, empty mailbox.
func NewMailbox(name string) *Mailbox {
	return &Mailbox{name: name, notify: make(chan struct{}, 1)}
}

// Name returns the receiving context name.
func (m *Mailbox) Name() string { return m.name }

// Send enqueues env. Sending to a closed mailbox is a lifecycle error.
func (m *Mailbox) Send(env Envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errs.New(errs.CodeLifecycle, "mailbox %s is closed", m.name).With("subject", string(env.Subject))
	}
	m.queue = append(m.queue, env)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Ready fires after at least one Send since the last Drain.
func (m *Mailbox) Ready() <-chan struct{} { return m.notify }

// Drain removes and returns every pending envelope in arrival order.
func (m *Mailbox) Drain() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

// Len returns the number of pending envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close rejects later sends and discards pending envelopes, returning how
// many were dropped. Ready fires once more so a waiting receiver notices.
// Closing twice is a no-op.
func (m *Mailbox) Close() int {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0
	}
	m.closed = true
	dropped := len(m.queue)
	m.queue = nil
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Closed reports whether Close was called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Post sends data to mb under the given channel and subject. Transferable
// payloads move their buffers (the sender's copy is cleared), Cloner payloads
// copy themselves, and anything else is deep-copied.
func Post(mb *Mailbox, origin string, ch Channel, subject Subject, data any) error {
	if !Known(ch, subject) {
		return errs.New(errs.CodeProtocol, "subject %q is not part of channel %s", subject, ch).
			With("subject", string(subject))
	}
	payload, err := detach(data)
	if err != nil {
		return errs.Wrap(errs.CodeProtocol, err, "copy %s payload", subject).With("subject", string(subject))
	}
	return mb.Send(Envelope{Channel: ch, Subject: subject, Data: payload, Origin: origin})
}

// detach returns a payload that shares no mutable memory with data.
func detach(data any) (any, error) {
	switch d := data.(type) {
	case nil:
		return nil, nil
	case Transferable:
		return d.Transfer(), nil
	case Cloner:
		return d.CloneData(), nil
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Map:
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	default:
		return data, nil
	}
	if v.Kind() == reflect.Struct && v.NumField() == 0 {
		return v.Interface(), nil
	}
	dst := reflect.New(v.Type())
	if err := copier.CopyWithOption(dst.Interface(), v.Interface(), copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return dst.Elem().Interface(), nil
}
