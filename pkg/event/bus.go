package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwalitptl/eventrelay/pkg/logger"
)

// Phase selects when a listener runs relative to the state change it observes.
type Phase int

const (
	// PhasePre listeners run right before the change commits.
	PhasePre Phase = iota
	// PhasePost listeners run right after.
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhasePost:
		return "post"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Event is what a listener receives: the event tag plus the named entities involved.
type Event struct {
	Type     string
	Entities map[string]interface{}
}

// Entity returns a named entity from the event, or nil.
func (e Event) Entity(name string) interface{} {
	if e.Entities == nil {
		return nil
	}
	return e.Entities[name]
}

// Listener observes domain events of the tag it was registered for.
type Listener interface {
	OnEvent(ctx context.Context, evt Event) error
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ctx context.Context, evt Event) error

func (f ListenerFunc) OnEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Bus is the in-process registry of pre/post listeners keyed by event tag.
// It holds no business state and persists nothing.
type Bus struct {
	mu      sync.RWMutex
	pre     map[string][]Listener
	post    map[string][]Listener
	isolate bool
	logger  *logger.Logger
}

type BusOption func(*Bus)

// WithIsolation makes Notify log listener errors and keep going instead of
// returning the first one.
func WithIsolation(l *logger.Logger) BusOption {
	return func(b *Bus) {
		b.isolate = true
		if l != nil {
			b.logger = l
		}
	}
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		pre:    make(map[string][]Listener),
		post:   make(map[string][]Listener),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register appends listener to the tag's list for the given phase. There is no unregister.
func (b *Bus) Register(tag string, listener Listener, phase Phase) {
	if listener == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch phase {
	case PhasePre:
		b.pre[tag] = append(b.pre[tag], listener)
	case PhasePost:
		b.post[tag] = append(b.post[tag], listener)
	}
}

// Notify calls every listener registered for tag and phase, synchronously and in
// registration order. Unless the bus was built WithIsolation, the first listener
// error stops the remaining listeners and is returned to the caller.
func (b *Bus) Notify(ctx context.Context, tag string, phase Phase, entities map[string]interface{}) error {
	b.mu.RLock()
	var listeners []Listener
	switch phase {
	case PhasePre:
		listeners = append(listeners, b.pre[tag]...)
	case PhasePost:
		listeners = append(listeners, b.post[tag]...)
	}
	b.mu.RUnlock()

	evt := Event{Type: tag, Entities: entities}
	for _, l := range listeners {
		if err := l.OnEvent(ctx, evt); err != nil {
			if b.isolate {
				b.logger.Error(err, "Domain event listener failed", "event_type", tag, "phase", phase.String())
				continue
			}
			return err
		}
	}
	return nil
}

// ListenerCount is mostly useful for diagnostics and tests.
func (b *Bus) ListenerCount(tag string, phase Phase) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if phase == PhasePre {
		return len(b.pre[tag])
	}
	return len(b.post[tag])
}
