package events

import (
	"strings"
	"time"
)

// Kind is a dotted event name, e.g. "turn_state.started".
type Kind string

// Namespace returns the part of the kind before the first dot.
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by every panel event.
type Base struct {
	kind Kind
	at   time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, at: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.at }

// Handler receives events. Handlers are called synchronously from the
// orchestrator and must not block.
type Handler func(Event)

// Handlers fans an event out to every non-nil handler in order.
func Handlers(handlers ...Handler) Handler {
	active := make([]Handler, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			active = append(active, handler)
		}
	}

	return func(event Event) {
		for _, handler := range active {
			handler(event)
		}
	}
}
