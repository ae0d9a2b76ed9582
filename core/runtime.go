package orchestration

import (
	"sync"
	"sync/atomic"
	"time"
)

const listenerEventQueueCapacity = 32

type listenerEventKind int

const (
	transcriptEvent listenerEventKind = iota
	speechStartedEvent
	speechEndedEvent
)

func (k listenerEventKind) String() string {
	switch k {
	case transcriptEvent:
		return "transcript"
	case speechStartedEvent:
		return "speech_started"
	case speechEndedEvent:
		return "speech_ended"
	default:
		return "unknown"
	}
}

type queuedEvent struct {
	kind       listenerEventKind
	transcript string
	queuedAt   time.Time
}

// runtime serializes listener events onto a single goroutine so transcripts
// and voice activity are handled in the order the listener produced them.
type runtime struct {
	queue   chan queuedEvent
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func newRuntime() *runtime {
	return &runtime{
		queue:   make(chan queuedEvent, listenerEventQueueCapacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *runtime) start(process func(queuedEvent)) (started bool) {
	if r.isClosed() {
		return false
	}

	r.startOnce.Do(func() {
		if r.isClosed() {
			return
		}

		started = true
		r.started.Store(true)
		go func() {
			defer close(r.done)

			for {
				select {
				case <-r.closeCh:
					return
				case event := <-r.queue:
					if r.isClosed() {
						return
					}
					process(event)
				}
			}
		}()
	})

	return started
}

func (r *runtime) end() {
	r.endOnce.Do(func() { close(r.closeCh) })
}

func (r *runtime) waitUntilEnded() {
	if r.started.Load() {
		<-r.done
	}
}

// enqueue blocks while the queue is full so no event is dropped before the
// runtime is closed.
func (r *runtime) enqueue(kind listenerEventKind, transcript string) bool {
	if r.isClosed() {
		return false
	}

	event := queuedEvent{kind: kind, transcript: transcript, queuedAt: time.Now()}
	select {
	case <-r.closeCh:
		return false
	case r.queue <- event:
		return true
	}
}

func (r *runtime) isClosed() bool {
	select {
	case <-r.closeCh:
		return true
	default:
		return false
	}
}

func (r *runtime) queuedEventCount() int {
	return len(r.queue)
}
