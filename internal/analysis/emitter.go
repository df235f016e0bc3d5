package analysis

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// emitter is the producer side of a run's event channel. Lifecycle events
// block until delivered or the context ends; progress and debug events are
// dropped when the channel is full.
type emitter struct {
	ctx     context.Context
	out     chan<- Event
	debug   *rate.Limiter
	dropped atomic.Int64
}

func (e *emitter) send(ev Event) bool {
	select {
	case e.out <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *emitter) offer(ev Event) {
	select {
	case e.out <- ev:
	default:
		e.dropped.Add(1)
	}
}

func (e *emitter) droppedCount() int64 {
	return e.dropped.Load()
}

func (e *emitter) reporter(index int) *indexReporter {
	return &indexReporter{e: e, index: index}
}

// indexReporter forwards scorer notifications for one site. Calls after
// close are ignored, so a scorer that reports late can never write to a
// closed channel or interleave with the next site.
type indexReporter struct {
	mu     sync.Mutex
	e      *emitter
	index  int
	closed bool
}

func (r *indexReporter) Progress(phase string, p, of int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.e.offer(Event{KindProgress, ProgressPayload{Index: r.index, Phase: phase, P: p, Of: of}})
}

func (r *indexReporter) Debug(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if !r.e.debug.Allow() {
		r.e.dropped.Add(1)
		return
	}
	r.e.offer(Event{KindDebug, DebugPayload{Index: r.index, Message: msg}})
}

func (r *indexReporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
