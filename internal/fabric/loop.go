package fabric

import (
	"sync"
	"time"
)

// Loop is the timer/event-loop adapter of spec component I: a
// single-threaded cooperative scheduler surface. Every handler callback
// it runs executes to completion before the next one starts, matching
// spec §5 ("within a callback the full sequence... runs to completion").
//
// Real async I/O (sockets) live outside the loop and hand events in via
// Post; the loop itself only multiplexes closures and timers onto one
// goroutine.
type Loop struct {
	jobs   chan func()
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewLoop creates a Loop with the given job queue depth.
func NewLoop(queueDepth int) *Loop {
	return &Loop{
		jobs:   make(chan func(), queueDepth),
		stopCh: make(chan struct{}),
	}
}

// Run processes jobs until Stop is called. Intended to be the only
// goroutine that touches state owned by fibers registered on this loop.
func (l *Loop) Run() {
	for {
		select {
		case job := <-l.jobs:
			job()
		case <-l.stopCh:
			return
		}
	}
}

// Post enqueues a job to run on the loop goroutine. Safe to call from
// any goroutine (e.g. the datagram fiber's read loop, or a timer).
func (l *Loop) Post(job func()) {
	select {
	case l.jobs <- job:
	case <-l.stopCh:
	}
}

// Timer is a cancellable, loop-affine timer: firing re-enters the loop
// via Post rather than running the callback on the timer's own
// goroutine.
type Timer struct {
	loop  *Loop
	timer *time.Timer
	mu    sync.Mutex
	fn    func()
}

// AfterFunc arms a Timer that, after d, posts fn onto the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{loop: l, fn: fn}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			t.mu.Lock()
			f := t.fn
			t.mu.Unlock()
			if f != nil {
				f()
			}
		})
	})
	return t
}

// Reset reschedules the timer to fire after d with a (possibly new) fn.
// Must be called from the loop goroutine.
func (t *Timer) Reset(d time.Duration, fn func()) {
	t.mu.Lock()
	t.fn = fn
	t.mu.Unlock()
	t.timer.Reset(d)
}

// Stop cancels the timer. Idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.fn = nil
	t.mu.Unlock()
	t.timer.Stop()
}

// Stop shuts the loop down. Idempotent.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}
