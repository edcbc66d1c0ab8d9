package autosave

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
)

// Loop runs posted tasks one at a time, in order. Everything that touches the
// engine runs on the loop, so no task ever observes another half-done.
//
// Use either Run (one goroutine owns the loop) or Drain (the caller runs
// pending tasks inline, as tests do), not both at once.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	log *log.Logger
}

func NewLoop(logger *log.Logger) *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		log:  orDiscard(logger),
	}
}

// Post enqueues fn. Safe from any goroutine, including from inside a task.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending reports the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs queued tasks, including ones they post, until the queue is
// empty. It returns the number of tasks run.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.pop()
		if !ok {
			return n
		}
		l.runTask(fn)
		n++
	}
}

// Run processes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Printf("WARN task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}
