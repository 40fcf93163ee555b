package syncengine

import (
	"context"
	"sync"
)

// serialExecutor runs submitted tasks one at a time, in submission order,
// on a single dedicated goroutine. It is an explicit single-threaded task
// executor in place of a language-specific dispatch queue: the writer
// domain and the push/pull lane are each one of these.
type serialExecutor struct {
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

func newSerialExecutor() *serialExecutor {
	e := &serialExecutor{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *serialExecutor) run() {
	defer e.wg.Done()
	for {
		select {
		case task, ok := <-e.tasks:
			if !ok {
				return
			}
			task()
		case <-e.done:
			// Drain remaining tasks before exiting so a Close
			// racing with a last-moment Submit never silently
			// drops work that was already accepted.
			for {
				select {
				case task, ok := <-e.tasks:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues fn and blocks until it has run, returning fn's error.
// Submitting after Close is a programmer error and returns immediately
// without running fn.
func (e *serialExecutor) Submit(fn func() error) error {
	resultCh := make(chan error, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.mu.Unlock()

	e.tasks <- func() {
		resultCh <- fn()
	}
	return <-resultCh
}

// Close stops accepting new work and waits for the current and
// already-queued tasks to finish.
func (e *serialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.tasks)
	close(e.done)
	e.wg.Wait()
}

// callbackExecutor is the bounded-parallelism executor (default 4) every
// user completion is dispatched on, never on the writer domain, so
// callers observe a single threading model regardless of entry point.
type callbackExecutor struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// DefaultCallbackConcurrency is the default callback fan-out width.
const DefaultCallbackConcurrency = 4

func newCallbackExecutor(concurrency int) *callbackExecutor {
	if concurrency <= 0 {
		concurrency = DefaultCallbackConcurrency
	}
	return &callbackExecutor{sem: make(chan struct{}, concurrency)}
}

// Dispatch runs fn on a goroutine from the bounded pool. It does not wait
// for fn to finish.
func (c *callbackExecutor) Dispatch(fn func()) {
	c.wg.Add(1)
	c.sem <- struct{}{}
	go func() {
		defer c.wg.Done()
		defer func() { <-c.sem }()
		fn()
	}()
}

// Wait blocks until every dispatched callback has returned. Used by tests
// and by Close to avoid leaking goroutines past the context's lifetime.
func (c *callbackExecutor) Wait() {
	c.wg.Wait()
}

// pushPullLane is the FIFO with maxConcurrent=1 that push and pull tasks
// contend for. It is a thin wrapper over serialExecutor that
// additionally supports cooperative cancellation between suspension
// points.
type pushPullLane struct {
	exec *serialExecutor
}

func newPushPullLane() *pushPullLane {
	return &pushPullLane{exec: newSerialExecutor()}
}

// Run submits fn to the lane and blocks until it completes. A pull that
// needs to push first must not call Run again from within fn; that
// would deadlock against the single-slot lane. SyncContext.pushdownBeforePull
// instead calls the push logic directly as a plain function while already
// holding the lane.
func (l *pushPullLane) Run(fn func(ctx context.Context, cancel <-chan struct{}) error, ctx context.Context, cancel <-chan struct{}) error {
	return l.exec.Submit(func() error {
		return fn(ctx, cancel)
	})
}

func (l *pushPullLane) Close() {
	l.exec.Close()
}
