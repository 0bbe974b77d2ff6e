package lua

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// call is one queued guest operation.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Executor pins all operations on one guest state to a single goroutine.
//
// gopher-lua states are not goroutine-safe, so the host marshals every
// boundary call (initialize, shutdown, exec, and the broker callbacks they
// trigger) through the owning plugin's executor. Calls execute strictly in
// submission order; there is no reentrancy into a state while a call is in
// flight.
type Executor struct {
	L     *lua.LState
	queue chan *call
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewExecutor creates an executor for the given state.
func NewExecutor(L *lua.LState, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Executor{
		L:     L,
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes queued operations until the context is cancelled or Close
// is called. It must run on the goroutine that owns the state.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			return
		case <-e.done:
			e.drain(ErrExecutorClosed)
			return
		case c := <-e.queue:
			err := e.run(c)
			c.result <- err
			close(c.result)
		}
	}
}

// run executes one call with trap recovery.
func (e *Executor) run(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = errors.New("lua: guest trap")
			}
		}
	}()
	return c.fn(e.L)
}

// drain fails all pending calls with err.
func (e *Executor) drain(err error) {
	for {
		select {
		case c := <-e.queue:
			c.result <- err
			close(c.result)
		default:
			return
		}
	}
}

// Execute runs fn on the executor goroutine and waits for its result.
func (e *Executor) Execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrExecutorClosed
		}
		return err
	}
}

// Close stops the executor. Pending calls fail with ErrExecutorClosed.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// IsClosed reports whether Close has been called.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}
