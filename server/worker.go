package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Do once the pool has been stopped.
var ErrStopped = errors.New("worker pool stopped")

// job is a unit of work handed to a worker goroutine.
type job struct {
	fn   func() (any, error)
	done chan jobResult
}

type jobResult struct {
	value any
	err   error
}

// WorkerPool runs jobs on a fixed set of goroutines. Each run builds its
// own registry and call stack, so jobs never share interpreter state;
// the pool bounds how many run at once.
type WorkerPool struct {
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool starts n workers (at least one).
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		jobs: make(chan job, 64),
		quit: make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- p.execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs fn, turning a panic into an error.
func (p *WorkerPool) execute(fn func() (any, error)) (result jobResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker: recovered panic: %v", r)
			result = jobResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := fn()
	return jobResult{value: v, err: err}
}

// Do submits fn and blocks until it finishes, ctx is done, or the pool
// stops. A job abandoned because of ctx still runs to completion.
func (p *WorkerPool) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	j := job{fn: fn, done: make(chan jobResult, 1)}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrStopped
	}

	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrStopped
	}
}

// Stop shuts the workers down and waits for running jobs to return.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}
