package server

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Do(t *testing.T) {
	p := NewWorkerPool(2)
	defer p.Stop()

	v, err := p.Do(bg(), func() (any, error) { return 7, nil })
	if err != nil || v.(int) != 7 {
		t.Errorf("Do = %v, %v; want 7", v, err)
	}

	want := errors.New("boom")
	if _, err := p.Do(bg(), func() (any, error) { return nil, want }); !errors.Is(err, want) {
		t.Errorf("Do error = %v, want %v", err, want)
	}
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	p := NewWorkerPool(1)
	defer p.Stop()

	_, err := p.Do(bg(), func() (any, error) { panic("kaboom") })
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Do error = %v, want recovered panic", err)
	}

	// The worker survives.
	v, err := p.Do(bg(), func() (any, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("Do after panic = %v, %v", v, err)
	}
}

func TestWorkerPool_ContextCanceled(t *testing.T) {
	p := NewWorkerPool(1)
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	var finished atomic.Bool

	ctx, cancel := context.WithCancel(bg())
	errc := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, func() (any, error) {
			close(started)
			<-release
			finished.Store(true)
			return nil, nil
		})
		errc <- err
	}()

	<-started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Do error = %v, want context.Canceled", err)
	}
	close(release)

	// The abandoned job completes and the worker takes new work.
	if _, err := p.Do(bg(), func() (any, error) { return nil, nil }); err != nil {
		t.Errorf("Do after cancel: %v", err)
	}
	if !finished.Load() {
		t.Error("abandoned job did not finish")
	}
}

func TestWorkerPool_Stopped(t *testing.T) {
	p := NewWorkerPool(1)
	p.Stop()
	p.Stop()

	if _, err := p.Do(bg(), func() (any, error) { return nil, nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after Stop = %v, want ErrStopped", err)
	}
}
