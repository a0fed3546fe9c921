// Package game holds the downstream systems the coordinator initializes on
// load, plus the host's serialized execution loop.
package game

import (
	"context"
	"sync"
)

// Loop is the host's serialized execution context: one goroutine consumes
// closures in order, so anything run through Do cannot race anything else
// run through Do.
type Loop struct {
	ch   chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		ch:   make(chan func(), buffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run consumes until the context is cancelled or Stop is called, then
// drains whatever is already queued.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return
		case <-l.quit:
			l.drain()
			return
		case fn := <-l.ch:
			fn()
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.ch:
			fn()
		default:
			return
		}
	}
}

// Do enqueues fn for serialized execution. After the loop has stopped, fn
// runs inline on the caller; by then the host is single-threaded shutdown
// code anyway.
func (l *Loop) Do(fn func()) {
	select {
	case <-l.done:
		fn()
		return
	default:
	}
	select {
	case l.ch <- fn:
	case <-l.done:
		fn()
	}
}

// Stop ends the loop and waits for the drain.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
