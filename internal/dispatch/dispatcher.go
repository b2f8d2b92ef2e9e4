// Package dispatch runs blocking units of work on detached goroutines and
// delivers their outcomes as messages to a single consumer.
//
// Each submission gets its own goroutine. Messages sent by one submission
// arrive in the order it sent them; messages from different submissions
// may interleave. Nothing is dropped: a worker blocks on send until the
// consumer drains the channel.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/blackwell-systems/voidstore/internal/logger"
)

// Observer is notified about task lifecycle, e.g. for metrics.
type Observer interface {
	TaskStarted(kind string)
	TaskFinished(kind string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) TaskStarted(string)                 {}
func (nopObserver) TaskFinished(string, time.Duration) {}

// Dispatcher spawns workers and routes their outcomes to one channel.
type Dispatcher[M any] struct {
	messages chan M
	sem      *semaphore.Weighted
	onPanic  func(kind string, v any) M
	observer Observer
	inflight atomic.Int64
}

// Option configures a Dispatcher.
type Option[M any] func(*Dispatcher[M])

// WithBuffer sets the message channel capacity.
func WithBuffer[M any](n int) Option[M] {
	return func(d *Dispatcher[M]) {
		d.messages = make(chan M, n)
	}
}

// WithMaxWorkers bounds the number of concurrently running workers.
// Zero or negative leaves concurrency unbounded.
func WithMaxWorkers[M any](n int) Option[M] {
	return func(d *Dispatcher[M]) {
		if n > 0 {
			d.sem = semaphore.NewWeighted(int64(n))
		} else {
			d.sem = nil
		}
	}
}

// WithRecover converts a worker panic into a message so the consumer
// still learns that the task ended.
func WithRecover[M any](fn func(kind string, v any) M) Option[M] {
	return func(d *Dispatcher[M]) {
		d.onPanic = fn
	}
}

// WithObserver installs a lifecycle observer.
func WithObserver[M any](o Observer) Option[M] {
	return func(d *Dispatcher[M]) {
		if o != nil {
			d.observer = o
		}
	}
}

// New creates a Dispatcher. The default channel buffer holds 256 messages.
func New[M any](opts ...Option[M]) *Dispatcher[M] {
	d := &Dispatcher[M]{
		messages: make(chan M, 256),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Messages returns the receive side of the message channel.
func (d *Dispatcher[M]) Messages() <-chan M {
	return d.messages
}

// Inflight reports how many submitted tasks have not finished yet.
func (d *Dispatcher[M]) Inflight() int {
	return int(d.inflight.Load())
}

// Submit runs work on a new goroutine and delivers the message it returns.
func (d *Dispatcher[M]) Submit(kind string, work func() M) {
	d.submit(kind, func(send func(M)) {
		send(work())
	})
}

// submit is the common path for plain and streaming tasks. The task may
// call send any number of times.
func (d *Dispatcher[M]) submit(kind string, task func(send func(M))) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Add(-1)

		if d.sem != nil {
			// Background never cancels, so Acquire only returns once a slot frees.
			_ = d.sem.Acquire(context.Background(), 1)
			defer d.sem.Release(1)
		}

		start := time.Now()
		d.observer.TaskStarted(kind)
		defer func() {
			d.observer.TaskFinished(kind, time.Since(start))
		}()

		d.run(kind, task)
	}()
}

func (d *Dispatcher[M]) run(kind string, task func(send func(M))) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("dispatch: %s task panicked: %v", kind, v)
			if d.onPanic != nil {
				d.messages <- d.onPanic(kind, v)
			}
		}
	}()
	task(d.send)
}

func (d *Dispatcher[M]) send(m M) {
	d.messages <- m
}

// TryRecv returns the next pending message without blocking.
func (d *Dispatcher[M]) TryRecv() (M, bool) {
	select {
	case m := <-d.messages:
		return m, true
	default:
		var zero M
		return zero, false
	}
}

// Drain returns up to limit pending messages without blocking. A limit of
// zero or less drains everything currently queued.
func (d *Dispatcher[M]) Drain(limit int) []M {
	var out []M
	for limit <= 0 || len(out) < limit {
		m, ok := d.TryRecv()
		if !ok {
			break
		}
		out = append(out, m)
	}
	return out
}

// Next blocks until a message arrives or ctx is done.
func (d *Dispatcher[M]) Next(ctx context.Context) (M, error) {
	select {
	case m := <-d.messages:
		return m, nil
	case <-ctx.Done():
		var zero M
		return zero, fmt.Errorf("waiting for message: %w", ctx.Err())
	}
}
