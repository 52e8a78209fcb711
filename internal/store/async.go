package store

import (
	"sync"

	"github.com/charmbracelet/log"
)

// asyncBackend decorates another backend with a single writer goroutine so
// that Save never blocks the caller. Snapshots queued while the writer is
// busy are coalesced: only the newest one is written.
//
// This keeps event-loop style callers responsive, but it does not make a
// Has/Add pair atomic across suspension points; the store mutex remains the
// only guard around the read-then-delete consumption of once approvals.
type asyncBackend struct {
	inner  Backend
	logger *log.Logger

	mu      sync.Mutex
	pending []string
	dirty   bool
	closed  bool

	// kick is never closed: a Save racing with Close may still send on it
	// after shutdown begins. Close signals the writer through stop instead,
	// and the writer's final flush picks up any snapshot queued in that
	// window.
	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newAsyncBackend(inner Backend) *asyncBackend {
	b := &asyncBackend{
		inner:  inner,
		logger: log.Default().WithPrefix("store"),
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *asyncBackend) Load() ([]string, error) {
	return b.inner.Load()
}

// Save queues a snapshot for the writer goroutine and returns immediately.
// After Close it degrades to a synchronous write.
func (b *asyncBackend) Save(patterns []string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.inner.Save(patterns)
	}
	b.pending = patterns
	b.dirty = true
	b.mu.Unlock()

	select {
	case b.kick <- struct{}{}:
	default:
	}
	return nil
}

// Close flushes any queued snapshot and stops the writer.
func (b *asyncBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	<-b.done
	return nil
}

func (b *asyncBackend) run() {
	defer close(b.done)
	for {
		select {
		case <-b.kick:
			b.flush()
		case <-b.stop:
			// Final flush covers any Save that slipped in before closed
			// was observed.
			b.flush()
			return
		}
	}
}

func (b *asyncBackend) flush() {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return
	}
	snapshot := b.pending
	b.dirty = false
	b.mu.Unlock()

	if err := b.inner.Save(snapshot); err != nil {
		b.logger.Error("async approval save failed", "err", err)
	}
}

// NewFileAsync creates a file-backed store whose writes are offloaded to a
// background worker. Callers that care about durability of the final state
// must Close the store to flush the last snapshot.
func NewFileAsync(path string) *Store {
	return NewWithBackend(newAsyncBackend(NewFileBackend(path)))
}
