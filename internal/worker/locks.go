package worker

import (
	"context"
	"sync"
)

// ResourceLocks serializes processing per resource reference: at most one job
// for a given key is in flight at any instant, while jobs for different keys
// run fully concurrently. A second job for a busy key queues behind the
// first (it is not coalesced).
type ResourceLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewResourceLocks() *ResourceLocks {
	return &ResourceLocks{held: make(map[string]*lockEntry)}
}

// Acquire blocks until the key's lock is free or ctx is done. The returned
// release function is idempotent.
func (l *ResourceLocks) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.held[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.held[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.sem
			l.unref(key, e)
		})
	}
	return release, nil
}

func (l *ResourceLocks) unref(key string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.held, key)
	}
	l.mu.Unlock()
}
