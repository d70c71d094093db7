package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of a cache.
type Snapshot[T any] struct {
	Data      T         `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
	Loading   bool      `json:"loading"`
	Err       string    `json:"error,omitempty"`
}

// entry is a server-owned value that only changes through an explicit refetch.
type entry[T any] struct {
	name  string
	fetch func(context.Context) (T, error)
	msg   func(error) string
	log   *slog.Logger
	now   func() time.Time

	mu        sync.RWMutex
	data      T
	updatedAt time.Time
	loading   bool
	err       string
	listeners []func()
}

func (e *entry[T]) refresh(ctx context.Context) (T, error) {
	e.mu.Lock()
	e.loading = true
	e.err = ""
	e.mu.Unlock()

	data, err := e.fetch(ctx)

	e.mu.Lock()
	e.loading = false
	if err != nil {
		e.err = e.msg(err)
		prev := e.data
		e.mu.Unlock()
		if e.log != nil {
			e.log.Warn("cache refresh failed", "cache", e.name, "error", err)
		}
		e.notify()
		return prev, err
	}
	e.data = data
	e.updatedAt = e.now()
	stamp := e.updatedAt
	e.mu.Unlock()
	if e.log != nil {
		e.log.Debug("cache refreshed", "cache", e.name, "updated_at", stamp)
	}
	e.notify()
	return data, nil
}

func (e *entry[T]) set(data T) time.Time {
	e.mu.Lock()
	e.data = data
	e.updatedAt = e.now()
	e.err = ""
	stamp := e.updatedAt
	e.mu.Unlock()
	e.notify()
	return stamp
}

func (e *entry[T]) setErr(msg string) {
	e.mu.Lock()
	e.err = msg
	e.mu.Unlock()
	e.notify()
}

func (e *entry[T]) snapshot() Snapshot[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot[T]{Data: e.data, UpdatedAt: e.updatedAt, Loading: e.loading, Err: e.err}
}

func (e *entry[T]) stamp() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updatedAt
}

func (e *entry[T]) subscribe(fn func()) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *entry[T]) notify() {
	e.mu.RLock()
	ls := make([]func(), len(e.listeners))
	copy(ls, e.listeners)
	e.mu.RUnlock()
	for _, fn := range ls {
		fn()
	}
}
