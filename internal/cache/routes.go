package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/pkg/types"
)

type RoutesSource interface {
	Routes(ctx context.Context) (types.Routes, error)
}

// Routes caches the corridor table. Entries are never patched locally.
type Routes struct {
	e *entry[types.Routes]
}

func NewRoutes(src RoutesSource, log *slog.Logger) *Routes {
	return &Routes{e: &entry[types.Routes]{
		name:  "routes",
		fetch: src.Routes,
		msg:   func(error) string { return gateway.GenericMessage("routes") },
		log:   log,
		now:   time.Now,
		data:  types.Routes{},
	}}
}

// Refresh refetches the full table. On failure the previous table is kept and Err is set.
func (r *Routes) Refresh(ctx context.Context) error {
	_, err := r.e.refresh(ctx)
	return err
}

func (r *Routes) Snapshot() Snapshot[types.Routes] { return r.e.snapshot() }

// UpdatedAt is the time of the last successful refresh, zero before the first.
func (r *Routes) UpdatedAt() time.Time { return r.e.stamp() }

func (r *Routes) Lookup(c types.Corridor) (types.RouteDetails, bool) {
	r.e.mu.RLock()
	defer r.e.mu.RUnlock()
	return r.e.data.Lookup(c)
}

// OnChange registers fn to run after every refresh attempt.
func (r *Routes) OnChange(fn func()) { r.e.subscribe(fn) }

// SetClock swaps the time source.
func (r *Routes) SetClock(now func() time.Time) { r.e.now = now }
