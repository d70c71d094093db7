package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/store"
	"github.com/yourorg/tradesim/pkg/types"
)

type FactorsSource interface {
	Factors(ctx context.Context) (map[string]types.Factor, error)
	FactorMetrics(ctx context.Context) (*types.FactorMetrics, error)
}

// Factors caches the server's factor table plus the latest impact metrics.
// The update stamp is persisted so a restarted session can compare against it.
type Factors struct {
	e   *entry[map[string]types.Factor]
	src FactorsSource
	kv  store.Store
	log *slog.Logger

	mu      sync.RWMutex
	impacts *types.FactorImpacts
}

func NewFactors(src FactorsSource, kv store.Store, log *slog.Logger) *Factors {
	f := &Factors{src: src, kv: kv, log: log}
	f.e = &entry[map[string]types.Factor]{
		name:  "factors",
		fetch: src.Factors,
		msg:   func(error) string { return gateway.GenericMessage("factors") },
		log:   log,
		now:   time.Now,
		data:  map[string]types.Factor{},
	}
	if kv != nil {
		var stamp time.Time
		if ok, err := store.GetJSON(kv, store.KeyLastFactorUpdateAt, &stamp); err == nil && ok {
			f.e.updatedAt = stamp
		}
	}
	return f
}

// Refresh refetches the factor table, then the impact metrics. A metrics
// failure is logged and does not fail the refresh.
func (f *Factors) Refresh(ctx context.Context) error {
	if _, err := f.e.refresh(ctx); err != nil {
		return err
	}
	f.persistStamp()
	if m, err := f.src.FactorMetrics(ctx); err == nil {
		f.mu.Lock()
		impacts := m.Impacts
		f.impacts = &impacts
		f.mu.Unlock()
	} else if f.log != nil {
		f.log.Warn("factor metrics refresh failed", "error", err)
	}
	return nil
}

// Apply installs server-confirmed factors returned by a mutation such as a preset reset.
func (f *Factors) Apply(m *types.FactorMetrics) {
	if m == nil {
		return
	}
	f.mu.Lock()
	impacts := m.Impacts
	f.impacts = &impacts
	f.mu.Unlock()
	f.e.set(copyFactors(m.Factors))
	f.persistStamp()
}

func (f *Factors) persistStamp() {
	if f.kv == nil {
		return
	}
	if err := store.PutJSON(f.kv, store.KeyLastFactorUpdateAt, f.e.stamp()); err != nil && f.log != nil {
		f.log.Warn("persist factor stamp failed", "error", err)
	}
}

// MarkError records a failed read without touching the cached table.
func (f *Factors) MarkError(err error) {
	f.e.setErr(gateway.Message(err))
}

func (f *Factors) Snapshot() Snapshot[map[string]types.Factor] {
	s := f.e.snapshot()
	s.Data = copyFactors(s.Data)
	return s
}

func (f *Factors) Get(name string) (types.Factor, bool) {
	f.e.mu.RLock()
	defer f.e.mu.RUnlock()
	v, ok := f.e.data[name]
	return v, ok
}

func (f *Factors) Impacts() *types.FactorImpacts {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.impacts == nil {
		return nil
	}
	out := *f.impacts
	return &out
}

func (f *Factors) UpdatedAt() time.Time { return f.e.stamp() }

func (f *Factors) OnChange(fn func()) { f.e.subscribe(fn) }

func (f *Factors) SetClock(now func() time.Time) { f.e.now = now }

func copyFactors(in map[string]types.Factor) map[string]types.Factor {
	out := make(map[string]types.Factor, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
