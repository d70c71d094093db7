package drafts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/store"
	"github.com/yourorg/tradesim/pkg/types"
)

var ErrNoDraft = errors.New("no draft for factor")

// Writer is the slice of the gateway the draft store needs.
type Writer interface {
	UpdateFactor(ctx context.Context, name string, f types.Factor) error
	ResetFactors(ctx context.Context, preset types.FactorPreset) (*types.FactorMetrics, error)
}

// Confirmed is the authoritative factors cache.
type Confirmed interface {
	Refresh(ctx context.Context) error
	Get(name string) (types.Factor, bool)
	Apply(m *types.FactorMetrics)
	MarkError(err error)
}

// Store holds unsaved factor edits keyed by factor name.
type Store struct {
	api       Writer
	confirmed Confirmed
	kv        store.Store
	log       *slog.Logger

	mu     sync.RWMutex
	drafts map[string]types.Factor

	// persistMu orders writes to kv; each write carries a snapshot taken under it.
	persistMu sync.Mutex
}

// New loads persisted drafts from kv.
func New(api Writer, confirmed Confirmed, kv store.Store, log *slog.Logger) (*Store, error) {
	s := &Store{api: api, confirmed: confirmed, kv: kv, log: log, drafts: map[string]types.Factor{}}
	if kv != nil {
		var saved map[string]types.Factor
		ok, err := store.GetJSON(kv, store.KeyFactorDrafts, &saved)
		if err != nil {
			return nil, fmt.Errorf("load factor drafts: %w", err)
		}
		if ok {
			for name, f := range saved {
				if n, err := Normalize(f); err == nil {
					s.drafts[name] = n
				}
			}
		}
	}
	return s, nil
}

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Normalize clamps effect to [-1,1] and strength to [0,1], then rounds both.
func Normalize(f types.Factor) (types.Factor, error) {
	if math.IsNaN(f.Effect) || math.IsInf(f.Effect, 0) {
		return types.Factor{}, &gateway.ValidationError{Op: "draft", Field: "effect", Reason: "must be finite"}
	}
	if math.IsNaN(f.Strength) || math.IsInf(f.Strength, 0) {
		return types.Factor{}, &gateway.ValidationError{Op: "draft", Field: "strength", Reason: "must be finite"}
	}
	return types.Factor{
		Effect:   Round2(clamp(f.Effect, -1, 1)),
		Strength: Round2(clamp(f.Strength, 0, 1)),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Remember stores a local edit. Storing the same rounded value twice is a no-op.
func (s *Store) Remember(name string, f types.Factor) (bool, error) {
	if name == "" {
		return false, &gateway.ValidationError{Op: "draft", Field: "name", Reason: "cannot be empty"}
	}
	n, err := Normalize(f)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if cur, ok := s.drafts[name]; ok && cur == n {
		s.mu.Unlock()
		return false, nil
	}
	s.drafts[name] = n
	s.mu.Unlock()
	s.persist()
	return true, nil
}

func (s *Store) Get(name string) (types.Factor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.drafts[name]
	return f, ok
}

// All returns a copy of every draft.
func (s *Store) All() map[string]types.Factor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.Factor, len(s.drafts))
	for k, v := range s.drafts {
		out[k] = v
	}
	return out
}

// Names returns the names with a pending draft, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.drafts))
	for k := range s.drafts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clear drops every draft.
func (s *Store) Clear() {
	s.mu.Lock()
	s.drafts = map[string]types.Factor{}
	s.mu.Unlock()
	s.persist()
}

// Forget drops the draft for name and reports whether one existed.
func (s *Store) Forget(name string) bool {
	s.mu.Lock()
	_, ok := s.drafts[name]
	delete(s.drafts, name)
	s.mu.Unlock()
	if ok {
		s.persist()
	}
	return ok
}

// Reconcile overwrites drafts with server values, rounded. Names not in server are left alone.
func (s *Store) Reconcile(server map[string]types.Factor) {
	changed := false
	s.mu.Lock()
	for name, f := range server {
		n, err := Normalize(f)
		if err != nil {
			continue
		}
		if cur, ok := s.drafts[name]; !ok || cur != n {
			s.drafts[name] = n
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.persist()
	}
}

// Save pushes the draft for name, rereads the factors cache, and reconciles the
// draft to the value the server confirmed. A failed push leaves the draft
// untouched. A failed reread after a successful push keeps the sent value and
// flags the cache.
func (s *Store) Save(ctx context.Context, name string) (types.Factor, error) {
	draft, ok := s.Get(name)
	if !ok {
		if s.confirmed == nil {
			return types.Factor{}, fmt.Errorf("%w: %s", ErrNoDraft, name)
		}
		cur, ok := s.confirmed.Get(name)
		if !ok {
			return types.Factor{}, fmt.Errorf("%w: %s", ErrNoDraft, name)
		}
		n, err := Normalize(cur)
		if err != nil {
			return types.Factor{}, err
		}
		draft = n
	}
	if err := s.api.UpdateFactor(ctx, name, draft); err != nil {
		return types.Factor{}, err
	}
	if s.log != nil {
		s.log.Info("factor saved", "factor", name, "effect", draft.Effect, "strength", draft.Strength)
	}

	s.mu.Lock()
	s.drafts[name] = draft
	s.mu.Unlock()

	if s.confirmed == nil {
		s.persist()
		return draft, nil
	}
	if err := s.confirmed.Refresh(ctx); err != nil {
		s.confirmed.MarkError(err)
		if s.log != nil {
			s.log.Warn("factor reread failed after save", "factor", name, "error", err)
		}
		s.persist()
		return draft, nil
	}
	final := draft
	if server, ok := s.confirmed.Get(name); ok {
		if n, err := Normalize(server); err == nil {
			final = n
		}
	}
	s.mu.Lock()
	s.drafts[name] = final
	s.mu.Unlock()
	s.persist()
	return final, nil
}

// ApplyPreset resets factors server-side and reconciles every draft to the result.
func (s *Store) ApplyPreset(ctx context.Context, preset types.FactorPreset) (*types.FactorMetrics, error) {
	m, err := s.api.ResetFactors(ctx, preset)
	if err != nil {
		return nil, err
	}
	s.Reconcile(m.Factors)
	if s.confirmed != nil {
		s.confirmed.Apply(m)
		if err := s.confirmed.Refresh(ctx); err != nil {
			s.confirmed.MarkError(err)
			if s.log != nil {
				s.log.Warn("factor reread failed after preset", "preset", preset, "error", err)
			}
		}
	}
	if s.log != nil {
		s.log.Info("factor preset applied", "preset", preset, "factors", len(m.Factors))
	}
	return m, nil
}

func (s *Store) persist() {
	if s.kv == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := store.PutJSON(s.kv, store.KeyFactorDrafts, s.All()); err != nil && s.log != nil {
		s.log.Warn("persist factor drafts failed", "error", err)
	}
}
