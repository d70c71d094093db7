package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/tradesim/internal/store"
	"github.com/yourorg/tradesim/pkg/types"
)

const DefaultCapacity = 30

// Sink mirrors recorded actions somewhere outside the session.
type Sink interface {
	Publish(ctx context.Context, rec types.GeoActionRecord) error
}

// Gauge tracks ledger size.
type Gauge interface {
	SetLedgerSize(n int)
}

// Ledger is the bounded, newest-first history of successful geo actions.
type Ledger struct {
	capacity int
	kv       store.Store
	sink     Sink
	gauge    Gauge
	log      *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries []types.GeoActionRecord
}

type Option func(*Ledger)

func WithSink(s Sink) Option { return func(l *Ledger) { l.sink = s } }

func WithGauge(g Gauge) Option { return func(l *Ledger) { l.gauge = g } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// New loads the persisted ledger, trimming it to capacity.
func New(capacity int, kv store.Store, log *slog.Logger, opts ...Option) (*Ledger, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{capacity: capacity, kv: kv, log: log, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if kv != nil {
		var saved []types.GeoActionRecord
		ok, err := store.GetJSON(kv, store.KeyGeoActions, &saved)
		if err != nil {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		if ok {
			if len(saved) > capacity {
				saved = saved[:capacity]
			}
			l.entries = saved
		}
	}
	if l.gauge != nil {
		l.gauge.SetLedgerSize(len(l.entries))
	}
	return l, nil
}

// Record prepends rec, filling in id and timestamp when absent, and evicts the
// oldest entries over capacity.
func (l *Ledger) Record(ctx context.Context, rec types.GeoActionRecord) types.GeoActionRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	next := make([]types.GeoActionRecord, 0, min(len(l.entries)+1, l.capacity))
	next = append(next, rec)
	next = append(next, l.entries...)
	if len(next) > l.capacity {
		next = next[:l.capacity]
	}
	l.entries = next
	size := len(next)
	l.mu.Unlock()

	l.persist()
	if l.gauge != nil {
		l.gauge.SetLedgerSize(size)
	}
	if l.log != nil {
		l.log.Info("geo action recorded", "action", rec.Action, "summary", rec.Summary)
	}
	if l.sink != nil {
		if err := l.sink.Publish(ctx, rec); err != nil && l.log != nil {
			l.log.Warn("ledger sink publish failed", "id", rec.ID, "error", err)
		}
	}
	return rec
}

// Entries returns a copy, newest first.
func (l *Ledger) Entries() []types.GeoActionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.GeoActionRecord, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	l.persist()
	if l.gauge != nil {
		l.gauge.SetLedgerSize(0)
	}
}

func (l *Ledger) persist() {
	if l.kv == nil {
		return
	}
	if err := store.PutJSON(l.kv, store.KeyGeoActions, l.Entries()); err != nil && l.log != nil {
		l.log.Warn("persist ledger failed", "error", err)
	}
}
