package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/tradesim/pkg/types"
)

// MemStore keeps everything in process memory. Used for --ephemeral sessions and tests.
type MemStore struct {
	mu   sync.RWMutex
	kv   map[string][]byte
	runs []types.RunSnapshot
}

func NewMemStore() *MemStore {
	return &MemStore{kv: map[string][]byte{}}
}

func (m *MemStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.kv[key] = cp
	return nil
}

func (m *MemStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *MemStore) SaveRun(run *types.RunSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CompletedAt.IsZero() {
		run.CompletedAt = time.Now().UTC()
	}
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = *run
			return nil
		}
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemStore) ListRuns(limit int) ([]types.RunSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	out := make([]types.RunSnapshot, len(m.runs))
	copy(out, m.runs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
