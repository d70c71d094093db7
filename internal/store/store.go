package store

import (
	"encoding/json"
	"fmt"

	"github.com/yourorg/tradesim/pkg/types"
)

// Durable keys for client-owned state.
const (
	KeyFactorDrafts       = "supplySim:memory:factor_drafts"
	KeyLastSimulation     = "supplySim:memory:last_simulation"
	KeyLastFactorUpdateAt = "supplySim:memory:last_factor_update_at"
	KeyGeoActions         = "supplySim:geo-actions"
)

type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error

	SaveRun(run *types.RunSnapshot) error
	ListRuns(limit int) ([]types.RunSnapshot, error)

	Close() error
}

// GetJSON decodes the value stored under key into v. It reports false when the key is absent.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(key, raw)
}
