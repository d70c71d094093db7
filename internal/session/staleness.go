package session

import (
	"sync"
	"time"
)

// Cause names the cache whose change invalidated the last run.
type Cause string

const (
	CauseNone    Cause = ""
	CauseFactors Cause = "factors"
	CauseRoutes  Cause = "routes"
)

const (
	NoticeFactors = "Factors changed since last run. Run the simulation again."
	NoticeRoutes  = "Routes changed since last run. Run the simulation again."
)

func (c Cause) Notice() string {
	switch c {
	case CauseFactors:
		return NoticeFactors
	case CauseRoutes:
		return NoticeRoutes
	}
	return ""
}

// Tracker remembers the cache stamps a run was computed against.
type Tracker struct {
	mu        sync.RWMutex
	hasRun    bool
	factorsAt time.Time
	routesAt  time.Time
}

// Record marks a successful run computed at the given stamps.
func (t *Tracker) Record(factorsAt, routesAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasRun = true
	t.factorsAt = factorsAt
	t.routesAt = routesAt
}

// Check compares current cache stamps against the recorded ones. Factors are
// checked first; at most one cause is reported.
func (t *Tracker) Check(factorsAt, routesAt time.Time) Cause {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasRun {
		return CauseNone
	}
	if !t.factorsAt.IsZero() && factorsAt.After(t.factorsAt) {
		return CauseFactors
	}
	if !t.routesAt.IsZero() && routesAt.After(t.routesAt) {
		return CauseRoutes
	}
	return CauseNone
}

func (t *Tracker) HasRun() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasRun
}

// Stamps returns the recorded factor and route stamps.
func (t *Tracker) Stamps() (time.Time, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.factorsAt, t.routesAt
}
