package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/drafts"
	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/store"
	"github.com/yourorg/tradesim/pkg/types"
)

var (
	ErrNoCorridor = errors.New("select both countries first")
	ErrNoResult   = errors.New("no simulation result to select from")
	ErrNoDrafts   = errors.New("factor drafts unavailable")
	ErrReadOnly   = errors.New("scenario editing unavailable")
)

// API is the slice of the gateway the session drives directly.
type API interface {
	Simulate(ctx context.Context, req types.SimulationRequest) (*types.SimulationResponse, error)
	ApplyGeoAction(ctx context.Context, req gateway.GeoRequest) error
}

type Metrics interface {
	ObserveRecompute(reason, outcome string)
	ObserveStale(cause string)
}

// RunInfo describes the last successful simulation.
type RunInfo struct {
	ComputedAtFactors time.Time `json:"computed_at_factors"`
	ComputedAtRoutes  time.Time `json:"computed_at_routes"`
	CompletedAt       time.Time `json:"completed_at"`
	Stale             bool      `json:"stale"`
}

// State is the observable dashboard state.
type State struct {
	Corridor      *types.Corridor          `json:"corridor,omitempty"`
	Mode          types.RouteMode          `json:"mode"`
	Parameters    types.ScenarioParameters `json:"parameters"`
	Cargo         []types.CargoItem        `json:"cargo,omitempty"`
	Loading       bool                     `json:"loading"`
	Recalculating bool                     `json:"recalculating"`
	Error         string                   `json:"error,omitempty"`
	StaleNotice   string                   `json:"stale_notice,omitempty"`
	Active        types.Alternative        `json:"active,omitempty"`
	Available     []types.Alternative      `json:"available,omitempty"`
	View          *View                    `json:"view,omitempty"`
	LastRun       *RunInfo                 `json:"last_run,omitempty"`
	Drafts        map[string]types.Factor  `json:"drafts,omitempty"`
}

type Config struct {
	API     API
	Editor  Editor
	Routes  *cache.Routes
	Factors *cache.Factors
	Drafts  *drafts.Store
	Ledger  *ledger.Ledger
	Store   store.Store
	Logger  *slog.Logger
	Metrics Metrics
	Clock   Clock

	Debounce     time.Duration
	MinIndicator time.Duration
}

// Session is the simulation reactivity controller. It owns the staleness
// tracker, the recompute scheduler and the active result selector.
type Session struct {
	api     API
	editor  Editor
	routes  *cache.Routes
	factors *cache.Factors
	drafts  *drafts.Store
	ledger  *ledger.Ledger
	kv      store.Store
	log     *slog.Logger
	metrics Metrics
	clock   Clock

	tracker   Tracker
	scheduler *Scheduler

	// simMu serialises user and scheduled simulations.
	simMu sync.Mutex

	mu       sync.RWMutex
	state    State
	selector *Selector

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	s := &Session{
		api:     cfg.API,
		editor:  cfg.Editor,
		routes:  cfg.Routes,
		factors: cfg.Factors,
		drafts:  cfg.Drafts,
		ledger:  cfg.Ledger,
		kv:      cfg.Store,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		subs:    map[int]func(State){},
		state: State{
			Mode:       types.ModeAuto,
			Parameters: types.DefaultParameters(),
		},
	}
	s.scheduler = NewScheduler(SchedulerConfig{
		Clock:        cfg.Clock,
		Window:       cfg.Debounce,
		MinIndicator: cfg.MinIndicator,
		Gate:         s.canRecompute,
		Run:          s.runSimulation,
		Indicator:    s.setRecalculating,
		Logger:       cfg.Logger,
	})
	if s.routes != nil {
		s.routes.OnChange(s.CheckStaleness)
	}
	if s.factors != nil {
		s.factors.OnChange(s.CheckStaleness)
	}
	return s
}

// Close stops the scheduler. In-flight runs are not cancelled.
func (s *Session) Close() {
	s.scheduler.Stop()
}

func (s *Session) Scheduler() *Scheduler { return s.scheduler }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	if st.Corridor != nil {
		c := *st.Corridor
		st.Corridor = &c
	}
	st.Cargo = append([]types.CargoItem(nil), st.Cargo...)
	st.Available = append([]types.Alternative(nil), st.Available...)
	if st.LastRun != nil {
		r := *st.LastRun
		st.LastRun = &r
	}
	if s.drafts != nil {
		st.Drafts = s.drafts.All()
	}
	return st
}

// Subscribe registers fn for state changes and returns an unsubscribe func.
func (s *Session) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify() {
	st := s.State()
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *Session) canRecompute() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.HasRun() && s.state.Corridor != nil
}

func (s *Session) setRecalculating(on bool) {
	s.mu.Lock()
	s.state.Recalculating = on
	s.mu.Unlock()
	s.notify()
}

// SelectCorridor sets the origin/destination pair used by the next simulation.
func (s *Session) SelectCorridor(origin, destination string) error {
	origin, destination = strings.TrimSpace(origin), strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return &gateway.ValidationError{Op: "simulate", Reason: "Select both countries first"}
	}
	s.mu.Lock()
	s.state.Corridor = &types.Corridor{Origin: origin, Destination: destination}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetMode sets the route preference. Changing it after a run schedules a recompute.
func (s *Session) SetMode(mode types.RouteMode) error {
	if mode != types.ModeAuto && !mode.Valid() {
		return &gateway.ValidationError{Op: "simulate", Field: "mode", Reason: "must be land, sea, air or auto"}
	}
	s.mu.Lock()
	changed := s.state.Mode != mode
	s.state.Mode = mode
	s.mu.Unlock()
	s.notify()
	if changed {
		s.scheduler.Trigger(ReasonRouteMode)
	}
	return nil
}

func (s *Session) SetParameters(p types.ScenarioParameters) error {
	if err := gateway.ValidateParameters(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.state.Parameters = p
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) SetCargo(items []types.CargoItem) error {
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 {
			return &gateway.ValidationError{Op: "simulate", Field: "cargo_manifest", Reason: "items need a name and a positive quantity"}
		}
	}
	s.mu.Lock()
	s.state.Cargo = append([]types.CargoItem(nil), items...)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Simulate runs a user-initiated simulation.
func (s *Session) Simulate(ctx context.Context) error {
	return s.runSimulation(ctx, ReasonUser)
}

func (s *Session) runSimulation(ctx context.Context, reason Reason) error {
	s.simMu.Lock()
	defer s.simMu.Unlock()

	s.mu.Lock()
	if s.state.Corridor == nil {
		s.mu.Unlock()
		return ErrNoCorridor
	}
	req := types.SimulationRequest{
		Source:        s.state.Corridor.Origin,
		Destination:   s.state.Corridor.Destination,
		Mode:          s.state.Mode,
		Parameters:    s.state.Parameters,
		CargoManifest: append([]types.CargoItem(nil), s.state.Cargo...),
	}
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
	s.notify()

	factorsAt, routesAt := s.stamps()
	resp, err := s.api.Simulate(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.state.Loading = false
		s.state.Error = gateway.Message(err)
		s.mu.Unlock()
		s.observeRecompute(reason, "error")
		if s.log != nil {
			s.log.Warn("simulation failed", "reason", reason, "src", req.Source, "dst", req.Destination, "error", err)
		}
		s.notify()
		return err
	}
	sel, err := NewSelector(resp)
	if err != nil {
		s.mu.Lock()
		s.state.Loading = false
		s.state.Error = gateway.GenericMessage("simulate")
		s.mu.Unlock()
		s.notify()
		return err
	}

	now := s.clock.Now()
	if factorsAt.IsZero() {
		factorsAt = now
	}
	if routesAt.IsZero() {
		routesAt = now
	}
	s.tracker.Record(factorsAt, routesAt)

	view := sel.View()
	s.mu.Lock()
	s.selector = sel
	s.state.Loading = false
	s.state.Error = ""
	s.state.StaleNotice = ""
	s.state.Active = sel.Active()
	s.state.Available = sel.Available()
	s.state.View = &view
	s.state.LastRun = &RunInfo{ComputedAtFactors: factorsAt, ComputedAtRoutes: routesAt, CompletedAt: now}
	s.mu.Unlock()

	s.observeRecompute(reason, "ok")
	if s.log != nil {
		s.log.Info("simulation complete", "reason", reason, "src", req.Source, "dst", req.Destination, "active", sel.Active())
	}
	s.persistRun(req, sel, now)
	s.notify()

	// A refresh that landed while the request was in flight makes this result stale already.
	s.CheckStaleness()
	return nil
}

func (s *Session) stamps() (time.Time, time.Time) {
	var f, r time.Time
	if s.factors != nil {
		f = s.factors.UpdatedAt()
	}
	if s.routes != nil {
		r = s.routes.UpdatedAt()
	}
	return f, r
}

// Freshness pairs the current cache stamps with the stamps the last run was
// computed against.
type Freshness struct {
	FactorsAt    time.Time `json:"factors_at"`
	RoutesAt     time.Time `json:"routes_at"`
	RunFactorsAt time.Time `json:"run_factors_at"`
	RunRoutesAt  time.Time `json:"run_routes_at"`
	Stale        Cause     `json:"stale,omitempty"`
}

func (s *Session) Freshness() Freshness {
	f, r := s.stamps()
	rf, rr := s.tracker.Stamps()
	return Freshness{FactorsAt: f, RoutesAt: r, RunFactorsAt: rf, RunRoutesAt: rr, Stale: s.tracker.Check(f, r)}
}

// CheckStaleness compares cache stamps with the last run and invalidates the
// displayed result when either cache moved past it.
func (s *Session) CheckStaleness() {
	f, r := s.stamps()
	cause := s.tracker.Check(f, r)
	if cause == CauseNone {
		return
	}
	s.mu.Lock()
	if s.state.StaleNotice == cause.Notice() && s.state.View == nil {
		s.mu.Unlock()
		return
	}
	s.state.StaleNotice = cause.Notice()
	s.state.View = nil
	s.state.Available = nil
	s.state.Active = ""
	s.selector = nil
	if s.state.LastRun != nil {
		s.state.LastRun.Stale = true
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveStale(string(cause))
	}
	if s.log != nil {
		s.log.Info("simulation result stale", "cause", cause)
	}
	s.notify()
}

// Select switches the displayed alternative locally.
func (s *Session) Select(alt types.Alternative) error {
	s.mu.Lock()
	if s.selector == nil {
		s.mu.Unlock()
		return ErrNoResult
	}
	if err := s.selector.Select(alt); err != nil {
		s.mu.Unlock()
		return err
	}
	view := s.selector.View()
	s.state.Active = alt
	s.state.View = &view
	s.mu.Unlock()
	s.notify()
	return nil
}

// RefreshRoutes refetches the routes cache. Staleness is checked by the cache listener.
func (s *Session) RefreshRoutes(ctx context.Context) error {
	return s.routes.Refresh(ctx)
}

// RefreshFactors refetches the factors cache and schedules a recompute.
func (s *Session) RefreshFactors(ctx context.Context) error {
	if err := s.factors.Refresh(ctx); err != nil {
		return err
	}
	s.scheduler.Trigger(ReasonFactors)
	return nil
}

// RememberDraft stores a local factor edit and returns the stored, rounded draft.
func (s *Session) RememberDraft(name string, f types.Factor) (types.Factor, bool, error) {
	if s.drafts == nil {
		return types.Factor{}, false, ErrNoDrafts
	}
	changed, err := s.drafts.Remember(name, f)
	if err != nil {
		return types.Factor{}, false, err
	}
	draft, _ := s.drafts.Get(name)
	if changed {
		s.notify()
	}
	return draft, changed, nil
}

// ClearDrafts drops every local factor edit and returns the names dropped.
func (s *Session) ClearDrafts() []string {
	if s.drafts == nil {
		return nil
	}
	names := s.drafts.Names()
	if len(names) == 0 {
		return names
	}
	s.drafts.Clear()
	s.notify()
	return names
}

// SaveFactor pushes a draft to the server and schedules a recompute.
func (s *Session) SaveFactor(ctx context.Context, name string) (types.Factor, error) {
	f, err := s.drafts.Save(ctx, name)
	if err != nil {
		return types.Factor{}, err
	}
	s.scheduler.Trigger(ReasonFactors)
	s.notify()
	return f, nil
}

// ApplyPreset resets server factors to a preset and schedules a recompute.
func (s *Session) ApplyPreset(ctx context.Context, preset types.FactorPreset) (*types.FactorMetrics, error) {
	m, err := s.drafts.ApplyPreset(ctx, preset)
	if err != nil {
		return nil, err
	}
	s.scheduler.Trigger(ReasonFactors)
	s.notify()
	return m, nil
}

// ApplyGeoAction runs one geopolitical action. On success it refetches factors
// then routes, records the ledger entry and schedules a recompute, in that
// order. On failure nothing is refetched.
func (s *Session) ApplyGeoAction(ctx context.Context, req gateway.GeoRequest) (types.GeoActionRecord, error) {
	if err := s.api.ApplyGeoAction(ctx, req); err != nil {
		if s.log != nil {
			s.log.Warn("geo action failed", "action", req.Action, "a", req.A, "b", req.B, "error", err)
		}
		return types.GeoActionRecord{}, err
	}
	if s.factors != nil {
		if err := s.factors.Refresh(ctx); err != nil && s.log != nil {
			s.log.Warn("factor refresh after geo action failed", "action", req.Action, "error", err)
		}
	}
	if s.routes != nil {
		if err := s.routes.Refresh(ctx); err != nil && s.log != nil {
			s.log.Warn("route refresh after geo action failed", "action", req.Action, "error", err)
		}
	}

	rec := types.GeoActionRecord{
		Action:      req.Label(),
		Summary:     req.Summary(),
		Origin:      req.A,
		Destination: req.B,
		Unit:        req.Unit(),
	}
	if req.HasValue() {
		v := req.Value
		rec.Value = &v
	}
	if s.ledger != nil {
		rec = s.ledger.Record(ctx, rec)
	}

	reason := ReasonGeoAction
	if req.Action == gateway.GeoMode {
		reason = ReasonRouteMode
	}
	s.scheduler.Trigger(reason)
	s.notify()
	return rec, nil
}

// LastSnapshot returns the persisted copy of the last completed run. It is
// informational only and never counts as a fresh result.
func (s *Session) LastSnapshot() (*types.RunSnapshot, error) {
	if s.kv == nil {
		return nil, nil
	}
	var snap types.RunSnapshot
	ok, err := store.GetJSON(s.kv, store.KeyLastSimulation, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// ActiveResult returns the currently selected result, if any.
func (s *Session) ActiveResult() (types.Alternative, *types.SimulationResult) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selector == nil {
		return "", nil
	}
	return s.selector.Active(), s.selector.Response().Get(s.selector.Active())
}

func (s *Session) persistRun(req types.SimulationRequest, sel *Selector, at time.Time) {
	if s.kv == nil {
		return
	}
	snap := &types.RunSnapshot{
		Corridor:    types.Corridor{Origin: req.Source, Destination: req.Destination},
		Mode:        req.Mode,
		Parameters:  req.Parameters,
		Active:      sel.Active(),
		Response:    *sel.Response(),
		CompletedAt: at.UTC(),
	}
	if err := s.kv.SaveRun(snap); err != nil && s.log != nil {
		s.log.Warn("save run history failed", "error", err)
	}
	if err := store.PutJSON(s.kv, store.KeyLastSimulation, snap); err != nil && s.log != nil {
		s.log.Warn("persist last simulation failed", "error", err)
	}
}

func (s *Session) observeRecompute(reason Reason, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRecompute(string(reason), outcome)
	}
}
