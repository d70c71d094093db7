package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/drafts"
	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/store"
	"github.com/yourorg/tradesim/pkg/types"
)

// backend is a scripted simulation service.
type backend struct {
	mu        sync.Mutex
	factors   map[string]types.Factor
	routes    types.Routes
	simStatus int
	geoStatus int
	geoBody   string
	hits      map[string]int
	order     []string
}

func newBackend() *backend {
	return &backend{
		factors: map[string]types.Factor{"Stability": {Effect: 0.2, Strength: 0.5}},
		routes:  types.Routes{"France": {"Brazil": {Cost: 100, Time: 10, Risk: 0.2, Mode: types.ModeSea}}},
		hits:    map[string]int{},
	}
}

func (b *backend) handler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	b.hits[key]++
	b.order = append(b.order, key)
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/factors":
		_ = json.NewEncoder(w).Encode(b.factors)
	case r.Method == http.MethodGet && r.URL.Path == "/factors/metrics":
		_ = json.NewEncoder(w).Encode(types.FactorMetrics{Factors: b.factors, Impacts: types.FactorImpacts{NetBias: 0.1}})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/factors/"):
		var f types.Factor
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &f)
		b.factors[strings.TrimPrefix(r.URL.Path, "/factors/")] = f
	case r.Method == http.MethodPost && r.URL.Path == "/factors":
		var body struct {
			Name     string  `json:"name"`
			Effect   float64 `json:"effect"`
			Strength float64 `json:"strength"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.factors[body.Name] = types.Factor{Effect: body.Effect, Strength: body.Strength}
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/factors/"):
		delete(b.factors, strings.TrimPrefix(r.URL.Path, "/factors/"))
	case r.Method == http.MethodGet && r.URL.Path == "/routes":
		_ = json.NewEncoder(w).Encode(b.routes)
	case r.Method == http.MethodPost && r.URL.Path == "/routes":
		var body struct {
			Origin      string  `json:"origin"`
			Destination string  `json:"destination"`
			Cost        float64 `json:"cost"`
			Time        float64 `json:"time"`
			Risk        float64 `json:"risk"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if b.routes[body.Origin] == nil {
			b.routes[body.Origin] = map[string]types.RouteDetails{}
		}
		b.routes[body.Origin][body.Destination] = types.RouteDetails{Cost: body.Cost, Time: body.Time, Risk: body.Risk}
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/routes/"):
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/routes/"), "/")
		if len(parts) == 2 {
			delete(b.routes[parts[0]], parts[1])
		}
	case r.Method == http.MethodPost && r.URL.Path == "/reset":
		initial := newBackend()
		b.factors = initial.factors
		b.routes = initial.routes
	case r.URL.Path == "/simulate":
		if b.simStatus != 0 {
			w.WriteHeader(b.simStatus)
			_, _ = w.Write([]byte("solver offline"))
			return
		}
		var req types.SimulationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(types.SimulationResponse{
			Cheapest:   &types.SimulationResult{Source: req.Source, Destination: req.Destination, TotalCost: 1200.50, TotalTime: 12, TotalRisk: 0.4},
			Fastest:    &types.SimulationResult{Source: req.Source, Destination: req.Destination, TotalCost: 1500, TotalTime: 6, TotalRisk: 0.3},
			MostSecure: &types.SimulationResult{Source: req.Source, Destination: req.Destination, TotalCost: 1850.25, TotalTime: 14, TotalRisk: 0.1},
		})
	case strings.HasPrefix(r.URL.Path, "/geo/"):
		if b.geoStatus != 0 {
			w.WriteHeader(b.geoStatus)
			_, _ = w.Write([]byte(b.geoBody))
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *backend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[key]
}

func (b *backend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

type harness struct {
	s       *Session
	be      *backend
	clk     *fakeClock
	routes  *cache.Routes
	factors *cache.Factors
	ledger  *ledger.Ledger
	kv      *store.MemStore
	api     *gateway.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	be := newBackend()
	srv := httptest.NewServer(http.HandlerFunc(be.handler))
	t.Cleanup(srv.Close)

	clk := newFakeClock()
	kv := store.NewMemStore()
	api := &gateway.Client{BaseURL: srv.URL}
	routes := cache.NewRoutes(api, nil)
	routes.SetClock(clk.Now)
	factors := cache.NewFactors(api, kv, nil)
	factors.SetClock(clk.Now)
	d, err := drafts.New(api, factors, kv, nil)
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.New(30, kv, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{
		API: api, Editor: api, Routes: routes, Factors: factors, Drafts: d, Ledger: l, Store: kv,
		Clock: clk, Debounce: time.Second, MinIndicator: 600 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return &harness{s: s, be: be, clk: clk, routes: routes, factors: factors, ledger: l, kv: kv, api: api}
}

// ready loads both caches and runs one simulation for France -> Brazil.
func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.readyFor(t, "France", "Brazil")
}

func (h *harness) readyFor(t *testing.T, origin, destination string) {
	t.Helper()
	ctx := context.Background()
	if err := h.s.RefreshFactors(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.s.RefreshRoutes(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.s.SelectCorridor(origin, destination); err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(time.Second)
	if err := h.s.Simulate(ctx); err != nil {
		t.Fatalf("simulate: %v", err)
	}
}

func TestSwitchAlternativeIsLocal(t *testing.T) {
	h := newHarness(t)
	h.readyFor(t, "Germany", "Japan")

	st := h.s.State()
	if st.Active != types.Cheapest || st.View == nil || st.View.TotalCost != 1200.50 || st.View.Destination != "Japan" {
		t.Fatalf("unexpected initial state %+v", st)
	}
	before := len(h.be.calls())

	if err := h.s.Select(types.MostSecure); err != nil {
		t.Fatal(err)
	}
	st = h.s.State()
	if len(h.be.calls()) != before {
		t.Fatalf("selecting an alternative must not call the server")
	}
	if st.Active != types.MostSecure || st.View.TotalCost != 1850.25 {
		t.Fatalf("view not switched: %+v", st.View)
	}
	if st.StaleNotice != "" || st.LastRun.Stale {
		t.Fatalf("selection must not touch staleness")
	}
}

func TestFactorUpdateAfterRunInvalidatesResult(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	ctx := context.Background()

	h.clk.Advance(time.Second)
	if _, _, err := h.s.RememberDraft("Stability", types.Factor{Effect: 0.55, Strength: 0.5}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.s.SaveFactor(ctx, "Stability"); err != nil {
		t.Fatal(err)
	}

	st := h.s.State()
	if st.View != nil {
		t.Fatalf("stale transition must clear the displayed result")
	}
	if st.StaleNotice != NoticeFactors {
		t.Fatalf("unexpected notice %q", st.StaleNotice)
	}
	if st.LastRun == nil || !st.LastRun.Stale {
		t.Fatalf("run record should be kept and flagged stale")
	}
	if !h.s.Scheduler().Pending() {
		t.Fatalf("factor save after a run should schedule a recompute")
	}

	if err := h.s.Simulate(ctx); err != nil {
		t.Fatal(err)
	}
	st = h.s.State()
	if st.StaleNotice != "" || st.View == nil {
		t.Fatalf("re-simulate should clear the notice, got %+v", st)
	}
	if !st.LastRun.ComputedAtFactors.Equal(h.factors.UpdatedAt()) {
		t.Fatalf("fresh stamps not recorded: %v vs %v", st.LastRun.ComputedAtFactors, h.factors.UpdatedAt())
	}
}

func TestGeoActionFailureShowsServerText(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.be.mu.Lock()
	h.be.geoStatus = http.StatusNotFound
	h.be.geoBody = "route not found"
	h.be.mu.Unlock()

	factorsBefore := h.be.count("GET /factors")
	routesBefore := h.be.count("GET /routes")

	_, err := h.s.ApplyGeoAction(context.Background(), gateway.GeoRequest{Action: gateway.GeoTariff, A: "France", B: "Brazil", Value: 25})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if got := gateway.Message(err); got != "route not found" {
		t.Fatalf("expected server text, got %q", got)
	}
	if h.be.count("GET /factors") != factorsBefore || h.be.count("GET /routes") != routesBefore {
		t.Fatalf("failed action must not refetch caches")
	}
	if h.ledger.Len() != 0 {
		t.Fatalf("failed action must not be recorded")
	}
	if h.s.Scheduler().Pending() {
		t.Fatalf("failed action must not schedule a recompute")
	}
}

func TestGeoActionSequence(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	start := len(h.be.calls())

	rec, err := h.s.ApplyGeoAction(context.Background(), gateway.GeoRequest{Action: gateway.GeoTariff, A: "France", B: "Brazil", Value: 25})
	if err != nil {
		t.Fatal(err)
	}
	calls := h.be.calls()[start:]
	want := []string{"POST /geo/tariff", "GET /factors", "GET /factors/metrics", "GET /routes"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected call order %v", calls)
	}
	if rec.Summary != "25% tariff applied from France to Brazil" || rec.Value == nil || *rec.Value != 25 || rec.Unit != "%" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if entries := h.ledger.Entries(); len(entries) != 1 || entries[0].ID != rec.ID {
		t.Fatalf("ledger not updated: %+v", entries)
	}
	if !h.s.Scheduler().Pending() {
		t.Fatalf("expected recompute to be scheduled")
	}

	simBefore := h.be.count("POST /simulate")
	h.clk.Advance(time.Second)
	if h.be.count("POST /simulate") != simBefore+1 {
		t.Fatalf("expected one scheduled recompute")
	}
	if st := h.s.State(); st.View == nil || st.StaleNotice != "" {
		t.Fatalf("recompute should restore a fresh view, got %+v", st)
	}
}

func TestTriggersBeforeFirstRunAreDropped(t *testing.T) {
	h := newHarness(t)
	if err := h.s.RefreshFactors(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.s.Scheduler().Pending() {
		t.Fatalf("no recompute before the first run")
	}
	if err := h.s.Simulate(context.Background()); !errors.Is(err, ErrNoCorridor) {
		t.Fatalf("expected ErrNoCorridor, got %v", err)
	}
}

func TestScheduledFailureKeepsResult(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.be.mu.Lock()
	h.be.simStatus = http.StatusServiceUnavailable
	h.be.mu.Unlock()

	if err := h.s.SetMode(types.ModeAir); err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(time.Second)
	st := h.s.State()
	if st.Error != "solver offline" {
		t.Fatalf("expected surfaced error, got %q", st.Error)
	}
	if st.View == nil || st.View.TotalCost != 1200.50 {
		t.Fatalf("failed recompute must keep the displayed result")
	}
}

type midFlightAPI struct {
	*gateway.Client
	during func()
}

func (m *midFlightAPI) Simulate(ctx context.Context, req types.SimulationRequest) (*types.SimulationResponse, error) {
	resp, err := m.Client.Simulate(ctx, req)
	if m.during != nil {
		m.during()
	}
	return resp, err
}

func TestRefreshDuringFlightMarksResultStale(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	api := &midFlightAPI{Client: h.api}
	s := New(Config{API: api, Routes: h.routes, Factors: h.factors, Clock: h.clk, Debounce: time.Second})
	defer s.Close()
	_ = s.SelectCorridor("France", "Brazil")
	api.during = func() {
		h.clk.Advance(time.Second)
		_ = h.routes.Refresh(context.Background())
	}
	if err := s.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.StaleNotice != NoticeRoutes || st.View != nil {
		t.Fatalf("result computed before the refresh should be stale, got %+v", st)
	}
}

func TestSubscribeAndLastSnapshot(t *testing.T) {
	h := newHarness(t)
	var got []State
	var mu sync.Mutex
	unsub := h.s.Subscribe(func(st State) {
		mu.Lock()
		got = append(got, st)
		mu.Unlock()
	})
	h.ready(t)
	unsub()

	mu.Lock()
	n := len(got)
	mu.Unlock()
	if n == 0 {
		t.Fatalf("expected state notifications")
	}
	snap, err := h.s.LastSnapshot()
	if err != nil || snap == nil {
		t.Fatalf("expected persisted snapshot, err=%v", err)
	}
	if snap.Corridor.Origin != "France" || snap.Response.Cheapest == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	runs, _ := h.kv.ListRuns(5)
	if len(runs) != 1 {
		t.Fatalf("expected one run in history, got %d", len(runs))
	}
}
