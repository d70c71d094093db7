package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourorg/tradesim/pkg/types"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
	header http.Header
}

func newFakeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *int32, chan recorded) {
	t.Helper()
	var hit int32
	reqs := make(chan recorded, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		rec := recorded{method: r.Method, path: r.URL.Path, header: r.Header.Clone()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		reqs <- rec
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hit, reqs
}

type fakeRecorder struct {
	ops []string
}

func (f *fakeRecorder) ObserveRequest(op, outcome string, _ time.Duration) {
	f.ops = append(f.ops, op+":"+outcome)
}

func TestRoutesSendsNoCacheHeaders(t *testing.T) {
	srv, _, reqs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"France":{"Brazil":{"cost":10,"time":4,"risk":0.2,"mode":"sea"}}}`))
	})
	c := &Client{BaseURL: srv.URL}
	routes, err := c.Routes(context.Background())
	if err != nil {
		t.Fatalf("Routes error: %v", err)
	}
	d, ok := routes.Lookup(types.Corridor{Origin: "France", Destination: "Brazil"})
	if !ok || d.Cost != 10 || d.Mode != types.ModeSea {
		t.Fatalf("unexpected route %+v ok=%v", d, ok)
	}
	rec := <-reqs
	if rec.header.Get("Cache-Control") != "no-cache" || rec.header.Get("Pragma") != "no-cache" {
		t.Fatalf("missing no-cache headers: %v", rec.header)
	}
}

func TestRoutesRejectsNegativeCost(t *testing.T) {
	srv, _, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"France":{"Brazil":{"cost":-1,"time":4,"risk":0.2}}}`))
	})
	c := &Client{BaseURL: srv.URL}
	_, err := c.Routes(context.Background())
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatusErrorMessageIsServerBody(t *testing.T) {
	srv, hit, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("route not found"))
	})
	c := &Client{BaseURL: srv.URL}
	err := c.ApplyGeoAction(context.Background(), GeoRequest{Action: GeoTariff, A: "France", B: "Brazil", Value: 25})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("expected status error, got %v", err)
	}
	if got := Message(err); got != "route not found" {
		t.Fatalf("expected server body, got %q", got)
	}
	if atomic.LoadInt32(hit) != 1 {
		t.Fatalf("expected exactly one request, got %d", *hit)
	}
}

func TestStatusErrorUnwrapsDetail(t *testing.T) {
	srv, _, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Route France -> Brazil not found"}`))
	})
	c := &Client{BaseURL: srv.URL}
	_, err := c.Simulate(context.Background(), types.SimulationRequest{Source: "France", Destination: "Brazil", Parameters: types.DefaultParameters()})
	if got := Message(err); got != "Route France -> Brazil not found" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestEmptyErrorBodyFallsBackToGeneric(t *testing.T) {
	srv, _, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := &Client{BaseURL: srv.URL}
	_, err := c.Simulate(context.Background(), types.SimulationRequest{Source: "France", Destination: "Brazil", Parameters: types.DefaultParameters()})
	if got := Message(err); got != "Simulation failed" {
		t.Fatalf("unexpected message %q", got)
	}
	err = c.ApplyGeoAction(context.Background(), GeoRequest{Action: GeoSubsidy, A: "France", B: "Brazil", Value: 15})
	if got := Message(err); got != "Failed to grant subsidy" {
		t.Fatalf("unexpected geo message %q", got)
	}
}

func TestTransportErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	rec := &fakeRecorder{}
	c := &Client{BaseURL: base, Metrics: rec}
	_, err := c.Factors(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if Message(err) != "Failed to load factors" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if len(rec.ops) != 1 || rec.ops[0] != "factors:transport_error" {
		t.Fatalf("unexpected metrics %v", rec.ops)
	}
}

func TestValidationErrorsIssueNoRequest(t *testing.T) {
	srv, hit, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := &Client{BaseURL: srv.URL}

	cases := []error{
		c.UpdateFactor(context.Background(), "Stability", types.Factor{Effect: 2, Strength: 0.5}),
		c.UpdateFactor(context.Background(), "Stability", types.Factor{Effect: math.NaN(), Strength: 0.5}),
		c.ApplyGeoAction(context.Background(), GeoRequest{Action: GeoTariff, A: "France", Value: 25}),
		c.ApplyGeoAction(context.Background(), GeoRequest{Action: GeoMode, A: "France", B: "Brazil", Mode: "rail"}),
		c.ApplyGeoAction(context.Background(), GeoRequest{Action: "teleport", A: "France", B: "Brazil"}),
		c.AddCommodity(context.Background(), "", 3),
		c.DeleteRoute(context.Background(), types.Corridor{Origin: "France"}),
	}
	_, err := c.ResetFactors(context.Background(), "chaos")
	cases = append(cases, err)
	_, err = c.Simulate(context.Background(), types.SimulationRequest{Source: "France", Destination: "Brazil", Parameters: types.ScenarioParameters{Rounds: 0, Discount: 0.9}})
	cases = append(cases, err)

	for i, err := range cases {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if atomic.LoadInt32(hit) != 0 {
		t.Fatalf("validation failures must not reach the server, got %d requests", *hit)
	}
}

func TestGeoActionBodies(t *testing.T) {
	srv, _, reqs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := &Client{BaseURL: srv.URL}

	cases := []struct {
		req   GeoRequest
		key   string
		value any
	}{
		{GeoRequest{Action: GeoWar, A: "A", B: "B"}, "", nil},
		{GeoRequest{Action: GeoTariff, A: "A", B: "B", Value: 25}, "percent", 25.0},
		{GeoRequest{Action: GeoRisk, A: "A", B: "B", Value: 0.1}, "delta", 0.1},
		{GeoRequest{Action: GeoCustoms, A: "A", B: "B", Value: 6}, "hours", 6.0},
		{GeoRequest{Action: GeoStorm, A: "A", B: "B", Value: 40}, "severity", 40.0},
		{GeoRequest{Action: GeoMode, A: "A", B: "B", Mode: types.ModeAir}, "mode", "air"},
	}
	for _, tc := range cases {
		if err := c.ApplyGeoAction(context.Background(), tc.req); err != nil {
			t.Fatalf("%s: %v", tc.req.Action, err)
		}
		rec := <-reqs
		if rec.path != "/geo/"+string(tc.req.Action) || rec.method != http.MethodPost {
			t.Fatalf("%s: unexpected request %s %s", tc.req.Action, rec.method, rec.path)
		}
		if rec.body["a"] != "A" || rec.body["b"] != "B" {
			t.Fatalf("%s: missing lane in body %v", tc.req.Action, rec.body)
		}
		if tc.key == "" {
			if len(rec.body) != 2 {
				t.Fatalf("war should only send a and b, got %v", rec.body)
			}
			continue
		}
		if rec.body[tc.key] != tc.value {
			t.Fatalf("%s: expected %s=%v, got %v", tc.req.Action, tc.key, tc.value, rec.body)
		}
	}
	if len(GeoActions()) != 16 {
		t.Fatalf("expected 16 geo actions, got %d", len(GeoActions()))
	}
}

func TestGeoSummaries(t *testing.T) {
	cases := map[string]GeoRequest{
		"25% tariff applied from France to Brazil": {Action: GeoTariff, A: "France", B: "Brazil", Value: 25},
		"War declared between France and Brazil":   {Action: GeoWar, A: "France", B: "Brazil"},
		"Time reduced by 6h on France → Brazil":    {Action: GeoCustoms, A: "France", B: "Brazil", Value: 6},
		"Risk lowered by 0.08":                     {Action: GeoSecurity, A: "France", B: "Brazil", Value: 0.08},
		"Route mode set to sea on France → Brazil": {Action: GeoMode, A: "France", B: "Brazil", Mode: types.ModeSea},
	}
	for want, req := range cases {
		if got := req.Summary(); got != want {
			t.Fatalf("summary mismatch: got %q want %q", got, want)
		}
	}
}

func TestSimulateDecodesAlternatives(t *testing.T) {
	srv, _, reqs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fastest":{"src":"France","dst":"Brazil","total_cost":120,"total_time":8,"total_risk":0.3,"path":["France","Brazil"]}}`))
	})
	c := &Client{BaseURL: srv.URL}
	resp, err := c.Simulate(context.Background(), types.SimulationRequest{
		Source: "France", Destination: "Brazil", Mode: types.ModeAuto,
		Parameters:    types.DefaultParameters(),
		CargoManifest: []types.CargoItem{{Name: "grain", Quantity: 10}},
	})
	if err != nil {
		t.Fatalf("Simulate error: %v", err)
	}
	if resp.Cheapest != nil || resp.Fastest == nil || resp.Fastest.TotalCost != 120 {
		t.Fatalf("unexpected response %+v", resp)
	}
	rec := <-reqs
	if rec.body["src"] != "France" || rec.body["mode"] != "auto" {
		t.Fatalf("unexpected body %v", rec.body)
	}
	params, _ := rec.body["parameters"].(map[string]any)
	if params["rounds"] != 6.0 || params["discount"] != 0.92 {
		t.Fatalf("unexpected parameters %v", params)
	}
}

func TestSimulateRejectsEmptyResponse(t *testing.T) {
	srv, _, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	c := &Client{BaseURL: srv.URL}
	_, err := c.Simulate(context.Background(), types.SimulationRequest{Source: "France", Destination: "Brazil", Parameters: types.DefaultParameters()})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCatalogReadsFlattenNamedMaps(t *testing.T) {
	srv, _, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/countries":
			_, _ = w.Write([]byte(`{"Brazil":{"demand":["Grain"],"production":{"Coffee":40},"inflation":0.04},"France":{"inflation":0.02}}`))
		case "/commodities":
			_, _ = w.Write([]byte(`{"grain":{"unit_cost":3.5}}`))
		case "/alliances":
			_, _ = w.Write([]byte(`{"NATO":{"members":["France"],"cohesion":0.8}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := &Client{BaseURL: srv.URL}
	countries, err := c.Countries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(countries) != 2 || countries[0].Name != "Brazil" {
		t.Fatalf("unexpected countries %+v", countries)
	}
	if countries[0].Demand["grain"] != 100 || countries[0].Production["coffee"] != 40 {
		t.Fatalf("commodity volumes not normalised: %+v", countries[0])
	}
	commodities, err := c.Commodities(context.Background())
	if err != nil || len(commodities) != 1 || commodities[0].UnitCost != 3.5 {
		t.Fatalf("unexpected commodities %+v err=%v", commodities, err)
	}
	alliances, err := c.Alliances(context.Background())
	if err != nil || alliances[0].Name != "NATO" {
		t.Fatalf("unexpected alliances %+v err=%v", alliances, err)
	}
	if _, err := c.Graph(context.Background()); Message(err) != "Failed to load graph" {
		t.Fatalf("expected generic graph message, got %q", Message(err))
	}
}

func TestResetFactorsReturnsMetrics(t *testing.T) {
	srv, _, reqs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"factors":{"Stability":{"effect":0.4,"strength":0.6}},"impacts":{"net_bias":0.1}}`))
	})
	c := &Client{BaseURL: srv.URL}
	m, err := c.ResetFactors(context.Background(), types.PresetCrisis)
	if err != nil {
		t.Fatal(err)
	}
	if m.Factors["Stability"].Effect != 0.4 || m.Impacts.NetBias != 0.1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	rec := <-reqs
	if rec.body["mode"] != "crisis" {
		t.Fatalf("unexpected body %v", rec.body)
	}
}

func TestDeleteRouteEscapesPath(t *testing.T) {
	srv, _, reqs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := &Client{BaseURL: srv.URL + "/"}
	if err := c.DeleteRoute(context.Background(), types.Corridor{Origin: "South Africa", Destination: "Brazil"}); err != nil {
		t.Fatal(err)
	}
	rec := <-reqs
	if rec.method != http.MethodDelete || !strings.HasPrefix(rec.path, "/routes/South Africa/") {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}
}

func TestScenarioWriteRequests(t *testing.T) {
	srv, hit, reqs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := &Client{BaseURL: srv.URL}
	ctx := context.Background()

	cases := []struct {
		name   string
		call   func() error
		method string
		path   string
		body   map[string]any
	}{
		{"add country", func() error { return c.AddCountry(ctx, types.Country{Name: "Chile", Inflation: 0.04}) },
			http.MethodPost, "/countries", map[string]any{"name": "Chile", "inflation": 0.04}},
		{"delete country", func() error { return c.DeleteCountry(ctx, "Chile") },
			http.MethodDelete, "/countries/Chile", nil},
		{"add commodity", func() error { return c.AddCommodity(ctx, "Copper", 8.5) },
			http.MethodPost, "/commodities", map[string]any{"name": "Copper", "unit_cost": 8.5}},
		{"add route", func() error {
			return c.AddRoute(ctx, types.Corridor{Origin: "France", Destination: "Chile"}, types.RouteDetails{Cost: 300, Time: 20, Risk: 0.3, Mode: types.ModeSea})
		}, http.MethodPost, "/routes", map[string]any{"origin": "France", "destination": "Chile", "cost": 300.0, "time": 20.0, "risk": 0.3, "mode": "sea"}},
		{"add factor", func() error { return c.AddFactor(ctx, "Tension", types.Factor{Effect: -0.3, Strength: 0.4}) },
			http.MethodPost, "/factors", map[string]any{"name": "Tension", "effect": -0.3, "strength": 0.4}},
		{"delete factor", func() error { return c.DeleteFactor(ctx, "Tension") },
			http.MethodDelete, "/factors/Tension", nil},
		{"reset", func() error { return c.Reset(ctx) },
			http.MethodPost, "/reset", nil},
	}
	for _, tc := range cases {
		if err := tc.call(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		rec := <-reqs
		if rec.method != tc.method || rec.path != tc.path {
			t.Fatalf("%s: unexpected request %s %s", tc.name, rec.method, rec.path)
		}
		for k, want := range tc.body {
			if rec.body[k] != want {
				t.Fatalf("%s: body[%s] = %v, want %v", tc.name, k, rec.body[k], want)
			}
		}
	}
	if n := atomic.LoadInt32(hit); n != int32(len(cases)) {
		t.Fatalf("expected %d requests, got %d", len(cases), n)
	}
}

func TestScenarioWritesValidateFirst(t *testing.T) {
	srv, hit, _ := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := &Client{BaseURL: srv.URL}
	ctx := context.Background()
	errs := []error{
		c.AddCountry(ctx, types.Country{Name: " "}),
		c.DeleteCountry(ctx, ""),
		c.AddRoute(ctx, types.Corridor{Origin: "France", Destination: "Chile"}, types.RouteDetails{Cost: -1}),
		c.AddFactor(ctx, "Tension", types.Factor{Effect: -0.3, Strength: 1.5}),
		c.DeleteFactor(ctx, ""),
	}
	for i, err := range errs {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if atomic.LoadInt32(hit) != 0 {
		t.Fatalf("invalid writes must not reach the server")
	}
}
