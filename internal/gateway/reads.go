package gateway

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/yourorg/tradesim/pkg/types"
)

func (c *Client) Countries(ctx context.Context) ([]types.Country, error) {
	var raw map[string]types.Country
	if err := c.do(ctx, call{op: "countries", method: http.MethodGet, path: "/countries"}, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Country, 0, len(raw))
	for name, country := range raw {
		country.Name = name
		out = append(out, country)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) Commodities(ctx context.Context) ([]types.Commodity, error) {
	var raw map[string]struct {
		UnitCost float64 `json:"unit_cost"`
	}
	if err := c.do(ctx, call{op: "commodities", method: http.MethodGet, path: "/commodities"}, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Commodity, 0, len(raw))
	for name, v := range raw {
		out = append(out, types.Commodity{Name: name, UnitCost: v.UnitCost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Routes always bypasses intermediary caches.
func (c *Client) Routes(ctx context.Context) (types.Routes, error) {
	var out types.Routes
	err := c.do(ctx, call{
		op:     "routes",
		method: http.MethodGet,
		path:   "/routes",
		headers: map[string]string{
			"Cache-Control": "no-cache",
			"Pragma":        "no-cache",
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = types.Routes{}
	}
	if err := validateRoutes(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateRoutes(r types.Routes) error {
	for origin, dsts := range r {
		for dst, d := range dsts {
			for field, v := range map[string]float64{"cost": d.Cost, "time": d.Time, "risk": d.Risk} {
				if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
					return &ValidationError{Op: "routes", Field: fmt.Sprintf("%s->%s %s", origin, dst, field), Reason: "must be finite and non-negative"}
				}
			}
			if d.Mode != "" && !d.Mode.Valid() {
				return &ValidationError{Op: "routes", Field: fmt.Sprintf("%s->%s mode", origin, dst), Reason: fmt.Sprintf("unknown mode %q", d.Mode)}
			}
		}
	}
	return nil
}

func (c *Client) Factors(ctx context.Context) (map[string]types.Factor, error) {
	var out map[string]types.Factor
	if err := c.do(ctx, call{op: "factors", method: http.MethodGet, path: "/factors"}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]types.Factor{}
	}
	if err := validateFactors("factors", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FactorMetrics(ctx context.Context) (*types.FactorMetrics, error) {
	var out types.FactorMetrics
	if err := c.do(ctx, call{op: "factor_metrics", method: http.MethodGet, path: "/factors/metrics"}, &out); err != nil {
		return nil, err
	}
	if err := validateFactors("factor_metrics", out.Factors); err != nil {
		return nil, err
	}
	return &out, nil
}

func validateFactors(op string, f map[string]types.Factor) error {
	for name, v := range f {
		if math.IsNaN(v.Effect) || math.IsInf(v.Effect, 0) || math.IsNaN(v.Strength) || math.IsInf(v.Strength, 0) {
			return &ValidationError{Op: op, Field: name, Reason: "must be finite"}
		}
	}
	return nil
}

func (c *Client) Alliances(ctx context.Context) ([]types.Alliance, error) {
	var raw map[string]types.Alliance
	if err := c.do(ctx, call{op: "alliances", method: http.MethodGet, path: "/alliances"}, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Alliance, 0, len(raw))
	for name, a := range raw {
		a.Name = name
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) Treaties(ctx context.Context) ([]types.Treaty, error) {
	var raw map[string]types.Treaty
	if err := c.do(ctx, call{op: "treaties", method: http.MethodGet, path: "/treaties"}, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Treaty, 0, len(raw))
	for name, t := range raw {
		t.Name = name
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) Graph(ctx context.Context) (*types.Graph, error) {
	var out types.Graph
	if err := c.do(ctx, call{op: "graph", method: http.MethodGet, path: "/graph"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
