package gateway

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/yourorg/tradesim/pkg/types"
)

func (c *Client) AddCountry(ctx context.Context, country types.Country) error {
	if strings.TrimSpace(country.Name) == "" {
		return &ValidationError{Op: "add_country", Field: "name", Reason: "cannot be empty"}
	}
	return c.do(ctx, call{op: "add_country", method: http.MethodPost, path: "/countries", body: country}, nil)
}

func (c *Client) DeleteCountry(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Op: "delete_country", Field: "name", Reason: "cannot be empty"}
	}
	return c.do(ctx, call{op: "delete_country", method: http.MethodDelete, path: "/countries/" + url.PathEscape(name)}, nil)
}

func (c *Client) AddCommodity(ctx context.Context, name string, unitCost float64) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Op: "add_commodity", Field: "name", Reason: "cannot be empty"}
	}
	if !finite(unitCost) || unitCost < 0 {
		return &ValidationError{Op: "add_commodity", Field: "unit_cost", Reason: "must be finite and non-negative"}
	}
	body := map[string]any{"name": name, "unit_cost": unitCost}
	return c.do(ctx, call{op: "add_commodity", method: http.MethodPost, path: "/commodities", body: body}, nil)
}

func (c *Client) AddRoute(ctx context.Context, corridor types.Corridor, d types.RouteDetails) error {
	if err := validateCorridor("add_route", corridor); err != nil {
		return err
	}
	if err := validateRoutes(types.Routes{corridor.Origin: {corridor.Destination: d}}); err != nil {
		ve := err.(*ValidationError)
		ve.Op = "add_route"
		return ve
	}
	body := map[string]any{
		"origin":      corridor.Origin,
		"destination": corridor.Destination,
		"cost":        d.Cost,
		"time":        d.Time,
		"risk":        d.Risk,
	}
	if d.Mode != "" {
		body["mode"] = d.Mode
	}
	return c.do(ctx, call{op: "add_route", method: http.MethodPost, path: "/routes", body: body}, nil)
}

func (c *Client) DeleteRoute(ctx context.Context, corridor types.Corridor) error {
	if err := validateCorridor("delete_route", corridor); err != nil {
		return err
	}
	path := "/routes/" + url.PathEscape(corridor.Origin) + "/" + url.PathEscape(corridor.Destination)
	return c.do(ctx, call{op: "delete_route", method: http.MethodDelete, path: path}, nil)
}

func (c *Client) AddFactor(ctx context.Context, name string, f types.Factor) error {
	if err := validateFactorWrite("add_factor", name, f); err != nil {
		return err
	}
	body := map[string]any{"name": name, "effect": f.Effect, "strength": f.Strength}
	return c.do(ctx, call{op: "add_factor", method: http.MethodPost, path: "/factors", body: body}, nil)
}

func (c *Client) UpdateFactor(ctx context.Context, name string, f types.Factor) error {
	if err := validateFactorWrite("update_factor", name, f); err != nil {
		return err
	}
	return c.do(ctx, call{op: "update_factor", method: http.MethodPut, path: "/factors/" + url.PathEscape(name), body: f}, nil)
}

func (c *Client) DeleteFactor(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Op: "delete_factor", Field: "name", Reason: "cannot be empty"}
	}
	return c.do(ctx, call{op: "delete_factor", method: http.MethodDelete, path: "/factors/" + url.PathEscape(name)}, nil)
}

// ResetFactors applies a server-side preset and returns the resulting factors.
func (c *Client) ResetFactors(ctx context.Context, preset types.FactorPreset) (*types.FactorMetrics, error) {
	if preset == "" {
		preset = types.PresetDefaults
	}
	if !preset.Valid() {
		return nil, &ValidationError{Op: "reset_factors", Field: "mode", Reason: "unknown preset " + string(preset)}
	}
	var out types.FactorMetrics
	if err := c.do(ctx, call{op: "reset_factors", method: http.MethodPost, path: "/factors/reset", body: map[string]string{"mode": string(preset)}}, &out); err != nil {
		return nil, err
	}
	if err := validateFactors("reset_factors", out.Factors); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset restores the whole server scenario.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, call{op: "reset", method: http.MethodPost, path: "/reset"}, nil)
}

func validateCorridor(op string, c types.Corridor) error {
	if strings.TrimSpace(c.Origin) == "" {
		return &ValidationError{Op: op, Field: "origin", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.Destination) == "" {
		return &ValidationError{Op: op, Field: "destination", Reason: "cannot be empty"}
	}
	return nil
}

func validateFactorWrite(op, name string, f types.Factor) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Op: op, Field: "name", Reason: "cannot be empty"}
	}
	if !finite(f.Effect) || f.Effect < -1 || f.Effect > 1 {
		return &ValidationError{Op: op, Field: "effect", Reason: "must be within [-1,1]"}
	}
	if !finite(f.Strength) || f.Strength < 0 || f.Strength > 1 {
		return &ValidationError{Op: op, Field: "strength", Reason: "must be within [0,1]"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
