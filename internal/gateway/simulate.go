package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/yourorg/tradesim/pkg/types"
)

// ValidateParameters checks scenario parameter ranges.
func ValidateParameters(p types.ScenarioParameters) error {
	switch {
	case p.Rounds <= 0:
		return &ValidationError{Op: "simulate", Field: "rounds", Reason: "must be positive"}
	case !finite(p.Discount) || p.Discount <= 0 || p.Discount > 1:
		return &ValidationError{Op: "simulate", Field: "discount", Reason: "must be within (0,1]"}
	case !finite(p.Shock) || p.Shock < 0:
		return &ValidationError{Op: "simulate", Field: "shock", Reason: "must be non-negative"}
	case !finite(p.Aggression) || p.Aggression < 0 || p.Aggression > 1:
		return &ValidationError{Op: "simulate", Field: "aggression", Reason: "must be within [0,1]"}
	}
	return nil
}

func validateSimulationRequest(req types.SimulationRequest) error {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Destination) == "" {
		return &ValidationError{Op: "simulate", Reason: "Select both countries first"}
	}
	if req.Mode != "" && req.Mode != types.ModeAuto && !req.Mode.Valid() {
		return &ValidationError{Op: "simulate", Field: "mode", Reason: "must be land, sea, air or auto"}
	}
	if err := ValidateParameters(req.Parameters); err != nil {
		return err
	}
	for _, item := range req.CargoManifest {
		if strings.TrimSpace(item.Name) == "" {
			return &ValidationError{Op: "simulate", Field: "cargo_manifest", Reason: "item name cannot be empty"}
		}
		if !finite(item.Quantity) || item.Quantity <= 0 {
			return &ValidationError{Op: "simulate", Field: "cargo_manifest", Reason: "quantity must be positive"}
		}
	}
	return nil
}

// Simulate runs one multi-objective simulation. The response carries at least
// one alternative.
func (c *Client) Simulate(ctx context.Context, req types.SimulationRequest) (*types.SimulationResponse, error) {
	if err := validateSimulationRequest(req); err != nil {
		return nil, err
	}
	var out types.SimulationResponse
	if err := c.do(ctx, call{op: "simulate", method: http.MethodPost, path: "/simulate", body: req}, &out); err != nil {
		return nil, err
	}
	if len(out.Present()) == 0 {
		return nil, &ValidationError{Op: "simulate", Reason: "response contains no alternatives"}
	}
	for _, alt := range out.Present() {
		r := out.Get(alt)
		if !finite(r.TotalCost) || !finite(r.TotalTime) || !finite(r.TotalRisk) {
			return nil, &ValidationError{Op: "simulate", Field: string(alt), Reason: "totals must be finite"}
		}
	}
	return &out, nil
}
