package session

import (
	"testing"

	"github.com/yourorg/tradesim/pkg/types"
)

func TestSelectorFallsBackToFastest(t *testing.T) {
	resp := &types.SimulationResponse{
		Fastest:    &types.SimulationResult{TotalCost: 200, TotalTime: 5},
		MostSecure: &types.SimulationResult{TotalCost: 300, TotalRisk: 0.1},
	}
	sel, err := NewSelector(resp)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Active() != types.Fastest {
		t.Fatalf("expected fastest, got %q", sel.Active())
	}
	if err := sel.Select(types.Cheapest); err == nil {
		t.Fatalf("absent alternative must not be selectable")
	}
	if sel.Active() != types.Fastest {
		t.Fatalf("failed select must keep the selection")
	}
	if err := sel.Select(types.MostSecure); err != nil {
		t.Fatal(err)
	}
	if v := sel.View(); v.TotalCost != 300 || v.Alternative != types.MostSecure {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestSelectorDefaultsToCheapest(t *testing.T) {
	sel, err := NewSelector(&types.SimulationResponse{
		Cheapest:   &types.SimulationResult{TotalCost: 100},
		MostSecure: &types.SimulationResult{TotalCost: 300},
	})
	if err != nil || sel.Active() != types.Cheapest {
		t.Fatalf("expected cheapest default, got %q err=%v", sel.Active(), err)
	}
	if _, err := NewSelector(&types.SimulationResponse{}); err == nil {
		t.Fatalf("empty response must be rejected")
	}
}

func TestBuildViewUsesGameTheoryImpactsFallback(t *testing.T) {
	r := &types.SimulationResult{TotalCost: 10, Path: []string{"France", "Spain", "Brazil"}}
	r.GameTheory.Factors.Impacts.CostMultiplier = 1.2
	r.GameTheory.CooperationProbability = 0.7
	v := BuildView(types.Cheapest, r)
	if v.FactorImpacts.CostMultiplier != 1.2 {
		t.Fatalf("expected impacts from game theory snapshot, got %+v", v.FactorImpacts)
	}
	if v.GameTheory.CooperationProbability != 0.7 || len(v.Path) != 3 {
		t.Fatalf("unexpected view %+v", v)
	}
	r.Path[0] = "Germany"
	if v.Path[0] != "France" {
		t.Fatalf("view must not alias the result")
	}
}
