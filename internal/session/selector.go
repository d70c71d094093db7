package session

import (
	"fmt"

	"github.com/yourorg/tradesim/pkg/types"
)

// View is everything the dashboard derives from the active alternative.
type View struct {
	Alternative      types.Alternative           `json:"alternative" yaml:"alternative"`
	Source           string                      `json:"src" yaml:"src"`
	Destination      string                      `json:"dst" yaml:"dst"`
	TotalCost        float64                     `json:"total_cost" yaml:"total_cost"`
	TotalTime        float64                     `json:"total_time" yaml:"total_time"`
	TotalRisk        float64                     `json:"total_risk" yaml:"total_risk"`
	Path             []string                    `json:"path" yaml:"path"`
	Breakdown        []types.BreakdownStep       `json:"breakdown" yaml:"breakdown"`
	FactorImpacts    types.FactorImpacts         `json:"factor_impacts" yaml:"factor_impacts"`
	FactorBreakdown  []types.FactorBreakdownItem `json:"factor_breakdown,omitempty" yaml:"factor_breakdown,omitempty"`
	BaselineTotals   types.BaselineTotals        `json:"baseline_totals" yaml:"baseline_totals"`
	GameTheory       GameTheorySummary           `json:"game_theory" yaml:"game_theory"`
	StrategicSummary string                      `json:"strategic_summary" yaml:"strategic_summary"`
	Parameters       types.ScenarioParameters    `json:"parameters" yaml:"parameters"`
	Transport        *types.TransportSummary     `json:"transport,omitempty" yaml:"transport,omitempty"`
	Commodities      []types.CommodityCargo      `json:"commodities,omitempty" yaml:"commodities,omitempty"`
}

type GameTheorySummary struct {
	CooperationProbability float64            `json:"cooperation_probability" yaml:"cooperation_probability"`
	TreatyBreakProbability float64            `json:"treaty_break_probability" yaml:"treaty_break_probability"`
	EquilibriumStrategy    string             `json:"equilibrium_strategy" yaml:"equilibrium_strategy"`
	StabilityIndex         float64            `json:"stability_index" yaml:"stability_index"`
	EscalationRisk         float64            `json:"escalation_risk" yaml:"escalation_risk"`
	ExpectedRounds         float64            `json:"expected_rounds" yaml:"expected_rounds"`
	Recommendation         string             `json:"recommendation" yaml:"recommendation"`
	Summary                string             `json:"summary" yaml:"summary"`
	PayoffMatrix           types.PayoffMatrix `json:"payoff_matrix" yaml:"payoff_matrix"`
}

// Selector picks one alternative out of a simulation response. It never
// touches the network or the staleness state.
type Selector struct {
	resp   *types.SimulationResponse
	active types.Alternative
}

// NewSelector selects cheapest, else fastest, else most_secure.
func NewSelector(resp *types.SimulationResponse) (*Selector, error) {
	present := resp.Present()
	if len(present) == 0 {
		return nil, fmt.Errorf("simulation response has no alternatives")
	}
	return &Selector{resp: resp, active: present[0]}, nil
}

func (s *Selector) Active() types.Alternative { return s.active }

func (s *Selector) Available() []types.Alternative { return s.resp.Present() }

func (s *Selector) Response() *types.SimulationResponse { return s.resp }

// Select switches to alt when present. An absent alternative leaves the
// selection unchanged.
func (s *Selector) Select(alt types.Alternative) error {
	if s.resp.Get(alt) == nil {
		return fmt.Errorf("alternative %q not available", alt)
	}
	s.active = alt
	return nil
}

func (s *Selector) View() View {
	return BuildView(s.active, s.resp.Get(s.active))
}

// BuildView derives the dashboard view from one result.
func BuildView(alt types.Alternative, r *types.SimulationResult) View {
	if r == nil {
		return View{Alternative: alt}
	}
	gt := r.GameTheory
	return View{
		Alternative:      alt,
		Source:           r.Source,
		Destination:      r.Destination,
		TotalCost:        r.TotalCost,
		TotalTime:        r.TotalTime,
		TotalRisk:        r.TotalRisk,
		Path:             append([]string(nil), r.Path...),
		Breakdown:        append([]types.BreakdownStep(nil), r.Breakdown...),
		FactorImpacts:    r.Impacts(),
		FactorBreakdown:  append([]types.FactorBreakdownItem(nil), r.FactorBreakdown...),
		BaselineTotals:   r.BaselineTotals,
		StrategicSummary: r.StrategicSummary,
		Parameters:       r.ScenarioParameters,
		Transport:        r.Transport,
		Commodities:      append([]types.CommodityCargo(nil), r.Commodities...),
		GameTheory: GameTheorySummary{
			CooperationProbability: gt.CooperationProbability,
			TreatyBreakProbability: gt.TreatyBreakProbability,
			EquilibriumStrategy:    gt.EquilibriumStrategy,
			StabilityIndex:         gt.StabilityIndex,
			EscalationRisk:         gt.EscalationRisk,
			ExpectedRounds:         gt.ExpectedRounds,
			Recommendation:         gt.Recommendation,
			Summary:                gt.Summary,
			PayoffMatrix:           gt.PayoffMatrix,
		},
	}
}
