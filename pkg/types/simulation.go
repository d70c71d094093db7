package types

import "time"

// ScenarioParameters tune the game-theory pass of a simulation.
type ScenarioParameters struct {
	Rounds     int     `json:"rounds" yaml:"rounds"`
	Discount   float64 `json:"discount" yaml:"discount"`
	Shock      float64 `json:"shock" yaml:"shock"`
	Aggression float64 `json:"aggression" yaml:"aggression"`
}

// DefaultParameters returns the dashboard's initial scenario parameters.
func DefaultParameters() ScenarioParameters {
	return ScenarioParameters{Rounds: 6, Discount: 0.92, Shock: 0.12, Aggression: 0.35}
}

// CargoItem is one line of a cargo manifest.
type CargoItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// SimulationRequest is the /simulate body.
type SimulationRequest struct {
	Source        string             `json:"src"`
	Destination   string             `json:"dst"`
	Mode          RouteMode          `json:"mode,omitempty"`
	Parameters    ScenarioParameters `json:"parameters"`
	CargoManifest []CargoItem        `json:"cargo_manifest,omitempty"`
}

// FactorModifiers are per-step multipliers applied by factors.
type FactorModifiers struct {
	Cost float64 `json:"cost" yaml:"cost"`
	Time float64 `json:"time" yaml:"time"`
	Risk float64 `json:"risk" yaml:"risk"`
}

// BreakdownStep is one hop of a simulated path.
type BreakdownStep struct {
	Country         string          `json:"country" yaml:"country"`
	StepCost        float64         `json:"step_cost" yaml:"step_cost"`
	StepTime        float64         `json:"step_time" yaml:"step_time"`
	StepRisk        float64         `json:"step_risk" yaml:"step_risk"`
	BaseCost        float64         `json:"base_cost" yaml:"base_cost"`
	BaseTime        float64         `json:"base_time" yaml:"base_time"`
	BaseRisk        float64         `json:"base_risk" yaml:"base_risk"`
	FactorModifiers FactorModifiers `json:"factor_modifiers" yaml:"factor_modifiers"`
	RouteMode       RouteMode       `json:"route_mode,omitempty" yaml:"route_mode,omitempty"`
	RouteBase       *RouteBaseline  `json:"route_base,omitempty" yaml:"route_base,omitempty"`
}

// PayoffEntry is one cell of the payoff matrix.
type PayoffEntry struct {
	Src float64 `json:"src" yaml:"src"`
	Dst float64 `json:"dst" yaml:"dst"`
}

// PayoffMatrix is the 2x2 cooperate/defect matrix.
type PayoffMatrix struct {
	CooperateCooperate PayoffEntry `json:"cooperate_cooperate" yaml:"cooperate_cooperate"`
	CooperateDefect    PayoffEntry `json:"cooperate_defect" yaml:"cooperate_defect"`
	DefectCooperate    PayoffEntry `json:"defect_cooperate" yaml:"defect_cooperate"`
	DefectDefect       PayoffEntry `json:"defect_defect" yaml:"defect_defect"`
}

// FactorRecord is a factor as seen by one simulation.
type FactorRecord struct {
	Name     string  `json:"name" yaml:"name"`
	Effect   float64 `json:"effect" yaml:"effect"`
	Strength float64 `json:"strength" yaml:"strength"`
}

// GameTheoryReport is the strategic analysis attached to a result.
type GameTheoryReport struct {
	PayoffMatrix           PayoffMatrix `json:"payoff_matrix" yaml:"payoff_matrix"`
	CooperationProbability float64      `json:"cooperation_probability" yaml:"cooperation_probability"`
	TreatyBreakProbability float64      `json:"treaty_break_probability" yaml:"treaty_break_probability"`
	EquilibriumStrategy    string       `json:"equilibrium_strategy" yaml:"equilibrium_strategy"`
	StabilityIndex         float64      `json:"stability_index" yaml:"stability_index"`
	EscalationRisk         float64      `json:"escalation_risk" yaml:"escalation_risk"`
	ExpectedRounds         float64      `json:"expected_rounds" yaml:"expected_rounds"`
	Recommendation         string       `json:"recommendation" yaml:"recommendation"`
	Summary                string       `json:"summary" yaml:"summary"`
	Factors                struct {
		Records []FactorRecord `json:"records" yaml:"records"`
		Impacts FactorImpacts  `json:"impacts" yaml:"impacts"`
	} `json:"factors" yaml:"factors"`
}

// FactorBreakdownItem explains one factor's contribution.
type FactorBreakdownItem struct {
	Name         string  `json:"name" yaml:"name"`
	Effect       float64 `json:"effect" yaml:"effect"`
	Strength     float64 `json:"strength" yaml:"strength"`
	Contribution float64 `json:"contribution" yaml:"contribution"`
	ImpactType   string  `json:"impact_type" yaml:"impact_type"`
}

// BaselineTotals are the unmodified aggregates.
type BaselineTotals struct {
	Cost      float64 `json:"cost" yaml:"cost"`
	Time      float64 `json:"time" yaml:"time"`
	Risk      float64 `json:"risk" yaml:"risk"`
	RouteCost float64 `json:"route_cost" yaml:"route_cost"`
}

// CommodityCargo is a priced cargo line echoed back by the server.
type CommodityCargo struct {
	Name     string  `json:"name" yaml:"name"`
	Quantity float64 `json:"quantity" yaml:"quantity"`
	UnitCost float64 `json:"unit_cost" yaml:"unit_cost"`
}

// TransportSummary reports the modality the solver picked.
type TransportSummary struct {
	SelectedMode RouteMode                   `json:"selected_mode" yaml:"selected_mode"`
	AutoSelected bool                        `json:"auto_selected" yaml:"auto_selected"`
	Modes        map[RouteMode]RouteBaseline `json:"modes,omitempty" yaml:"modes,omitempty"`
}

// SimulationResult is one fully computed alternative.
type SimulationResult struct {
	Source             string                `json:"src" yaml:"src"`
	Destination        string                `json:"dst" yaml:"dst"`
	TotalCost          float64               `json:"total_cost" yaml:"total_cost"`
	TotalTime          float64               `json:"total_time" yaml:"total_time"`
	TotalRisk          float64               `json:"total_risk" yaml:"total_risk"`
	Path               []string              `json:"path" yaml:"path"`
	Breakdown          []BreakdownStep       `json:"breakdown" yaml:"breakdown"`
	GameTheory         GameTheoryReport      `json:"game_theory" yaml:"game_theory"`
	ScenarioParameters ScenarioParameters    `json:"scenario_parameters" yaml:"scenario_parameters"`
	StrategicSummary   string                `json:"strategic_summary" yaml:"strategic_summary"`
	BaselineTotals     BaselineTotals        `json:"baseline_totals" yaml:"baseline_totals"`
	FactorImpacts      *FactorImpacts        `json:"factor_impacts,omitempty" yaml:"factor_impacts,omitempty"`
	FactorBreakdown    []FactorBreakdownItem `json:"factor_breakdown,omitempty" yaml:"factor_breakdown,omitempty"`
	Commodities        []CommodityCargo      `json:"commodities,omitempty" yaml:"commodities,omitempty"`
	Transport          *TransportSummary     `json:"transport,omitempty" yaml:"transport,omitempty"`
}

// Impacts returns the result's factor impacts, falling back to the game-theory snapshot.
func (r *SimulationResult) Impacts() FactorImpacts {
	if r == nil {
		return FactorImpacts{}
	}
	if r.FactorImpacts != nil {
		return *r.FactorImpacts
	}
	return r.GameTheory.Factors.Impacts
}

// Alternative names one optimisation objective of a simulation.
type Alternative string

const (
	Cheapest   Alternative = "cheapest"
	Fastest    Alternative = "fastest"
	MostSecure Alternative = "most_secure"
)

// AlternativeOrder is the default-selection fallback order.
var AlternativeOrder = []Alternative{Cheapest, Fastest, MostSecure}

// SimulationResponse bundles the alternatives returned by one /simulate call.
type SimulationResponse struct {
	Cheapest   *SimulationResult `json:"cheapest,omitempty"`
	Fastest    *SimulationResult `json:"fastest,omitempty"`
	MostSecure *SimulationResult `json:"most_secure,omitempty"`
}

// Get returns the named alternative or nil.
func (r *SimulationResponse) Get(a Alternative) *SimulationResult {
	if r == nil {
		return nil
	}
	switch a {
	case Cheapest:
		return r.Cheapest
	case Fastest:
		return r.Fastest
	case MostSecure:
		return r.MostSecure
	}
	return nil
}

// Present lists the alternatives in fallback order that are not nil.
func (r *SimulationResponse) Present() []Alternative {
	out := make([]Alternative, 0, len(AlternativeOrder))
	for _, a := range AlternativeOrder {
		if r.Get(a) != nil {
			out = append(out, a)
		}
	}
	return out
}

// RunSnapshot is a persisted copy of one completed simulation.
type RunSnapshot struct {
	ID          string             `json:"id" yaml:"id"`
	Corridor    Corridor           `json:"corridor" yaml:"corridor"`
	Mode        RouteMode          `json:"mode,omitempty" yaml:"mode,omitempty"`
	Parameters  ScenarioParameters `json:"parameters" yaml:"parameters"`
	Active      Alternative        `json:"active" yaml:"active"`
	Response    SimulationResponse `json:"response" yaml:"response"`
	CompletedAt time.Time          `json:"completed_at" yaml:"completed_at"`
}
