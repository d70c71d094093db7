package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RouteMode is the transport modality of one corridor.
type RouteMode string

const (
	ModeLand RouteMode = "land"
	ModeSea  RouteMode = "sea"
	ModeAir  RouteMode = "air"
	// ModeAuto lets the solver blend modalities. Only valid as a simulate preference.
	ModeAuto RouteMode = "auto"
)

// Valid reports whether m is a concrete corridor modality.
func (m RouteMode) Valid() bool {
	switch m {
	case ModeLand, ModeSea, ModeAir:
		return true
	}
	return false
}

// Corridor is an ordered origin/destination pair.
type Corridor struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// RouteBaseline holds the unmodified route figures.
type RouteBaseline struct {
	Cost float64 `json:"cost"`
	Time float64 `json:"time"`
	Risk float64 `json:"risk"`
}

// RouteDetails describes one corridor as served by /routes.
type RouteDetails struct {
	Cost float64        `json:"cost"`
	Time float64        `json:"time"`
	Risk float64        `json:"risk"`
	Mode RouteMode      `json:"mode,omitempty"`
	Base *RouteBaseline `json:"base,omitempty"`
}

// Routes maps origin -> destination -> details.
type Routes map[string]map[string]RouteDetails

// Lookup returns the details for a corridor.
func (r Routes) Lookup(c Corridor) (RouteDetails, bool) {
	dst, ok := r[c.Origin]
	if !ok {
		return RouteDetails{}, false
	}
	d, ok := dst[c.Destination]
	return d, ok
}

// Count returns the number of corridors.
func (r Routes) Count() int {
	n := 0
	for _, dst := range r {
		n += len(dst)
	}
	return n
}

// Factor is a named global scenario modifier.
type Factor struct {
	Effect   float64 `json:"effect"`
	Strength float64 `json:"strength"`
}

// FactorImpacts summarises the aggregate effect of all factors.
type FactorImpacts struct {
	NetBias         float64 `json:"net_bias" yaml:"net_bias"`
	SupportIndex    float64 `json:"support_index" yaml:"support_index"`
	PressureIndex   float64 `json:"pressure_index" yaml:"pressure_index"`
	VolatilityIndex float64 `json:"volatility_index" yaml:"volatility_index"`
	GlobalPressure  float64 `json:"global_pressure" yaml:"global_pressure"`
	CostMultiplier  float64 `json:"cost_multiplier" yaml:"cost_multiplier"`
	TimeMultiplier  float64 `json:"time_multiplier" yaml:"time_multiplier"`
	RiskMultiplier  float64 `json:"risk_multiplier" yaml:"risk_multiplier"`
}

// FactorMetrics is the /factors/metrics and /factors/reset payload.
type FactorMetrics struct {
	Factors map[string]Factor `json:"factors"`
	Impacts FactorImpacts     `json:"impacts"`
}

// FactorPreset names a server-side factor reset mode.
type FactorPreset string

const (
	PresetDefaults FactorPreset = "defaults"
	PresetNeutral  FactorPreset = "neutral"
	PresetCrisis   FactorPreset = "crisis"
	PresetOptimal  FactorPreset = "optimal"
)

// Valid reports whether p is one of the known presets.
func (p FactorPreset) Valid() bool {
	switch p {
	case PresetDefaults, PresetNeutral, PresetCrisis, PresetOptimal:
		return true
	}
	return false
}

// Country is one entry of /countries. Demand and production map commodity to volume.
type Country struct {
	Name                 string             `json:"name"`
	Demand               CommodityVolumes   `json:"demand,omitempty"`
	Production           CommodityVolumes   `json:"production,omitempty"`
	Inflation            float64            `json:"inflation"`
	InflationPassThrough float64            `json:"inflation_pass_through,omitempty"`
	GDPBillions          float64            `json:"gdp_billions,omitempty"`
	PopulationMillions   float64            `json:"population_millions,omitempty"`
	HDI                  float64            `json:"hdi,omitempty"`
	InfrastructureScore  float64            `json:"infrastructure_score,omitempty"`
	TradeBalanceBillions float64            `json:"trade_balance_billions,omitempty"`
	Currency             string             `json:"currency,omitempty"`
	LogisticsIndex       float64            `json:"logistics_index,omitempty"`
}

// CommodityVolumes maps a lower-cased commodity name to a volume. The server
// sends either an object, a list of names, or a single name.
type CommodityVolumes map[string]float64

const defaultCommodityVolume = 100

func (v *CommodityVolumes) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	out := CommodityVolumes{}
	switch {
	case trimmed == "null" || trimmed == "":
		*v = nil
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var m map[string]float64
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		for k, n := range m {
			out[strings.ToLower(strings.TrimSpace(k))] = n
		}
	case strings.HasPrefix(trimmed, "["):
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return err
		}
		for _, k := range names {
			out[strings.ToLower(strings.TrimSpace(k))] = defaultCommodityVolume
		}
	case strings.HasPrefix(trimmed, `"`):
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		out[strings.ToLower(strings.TrimSpace(name))] = defaultCommodityVolume
	default:
		return fmt.Errorf("unsupported commodity volumes: %s", trimmed)
	}
	*v = out
	return nil
}

// Commodity is one entry of /commodities.
type Commodity struct {
	Name     string  `json:"name"`
	UnitCost float64 `json:"unit_cost"`
}

// Alliance is one entry of /alliances.
type Alliance struct {
	Name              string   `json:"name"`
	Members           []string `json:"members"`
	Cohesion          float64  `json:"cohesion"`
	SupportMultiplier float64  `json:"support_multiplier,omitempty"`
	Deterrence        float64  `json:"deterrence,omitempty"`
}

// Treaty is one entry of /treaties.
type Treaty struct {
	Name          string   `json:"name"`
	Parties       []string `json:"parties"`
	Stability     float64  `json:"stability"`
	Enforcement   float64  `json:"enforcement"`
	BreachHistory struct {
		Breaches    int `json:"breaches"`
		YearsActive int `json:"years_active"`
	} `json:"breach_history"`
}

// GraphEdge is one directed edge of the trade network.
type GraphEdge struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Cost        float64 `json:"cost"`
	Time        float64 `json:"time"`
	Risk        float64 `json:"risk"`
}

// Graph is the /graph payload.
type Graph struct {
	Nodes []string    `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GeoActionRecord is one entry of the session action ledger.
type GeoActionRecord struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Summary     string    `json:"summary"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Value       *float64  `json:"value,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
