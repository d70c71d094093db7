package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/yourorg/tradesim/pkg/types"
)

// GeoAction names one /geo/{action} endpoint.
type GeoAction string

const (
	GeoWar            GeoAction = "war"
	GeoTariff         GeoAction = "tariff"
	GeoRisk           GeoAction = "risk"
	GeoSanction       GeoAction = "sanction"
	GeoSubsidy        GeoAction = "subsidy"
	GeoCustoms        GeoAction = "customs"
	GeoInfrastructure GeoAction = "infrastructure"
	GeoSecurity       GeoAction = "security"
	GeoCyber          GeoAction = "cyber"
	GeoCorridor       GeoAction = "corridor"
	GeoPeace          GeoAction = "peace"
	GeoAnnex          GeoAction = "annex"
	GeoDisaster       GeoAction = "disaster"
	GeoMode           GeoAction = "mode"
	GeoStorm          GeoAction = "storm"
	GeoPirates        GeoAction = "pirates"
)

type geoDef struct {
	label   string
	param   string // body key; empty for war, "mode" for mode
	unit    string
	failure string
	summary func(r GeoRequest) string
}

var geoActions = map[GeoAction]geoDef{
	GeoWar: {label: "Declare War", failure: "Failed to declare war",
		summary: func(r GeoRequest) string { return fmt.Sprintf("War declared between %s and %s", r.A, r.B) }},
	GeoTariff: {label: "Apply Tariff", param: "percent", unit: "%", failure: "Failed to apply tariff",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("%s%% tariff applied from %s to %s", num(r.Value), r.A, r.B)
		}},
	GeoRisk: {label: "Adjust Risk", param: "delta", failure: "Failed to modify risk",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("Risk adjusted by %s on %s → %s", num(r.Value), r.A, r.B)
		}},
	GeoSanction: {label: "Impose Sanction", param: "percent", unit: "%", failure: "Failed to impose sanction",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Sanction lifted route cost by %s%%", num(r.Value)) }},
	GeoSubsidy: {label: "Offer Subsidy", param: "percent", unit: "%", failure: "Failed to grant subsidy",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Subsidy lowered route cost by %s%%", num(r.Value)) }},
	GeoCustoms: {label: "Fast-Track Customs", param: "hours", unit: "h", failure: "Failed to fast-track customs",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("Time reduced by %sh on %s → %s", num(r.Value), r.A, r.B)
		}},
	GeoInfrastructure: {label: "Strike Infrastructure", param: "hours", unit: "h", failure: "Failed to disrupt infrastructure",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("%sh delay injected on %s → %s", num(r.Value), r.A, r.B)
		}},
	GeoSecurity: {label: "Bolster Security", param: "delta", failure: "Failed to bolster security",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Risk lowered by %s", num(r.Value)) }},
	GeoCyber: {label: "Launch Cyber Attack", param: "delta", failure: "Failed to launch cyber attack",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Cyber attack raised risk by %s", num(r.Value)) }},
	GeoCorridor: {label: "Humanitarian Corridor", param: "percent", unit: "%", failure: "Failed to open corridor",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Corridor eased metrics by %s%%", num(r.Value)) }},
	GeoPeace: {label: "Broker Peace", param: "percent", unit: "%", failure: "Failed to broker peace",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Peace terms eased tensions by %s%%", num(r.Value)) }},
	GeoAnnex: {label: "Annex Territory", param: "percent", unit: "%", failure: "Failed to annex territory",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Annexation shaved transit by %s%%", num(r.Value)) }},
	GeoDisaster: {label: "Natural Disaster", param: "severity", failure: "Failed to trigger disaster",
		summary: func(r GeoRequest) string { return fmt.Sprintf("Disaster injected severity %s", num(r.Value)) }},
	GeoMode: {label: "Set Route Mode", param: "mode", failure: "Failed to set route mode",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("Route mode set to %s on %s → %s", r.Mode, r.A, r.B)
		}},
	GeoStorm: {label: "Storm", param: "severity", failure: "Failed to trigger storm",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("Storm of severity %s hit %s → %s", num(r.Value), r.A, r.B)
		}},
	GeoPirates: {label: "Piracy Report", param: "severity", failure: "Failed to report pirates",
		summary: func(r GeoRequest) string {
			return fmt.Sprintf("Pirate activity severity %s reported on %s → %s", num(r.Value), r.A, r.B)
		}},
}

// GeoActions lists every supported action name, sorted.
func GeoActions() []GeoAction {
	out := make([]GeoAction, 0, len(geoActions))
	for a := range geoActions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseGeoAction resolves a user-supplied action name.
func ParseGeoAction(s string) (GeoAction, error) {
	a := GeoAction(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := geoActions[a]; !ok {
		return "", &ValidationError{Op: "geo", Field: "action", Reason: fmt.Sprintf("unknown action %q", s)}
	}
	return a, nil
}

// GeoRequest is one geopolitical intervention on the A->B lane.
type GeoRequest struct {
	Action GeoAction
	A      string
	B      string
	Value  float64
	Mode   types.RouteMode
}

// HasValue reports whether the action carries a numeric parameter.
func (r GeoRequest) HasValue() bool {
	def, ok := geoActions[r.Action]
	return ok && def.param != "" && def.param != "mode"
}

func (r GeoRequest) Label() string { return geoActions[r.Action].label }

func (r GeoRequest) Unit() string { return geoActions[r.Action].unit }

// Summary is the human-readable ledger line for a successful action.
func (r GeoRequest) Summary() string {
	def, ok := geoActions[r.Action]
	if !ok {
		return string(r.Action)
	}
	return def.summary(r)
}

func (r GeoRequest) validate() error {
	op := "geo_" + string(r.Action)
	def, ok := geoActions[r.Action]
	if !ok {
		return &ValidationError{Op: "geo", Field: "action", Reason: fmt.Sprintf("unknown action %q", r.Action)}
	}
	if strings.TrimSpace(r.A) == "" || strings.TrimSpace(r.B) == "" {
		return &ValidationError{Op: op, Reason: "Select both countries first"}
	}
	switch def.param {
	case "":
	case "mode":
		if !r.Mode.Valid() {
			return &ValidationError{Op: op, Field: "mode", Reason: fmt.Sprintf("must be land, sea or air, got %q", r.Mode)}
		}
	default:
		if !finite(r.Value) {
			return &ValidationError{Op: op, Field: def.param, Reason: "must be finite"}
		}
	}
	return nil
}

func (r GeoRequest) body() map[string]any {
	body := map[string]any{"a": r.A, "b": r.B}
	switch p := geoActions[r.Action].param; p {
	case "":
	case "mode":
		body["mode"] = string(r.Mode)
	default:
		body[p] = r.Value
	}
	return body
}

// ApplyGeoAction posts the action. Success only means the server accepted it.
func (c *Client) ApplyGeoAction(ctx context.Context, r GeoRequest) error {
	if err := r.validate(); err != nil {
		return err
	}
	return c.do(ctx, call{
		op:     "geo_" + string(r.Action),
		method: http.MethodPost,
		path:   "/geo/" + string(r.Action),
		body:   r.body(),
	}, nil)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
