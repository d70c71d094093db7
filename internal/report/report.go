package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/tradesim/internal/session"
	"github.com/yourorg/tradesim/pkg/types"
)

// Report is one exported simulation view.
type Report struct {
	GeneratedAt time.Time           `yaml:"generated_at"`
	Corridor    types.Corridor      `yaml:"corridor"`
	Mode        types.RouteMode     `yaml:"mode"`
	Available   []types.Alternative `yaml:"available"`
	View        session.View        `yaml:"view"`
}

// FromState builds a report from the current dashboard state. It fails when
// no fresh result is displayed.
func FromState(st session.State, now time.Time) (*Report, error) {
	if st.View == nil {
		if st.StaleNotice != "" {
			return nil, fmt.Errorf("no result to export: %s", st.StaleNotice)
		}
		return nil, fmt.Errorf("no result to export")
	}
	r := &Report{
		GeneratedAt: now.UTC(),
		Mode:        st.Mode,
		Available:   st.Available,
		View:        *st.View,
	}
	if st.Corridor != nil {
		r.Corridor = *st.Corridor
	}
	return r, nil
}

// FromSnapshot builds a report from a persisted run.
func FromSnapshot(snap *types.RunSnapshot) (*Report, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	res := snap.Response.Get(snap.Active)
	if res == nil {
		return nil, fmt.Errorf("snapshot has no %s result", snap.Active)
	}
	return &Report{
		GeneratedAt: snap.CompletedAt,
		Corridor:    snap.Corridor,
		Mode:        snap.Mode,
		Available:   snap.Response.Present(),
		View:        session.BuildView(snap.Active, res),
	}, nil
}

// Render writes every requested format into outputDir and returns the written paths.
func Render(r *Report, outputDir string, formats []string) ([]string, error) {
	var paths []string
	for _, f := range formats {
		var (
			p   string
			err error
		)
		switch f {
		case "markdown":
			p, err = RenderMarkdown(r, outputDir)
		case "yaml":
			p, err = RenderYAML(r, outputDir)
		default:
			err = fmt.Errorf("unknown report format %q", f)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// RenderMarkdown renders outputDir/report.md.
func RenderMarkdown(r *Report, outputDir string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	v := r.View

	b := &strings.Builder{}
	fmt.Fprintf(b, "# %s → %s (%s)\n\n", r.Corridor.Origin, r.Corridor.Destination, v.Alternative)
	fmt.Fprintf(b, "Generated %s. Route preference: %s.\n\n", r.GeneratedAt.Format(time.RFC3339), r.Mode)
	if len(r.Available) > 0 {
		alts := make([]string, len(r.Available))
		for i, a := range r.Available {
			alts[i] = string(a)
		}
		fmt.Fprintf(b, "Alternatives: %s\n\n", strings.Join(alts, ", "))
	}

	fmt.Fprintln(b, "## Totals")
	fmt.Fprintf(b, "- Cost: %.2f (baseline %.2f)\n", v.TotalCost, v.BaselineTotals.Cost)
	fmt.Fprintf(b, "- Time: %.2f (baseline %.2f)\n", v.TotalTime, v.BaselineTotals.Time)
	fmt.Fprintf(b, "- Risk: %.3f (baseline %.3f)\n", v.TotalRisk, v.BaselineTotals.Risk)
	if v.Transport != nil {
		fmt.Fprintf(b, "- Mode: %s", v.Transport.SelectedMode)
		if v.Transport.AutoSelected {
			b.WriteString(" (auto)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(v.Path) > 0 {
		fmt.Fprintln(b, "## Path")
		fmt.Fprintf(b, "%s\n\n", strings.Join(v.Path, " → "))
	}
	if len(v.Breakdown) > 0 {
		fmt.Fprintln(b, "| Country | Cost | Time | Risk | Mode |")
		fmt.Fprintln(b, "|---|---|---|---|---|")
		for _, s := range v.Breakdown {
			fmt.Fprintf(b, "| %s | %.2f | %.2f | %.3f | %s |\n", s.Country, s.StepCost, s.StepTime, s.StepRisk, s.RouteMode)
		}
		b.WriteString("\n")
	}

	fmt.Fprintln(b, "## Factor Impacts")
	im := v.FactorImpacts
	fmt.Fprintf(b, "- Multipliers: cost ×%.2f, time ×%.2f, risk ×%.2f\n", im.CostMultiplier, im.TimeMultiplier, im.RiskMultiplier)
	fmt.Fprintf(b, "- Net bias %.2f, support %.2f, pressure %.2f, volatility %.2f\n\n", im.NetBias, im.SupportIndex, im.PressureIndex, im.VolatilityIndex)
	if len(v.FactorBreakdown) > 0 {
		items := append([]types.FactorBreakdownItem(nil), v.FactorBreakdown...)
		sort.SliceStable(items, func(i, j int) bool { return abs(items[i].Contribution) > abs(items[j].Contribution) })
		for _, it := range items {
			fmt.Fprintf(b, "- %s (%s): %+.3f\n", it.Name, it.ImpactType, it.Contribution)
		}
		b.WriteString("\n")
	}

	gt := v.GameTheory
	fmt.Fprintln(b, "## Game Theory")
	fmt.Fprintf(b, "- Cooperation probability: %.0f%%\n", gt.CooperationProbability*100)
	fmt.Fprintf(b, "- Treaty break probability: %.0f%%\n", gt.TreatyBreakProbability*100)
	if gt.EquilibriumStrategy != "" {
		fmt.Fprintf(b, "- Equilibrium: %s\n", gt.EquilibriumStrategy)
	}
	if gt.Recommendation != "" {
		fmt.Fprintf(b, "- Recommendation: %s\n", gt.Recommendation)
	}
	if v.StrategicSummary != "" {
		fmt.Fprintf(b, "\n%s\n", v.StrategicSummary)
	}

	path := filepath.Join(outputDir, "report.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// RenderYAML renders outputDir/report.yaml.
func RenderYAML(r *Report, outputDir string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, "report.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
