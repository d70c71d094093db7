package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/yourorg/tradesim/internal/session"
	"github.com/yourorg/tradesim/pkg/types"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		BorderHeader(true).
		BorderRow(false).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

func printAlternatives(w io.Writer, resp *types.SimulationResponse, active types.Alternative) {
	t := newTable("", "Alternative", "Cost", "Time", "Risk", "Path")
	for _, alt := range types.AlternativeOrder {
		r := resp.Get(alt)
		if r == nil {
			continue
		}
		mark := ""
		if alt == active {
			mark = "*"
		}
		t.Row(mark, string(alt), fmt.Sprintf("%.2f", r.TotalCost), fmt.Sprintf("%.2f", r.TotalTime),
			fmt.Sprintf("%.3f", r.TotalRisk), strings.Join(r.Path, " → "))
	}
	fmt.Fprintln(w, t.Render())
}

func printView(w io.Writer, v *session.View) {
	fmt.Fprintln(w, activeStyle.Render(fmt.Sprintf("%s → %s (%s)", v.Source, v.Destination, v.Alternative)))
	if len(v.Breakdown) > 0 {
		t := newTable("Country", "Cost", "Time", "Risk", "Mode")
		for _, s := range v.Breakdown {
			t.Row(s.Country, fmt.Sprintf("%.2f", s.StepCost), fmt.Sprintf("%.2f", s.StepTime),
				fmt.Sprintf("%.3f", s.StepRisk), string(s.RouteMode))
		}
		fmt.Fprintln(w, t.Render())
	}
	gt := v.GameTheory
	fmt.Fprintf(w, "cooperation %.0f%%  treaty break %.0f%%  equilibrium %s\n",
		gt.CooperationProbability*100, gt.TreatyBreakProbability*100, gt.EquilibriumStrategy)
	if v.StrategicSummary != "" {
		fmt.Fprintln(w, v.StrategicSummary)
	}
}

func printState(w io.Writer, st session.State) {
	if st.Error != "" {
		fmt.Fprintln(w, errorStyle.Render(st.Error))
	}
	if st.StaleNotice != "" {
		fmt.Fprintln(w, noticeStyle.Render(st.StaleNotice))
	}
	if st.View != nil {
		printView(w, st.View)
	}
}

func printFactors(w io.Writer, confirmed, drafts map[string]types.Factor, impacts *types.FactorImpacts) {
	names := make([]string, 0, len(confirmed))
	for name := range confirmed {
		names = append(names, name)
	}
	for name := range drafts {
		if _, ok := confirmed[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	t := newTable("Factor", "Effect", "Strength", "Draft")
	for _, name := range names {
		f := confirmed[name]
		draft := ""
		if d, ok := drafts[name]; ok && d != f {
			draft = fmt.Sprintf("%.2f / %.2f", d.Effect, d.Strength)
		}
		t.Row(name, fmt.Sprintf("%.2f", f.Effect), fmt.Sprintf("%.2f", f.Strength), draft)
	}
	fmt.Fprintln(w, t.Render())
	if impacts != nil {
		fmt.Fprintf(w, "multipliers: cost ×%.2f  time ×%.2f  risk ×%.2f  (net bias %.2f)\n",
			impacts.CostMultiplier, impacts.TimeMultiplier, impacts.RiskMultiplier, impacts.NetBias)
	}
}

func printCountries(w io.Writer, countries []types.Country) {
	t := newTable("Country", "Inflation", "GDP (bn)", "Population (m)")
	for _, c := range countries {
		t.Row(c.Name, fmt.Sprintf("%.2f", c.Inflation), fmt.Sprintf("%.1f", c.GDPBillions), fmt.Sprintf("%.1f", c.PopulationMillions))
	}
	fmt.Fprintln(w, t.Render())
}

func printCommodities(w io.Writer, items []types.Commodity) {
	t := newTable("Commodity", "Unit cost")
	for _, c := range items {
		t.Row(c.Name, fmt.Sprintf("%.2f", c.UnitCost))
	}
	fmt.Fprintln(w, t.Render())
}

func printRoutes(w io.Writer, routes types.Routes) {
	t := newTable("Origin", "Destination", "Cost", "Time", "Risk", "Mode")
	for _, origin := range sortedKeys(routes) {
		for _, dst := range sortedKeys(routes[origin]) {
			d := routes[origin][dst]
			t.Row(origin, dst, fmt.Sprintf("%.2f", d.Cost), fmt.Sprintf("%.2f", d.Time), fmt.Sprintf("%.3f", d.Risk), string(d.Mode))
		}
	}
	fmt.Fprintln(w, t.Render())
}

func printLedger(w io.Writer, entries []types.GeoActionRecord) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no actions recorded")
		return
	}
	t := newTable("Time", "Action", "Lane", "Summary")
	for _, e := range entries {
		t.Row(e.Timestamp.Local().Format("15:04:05"), e.Action, e.Origin+" → "+e.Destination, e.Summary)
	}
	fmt.Fprintln(w, t.Render())
}

func printRuns(w io.Writer, runs []types.RunSnapshot) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	t := newTable("Completed", "Corridor", "Mode", "Active", "Cost")
	for _, r := range runs {
		cost := ""
		if res := r.Response.Get(r.Active); res != nil {
			cost = fmt.Sprintf("%.2f", res.TotalCost)
		}
		t.Row(r.CompletedAt.Local().Format("2006-01-02 15:04"), r.Corridor.Origin+" → "+r.Corridor.Destination,
			string(r.Mode), string(r.Active), cost)
	}
	fmt.Fprintln(w, t.Render())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
