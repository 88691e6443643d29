// Package explain produces rule-based risk factors and growth
// indicators from the raw request and the CAMP pillar scores. The rules
// are deterministic checks against configurable thresholds; no model is
// involved.
package explain

import (
	"fmt"
	"sort"

	"campscore/internal/features"
	"campscore/internal/registry"
)

// Severity labels for risk factors.
const (
	SeverityHigh     = "high"
	SeverityModerate = "moderate"
)

// Factor is one surfaced risk factor or growth indicator. Magnitude
// orders factors of equal severity; it is not shown to callers as a
// score.
type Factor struct {
	Name      string  `json:"name"`
	Detail    string  `json:"detail"`
	Severity  string  `json:"severity,omitempty"`
	Magnitude float64 `json:"-"`
}

// Thresholds are the rule cut points. All configurable; defaults match
// the fitted values the analysts signed off on.
type Thresholds struct {
	MinRunwayMonths          float64
	MaxBurnMultiple          float64
	MaxCustomerConcentration float64
	GrowthRateBar            float64
	LTVCACBar                float64
	NDRBar                   float64
	WeakPillarBar            float64
	StrongPillarBar          float64
	MaxFactors               int
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRunwayMonths:          6,
		MaxBurnMultiple:          10,
		MaxCustomerConcentration: 50,
		GrowthRateBar:            200,
		LTVCACBar:                3,
		NDRBar:                   120,
		WeakPillarBar:            0.4,
		StrongPillarBar:          0.7,
		MaxFactors:               3,
	}
}

// Generator evaluates the rules.
type Generator struct {
	t Thresholds
}

// NewGenerator builds a generator with the given thresholds.
func NewGenerator(t Thresholds) *Generator {
	if t.MaxFactors <= 0 {
		t.MaxFactors = DefaultThresholds().MaxFactors
	}
	return &Generator{t: t}
}

// Explain returns the capped, severity-ordered risk factors and growth
// indicators for a request and its pillar scores.
func (g *Generator) Explain(req features.Request, pillars map[string]float64) (risks, growth []Factor) {
	risks = g.riskFactors(req, pillars)
	growth = g.growthIndicators(req, pillars)

	sortFactors(risks)
	sortFactors(growth)

	if len(risks) > g.t.MaxFactors {
		risks = risks[:g.t.MaxFactors]
	}
	if len(growth) > g.t.MaxFactors {
		growth = growth[:g.t.MaxFactors]
	}
	return risks, growth
}

func (g *Generator) riskFactors(req features.Request, pillars map[string]float64) []Factor {
	var out []Factor

	if v, ok := req.Numeric("runway_months"); ok && v < g.t.MinRunwayMonths {
		out = append(out, Factor{
			Name:      "short_runway",
			Detail:    fmt.Sprintf("runway of %.1f months is below the %.0f month floor", v, g.t.MinRunwayMonths),
			Severity:  SeverityHigh,
			Magnitude: g.t.MinRunwayMonths - v,
		})
	}
	if v, ok := req.Numeric("burn_multiple"); ok && v > g.t.MaxBurnMultiple {
		out = append(out, Factor{
			Name:      "capital_inefficiency",
			Detail:    fmt.Sprintf("burn multiple of %.1f exceeds the %.0f ceiling", v, g.t.MaxBurnMultiple),
			Severity:  SeverityHigh,
			Magnitude: v - g.t.MaxBurnMultiple,
		})
	}
	if v, ok := req.Numeric("customer_concentration_percent"); ok && v > g.t.MaxCustomerConcentration {
		out = append(out, Factor{
			Name:      "customer_concentration",
			Detail:    fmt.Sprintf("top customers account for %.0f%% of revenue", v),
			Severity:  SeverityModerate,
			Magnitude: v - g.t.MaxCustomerConcentration,
		})
	}

	if name, score, ok := weakestPillar(pillars); ok && score < g.t.WeakPillarBar {
		out = append(out, Factor{
			Name:      "weak_" + name + "_pillar",
			Detail:    fmt.Sprintf("%s pillar scores %.2f, below the %.1f bar", name, score, g.t.WeakPillarBar),
			Severity:  SeverityModerate,
			Magnitude: g.t.WeakPillarBar - score,
		})
	}

	return out
}

func (g *Generator) growthIndicators(req features.Request, pillars map[string]float64) []Factor {
	var out []Factor

	if v, ok := req.Numeric("revenue_growth_rate_percent"); ok && v > g.t.GrowthRateBar {
		out = append(out, Factor{
			Name:      "rapid_revenue_growth",
			Detail:    fmt.Sprintf("revenue growing %.0f%% year over year", v),
			Magnitude: v - g.t.GrowthRateBar,
		})
	}
	if v, ok := req.Numeric("ltv_cac_ratio"); ok && v > g.t.LTVCACBar {
		out = append(out, Factor{
			Name:      "efficient_acquisition",
			Detail:    fmt.Sprintf("LTV/CAC ratio of %.1f", v),
			Magnitude: v - g.t.LTVCACBar,
		})
	}
	if v, ok := req.Numeric("net_dollar_retention_percent"); ok && v > g.t.NDRBar {
		out = append(out, Factor{
			Name:      "strong_retention",
			Detail:    fmt.Sprintf("net dollar retention of %.0f%%", v),
			Magnitude: v - g.t.NDRBar,
		})
	}
	if v, ok := req.Numeric("prior_successful_exits"); ok && v > 0 {
		out = append(out, Factor{
			Name:      "proven_founders",
			Detail:    fmt.Sprintf("founding team has %.0f prior successful exits", v),
			Magnitude: v,
		})
	}

	if name, score, ok := strongestPillar(pillars); ok && score > g.t.StrongPillarBar {
		out = append(out, Factor{
			Name:      "strong_" + name + "_pillar",
			Detail:    fmt.Sprintf("%s pillar scores %.2f, above the %.1f bar", name, score, g.t.StrongPillarBar),
			Magnitude: score - g.t.StrongPillarBar,
		})
	}

	return out
}

// sortFactors orders by severity (high before moderate before none),
// then magnitude descending, then name for a stable total order.
func sortFactors(fs []Factor) {
	rank := func(s string) int {
		switch s {
		case SeverityHigh:
			return 0
		case SeverityModerate:
			return 1
		default:
			return 2
		}
	}
	sort.Slice(fs, func(i, j int) bool {
		if ri, rj := rank(fs[i].Severity), rank(fs[j].Severity); ri != rj {
			return ri < rj
		}
		if fs[i].Magnitude != fs[j].Magnitude {
			return fs[i].Magnitude > fs[j].Magnitude
		}
		return fs[i].Name < fs[j].Name
	})
}

var pillarOrder = []string{
	registry.PillarCapital,
	registry.PillarAdvantage,
	registry.PillarMarket,
	registry.PillarPeople,
}

func weakestPillar(pillars map[string]float64) (string, float64, bool) {
	name, score, found := "", 2.0, false
	for _, p := range pillarOrder {
		if s, ok := pillars[p]; ok && s < score {
			name, score, found = p, s, true
		}
	}
	return name, score, found
}

func strongestPillar(pillars map[string]float64) (string, float64, bool) {
	name, score, found := "", -1.0, false
	for _, p := range pillarOrder {
		if s, ok := pillars[p]; ok && s > score {
			name, score, found = p, s, true
		}
	}
	return name, score, found
}
