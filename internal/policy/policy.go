// Package policy maps calibrated probabilities to verdicts and risk
// levels through per-profile threshold tables. The tables are fitted
// offline (conservative maximizes precision under a recall floor,
// balanced maximizes F1, aggressive maximizes recall under a precision
// floor) and loaded as immutable artifacts; runtime behavior is a pure
// lookup.
package policy

import (
	"errors"
	"fmt"
	"sort"
)

// Verdict is the categorical recommendation.
type Verdict string

const (
	VerdictStrongPass      Verdict = "STRONG PASS"
	VerdictPass            Verdict = "PASS"
	VerdictConditionalPass Verdict = "CONDITIONAL PASS"
	VerdictConditionalFail Verdict = "CONDITIONAL FAIL"
	VerdictFail            Verdict = "FAIL"
	VerdictStrongFail      Verdict = "STRONG FAIL"
)

// RiskLevel summarizes downside exposure at the calibrated probability.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ErrUnknownProfile is returned when a caller names a profile that was
// never loaded. This is caller error, not a degraded-result path.
var ErrUnknownProfile = errors.New("unknown threshold profile")

// Band maps probabilities at or above Min to a verdict.
type Band struct {
	Min     float64 `json:"min"`
	Verdict Verdict `json:"verdict"`
}

// RiskBand maps probabilities at or above Min to a risk level.
type RiskBand struct {
	Min   float64   `json:"min"`
	Level RiskLevel `json:"level"`
}

// Profile is one named risk-tolerance configuration. Bands are kept
// sorted by Min descending so lookup is a first-match scan.
type Profile struct {
	Name      string     `json:"name"`
	Bands     []Band     `json:"bands"`
	RiskBands []RiskBand `json:"risk_bands"`
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if len(p.Bands) == 0 {
		return fmt.Errorf("profile %s has no verdict bands", p.Name)
	}

	sort.Slice(p.Bands, func(i, j int) bool { return p.Bands[i].Min > p.Bands[j].Min })
	sort.Slice(p.RiskBands, func(i, j int) bool { return p.RiskBands[i].Min > p.RiskBands[j].Min })

	for i, b := range p.Bands {
		if b.Min < 0 || b.Min > 1 {
			return fmt.Errorf("profile %s: band min %f out of [0,1]", p.Name, b.Min)
		}
		if i > 0 && b.Min == p.Bands[i-1].Min {
			return fmt.Errorf("profile %s: duplicate band min %f", p.Name, b.Min)
		}
	}
	if p.Bands[len(p.Bands)-1].Min != 0 {
		return fmt.Errorf("profile %s: lowest band must start at 0", p.Name)
	}
	if len(p.RiskBands) == 0 || p.RiskBands[len(p.RiskBands)-1].Min != 0 {
		return fmt.Errorf("profile %s: risk bands must cover down to 0", p.Name)
	}
	return nil
}

// Table holds the loaded profiles.
type Table struct {
	profiles map[string]Profile
}

// New validates and indexes the given profiles.
func New(profiles []Profile) (*Table, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one threshold profile is required")
	}

	m := make(map[string]Profile, len(profiles))
	for i := range profiles {
		p := profiles[i]
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := m[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %s", p.Name)
		}
		m[p.Name] = p
	}
	return &Table{profiles: m}, nil
}

// Defaults returns the built-in conservative/balanced/aggressive
// tables, used when no profiles artifact is deployed. The cut points
// mirror the last offline fit shipped with the engine.
func Defaults() *Table {
	riskBands := []RiskBand{
		{Min: 0.65, Level: RiskLow},
		{Min: 0.50, Level: RiskMedium},
		{Min: 0.35, Level: RiskHigh},
		{Min: 0, Level: RiskCritical},
	}

	t, err := New([]Profile{
		{
			Name: "conservative",
			Bands: []Band{
				{Min: 0.85, Verdict: VerdictStrongPass},
				{Min: 0.72, Verdict: VerdictPass},
				{Min: 0.55, Verdict: VerdictConditionalPass},
				{Min: 0.45, Verdict: VerdictConditionalFail},
				{Min: 0.25, Verdict: VerdictFail},
				{Min: 0, Verdict: VerdictStrongFail},
			},
			RiskBands: riskBands,
		},
		{
			Name: "balanced",
			Bands: []Band{
				{Min: 0.80, Verdict: VerdictStrongPass},
				{Min: 0.65, Verdict: VerdictPass},
				{Min: 0.52, Verdict: VerdictConditionalPass},
				{Min: 0.40, Verdict: VerdictConditionalFail},
				{Min: 0.20, Verdict: VerdictFail},
				{Min: 0, Verdict: VerdictStrongFail},
			},
			RiskBands: riskBands,
		},
		{
			Name: "aggressive",
			Bands: []Band{
				{Min: 0.72, Verdict: VerdictStrongPass},
				{Min: 0.58, Verdict: VerdictPass},
				{Min: 0.50, Verdict: VerdictConditionalPass},
				{Min: 0.35, Verdict: VerdictConditionalFail},
				{Min: 0.18, Verdict: VerdictFail},
				{Min: 0, Verdict: VerdictStrongFail},
			},
			RiskBands: riskBands,
		},
	})
	if err != nil {
		// Built-in tables are compile-time constants; a failure here is
		// a programming error.
		panic(err)
	}
	return t
}

// Has reports whether the named profile is loaded.
func (t *Table) Has(profile string) bool {
	_, ok := t.profiles[profile]
	return ok
}

// Names returns the loaded profile names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verdict looks up the verdict and risk level for a calibrated
// probability under the named profile. Unknown profiles are a caller
// error.
func (t *Table) Verdict(p float64, profile string) (Verdict, RiskLevel, error) {
	prof, ok := t.profiles[profile]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}

	verdict := prof.Bands[len(prof.Bands)-1].Verdict
	for _, b := range prof.Bands {
		if p >= b.Min {
			verdict = b.Verdict
			break
		}
	}

	level := prof.RiskBands[len(prof.RiskBands)-1].Level
	for _, rb := range prof.RiskBands {
		if p >= rb.Min {
			level = rb.Level
			break
		}
	}

	return verdict, level, nil
}
