package policy

import (
	"errors"
	"testing"
)

func TestVerdict_AllProfilesAgreeAtExtremes(t *testing.T) {
	table := Defaults()

	for _, profile := range table.Names() {
		verdict, level, err := table.Verdict(0.85, profile)
		if err != nil {
			t.Fatalf("Verdict(0.85, %s): %v", profile, err)
		}
		if verdict != VerdictStrongPass {
			t.Errorf("profile %s: 0.85 should be STRONG PASS, got %s", profile, verdict)
		}
		if level != RiskLow {
			t.Errorf("profile %s: 0.85 should be low risk, got %s", profile, level)
		}

		verdict, level, err = table.Verdict(0.10, profile)
		if err != nil {
			t.Fatalf("Verdict(0.10, %s): %v", profile, err)
		}
		if verdict != VerdictStrongFail {
			t.Errorf("profile %s: 0.10 should be STRONG FAIL, got %s", profile, verdict)
		}
		if level != RiskCritical {
			t.Errorf("profile %s: 0.10 should be critical risk, got %s", profile, level)
		}
	}
}

// A mid-range probability lands differently under different risk
// tolerances.
func TestVerdict_ProfilesDivergeMidRange(t *testing.T) {
	table := Defaults()

	conservative, _, err := table.Verdict(0.60, "conservative")
	if err != nil {
		t.Fatalf("Verdict conservative: %v", err)
	}
	aggressive, _, err := table.Verdict(0.60, "aggressive")
	if err != nil {
		t.Fatalf("Verdict aggressive: %v", err)
	}

	if conservative != VerdictConditionalPass {
		t.Errorf("conservative at 0.60: got %s, want CONDITIONAL PASS", conservative)
	}
	if aggressive != VerdictPass {
		t.Errorf("aggressive at 0.60: got %s, want PASS", aggressive)
	}
}

func TestVerdict_BoundaryIsInclusive(t *testing.T) {
	table := Defaults()

	verdict, _, err := table.Verdict(0.80, "balanced")
	if err != nil {
		t.Fatalf("Verdict: %v", err)
	}
	if verdict != VerdictStrongPass {
		t.Errorf("probability exactly at a band min belongs to that band, got %s", verdict)
	}
}

func TestVerdict_UnknownProfile(t *testing.T) {
	table := Defaults()

	_, _, err := table.Verdict(0.5, "reckless")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}

	if table.Has("reckless") {
		t.Error("Has should be false for an unloaded profile")
	}
	if !table.Has("balanced") {
		t.Error("Has should be true for a built-in profile")
	}
}

func TestNew_Validation(t *testing.T) {
	riskBands := []RiskBand{{Min: 0.5, Level: RiskLow}, {Min: 0, Level: RiskHigh}}

	cases := []struct {
		name     string
		profiles []Profile
	}{
		{"empty", nil},
		{"no name", []Profile{{Bands: []Band{{Min: 0, Verdict: VerdictFail}}, RiskBands: riskBands}}},
		{"no bands", []Profile{{Name: "p", RiskBands: riskBands}}},
		{"lowest band above zero", []Profile{{
			Name:      "p",
			Bands:     []Band{{Min: 0.5, Verdict: VerdictPass}, {Min: 0.1, Verdict: VerdictFail}},
			RiskBands: riskBands,
		}}},
		{"duplicate min", []Profile{{
			Name:      "p",
			Bands:     []Band{{Min: 0.5, Verdict: VerdictPass}, {Min: 0.5, Verdict: VerdictFail}, {Min: 0, Verdict: VerdictStrongFail}},
			RiskBands: riskBands,
		}}},
		{"min out of range", []Profile{{
			Name:      "p",
			Bands:     []Band{{Min: 1.5, Verdict: VerdictPass}, {Min: 0, Verdict: VerdictFail}},
			RiskBands: riskBands,
		}}},
		{"no risk coverage", []Profile{{
			Name:  "p",
			Bands: []Band{{Min: 0, Verdict: VerdictFail}},
		}}},
		{"duplicate profile", []Profile{
			{Name: "p", Bands: []Band{{Min: 0, Verdict: VerdictFail}}, RiskBands: riskBands},
			{Name: "p", Bands: []Band{{Min: 0, Verdict: VerdictFail}}, RiskBands: riskBands},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.profiles); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNew_SortsBands(t *testing.T) {
	table, err := New([]Profile{{
		Name: "unsorted",
		Bands: []Band{
			{Min: 0, Verdict: VerdictFail},
			{Min: 0.7, Verdict: VerdictPass},
			{Min: 0.4, Verdict: VerdictConditionalPass},
		},
		RiskBands: []RiskBand{{Min: 0, Level: RiskHigh}, {Min: 0.6, Level: RiskLow}},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	verdict, level, err := table.Verdict(0.5, "unsorted")
	if err != nil {
		t.Fatalf("Verdict: %v", err)
	}
	if verdict != VerdictConditionalPass {
		t.Errorf("got %s, want CONDITIONAL PASS", verdict)
	}
	if level != RiskHigh {
		t.Errorf("got %s, want high", level)
	}
}
