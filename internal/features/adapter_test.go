package features

import (
	"math"
	"testing"
)

func TestNewRequest_ContextResolution(t *testing.T) {
	req := NewRequest("", map[string]any{
		"funding_stage": "Series A",
		"sector":        "Fin Tech",
		"pattern_tags":  []any{"Efficient-Growth", "capital_intensive"},
		"runway_months": 12.0,
	})

	if req.ID == "" {
		t.Error("expected a generated request id")
	}
	if req.Stage != "series_a" {
		t.Errorf("expected normalized stage series_a, got %q", req.Stage)
	}
	if req.Sector != "fin_tech" {
		t.Errorf("expected normalized sector fin_tech, got %q", req.Sector)
	}
	if !req.HasPattern("efficient_growth") || !req.HasPattern("capital_intensive") {
		t.Errorf("expected normalized pattern tags, got %v", req.PatternTags)
	}
}

func TestNormalizeStage_Aliases(t *testing.T) {
	cases := map[string]string{
		"PreSeed":  "pre_seed",
		"pre-seed": "pre_seed",
		"Angel":    "pre_seed",
		"Series D": "series_c_plus",
		"growth":   "series_c_plus",
		"Seed":     "seed",
	}
	for in, want := range cases {
		if got := NormalizeStage(in); got != want {
			t.Errorf("NormalizeStage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrepare_EncodingAndCompleteness(t *testing.T) {
	schema := Schema{Fields: []FieldSpec{
		{Name: "runway_months", Kind: KindNumeric, Default: 12},
		{Name: "has_patents", Kind: KindBoolean},
		{Name: "funding_stage", Kind: KindCategorical, Categories: []string{"pre_seed", "seed", "series_a"}},
		{Name: "burn_multiple", Kind: KindNumeric, Default: 2},
	}}

	req := NewRequest("r1", map[string]any{
		"runway_months": 9.0,
		"has_patents":   true,
		"funding_stage": "seed",
		// burn_multiple intentionally absent
	})

	vec, completeness, missing := Prepare(req, schema)

	if len(vec) != 4 {
		t.Fatalf("expected 4 encoded values, got %d", len(vec))
	}
	if vec[0] != 9.0 {
		t.Errorf("numeric encoding: got %f, want 9", vec[0])
	}
	if vec[1] != 1.0 {
		t.Errorf("boolean encoding: got %f, want 1", vec[1])
	}
	if vec[2] != 0.5 {
		t.Errorf("categorical encoding: got %f, want 0.5", vec[2])
	}
	if vec[3] != 2.0 {
		t.Errorf("missing field should use the default, got %f", vec[3])
	}

	if len(missing) != 1 || missing[0] != "burn_multiple" {
		t.Errorf("expected burn_multiple missing, got %v", missing)
	}
	if math.Abs(completeness-0.75) > 1e-9 {
		t.Errorf("expected completeness 0.75, got %f", completeness)
	}
}

func TestPrepare_UnknownCategoryTreatedAsMissing(t *testing.T) {
	schema := Schema{Fields: []FieldSpec{
		{Name: "sector", Kind: KindCategorical, Default: 0, Categories: []string{"saas", "fintech"}},
	}}

	req := NewRequest("r2", map[string]any{"sector": "biotech"})
	_, completeness, missing := Prepare(req, schema)

	if len(missing) != 1 {
		t.Fatalf("expected unknown category recorded as missing, got %v", missing)
	}
	if completeness != 0 {
		t.Errorf("expected completeness 0, got %f", completeness)
	}
}

func TestPrepare_EmptySchema(t *testing.T) {
	vec, completeness, missing := Prepare(NewRequest("r3", map[string]any{"x": 1.0}), Schema{})
	if vec != nil || missing != nil {
		t.Error("empty schema should produce no vector and no missing list")
	}
	if completeness != 1.0 {
		t.Errorf("empty schema completeness should be 1, got %f", completeness)
	}
}

func TestNumeric_BoolCoercion(t *testing.T) {
	req := NewRequest("r4", map[string]any{"prior_successful_exits": true, "name": "acme"})

	if v, ok := req.Numeric("prior_successful_exits"); !ok || v != 1 {
		t.Errorf("bool should coerce to 1, got %f ok=%v", v, ok)
	}
	if _, ok := req.Numeric("name"); ok {
		t.Error("string should not coerce to numeric")
	}
	if _, ok := req.Numeric("absent"); ok {
		t.Error("absent field should not coerce")
	}
}
