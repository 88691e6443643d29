package registry

import (
	"math"
	"testing"

	"campscore/internal/features"
)

func numericSchema(names ...string) features.Schema {
	s := features.Schema{}
	for _, n := range names {
		s.Fields = append(s.Fields, features.FieldSpec{Name: n, Kind: features.KindNumeric})
	}
	return s
}

func TestNewHandle_Validation(t *testing.T) {
	schema := numericSchema("a", "b")

	cases := []struct {
		name    string
		meta    Meta
		coeffs  []float64
		wantErr bool
	}{
		{"valid", Meta{ID: "m1", Domain: DomainBase, Schema: schema, PriorWeight: 1}, []float64{0.1, 0.2}, false},
		{"missing id", Meta{Domain: DomainBase, Schema: schema}, []float64{0.1, 0.2}, true},
		{"coefficient mismatch", Meta{ID: "m2", Domain: DomainBase, Schema: schema}, []float64{0.1}, true},
		{"unknown domain", Meta{ID: "m3", Domain: "bogus", Schema: schema}, []float64{0.1, 0.2}, true},
		{"negative prior", Meta{ID: "m4", Domain: DomainBase, Schema: schema, PriorWeight: -1}, []float64{0.1, 0.2}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewHandle(tc.meta, tc.coeffs, 0)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestHandle_Score(t *testing.T) {
	h, err := NewHandle(Meta{ID: "m1", Domain: DomainBase, Schema: numericSchema("a", "b")},
		[]float64{1.0, -1.0}, 0)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}

	p, err := h.Score([]float64{0, 0})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("sigmoid(0) should be 0.5, got %f", p)
	}

	high, _ := h.Score([]float64{5, 0})
	low, _ := h.Score([]float64{0, 5})
	if high <= 0.5 || low >= 0.5 {
		t.Errorf("expected directionally correct scores, got high=%f low=%f", high, low)
	}

	if _, err := h.Score([]float64{1}); err == nil {
		t.Error("expected error for vector length mismatch")
	}
	if _, err := h.Score([]float64{math.NaN(), 0}); err == nil {
		t.Error("expected error for NaN feature")
	}
}

func TestApplicable(t *testing.T) {
	req := features.NewRequest("r1", map[string]any{
		"funding_stage": "Series A",
		"sector":        "fintech",
		"pattern_tags":  []any{"efficient_growth"},
	})

	cases := []struct {
		name string
		meta Meta
		want bool
	}{
		{"base always", Meta{Domain: DomainBase}, true},
		{"pillar always", Meta{Domain: DomainPillar, Key: PillarCapital}, true},
		{"pattern match", Meta{Domain: DomainPattern, Key: "efficient_growth"}, true},
		{"pattern no match", Meta{Domain: DomainPattern, Key: "blitzscale"}, false},
		{"stage match", Meta{Domain: DomainStage, Key: "series_a"}, true},
		{"stage mismatch", Meta{Domain: DomainStage, Key: "seed"}, false},
		{"industry match", Meta{Domain: DomainIndustry, Key: "fintech"}, true},
		{"industry mismatch", Meta{Domain: DomainIndustry, Key: "saas"}, false},
		{"stage empty key", Meta{Domain: DomainStage, Key: ""}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Applicable(tc.meta, req); got != tc.want {
				t.Errorf("Applicable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRegistry_StableOrderAndFiltering(t *testing.T) {
	mk := func(id string, domain Domain, key string) *Handle {
		h, err := NewHandle(Meta{ID: id, Domain: domain, Key: key}, nil, 0)
		if err != nil {
			t.Fatalf("NewHandle(%s): %v", id, err)
		}
		return h
	}

	r := New([]Scorer{
		mk("z_base", DomainBase, ""),
		mk("a_stage_seed", DomainStage, "seed"),
		mk("m_pillar_capital", DomainPillar, PillarCapital),
	})

	if r.Len() != 3 {
		t.Fatalf("expected 3 scorers, got %d", r.Len())
	}

	all := r.All()
	if all[0].Meta().ID != "a_stage_seed" || all[2].Meta().ID != "z_base" {
		t.Error("expected scorers sorted by id")
	}

	req := features.NewRequest("r1", map[string]any{"funding_stage": "series_b"})
	applicable := r.Applicable(req)
	if len(applicable) != 2 {
		t.Fatalf("expected base and pillar applicable, got %d", len(applicable))
	}
	for _, s := range applicable {
		if s.Meta().Domain == DomainStage {
			t.Error("seed stage model should not apply to series_b request")
		}
	}
}
