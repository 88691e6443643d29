package confidence

import (
	"math"
	"testing"
)

func TestAgreement(t *testing.T) {
	if got := Agreement(nil); got != 0.5 {
		t.Errorf("no predictions should default to 0.5, got %f", got)
	}
	if got := Agreement([]float64{0.7}); got != 0.5 {
		t.Errorf("single prediction should default to 0.5, got %f", got)
	}
	if got := Agreement([]float64{0.6, 0.6, 0.6}); got != 1.0 {
		t.Errorf("identical predictions should agree fully, got %f", got)
	}
	// Maximum spread yields sample variance 0.5 for {0,1}, which clips
	// the normalized term to 1.
	if got := Agreement([]float64{0, 1}); got != 0 {
		t.Errorf("fully split predictions should have zero agreement, got %f", got)
	}

	tight := Agreement([]float64{0.58, 0.60, 0.62})
	loose := Agreement([]float64{0.30, 0.60, 0.90})
	if tight <= loose {
		t.Errorf("tighter cluster should agree more: tight=%f loose=%f", tight, loose)
	}
}

func TestEstimate_BoundsAndContainment(t *testing.T) {
	e := NewEstimator(DefaultWeights())

	for _, tc := range []struct {
		name         string
		probs        []float64
		completeness float64
		p            float64
	}{
		{"typical", []float64{0.6, 0.65, 0.7}, 0.9, 0.65},
		{"single model", []float64{0.9}, 0.5, 0.9},
		{"no data", nil, 0, 0.5},
		{"extreme p", []float64{0.98, 0.99}, 1, 0.99},
		{"zero p", []float64{0.01, 0.02}, 1, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			score, iv := e.Estimate(tc.probs, tc.completeness, tc.p)

			if score < 0.80 || score > 0.975 {
				t.Errorf("score %f outside [0.80, 0.975] implied by default uncertainty bounds", score)
			}
			if iv.Lower < 0 || iv.Upper > 1 {
				t.Errorf("interval [%f, %f] outside [0,1]", iv.Lower, iv.Upper)
			}
			if iv.Lower > tc.p || iv.Upper < tc.p {
				t.Errorf("interval [%f, %f] does not contain p=%f", iv.Lower, iv.Upper, tc.p)
			}
		})
	}
}

func TestEstimate_MoreAgreeingModelsRaiseConfidence(t *testing.T) {
	e := NewEstimator(DefaultWeights())

	single, _ := e.Estimate([]float64{0.9}, 1, 0.9)
	several, _ := e.Estimate([]float64{0.88, 0.90, 0.92}, 1, 0.9)

	if several <= single {
		t.Errorf("agreeing ensemble should be more confident than a single model: %f vs %f", several, single)
	}

	// Single model at full completeness and p=0.9: uncertainty is
	// 0.10 + 0.5*0.20 - 0.1*0.10 = 0.19, so confidence is 0.905.
	if math.Abs(single-0.905) > 1e-9 {
		t.Errorf("single-model confidence: got %f, want 0.905", single)
	}
}

func TestEstimate_CompletenessAndDisagreementWiden(t *testing.T) {
	e := NewEstimator(DefaultWeights())

	_, full := e.Estimate([]float64{0.6, 0.6}, 1, 0.6)
	_, sparse := e.Estimate([]float64{0.6, 0.6}, 0.3, 0.6)
	if sparse.Upper-sparse.Lower <= full.Upper-full.Lower {
		t.Error("lower completeness should widen the interval")
	}

	_, agree := e.Estimate([]float64{0.59, 0.61}, 1, 0.6)
	_, disagree := e.Estimate([]float64{0.30, 0.90}, 1, 0.6)
	if disagree.Upper-disagree.Lower <= agree.Upper-agree.Lower {
		t.Error("model disagreement should widen the interval")
	}
}
