// Package confidence derives a confidence score and interval from
// model agreement, data completeness, and prediction extremity.
package confidence

import "math"

// maxVariance is the largest possible sample variance of values in
// [0,1], used to normalize agreement.
const maxVariance = 0.25

// Weights are the uncertainty components. They are heuristic tuning
// parameters loaded from configuration, not fixed invariants.
type Weights struct {
	Base      float64
	Model     float64
	Data      float64
	Extremity float64
	MinTotal  float64
	MaxTotal  float64
}

// DefaultWeights returns the stock uncertainty parameters.
func DefaultWeights() Weights {
	return Weights{
		Base:      0.10,
		Model:     0.20,
		Data:      0.15,
		Extremity: 0.10,
		MinTotal:  0.05,
		MaxTotal:  0.40,
	}
}

// Interval is a confidence interval around the final probability.
// Lower <= p <= Upper always holds, both bounds in [0,1].
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Estimator computes confidence from the active raw predictions.
type Estimator struct {
	w Weights
}

// NewEstimator builds an estimator with the given weights.
func NewEstimator(w Weights) *Estimator {
	return &Estimator{w: w}
}

// Estimate returns the confidence score and interval for a calibrated
// probability p given the active raw sub-model probabilities and the
// overall data completeness fraction.
func (e *Estimator) Estimate(rawProbs []float64, completeness, p float64) (float64, Interval) {
	agreement := Agreement(rawProbs)

	uncertainty := e.w.Base +
		(1-agreement)*e.w.Model +
		(1-clip(completeness, 0, 1))*e.w.Data -
		math.Min(p, 1-p)*e.w.Extremity
	uncertainty = clip(uncertainty, e.w.MinTotal, e.w.MaxTotal)

	iv := Interval{
		Lower: clip(p-uncertainty, 0, 1),
		Upper: clip(p+uncertainty, 0, 1),
	}
	// Clipping cannot push a bound past p for p in [0,1], but a p that
	// arrived out of range must still be contained.
	if iv.Lower > p {
		iv.Lower = p
	}
	if iv.Upper < p {
		iv.Upper = p
	}

	return 1 - uncertainty/2, iv
}

// Agreement is 1 minus the normalized sample variance of the active
// predictions, clipped to [0,1]. With fewer than two predictions there
// is nothing to compare, so agreement defaults to 0.5.
func Agreement(rawProbs []float64) float64 {
	if len(rawProbs) < 2 {
		return 0.5
	}

	var sum float64
	for _, p := range rawProbs {
		sum += p
	}
	mean := sum / float64(len(rawProbs))

	var ss float64
	for _, p := range rawProbs {
		d := p - mean
		ss += d * d
	}
	variance := ss / float64(len(rawProbs)-1)

	return 1 - clip(variance/maxVariance, 0, 1)
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}
