// Package calibration maps raw classifier scores to probabilities that
// match empirical outcome frequencies. Curves are fitted offline and
// loaded as immutable artifacts; this package only applies them.
package calibration

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// EnsembleID is the calibration key for the aggregated ensemble score,
// as opposed to a per-sub-model raw score.
const EnsembleID = "ensemble"

// Method records which transform produced a calibrated value.
type Method int

const (
	// MethodCurve means a fitted isotonic curve was applied.
	MethodCurve Method = iota
	// MethodBand means the configured affine-then-logistic stretch was
	// applied because no fitted curve exists for the id.
	MethodBand
	// MethodIdentity means neither a curve nor a band exists; the raw
	// value passed through unchanged and the caller should warn.
	MethodIdentity
)

func (m Method) String() string {
	switch m {
	case MethodCurve:
		return "curve"
	case MethodBand:
		return "band"
	default:
		return "identity"
	}
}

// Curve is a fitted monotonic non-decreasing calibration curve stored
// as breakpoints. Inputs outside the fitted range clamp to the boundary
// values; there is no extrapolation.
type Curve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Validate checks the breakpoint invariants: matching lengths, at least
// two points, X strictly increasing, Y non-decreasing and within [0,1].
func (c *Curve) Validate() error {
	if len(c.X) != len(c.Y) {
		return fmt.Errorf("curve has %d x values and %d y values", len(c.X), len(c.Y))
	}
	if len(c.X) < 2 {
		return fmt.Errorf("curve needs at least 2 breakpoints, got %d", len(c.X))
	}
	for i := range c.X {
		if i > 0 && c.X[i] <= c.X[i-1] {
			return fmt.Errorf("curve x values must be strictly increasing at index %d", i)
		}
		if i > 0 && c.Y[i] < c.Y[i-1] {
			return fmt.Errorf("curve y values must be non-decreasing at index %d", i)
		}
		if c.Y[i] < 0 || c.Y[i] > 1 {
			return fmt.Errorf("curve y value %f out of [0,1] at index %d", c.Y[i], i)
		}
	}
	return nil
}

// Apply evaluates the curve at x with linear interpolation between
// breakpoints and clamping at the fitted boundaries.
func (c *Curve) Apply(x float64) float64 {
	n := len(c.X)
	if x <= c.X[0] {
		return c.Y[0]
	}
	if x >= c.X[n-1] {
		return c.Y[n-1]
	}

	// Binary search for the segment containing x.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if c.X[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}

	span := c.X[hi] - c.X[lo]
	t := (x - c.X[lo]) / span
	return c.Y[lo] + t*(c.Y[hi]-c.Y[lo])
}

// Band describes the known narrow historical output range of an
// uncalibrated model. The fallback transform stretches that band over
// [0,1] and pushes it through a logistic curve.
type Band struct {
	Lo        float64 `json:"lo"`
	Hi        float64 `json:"hi"`
	Steepness float64 `json:"steepness"`
}

// Validate checks the band bounds.
func (b Band) Validate() error {
	if b.Hi <= b.Lo {
		return fmt.Errorf("band hi %f must exceed lo %f", b.Hi, b.Lo)
	}
	if b.Steepness <= 0 {
		return fmt.Errorf("band steepness must be positive, got %f", b.Steepness)
	}
	return nil
}

// Apply runs the affine-then-logistic stretch:
// normalized = clip((x-lo)/(hi-lo), 0, 1), then
// sigmoid(k*(normalized-0.5)), clipped to [0.001, 0.999].
func (b Band) Apply(x float64) float64 {
	normalized := clip((x-b.Lo)/(b.Hi-b.Lo), 0, 1)
	calibrated := 1.0 / (1.0 + math.Exp(-b.Steepness*(normalized-0.5)))
	return clip(calibrated, 0.001, 0.999)
}

// Calibrator applies per-id calibration: a fitted curve when one
// exists, the configured band fallback otherwise, identity as the last
// resort. It is immutable after construction.
type Calibrator struct {
	curves map[string]*Curve
	bands  map[string]Band
}

// New builds a calibrator from fitted curves and configured fallback
// bands. Both maps may be nil. Invalid entries are rejected.
func New(curves map[string]*Curve, bands map[string]Band) (*Calibrator, error) {
	for id, c := range curves {
		if c == nil {
			return nil, fmt.Errorf("calibration curve %s is nil", id)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("calibration curve %s: %w", id, err)
		}
	}
	for id, b := range bands {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("calibration band %s: %w", id, err)
		}
	}

	log.Debug().Int("curves", len(curves)).Int("bands", len(bands)).Msg("calibrator built")
	return &Calibrator{curves: curves, bands: bands}, nil
}

// HasCurve reports whether a fitted curve exists for the id.
func (c *Calibrator) HasCurve(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.curves[id]
	return ok
}

// Calibrate maps a raw score to a calibrated probability for the given
// sub-model id (or EnsembleID). The returned Method tells the caller
// which transform ran; MethodIdentity should surface a warning.
// Calibrate is monotonic non-decreasing in raw for a fixed id.
func (c *Calibrator) Calibrate(raw float64, id string) (float64, Method) {
	if c != nil {
		if curve, ok := c.curves[id]; ok {
			return curve.Apply(raw), MethodCurve
		}
		if band, ok := c.bands[id]; ok {
			return band.Apply(raw), MethodBand
		}
	}
	return raw, MethodIdentity
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}
