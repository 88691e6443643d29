// Package ensemble orchestrates the sub-model fan-out and combines the
// scores into one calibrated, explainable decision. Sub-model failures
// are isolated and surfaced as warnings; the engine prefers returning a
// complete low-confidence result over failing a request.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"campscore/internal/calibration"
	"campscore/internal/common"
	"campscore/internal/confidence"
	"campscore/internal/explain"
	"campscore/internal/features"
	"campscore/internal/policy"
	"campscore/internal/registry"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyFeatures is returned for requests with no features at all.
// Unlike sub-model failures this is caller error.
var ErrEmptyFeatures = errors.New("request has no features")

// MetricsInterface defines the metrics hooks the engine reports to.
// A nil implementation disables reporting.
type MetricsInterface interface {
	PredictionsInc()
	SubModelFailuresInc()
	SubModelTimeoutsInc()
	DegradedInc()
	CalibrationFallbackInc()
	UncalibratedInc()
	LatencyObserve(float64)
	ScoreObserve(float64)
	ActiveSubModelsObserve(float64)
}

// Config carries the engine tunables. Zero values are replaced with
// safe defaults at construction.
type Config struct {
	SubModelTimeout       time.Duration
	MaxParallel           int
	PriorWeights          map[registry.Domain]float64
	Uncertainty           confidence.Weights
	MissingPillarScore    float64
	PenalizeMissingPillar bool
	// MissingPillarPenalty is subtracted from data completeness per
	// absent CAMP pillar when PenalizeMissingPillar is set.
	MissingPillarPenalty float64
}

func (c Config) withDefaults() Config {
	if c.SubModelTimeout <= 0 {
		c.SubModelTimeout = 200 * time.Millisecond
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 8
	}
	if c.Uncertainty == (confidence.Weights{}) {
		c.Uncertainty = confidence.DefaultWeights()
	}
	if c.MissingPillarScore <= 0 {
		c.MissingPillarScore = common.DefaultMissingPillarScore
	}
	if c.MissingPillarPenalty <= 0 {
		c.MissingPillarPenalty = 0.1
	}
	return c
}

// Snapshot is one immutable generation of loaded artifacts. Updates
// are published by swapping in a complete new snapshot; readers never
// observe partially-updated tables.
type Snapshot struct {
	Registry   *registry.Registry
	Calibrator *calibration.Calibrator
	Policy     *policy.Table
	Version    string
	LoadedAt   time.Time
}

// Engine is the prediction orchestration and calibration engine. It is
// safe for concurrent use; all mutable state is the snapshot pointer.
type Engine struct {
	cfg       Config
	snap      atomic.Pointer[Snapshot]
	estimator *confidence.Estimator
	explainer *explain.Generator
	metrics   MetricsInterface
}

// New builds an engine around an initial snapshot.
func New(cfg Config, snap *Snapshot, explainer *explain.Generator, metrics MetricsInterface) (*Engine, error) {
	if snap == nil || snap.Registry == nil || snap.Policy == nil {
		return nil, fmt.Errorf("snapshot with registry and policy table is required")
	}
	cfg = cfg.withDefaults()
	if explainer == nil {
		explainer = explain.NewGenerator(explain.DefaultThresholds())
	}

	e := &Engine{
		cfg:       cfg,
		estimator: confidence.NewEstimator(cfg.Uncertainty),
		explainer: explainer,
		metrics:   metrics,
	}
	e.snap.Store(snap)

	log.Info().
		Int("submodels", snap.Registry.Len()).
		Strs("profiles", snap.Policy.Names()).
		Str("artifact_version", snap.Version).
		Msg("ensemble engine ready")
	return e, nil
}

// Swap atomically publishes a new artifact snapshot. In-flight
// predictions keep the snapshot they started with.
func (e *Engine) Swap(snap *Snapshot) {
	if snap == nil || snap.Registry == nil || snap.Policy == nil {
		log.Error().Msg("rejected snapshot swap with missing registry or policy")
		return
	}
	e.snap.Store(snap)
	log.Info().
		Str("artifact_version", snap.Version).
		Int("submodels", snap.Registry.Len()).
		Msg("artifact snapshot swapped")
}

// Snapshot returns the current artifact snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Health reports the loaded artifact state.
func (e *Engine) Health() Health {
	snap := e.snap.Load()
	return Health{
		SubModelsLoaded:      snap.Registry.Len(),
		CalibrationAvailable: snap.Calibrator.HasCurve(calibration.EnsembleID),
		ProfilesAvailable:    snap.Policy.Names(),
		ArtifactVersion:      snap.Version,
	}
}

// rawPrediction is the per-sub-model outcome for one request. It lives
// only for the duration of the request.
type rawPrediction struct {
	meta         registry.Meta
	prob         float64
	completeness float64
	missing      []string
	err          error
}

func (rp rawPrediction) ok() bool {
	return rp.err == nil
}

// Predict scores the request under the named profile. Only an unknown
// profile or an empty feature set return an error; every sub-model
// failure is absorbed into the result's warnings.
func (e *Engine) Predict(ctx context.Context, req features.Request, profile string) (*Result, error) {
	start := time.Now()
	snap := e.snap.Load()

	if len(req.Raw) == 0 {
		return nil, fmt.Errorf("request %s: %w", req.ID, ErrEmptyFeatures)
	}
	if !snap.Policy.Has(profile) {
		return nil, fmt.Errorf("request %s: %w: %q", req.ID, policy.ErrUnknownProfile, profile)
	}

	scorers := snap.Registry.Applicable(req)
	raws := e.fanOut(ctx, scorers, req)

	result, err := e.assemble(snap, req, profile, raws)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PredictionsInc()
		e.metrics.LatencyObserve(time.Since(start).Seconds())
		e.metrics.ScoreObserve(result.FinalProbability)
	}

	log.Debug().
		Str("request_id", req.ID).
		Str("profile", profile).
		Float64("probability", result.FinalProbability).
		Str("verdict", string(result.Verdict)).
		Int("warnings", len(result.Warnings)).
		Msg("prediction complete")

	return result, nil
}

// fanOut scores every applicable sub-model concurrently, each call
// bounded by the configured timeout and isolated from the others.
// Results come back in scorer order so aggregation is deterministic.
func (e *Engine) fanOut(ctx context.Context, scorers []registry.Scorer, req features.Request) []rawPrediction {
	raws := make([]rawPrediction, len(scorers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)
	for i, s := range scorers {
		i, s := i, s
		g.Go(func() error {
			raws[i] = e.scoreOne(gctx, s, req)
			return nil
		})
	}
	// Workers never return errors; failures are values in raws.
	_ = g.Wait()

	return raws
}

// scoreOne invokes one sub-model under isolation: panics become
// errors, the call is abandoned on timeout, and missing features are
// default-filled with the completeness fraction recorded for weighting.
func (e *Engine) scoreOne(ctx context.Context, s registry.Scorer, req features.Request) rawPrediction {
	meta := s.Meta()
	rp := rawPrediction{meta: meta, completeness: 1}

	vec, completeness, missing := features.Prepare(req, meta.Schema)
	rp.completeness = completeness
	rp.missing = missing
	if completeness == 0 && len(meta.Schema.Fields) > 0 {
		rp.err = fmt.Errorf("all %d required features missing", len(meta.Schema.Fields))
		e.countFailure(false)
		return rp
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SubModelTimeout)
	defer cancel()

	type scored struct {
		prob float64
		err  error
	}
	done := make(chan scored, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- scored{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		p, err := s.Score(vec)
		done <- scored{prob: p, err: err}
	}()

	select {
	case <-ctx.Done():
		// Scoring is pure, so abandoning the in-flight call is safe.
		rp.err = fmt.Errorf("timed out after %v", e.cfg.SubModelTimeout)
		e.countFailure(true)
	case sc := <-done:
		if sc.err != nil {
			rp.err = sc.err
			e.countFailure(false)
			return rp
		}
		if sc.prob < 0 || sc.prob > 1 || math.IsNaN(sc.prob) {
			rp.err = fmt.Errorf("probability %f out of [0,1]", sc.prob)
			e.countFailure(false)
			return rp
		}
		rp.prob = sc.prob
	}
	return rp
}

func (e *Engine) countFailure(timeout bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.SubModelFailuresInc()
	if timeout {
		e.metrics.SubModelTimeoutsInc()
	}
}

// assemble turns the raw predictions into the final result: weighted
// aggregate, calibration, confidence, verdict, explanations.
func (e *Engine) assemble(snap *Snapshot, req features.Request, profile string, raws []rawPrediction) (*Result, error) {
	var warnings []string
	var active []rawPrediction
	for _, rp := range raws {
		if rp.ok() {
			active = append(active, rp)
			if len(rp.missing) > 0 {
				warnings = append(warnings, fmt.Sprintf(
					"sub-model %s scored with %d of %d features defaulted; weight reduced",
					rp.meta.ID, len(rp.missing), len(rp.meta.Schema.Fields)))
			}
		} else {
			warnings = append(warnings, fmt.Sprintf("sub-model %s unavailable: %v", rp.meta.ID, rp.err))
		}
	}

	if e.metrics != nil {
		e.metrics.ActiveSubModelsObserve(float64(len(active)))
	}

	if len(active) == 0 {
		return e.degraded(snap, req, profile, warnings)
	}

	// Per-model calibration where a fitted curve exists; the raw score
	// is used otherwise so the band/identity fallback only runs once,
	// on the aggregate. Agreement is measured on the raw scores:
	// calibration can compress spread and overstate consensus.
	probs := make([]float64, len(active))
	rawProbs := make([]float64, len(active))
	for i, rp := range active {
		probs[i] = rp.prob
		rawProbs[i] = rp.prob
		if snap.Calibrator.HasCurve(rp.meta.ID) {
			probs[i], _ = snap.Calibrator.Calibrate(rp.prob, rp.meta.ID)
		}
	}

	weights, completeness := e.weigh(active)
	var rawAggregate float64
	for i := range active {
		rawAggregate += weights[i] * probs[i]
	}

	pillars, missingPillars := e.pillarScores(active, probs)
	if e.cfg.PenalizeMissingPillar && missingPillars > 0 {
		completeness = clip01(completeness - e.cfg.MissingPillarPenalty*float64(missingPillars))
	}

	final, method := snap.Calibrator.Calibrate(rawAggregate, calibration.EnsembleID)
	final = clip01(final)
	switch method {
	case calibration.MethodIdentity:
		warnings = append(warnings, "ensemble score is uncalibrated: no fitted curve or configured band")
		if e.metrics != nil {
			e.metrics.UncalibratedInc()
		}
	case calibration.MethodBand:
		if e.metrics != nil {
			e.metrics.CalibrationFallbackInc()
		}
	}

	confScore, interval := e.estimator.Estimate(rawProbs, completeness, final)

	verdict, riskLevel, err := snap.Policy.Verdict(final, profile)
	if err != nil {
		return nil, err
	}

	risks, growth := e.explainer.Explain(req, pillars)

	modelWeights := make(map[string]float64, len(active))
	for i, rp := range active {
		modelWeights[rp.meta.ID] = weights[i]
	}

	return &Result{
		RequestID:          req.ID,
		FinalProbability:   final,
		ConfidenceScore:    confScore,
		ConfidenceInterval: interval,
		Verdict:            verdict,
		RiskLevel:          riskLevel,
		PillarScores:       pillars,
		ModelWeights:       modelWeights,
		RiskFactors:        risks,
		GrowthIndicators:   growth,
		Warnings:           warnings,
		ArtifactVersion:    snap.Version,
	}, nil
}

// weigh computes normalized weights over the active sub-models:
// domain prior scaled by per-model data completeness, renormalized to
// sum to 1. The second return is the weighted data completeness used
// by the confidence estimator.
func (e *Engine) weigh(active []rawPrediction) ([]float64, float64) {
	weights := make([]float64, len(active))
	var total float64
	for i, rp := range active {
		prior := 1.0
		if p, ok := e.cfg.PriorWeights[rp.meta.Domain]; ok && p > 0 {
			prior = p
		}
		weights[i] = prior * rp.completeness
		total += weights[i]
	}

	var completeness float64
	if total <= 0 {
		// All completeness factors are zero-adjacent; fall back to a
		// uniform weighting rather than dividing by zero.
		uniform := 1.0 / float64(len(active))
		for i, rp := range active {
			weights[i] = uniform
			completeness += uniform * rp.completeness
		}
		return weights, completeness
	}

	for i, rp := range active {
		weights[i] /= total
		completeness += weights[i] * rp.completeness
	}
	return weights, completeness
}

// pillarScores extracts the CAMP pillar scores from the active pillar
// models, defaulting absent pillars and reporting how many were absent.
func (e *Engine) pillarScores(active []rawPrediction, probs []float64) (map[string]float64, int) {
	pillars := map[string]float64{
		registry.PillarCapital:   e.cfg.MissingPillarScore,
		registry.PillarAdvantage: e.cfg.MissingPillarScore,
		registry.PillarMarket:    e.cfg.MissingPillarScore,
		registry.PillarPeople:    e.cfg.MissingPillarScore,
	}

	seen := map[string]bool{}
	for i, rp := range active {
		if rp.meta.Domain == registry.DomainPillar {
			pillars[rp.meta.Key] = probs[i]
			seen[rp.meta.Key] = true
		}
	}
	return pillars, len(pillars) - len(seen)
}

// degraded is the total-failure path: a neutral probability with zero
// confidence and an explicit warning, never an error.
func (e *Engine) degraded(snap *Snapshot, req features.Request, profile string, warnings []string) (*Result, error) {
	const neutral = 0.5

	verdict, riskLevel, err := snap.Policy.Verdict(neutral, profile)
	if err != nil {
		return nil, err
	}

	warnings = append(warnings, "all sub-models failed or were inapplicable; returning neutral degraded result")
	if e.metrics != nil {
		e.metrics.DegradedInc()
	}
	log.Warn().Str("request_id", req.ID).Msg("prediction fully degraded")

	pillars, _ := e.pillarScores(nil, nil)
	risks, growth := e.explainer.Explain(req, pillars)

	return &Result{
		RequestID:          req.ID,
		FinalProbability:   neutral,
		ConfidenceScore:    0,
		ConfidenceInterval: confidence.Interval{Lower: 0, Upper: 1},
		Verdict:            verdict,
		RiskLevel:          riskLevel,
		PillarScores:       pillars,
		ModelWeights:       map[string]float64{},
		RiskFactors:        risks,
		GrowthIndicators:   growth,
		Warnings:           warnings,
		ArtifactVersion:    snap.Version,
	}, nil
}

func clip01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
