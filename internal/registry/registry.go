// Package registry holds the loaded sub-model handles and decides
// which of them apply to a given request. Handles are constructed once
// from artifacts at startup and are read-only afterwards.
package registry

import (
	"fmt"
	"math"
	"sort"

	"campscore/internal/features"

	"github.com/rs/zerolog/log"
)

// Domain tags the scope a sub-model was trained for.
type Domain string

const (
	DomainBase     Domain = "base"
	DomainPattern  Domain = "pattern"
	DomainStage    Domain = "stage"
	DomainIndustry Domain = "industry"
	DomainPillar   Domain = "camp_pillar"
)

// CAMP pillar keys, the Key values of DomainPillar handles.
const (
	PillarCapital   = "capital"
	PillarAdvantage = "advantage"
	PillarMarket    = "market"
	PillarPeople    = "people"
)

// Meta is the declared metadata of a sub-model. Every optional field
// has an explicit default; nothing is probed at runtime.
type Meta struct {
	ID          string
	Domain      Domain
	Key         string
	Schema      features.Schema
	PriorWeight float64
}

// Scorer is a loaded, pure scoring function over an immutable handle.
// Score must be safe for concurrent use and must not retain vec.
type Scorer interface {
	Meta() Meta
	Score(vec []float64) (float64, error)
}

// Handle is a logistic scoring handle loaded from a trained-model
// artifact: probability = sigmoid(w·x + b).
type Handle struct {
	meta         Meta
	coefficients []float64
	intercept    float64
}

// NewHandle validates and builds a scoring handle. Coefficients are
// positional and must match the schema length.
func NewHandle(meta Meta, coefficients []float64, intercept float64) (*Handle, error) {
	if meta.ID == "" {
		return nil, fmt.Errorf("sub-model id is required")
	}
	if len(coefficients) != len(meta.Schema.Fields) {
		return nil, fmt.Errorf("sub-model %s: %d coefficients for %d schema fields",
			meta.ID, len(coefficients), len(meta.Schema.Fields))
	}
	switch meta.Domain {
	case DomainBase, DomainPattern, DomainStage, DomainIndustry, DomainPillar:
	default:
		return nil, fmt.Errorf("sub-model %s: unknown domain %q", meta.ID, meta.Domain)
	}
	if meta.PriorWeight < 0 {
		return nil, fmt.Errorf("sub-model %s: negative prior weight %f", meta.ID, meta.PriorWeight)
	}

	return &Handle{
		meta:         meta,
		coefficients: coefficients,
		intercept:    intercept,
	}, nil
}

// Meta returns the handle's declared metadata.
func (h *Handle) Meta() Meta {
	return h.meta
}

// Score computes sigmoid(w·x + b) over the encoded vector. It rejects
// malformed input instead of producing a silent mid-range score.
func (h *Handle) Score(vec []float64) (float64, error) {
	if len(vec) != len(h.coefficients) {
		return 0, fmt.Errorf("sub-model %s: expected %d features, got %d",
			h.meta.ID, len(h.coefficients), len(vec))
	}

	z := h.intercept
	for i, x := range vec {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("sub-model %s: feature %d is not finite", h.meta.ID, i)
		}
		z += h.coefficients[i] * x
	}

	p := 1.0 / (1.0 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("sub-model %s: score is NaN", h.meta.ID)
	}
	return p, nil
}

// Applicable reports whether a sub-model applies to the request:
// base and CAMP pillar models always do, pattern models when their tag
// is among the request's detected tags, stage and industry models on
// exact normalized key match.
func Applicable(meta Meta, req features.Request) bool {
	switch meta.Domain {
	case DomainBase, DomainPillar:
		return true
	case DomainPattern:
		return req.HasPattern(meta.Key)
	case DomainStage:
		return meta.Key != "" && meta.Key == req.Stage
	case DomainIndustry:
		return meta.Key != "" && meta.Key == req.Sector
	default:
		return false
	}
}

// Registry is the immutable set of loaded sub-models.
type Registry struct {
	scorers []Scorer
}

// New builds a registry. Scorers are kept in a stable ID order so that
// aggregation and warnings are deterministic across identical requests.
func New(scorers []Scorer) *Registry {
	sorted := make([]Scorer, len(scorers))
	copy(sorted, scorers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Meta().ID < sorted[j].Meta().ID
	})

	log.Info().Int("submodels", len(sorted)).Msg("sub-model registry built")
	return &Registry{scorers: sorted}
}

// Len returns the number of loaded sub-models.
func (r *Registry) Len() int {
	return len(r.scorers)
}

// All returns the scorers in stable order.
func (r *Registry) All() []Scorer {
	return r.scorers
}

// Applicable returns the scorers that apply to the request, in stable
// order.
func (r *Registry) Applicable(req features.Request) []Scorer {
	var out []Scorer
	for _, s := range r.scorers {
		if Applicable(s.Meta(), req) {
			out = append(out, s)
		}
	}
	return out
}
