// Package artifacts loads the versioned, immutable artifact bundles
// the engine consumes: trained sub-model handles, fitted calibration
// curves and fallback bands, and threshold profile tables. A bundle is
// read once into an ensemble snapshot; updates arrive as whole new
// bundles, never in-place edits.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"campscore/internal/calibration"
	"campscore/internal/common"
	"campscore/internal/ensemble"
	"campscore/internal/features"
	"campscore/internal/policy"
	"campscore/internal/registry"

	"github.com/rs/zerolog/log"
)

// Bundle file names inside an artifact directory.
const (
	ManifestFile    = "manifest.json"
	ModelsFile      = "models.json"
	CalibrationFile = "calibration.json"
	ProfilesFile    = "profiles.json"
)

// Manifest identifies a bundle version.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// handleSpec is the on-disk form of a trained sub-model.
type handleSpec struct {
	ID           string          `json:"id"`
	Domain       string          `json:"domain"`
	Key          string          `json:"key,omitempty"`
	PriorWeight  float64         `json:"prior_weight"`
	Schema       features.Schema `json:"schema"`
	Coefficients []float64       `json:"coefficients"`
	Intercept    float64         `json:"intercept"`
}

// calibrationSpec is the on-disk form of the calibration artifacts.
type calibrationSpec struct {
	Curves map[string]*calibration.Curve `json:"curves"`
	Bands  map[string]calibration.Band   `json:"bands"`
}

// profilesSpec is the on-disk form of the threshold tables.
type profilesSpec struct {
	Profiles []policy.Profile `json:"profiles"`
}

// Bundle is one fully parsed artifact generation.
type Bundle struct {
	Manifest Manifest
	Handles  []*registry.Handle
	Curves   map[string]*calibration.Curve
	Bands    map[string]calibration.Band
	Profiles []policy.Profile
}

// Load reads a bundle from a directory. The models file is required;
// a missing calibration or profiles file is tolerated (the engine then
// runs uncalibrated or on the built-in default profiles, both flagged).
func Load(dir string) (*Bundle, error) {
	b := &Bundle{}

	if err := readJSON(filepath.Join(dir, ManifestFile), &b.Manifest); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		log.Warn().Str("dir", dir).Msg("artifact bundle has no manifest; version unknown")
	}

	var specs []handleSpec
	if err := readJSON(filepath.Join(dir, ModelsFile), &specs); err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("models file in %s declares no sub-models", dir)
	}

	for _, spec := range specs {
		h, err := registry.NewHandle(registry.Meta{
			ID:          spec.ID,
			Domain:      registry.Domain(spec.Domain),
			Key:         spec.Key,
			Schema:      spec.Schema,
			PriorWeight: spec.PriorWeight,
		}, spec.Coefficients, spec.Intercept)
		if err != nil {
			return nil, fmt.Errorf("load sub-model: %w", err)
		}
		b.Handles = append(b.Handles, h)
	}

	var cal calibrationSpec
	if err := readJSON(filepath.Join(dir, CalibrationFile), &cal); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read calibration: %w", err)
		}
		log.Warn().Str("dir", dir).Msg("no calibration artifact; fallback transforms will apply")
	}
	// Bands may omit steepness; the stock logistic stretch applies.
	for id, band := range cal.Bands {
		if band.Steepness == 0 {
			band.Steepness = common.DefaultFallbackSteepness
			cal.Bands[id] = band
		}
	}
	b.Curves = cal.Curves
	b.Bands = cal.Bands

	var prof profilesSpec
	if err := readJSON(filepath.Join(dir, ProfilesFile), &prof); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read profiles: %w", err)
		}
		log.Warn().Str("dir", dir).Msg("no profiles artifact; using built-in defaults")
	}
	b.Profiles = prof.Profiles

	log.Info().
		Str("version", b.Manifest.Version).
		Int("submodels", len(b.Handles)).
		Int("curves", len(b.Curves)).
		Int("profiles", len(b.Profiles)).
		Msg("artifact bundle loaded")

	return b, nil
}

// Snapshot validates the bundle contents and assembles the immutable
// engine snapshot.
func (b *Bundle) Snapshot() (*ensemble.Snapshot, error) {
	scorers := make([]registry.Scorer, len(b.Handles))
	for i, h := range b.Handles {
		scorers[i] = h
	}

	cal, err := calibration.New(b.Curves, b.Bands)
	if err != nil {
		return nil, err
	}

	table := policy.Defaults()
	if len(b.Profiles) > 0 {
		table, err = policy.New(b.Profiles)
		if err != nil {
			return nil, err
		}
	}

	return &ensemble.Snapshot{
		Registry:   registry.New(scorers),
		Calibrator: cal,
		Policy:     table,
		Version:    b.Manifest.Version,
		LoadedAt:   time.Now(),
	}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
