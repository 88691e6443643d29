package ensemble

import (
	"campscore/internal/confidence"
	"campscore/internal/explain"
	"campscore/internal/policy"
)

// Result is the final ensemble decision for one request. All numeric
// fields are within [0,1]; active model weights sum to 1. Results are
// ephemeral: created per request and never mutated afterwards.
type Result struct {
	RequestID          string              `json:"request_id"`
	FinalProbability   float64             `json:"final_probability"`
	ConfidenceScore    float64             `json:"confidence_score"`
	ConfidenceInterval confidence.Interval `json:"confidence_interval"`
	Verdict            policy.Verdict      `json:"verdict"`
	RiskLevel          policy.RiskLevel    `json:"risk_level"`
	PillarScores       map[string]float64  `json:"pillar_scores"`
	ModelWeights       map[string]float64  `json:"model_weights"`
	RiskFactors        []explain.Factor    `json:"risk_factors"`
	GrowthIndicators   []explain.Factor    `json:"growth_indicators"`
	Warnings           []string            `json:"warnings"`
	ArtifactVersion    string              `json:"artifact_version,omitempty"`
}

// Health reports what the engine has loaded, for readiness checks.
type Health struct {
	SubModelsLoaded      int      `json:"submodels_loaded"`
	CalibrationAvailable bool     `json:"calibration_available"`
	ProfilesAvailable    []string `json:"profiles_available"`
	ArtifactVersion      string   `json:"artifact_version,omitempty"`
}
