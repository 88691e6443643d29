package common

// Environment variable keys
const (
	EnvConfigFile            = "CONFIG_FILE"
	EnvArtifactsDir          = "ARTIFACTS_DIR"
	EnvArtifactsURL          = "ARTIFACTS_URL"
	EnvArtifactsWsURL        = "ARTIFACTS_WS_URL"
	EnvDataPath              = "DATA_PATH"
	EnvMetricsPort           = "METRICS_PORT"
	EnvDefaultProfile        = "DEFAULT_PROFILE"
	EnvSubModelTimeout       = "SUBMODEL_TIMEOUT"
	EnvMaxParallel           = "MAX_PARALLEL"
	EnvFetchTimeout          = "FETCH_TIMEOUT"
	EnvPenalizeMissingPillar = "PENALIZE_MISSING_PILLAR"
)

// Configuration defaults
const (
	DefaultMetricsPort     = 8080
	DefaultProfile         = "balanced"
	DefaultSubModelTimeout = "200ms"
	DefaultMaxParallel     = 8
	DefaultFetchTimeout    = "10s"
)

// Prior weight defaults per sub-model domain. The base classifier
// anchors the ensemble; specialized models refine it.
const (
	DefaultBasePrior     = 1.0
	DefaultPillarPrior   = 0.9
	DefaultPatternPrior  = 0.8
	DefaultStagePrior    = 0.7
	DefaultIndustryPrior = 0.7
)

// Uncertainty model defaults. Heuristic and tunable, not invariants;
// they live in configuration so deployments can re-fit them.
const (
	DefaultBaseUncertainty    = 0.10
	DefaultModelUncertainty   = 0.20
	DefaultDataUncertainty    = 0.15
	DefaultExtremityDiscount  = 0.10
	DefaultMinUncertainty     = 0.05
	DefaultMaxUncertainty     = 0.40
	DefaultFallbackSteepness  = 6.0
	DefaultMissingPillarScore = 0.5
)

// Explanation rule defaults
const (
	DefaultMinRunwayMonths          = 6.0
	DefaultMaxBurnMultiple          = 10.0
	DefaultMaxCustomerConcentration = 50.0
	DefaultGrowthRateBar            = 200.0
	DefaultLTVCACBar                = 3.0
	DefaultNDRBar                   = 120.0
	DefaultWeakPillarBar            = 0.4
	DefaultStrongPillarBar          = 0.7
	DefaultMaxFactors               = 3
)

// Common error messages
const (
	ErrMsgArtifactsDirRequired = "artifacts directory is required"
	ErrMsgProfileRequired      = "a default threshold profile is required"
)

// Validation constants
const (
	MinMetricsPort       = 1024
	MaxMetricsPort       = 65535
	MinSubModelTimeoutMs = 10
	MaxSubModelTimeoutMs = 60000
	MaxParallelLimit     = 256
)
