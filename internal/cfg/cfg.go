package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"campscore/internal/common"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved engine configuration. Heuristic constants
// (prior weights, uncertainty model, explanation rule cut points) are
// deliberately configuration, not code constants.
type Settings struct {
	ArtifactsDir          string
	ArtifactsURL          string
	ArtifactsWsURL        string
	DataPath              string
	MetricsPort           int
	DefaultProfile        string
	SubModelTimeout       time.Duration
	MaxParallel           int
	FetchTimeout          time.Duration
	PenalizeMissingPillar bool
	Priors                PriorWeights
	Uncertainty           UncertaintySettings
	Rules                 RuleSettings
}

// PriorWeights are the per-domain sub-model prior weights.
type PriorWeights struct {
	Base     float64 `yaml:"base"`
	Pillar   float64 `yaml:"pillar"`
	Pattern  float64 `yaml:"pattern"`
	Stage    float64 `yaml:"stage"`
	Industry float64 `yaml:"industry"`
}

// UncertaintySettings parameterize the confidence estimator.
type UncertaintySettings struct {
	Base      float64 `yaml:"base"`
	Model     float64 `yaml:"model"`
	Data      float64 `yaml:"data"`
	Extremity float64 `yaml:"extremity"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

// RuleSettings parameterize the explanation generator.
type RuleSettings struct {
	MinRunwayMonths          float64 `yaml:"minRunwayMonths"`
	MaxBurnMultiple          float64 `yaml:"maxBurnMultiple"`
	MaxCustomerConcentration float64 `yaml:"maxCustomerConcentration"`
	GrowthRateBar            float64 `yaml:"growthRateBar"`
	LTVCACBar                float64 `yaml:"ltvCacBar"`
	NDRBar                   float64 `yaml:"ndrBar"`
	WeakPillarBar            float64 `yaml:"weakPillarBar"`
	StrongPillarBar          float64 `yaml:"strongPillarBar"`
	MaxFactors               int     `yaml:"maxFactors"`
}

// ConfigFile is the YAML layout.
type ConfigFile struct {
	Artifacts struct {
		Dir          string `yaml:"dir"`
		URL          string `yaml:"url"`
		WsURL        string `yaml:"wsURL"`
		FetchTimeout string `yaml:"fetchTimeout"`
	} `yaml:"artifacts"`

	Engine struct {
		DefaultProfile        string       `yaml:"defaultProfile"`
		SubModelTimeout       string       `yaml:"subModelTimeout"`
		MaxParallel           int          `yaml:"maxParallel"`
		PenalizeMissingPillar *bool        `yaml:"penalizeMissingPillar"`
		Priors                PriorWeights `yaml:"priors"`
	} `yaml:"engine"`

	Uncertainty UncertaintySettings `yaml:"uncertainty"`
	Rules       RuleSettings        `yaml:"rules"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load resolves configuration: from the YAML file named by CONFIG_FILE
// when set, from environment variables otherwise. Environment values
// override file values either way.
func Load() (Settings, error) {
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	subModelTimeout, err := time.ParseDuration(config.Engine.SubModelTimeout)
	if err != nil {
		subModelTimeout = mustDuration(common.DefaultSubModelTimeout)
	}

	fetchTimeout, err := time.ParseDuration(config.Artifacts.FetchTimeout)
	if err != nil {
		fetchTimeout = mustDuration(common.DefaultFetchTimeout)
	}

	penalize := true
	if config.Engine.PenalizeMissingPillar != nil {
		penalize = *config.Engine.PenalizeMissingPillar
	}

	settings := Settings{
		ArtifactsDir:          getEnvOrDefault(common.EnvArtifactsDir, config.Artifacts.Dir),
		ArtifactsURL:          getEnvOrDefault(common.EnvArtifactsURL, config.Artifacts.URL),
		ArtifactsWsURL:        getEnvOrDefault(common.EnvArtifactsWsURL, config.Artifacts.WsURL),
		DataPath:              getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		MetricsPort:           getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		DefaultProfile:        getEnvOrDefault(common.EnvDefaultProfile, defaultString(config.Engine.DefaultProfile, common.DefaultProfile)),
		SubModelTimeout:       getDurationOrDefault(common.EnvSubModelTimeout, subModelTimeout),
		MaxParallel:           getIntFromEnvOrConfig(common.EnvMaxParallel, config.Engine.MaxParallel, common.DefaultMaxParallel),
		FetchTimeout:          getDurationOrDefault(common.EnvFetchTimeout, fetchTimeout),
		PenalizeMissingPillar: getBoolOrDefault(common.EnvPenalizeMissingPillar, penalize),
		Priors:                defaultPriors(config.Engine.Priors),
		Uncertainty:           defaultUncertainty(config.Uncertainty),
		Rules:                 defaultRules(config.Rules),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ArtifactsDir:          os.Getenv(common.EnvArtifactsDir),
		ArtifactsURL:          os.Getenv(common.EnvArtifactsURL),
		ArtifactsWsURL:        os.Getenv(common.EnvArtifactsWsURL),
		DataPath:              os.Getenv(common.EnvDataPath), // optional
		MetricsPort:           getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		DefaultProfile:        getEnvOrDefault(common.EnvDefaultProfile, common.DefaultProfile),
		SubModelTimeout:       getDurationOrDefault(common.EnvSubModelTimeout, mustDuration(common.DefaultSubModelTimeout)),
		MaxParallel:           getIntOrDefault(common.EnvMaxParallel, common.DefaultMaxParallel),
		FetchTimeout:          getDurationOrDefault(common.EnvFetchTimeout, mustDuration(common.DefaultFetchTimeout)),
		PenalizeMissingPillar: getBoolOrDefault(common.EnvPenalizeMissingPillar, true),
		Priors:                defaultPriors(PriorWeights{}),
		Uncertainty:           defaultUncertainty(UncertaintySettings{}),
		Rules:                 defaultRules(RuleSettings{}),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func defaultPriors(p PriorWeights) PriorWeights {
	if p.Base <= 0 {
		p.Base = common.DefaultBasePrior
	}
	if p.Pillar <= 0 {
		p.Pillar = common.DefaultPillarPrior
	}
	if p.Pattern <= 0 {
		p.Pattern = common.DefaultPatternPrior
	}
	if p.Stage <= 0 {
		p.Stage = common.DefaultStagePrior
	}
	if p.Industry <= 0 {
		p.Industry = common.DefaultIndustryPrior
	}
	return p
}

func defaultUncertainty(u UncertaintySettings) UncertaintySettings {
	if u.Base <= 0 {
		u.Base = common.DefaultBaseUncertainty
	}
	if u.Model <= 0 {
		u.Model = common.DefaultModelUncertainty
	}
	if u.Data <= 0 {
		u.Data = common.DefaultDataUncertainty
	}
	if u.Extremity <= 0 {
		u.Extremity = common.DefaultExtremityDiscount
	}
	if u.Min <= 0 {
		u.Min = common.DefaultMinUncertainty
	}
	if u.Max <= 0 {
		u.Max = common.DefaultMaxUncertainty
	}
	return u
}

func defaultRules(r RuleSettings) RuleSettings {
	if r.MinRunwayMonths <= 0 {
		r.MinRunwayMonths = common.DefaultMinRunwayMonths
	}
	if r.MaxBurnMultiple <= 0 {
		r.MaxBurnMultiple = common.DefaultMaxBurnMultiple
	}
	if r.MaxCustomerConcentration <= 0 {
		r.MaxCustomerConcentration = common.DefaultMaxCustomerConcentration
	}
	if r.GrowthRateBar <= 0 {
		r.GrowthRateBar = common.DefaultGrowthRateBar
	}
	if r.LTVCACBar <= 0 {
		r.LTVCACBar = common.DefaultLTVCACBar
	}
	if r.NDRBar <= 0 {
		r.NDRBar = common.DefaultNDRBar
	}
	if r.WeakPillarBar <= 0 {
		r.WeakPillarBar = common.DefaultWeakPillarBar
	}
	if r.StrongPillarBar <= 0 {
		r.StrongPillarBar = common.DefaultStrongPillarBar
	}
	if r.MaxFactors <= 0 {
		r.MaxFactors = common.DefaultMaxFactors
	}
	return r
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid default duration %q: %v", s, err))
	}
	return d
}

// validateSettings performs comprehensive validation of configuration
// values before the engine starts.
func validateSettings(settings *Settings) error {
	if settings.ArtifactsDir == "" && settings.ArtifactsURL == "" {
		return fmt.Errorf("%s", common.ErrMsgArtifactsDirRequired)
	}
	if settings.DefaultProfile == "" {
		return fmt.Errorf("%s", common.ErrMsgProfileRequired)
	}

	if settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}

	timeoutMs := settings.SubModelTimeout.Milliseconds()
	if timeoutMs < common.MinSubModelTimeoutMs || timeoutMs > common.MaxSubModelTimeoutMs {
		return fmt.Errorf("sub-model timeout must be between %dms and %dms, got %v",
			common.MinSubModelTimeoutMs, common.MaxSubModelTimeoutMs, settings.SubModelTimeout)
	}

	if settings.MaxParallel <= 0 || settings.MaxParallel > common.MaxParallelLimit {
		return fmt.Errorf("max parallel must be between 1 and %d, got %d",
			common.MaxParallelLimit, settings.MaxParallel)
	}

	u := settings.Uncertainty
	if u.Min <= 0 || u.Max > 1 || u.Min >= u.Max {
		return fmt.Errorf("uncertainty bounds must satisfy 0 < min < max <= 1, got [%f, %f]", u.Min, u.Max)
	}
	for name, v := range map[string]float64{
		"base": u.Base, "model": u.Model, "data": u.Data, "extremity": u.Extremity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("uncertainty %s weight must be within [0,1], got %f", name, v)
		}
	}

	if settings.Rules.MaxFactors <= 0 || settings.Rules.MaxFactors > 10 {
		return fmt.Errorf("rules maxFactors must be between 1 and 10, got %d", settings.Rules.MaxFactors)
	}
	if settings.Rules.WeakPillarBar >= settings.Rules.StrongPillarBar {
		return fmt.Errorf("weak pillar bar %f must be below strong pillar bar %f",
			settings.Rules.WeakPillarBar, settings.Rules.StrongPillarBar)
	}

	return nil
}
