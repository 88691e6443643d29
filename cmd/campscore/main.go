package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campscore/internal/artifacts"
	"campscore/internal/cfg"
	"campscore/internal/confidence"
	"campscore/internal/ensemble"
	"campscore/internal/explain"
	"campscore/internal/features"
	"campscore/internal/metrics"
	"campscore/internal/registry"
	"campscore/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// inputDoc is one scoring request read from a file or stdin.
type inputDoc struct {
	CompanyID string         `json:"company_id"`
	Profile   string         `json:"profile"`
	Features  map[string]any `json:"features"`
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg(".env loaded")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	snap, err := loadSnapshot(ctx, c)
	if err != nil {
		log.Fatal().Err(err).Msg("artifact load failed")
	}
	m.ArtifactAge.Set(time.Since(snap.LoadedAt).Seconds())

	engine, err := ensemble.New(engineConfig(c), snap, explainGenerator(c), mw)
	if err != nil {
		log.Fatal().Err(err).Msg("engine initialization failed")
	}

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	startMetricsServer(ctx, c, engine)
	startArtifactWatcher(ctx, c, engine, m)

	// Batch mode: score the documents in the given file and exit.
	// With no file argument the process runs as a long-lived engine
	// serving health and metrics while watching for artifact updates.
	if len(os.Args) > 1 {
		if err := scoreFile(ctx, os.Args[1], c, engine, store, m); err != nil {
			log.Fatal().Err(err).Msg("batch scoring failed")
		}
		return
	}

	waitForShutdown(ctx, cancel)
}

func engineConfig(c cfg.Settings) ensemble.Config {
	return ensemble.Config{
		SubModelTimeout: c.SubModelTimeout,
		MaxParallel:     c.MaxParallel,
		PriorWeights: map[registry.Domain]float64{
			registry.DomainBase:     c.Priors.Base,
			registry.DomainPillar:   c.Priors.Pillar,
			registry.DomainPattern:  c.Priors.Pattern,
			registry.DomainStage:    c.Priors.Stage,
			registry.DomainIndustry: c.Priors.Industry,
		},
		Uncertainty: confidence.Weights{
			Base:      c.Uncertainty.Base,
			Model:     c.Uncertainty.Model,
			Data:      c.Uncertainty.Data,
			Extremity: c.Uncertainty.Extremity,
			MinTotal:  c.Uncertainty.Min,
			MaxTotal:  c.Uncertainty.Max,
		},
		PenalizeMissingPillar: c.PenalizeMissingPillar,
	}
}

func explainGenerator(c cfg.Settings) *explain.Generator {
	return explain.NewGenerator(explain.Thresholds{
		MinRunwayMonths:          c.Rules.MinRunwayMonths,
		MaxBurnMultiple:          c.Rules.MaxBurnMultiple,
		MaxCustomerConcentration: c.Rules.MaxCustomerConcentration,
		GrowthRateBar:            c.Rules.GrowthRateBar,
		LTVCACBar:                c.Rules.LTVCACBar,
		NDRBar:                   c.Rules.NDRBar,
		WeakPillarBar:            c.Rules.WeakPillarBar,
		StrongPillarBar:          c.Rules.StrongPillarBar,
		MaxFactors:               c.Rules.MaxFactors,
	})
}

// loadSnapshot loads the local bundle, fetching it from the artifact
// registry first when a URL is configured and no local copy exists.
func loadSnapshot(ctx context.Context, c cfg.Settings) (*ensemble.Snapshot, error) {
	dir := c.ArtifactsDir
	if dir == "" {
		dir = "artifacts"
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) || bundleMissing(dir) {
		if c.ArtifactsURL == "" {
			return nil, fmt.Errorf("no artifact bundle in %s and no registry URL configured", dir)
		}
		fetcher := artifacts.NewFetcher(c.ArtifactsURL, c.FetchTimeout)
		version, err := fetcher.LatestVersion(ctx)
		if err != nil {
			return nil, err
		}
		if err := fetcher.Fetch(ctx, version, dir); err != nil {
			return nil, err
		}
	}

	bundle, err := artifacts.Load(dir)
	if err != nil {
		return nil, err
	}
	return bundle.Snapshot()
}

func bundleMissing(dir string) bool {
	_, err := os.Stat(fmt.Sprintf("%s/%s", dir, artifacts.ModelsFile))
	return os.IsNotExist(err)
}

func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("audit storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// startMetricsServer serves /metrics and the engine health endpoint.
func startMetricsServer(ctx context.Context, c cfg.Settings, engine *ensemble.Engine) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(engine.Health())
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startArtifactWatcher subscribes to registry update announcements and
// swaps in freshly fetched bundles atomically.
func startArtifactWatcher(ctx context.Context, c cfg.Settings, engine *ensemble.Engine, m *metrics.Metrics) {
	if c.ArtifactsWsURL == "" || c.ArtifactsURL == "" {
		return
	}

	dir := c.ArtifactsDir
	if dir == "" {
		dir = "artifacts"
	}
	fetcher := artifacts.NewFetcher(c.ArtifactsURL, c.FetchTimeout)

	watcher := artifacts.NewWatcher(c.ArtifactsWsURL, func(version string) {
		if err := fetcher.Fetch(ctx, version, dir); err != nil {
			log.Error().Err(err).Str("version", version).Msg("artifact fetch failed, keeping current snapshot")
			return
		}
		bundle, err := artifacts.Load(dir)
		if err != nil {
			log.Error().Err(err).Str("version", version).Msg("artifact load failed, keeping current snapshot")
			return
		}
		snap, err := bundle.Snapshot()
		if err != nil {
			log.Error().Err(err).Str("version", version).Msg("artifact validation failed, keeping current snapshot")
			return
		}
		engine.Swap(snap)
		m.ArtifactReloads.Inc()
		m.ArtifactAge.Set(0)
	})

	go func() {
		if err := watcher.Watch(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("artifact watcher stopped")
		}
	}()
}

// scoreFile reads one document or an array of documents and writes one
// result JSON per line to stdout.
func scoreFile(ctx context.Context, path string, c cfg.Settings, engine *ensemble.Engine, store *storage.Store, m *metrics.Metrics) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var docs []inputDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		var single inputDoc
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("parse input: %w", err)
		}
		docs = []inputDoc{single}
	}

	enc := json.NewEncoder(os.Stdout)
	for _, doc := range docs {
		profile := doc.Profile
		if profile == "" {
			profile = c.DefaultProfile
		}

		req := features.NewRequest("", doc.Features)
		result, err := engine.Predict(ctx, req, profile)
		if err != nil {
			m.ErrorsTotal.Inc()
			log.Error().Err(err).Str("company_id", doc.CompanyID).Msg("prediction rejected")
			continue
		}

		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}

		if store != nil {
			rec := storage.PredictionRecord{
				ID:        result.RequestID,
				CompanyID: doc.CompanyID,
				Profile:   profile,
				Result:    *result,
				Ts:        time.Now(),
			}
			if err := store.StorePrediction(rec); err != nil {
				log.Warn().Err(err).Msg("audit record write failed")
			}
		}
	}
	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	cancel()
	log.Info().Msg("shutting down gracefully...")
}
