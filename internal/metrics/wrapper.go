package metrics

// Wrapper adapts Metrics to the ensemble engine's MetricsInterface so
// the engine package does not import prometheus directly.
type Wrapper struct {
	m *Metrics
}

// NewWrapper builds the adapter.
func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc()         { w.m.PredictionsTotal.Inc() }
func (w *Wrapper) SubModelFailuresInc()    { w.m.SubModelFailures.Inc() }
func (w *Wrapper) SubModelTimeoutsInc()    { w.m.SubModelTimeouts.Inc() }
func (w *Wrapper) DegradedInc()            { w.m.DegradedResults.Inc() }
func (w *Wrapper) CalibrationFallbackInc() { w.m.CalibrationFallbacks.Inc() }
func (w *Wrapper) UncalibratedInc()        { w.m.UncalibratedResults.Inc() }

func (w *Wrapper) LatencyObserve(v float64)         { w.m.PredictionLatency.Observe(v) }
func (w *Wrapper) ScoreObserve(v float64)           { w.m.FinalProbabilities.Observe(v) }
func (w *Wrapper) ActiveSubModelsObserve(v float64) { w.m.ActiveSubModels.Observe(v) }
