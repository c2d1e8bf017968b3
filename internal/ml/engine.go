// Package ml trains, persists and serves the booking fraud classifier.
//
// Training produces an Artifact (logistic regression weights over the six risk
// flags plus an intercept). Serving processes load an artifact once into an
// Engine and share it read-only across requests.
package ml

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"securestay-risk/internal/features"
)

// MetricsInterface defines the metrics the engine reports.
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc(kind string)
	PredictionLatencyObserve(seconds float64)
	RiskScoreObserve(score float64)
	ModelLoadedSet(loaded bool)
	ModelAgeSet(seconds float64)
}

// loadedModel is published once and never modified.
type loadedModel struct {
	artifact *Artifact
	// canonical[i] is the FeatureVector position of artifact feature i.
	canonical [features.Count]int
	metadata  *ModelMetadata
	path      string
	loadedAt  time.Time
}

// Status reports engine readiness.
type Status struct {
	Loaded     bool           `json:"model_loaded"`
	Version    string         `json:"model_version,omitempty"`
	Features   []string       `json:"features,omitempty"`
	ModelPath  string         `json:"model_path,omitempty"`
	LoadedAt   *time.Time     `json:"loaded_at,omitempty"`
	TrainedAt  *time.Time     `json:"trained_at,omitempty"`
	AgeSeconds float64        `json:"model_age_seconds,omitempty"`
	Metadata   *ModelMetadata `json:"metadata,omitempty"`
}

// Engine answers risk queries against one loaded artifact. Construct one per
// process and share it; Predict is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex // serialises loads
	model   atomic.Pointer[loadedModel]
	metrics MetricsInterface
	now     func() time.Time
}

type EngineOption func(*Engine)

func WithMetrics(m MetricsInterface) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		e.metrics.ModelLoadedSet(false)
	}
	return e
}

// Load reads the artifact at path and publishes it. Once a model is published
// further calls are no-ops; a failed load leaves the engine unloaded.
func (e *Engine) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cur := e.model.Load(); cur != nil {
		log.Debug().Str("model_path", path).Str("version", cur.artifact.Version).Msg("model already loaded")
		return nil
	}

	artifact, err := LoadArtifact(path)
	if err != nil {
		log.Error().Err(err).Str("model_path", path).Msg("failed to load model")
		return err
	}

	md, err := LoadMetadata(path)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("model_path", path).Msg("model metadata not available")
		md = nil
	case md.Version != artifact.Version:
		log.Warn().
			Str("model_path", path).
			Str("version", artifact.Version).
			Str("metadata_version", md.Version).
			Msg("ignoring metadata written for another model")
		md = nil
	}

	return e.publish(artifact, md, path)
}

// Use publishes an in-memory artifact, for example one just trained. The engine
// keeps its own copy.
func (e *Engine) Use(a *Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrArtifactCorrupt)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model.Load() != nil {
		return nil
	}
	c := a.Clone()
	if err := c.Validate(); err != nil {
		return corrupt(err)
	}
	return e.publish(c, nil, "")
}

func (e *Engine) publish(a *Artifact, md *ModelMetadata, path string) error {
	m := &loadedModel{
		artifact: a,
		metadata: md,
		path:     path,
		loadedAt: e.now(),
	}
	for i, name := range a.Features {
		j, ok := features.Index(name)
		if !ok {
			return corrupt(fmt.Errorf("unknown feature %q", name))
		}
		m.canonical[i] = j
	}

	e.model.Store(m)

	if e.metrics != nil {
		e.metrics.ModelLoadedSet(true)
		if !a.TrainedAt.IsZero() {
			e.metrics.ModelAgeSet(m.loadedAt.Sub(a.TrainedAt).Seconds())
		}
	}

	log.Info().
		Str("model_path", path).
		Str("version", a.Version).
		Strs("features", a.Features).
		Time("trained_at", a.TrainedAt).
		Msg("model loaded")
	return nil
}

// Loaded reports whether a model has been published.
func (e *Engine) Loaded() bool {
	return e.model.Load() != nil
}

func (e *Engine) Status() Status {
	m := e.model.Load()
	if m == nil {
		return Status{}
	}
	loadedAt := m.loadedAt
	s := Status{
		Loaded:    true,
		Version:   m.artifact.Version,
		Features:  append([]string(nil), m.artifact.Features...),
		ModelPath: m.path,
		LoadedAt:  &loadedAt,
		Metadata:  m.metadata,
	}
	if trainedAt := m.artifact.TrainedAt; !trainedAt.IsZero() {
		s.TrainedAt = &trainedAt
		s.AgeSeconds = e.now().Sub(trainedAt).Seconds()
		if e.metrics != nil {
			e.metrics.ModelAgeSet(s.AgeSeconds)
		}
	}
	return s
}

// Predict returns the fraud probability for fv. It fails with ErrModelNotLoaded
// before a model is published and with ErrInvalidFeature when a flag is not 0 or
// 1. A probability is never returned together with an error.
func (e *Engine) Predict(fv features.FeatureVector) (float64, error) {
	start := time.Now()

	m := e.model.Load()
	if m == nil {
		e.recordFailure(KindModelNotLoaded)
		return 0, ErrModelNotLoaded
	}
	if err := fv.Validate(); err != nil {
		e.recordFailure(KindInvalidFeature)
		return 0, err
	}

	x := fv.Values()
	z := m.artifact.Bias
	for i, w := range m.artifact.Weights {
		z += w * float64(x[m.canonical[i]])
	}
	p := sigmoid(z)

	if e.metrics != nil {
		e.metrics.PredictionsInc()
		e.metrics.RiskScoreObserve(p)
		e.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	return p, nil
}

func (e *Engine) recordFailure(kind FailureKind) {
	if e.metrics != nil {
		e.metrics.PredictionFailuresInc(string(kind))
	}
}
