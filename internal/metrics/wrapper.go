package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// MetricsWrapper adapts Metrics to the interfaces consumed by the engine, the
// assessment service and the HTTP server.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Engine metrics

func (w *MetricsWrapper) PredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *MetricsWrapper) PredictionFailuresInc(kind string) {
	w.m.PredictionFailures.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *MetricsWrapper) RiskScoreObserve(score float64) {
	w.m.RiskScores.Observe(score)
}

func (w *MetricsWrapper) ModelLoadedSet(loaded bool) {
	if loaded {
		w.m.ModelLoaded.Set(1)
		return
	}
	w.m.ModelLoaded.Set(0)
}

func (w *MetricsWrapper) ModelAgeSet(seconds float64) {
	w.m.ModelAge.Set(seconds)
}

// Assessment metrics

func (w *MetricsWrapper) AssessmentsInc(decision string) {
	w.m.Assessments.WithLabelValues(decision).Inc()
}

func (w *MetricsWrapper) SignalRaisedInc(flag string) {
	w.m.SignalsRaised.WithLabelValues(flag).Inc()
}

func (w *MetricsWrapper) NotifyFailuresInc(sink string) {
	w.m.NotifyFailures.WithLabelValues(sink).Inc()
	w.m.ErrorsTotal.Inc()
}

// Serving metrics

func (w *MetricsWrapper) HTTPRequestInc(method, route string, code int) {
	w.m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (w *MetricsWrapper) WSClients() MetricsGauge {
	return &GaugeWrapper{w.m.WSClients}
}

func (w *MetricsWrapper) Errors() MetricsCounter {
	return &CounterWrapper{w.m.ErrorsTotal}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}
