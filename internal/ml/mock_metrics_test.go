package ml

import "sync"

// MockMetrics records engine metric calls.
type MockMetrics struct {
	mu          sync.Mutex
	predictions int
	failures    map[string]int
	latencies   []float64
	scores      []float64
	loaded      bool
	age         float64
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{failures: make(map[string]int)}
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) PredictionFailuresInc(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, v)
}

func (m *MockMetrics) RiskScoreObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, v)
}

func (m *MockMetrics) ModelLoadedSet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = v
}

func (m *MockMetrics) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.age = v
}

func (m *MockMetrics) Predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions
}

func (m *MockMetrics) Failures(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[kind]
}

func (m *MockMetrics) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockMetrics) Age() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.age
}
