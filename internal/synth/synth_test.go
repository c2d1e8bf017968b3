package synth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraudProbability_Breakpoints(t *testing.T) {
	expected := map[int]float64{
		0: 0.001,
		1: 0.05,
		2: 0.30,
		3: 0.80,
		4: 0.95,
		5: 0.95,
		6: 0.95,
	}
	for count, p := range expected {
		assert.Equal(t, p, FraudProbability(count), "flag count %d", count)
	}
}

func TestFraudProbability_Monotonic(t *testing.T) {
	for count := 1; count <= 6; count++ {
		assert.GreaterOrEqual(t, FraudProbability(count), FraudProbability(count-1), "flag count %d", count)
	}
}

func TestFlagProbabilities(t *testing.T) {
	assert.Equal(t, [6]float64{0.20, 0.10, 0.15, 0.20, 0.05, 0.02}, FlagProbabilities())
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(1000, 42)
	b := Generate(1000, 42)
	require.Equal(t, 1000, a.Len())
	assert.Equal(t, a, b)

	c := Generate(1000, 7)
	assert.NotEqual(t, a, c)
}

func TestGenerate_Prefix(t *testing.T) {
	short := Generate(10, 42)
	long := Generate(100, 42)
	assert.Equal(t, short.Samples, long.Samples[:10])
}

func TestGenerate_ValidAndNearMarginals(t *testing.T) {
	const n = 20000
	ds := Generate(n, 1)
	require.NoError(t, ds.Validate())

	var raised [6]int
	for _, s := range ds.Samples {
		for i, v := range s.Features.Values() {
			raised[i] += v
		}
	}
	for i, p := range FlagProbabilities() {
		got := float64(raised[i]) / n
		assert.InDelta(t, p, got, 0.02, "flag %d", i)
	}

	assert.Equal(t, 2, ds.Classes())
}

func TestGenerate_LabelRateFollowsFlagCount(t *testing.T) {
	ds := Generate(20000, 3)

	var total, fraud [7]int
	for _, s := range ds.Samples {
		c := s.Features.Count()
		total[c]++
		fraud[c] += s.Fraud
	}
	for c := 0; c <= 2; c++ {
		require.Greater(t, total[c], 500)
		rate := float64(fraud[c]) / float64(total[c])
		assert.InDelta(t, FraudProbability(c), rate, 4*math.Sqrt(FraudProbability(c)*(1-FraudProbability(c))/float64(total[c]))+0.005, "count %d", c)
	}
}

func TestGenerate_Empty(t *testing.T) {
	assert.Equal(t, 0, Generate(0, 42).Len())
	assert.Equal(t, 0, Generate(-5, 42).Len())
}
