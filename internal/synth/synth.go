// Package synth generates labeled booking risk data for training.
//
// Flags are drawn independently from fixed marginal probabilities. The fraud
// label is drawn from a step function of the number of raised flags, so two
// flags is deliberately ambiguous while three or more is a strong signal.
package synth

import (
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"securestay-risk/internal/features"
	"securestay-risk/internal/ml"
)

const generateStream = 0x73796e7468 // "synth"

var flagProbabilities = [features.Count]float64{
	0.20, // country_mismatch
	0.10, // rapid_attempts
	0.15, // odd_hour
	0.20, // high_value_booking
	0.05, // device_change
	0.02, // ip_risk
}

// FlagProbabilities returns the Bernoulli probability of each flag in canonical
// order.
func FlagProbabilities() [features.Count]float64 {
	return flagProbabilities
}

// FraudProbability maps a flag count to the probability of a fraud label.
func FraudProbability(flagCount int) float64 {
	switch {
	case flagCount <= 0:
		return 0.001
	case flagCount == 1:
		return 0.05
	case flagCount == 2:
		return 0.30
	case flagCount == 3:
		return 0.80
	default:
		return 0.95
	}
}

// Generate returns n samples drawn from a PCG source seeded with seed. For each
// sample the six flags are drawn in canonical order, then the label. The same
// seed and n always produce the same dataset.
func Generate(n int, seed int64) ml.Dataset {
	if n <= 0 {
		return ml.Dataset{}
	}
	rng := rand.New(rand.NewPCG(uint64(seed), generateStream))

	samples := make([]ml.LabeledSample, n)
	for i := range samples {
		var v [features.Count]int
		count := 0
		for j, p := range flagProbabilities {
			if rng.Float64() < p {
				v[j] = 1
				count++
			}
		}
		fraud := 0
		if rng.Float64() < FraudProbability(count) {
			fraud = 1
		}
		samples[i] = ml.LabeledSample{Features: features.FromValues(v), Fraud: fraud}
	}

	ds := ml.Dataset{Samples: samples}
	b := ds.Balance()
	log.Debug().
		Int("samples", n).
		Int64("seed", seed).
		Int("fraud", b.Fraud).
		Int("legit", b.Legit).
		Msg("synthetic dataset generated")
	return ds
}
