package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"securestay-risk/internal/features"
)

// ArtifactVersionPrefix tags artifacts produced by this trainer.
const ArtifactVersionPrefix = "v2-"

// decisionThreshold is only used to score the held-out split.
const decisionThreshold = 0.5

const splitStream = 0x73706c6974 // "split"

// TrainerConfig controls the logistic regression fit.
type TrainerConfig struct {
	// C is the inverse L2 regularisation strength. The intercept is not penalised.
	C         float64
	MaxIter   int
	Tolerance float64
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		C:         1.0,
		MaxIter:   100,
		Tolerance: 1e-8,
	}
}

// Trainer fits L2-regularised logistic regression with Newton steps and a
// backtracking line search.
type Trainer struct {
	cfg TrainerConfig
	now func() time.Time
}

func NewTrainer(cfg TrainerConfig) *Trainer {
	def := DefaultTrainerConfig()
	if cfg.C <= 0 {
		cfg.C = def.C
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	return &Trainer{cfg: cfg, now: time.Now}
}

// Train splits, fits and evaluates with the default configuration.
func Train(ds Dataset, testFraction float64, seed int64) (*Artifact, *EvaluationReport, error) {
	return NewTrainer(DefaultTrainerConfig()).Train(ds, testFraction, seed)
}

// Train shuffles ds with seed, holds out round(n*testFraction) samples, fits on
// the rest and evaluates on the held-out part. Nothing is persisted.
func (t *Trainer) Train(ds Dataset, testFraction float64, seed int64) (*Artifact, *EvaluationReport, error) {
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: dataset is empty", ErrTraining)
	}
	if err := ds.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	if ds.Classes() < 2 {
		b := ds.Balance()
		return nil, nil, fmt.Errorf("%w: dataset has a single label class (fraud=%d legit=%d)", ErrTraining, b.Fraud, b.Legit)
	}

	train, test, err := Split(ds, testFraction, seed)
	if err != nil {
		return nil, nil, err
	}
	if train.Classes() < 2 {
		return nil, nil, fmt.Errorf("%w: train partition has a single label class", ErrTraining)
	}

	fit, err := t.fit(train)
	if err != nil {
		return nil, nil, err
	}

	trainedAt := t.now().UTC()
	artifact := &Artifact{
		Version:         ArtifactVersionPrefix + trainedAt.Format("20060102-150405"),
		Features:        features.Names(),
		Weights:         fit.weights[:],
		Bias:            fit.bias,
		TrainedAt:       trainedAt,
		TrainingSamples: train.Len(),
	}

	probs := make([]float64, test.Len())
	labels := make([]int, test.Len())
	for i, s := range test.Samples {
		probs[i] = sigmoid(fit.linear(s.Features.Values()))
		labels[i] = s.Fraud
	}
	report := Evaluate(labels, probs, decisionThreshold)
	report.TrainSize = train.Len()
	report.TestSize = test.Len()
	report.Iterations = fit.iterations
	report.Converged = fit.converged

	log.Info().
		Str("version", artifact.Version).
		Int("train_size", report.TrainSize).
		Int("test_size", report.TestSize).
		Int("iterations", fit.iterations).
		Bool("converged", fit.converged).
		Float64("accuracy", report.Accuracy).
		Float64("f1", report.F1).
		Msg("model trained")

	if !fit.converged {
		log.Warn().Int("max_iter", t.cfg.MaxIter).Msg("logistic regression did not converge")
	}

	return artifact, report, nil
}

// Split shuffles sample indices with a seeded Fisher-Yates shuffle and returns the
// train and test partitions. The test partition holds exactly round(n*testFraction)
// samples.
func Split(ds Dataset, testFraction float64, seed int64) (train, test Dataset, err error) {
	if !(testFraction > 0 && testFraction < 1) {
		return Dataset{}, Dataset{}, fmt.Errorf("%w: test fraction %v outside (0,1)", ErrTraining, testFraction)
	}
	n := ds.Len()
	nTest := int(math.Round(float64(n) * testFraction))
	if nTest == 0 || nTest == n {
		return Dataset{}, Dataset{}, fmt.Errorf("%w: split of %d samples at %v leaves an empty partition", ErrTraining, n, testFraction)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewPCG(uint64(seed), splitStream))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	return ds.subset(idx[nTest:]), ds.subset(idx[:nTest]), nil
}

type fitResult struct {
	weights    [features.Count]float64
	bias       float64
	iterations int
	converged  bool
}

func (f fitResult) linear(x [features.Count]int) float64 {
	z := f.bias
	for i, v := range x {
		z += f.weights[i] * float64(v)
	}
	return z
}

const nParams = features.Count + 1

// fit minimises 0.5*|w|^2 + C*sum(logloss) over the weights and intercept.
func (t *Trainer) fit(ds Dataset) (fitResult, error) {
	xs := make([][nParams]float64, ds.Len())
	ys := make([]float64, ds.Len())
	for i, s := range ds.Samples {
		v := s.Features.Values()
		for j := range v {
			xs[i][j] = float64(v[j])
		}
		xs[i][features.Count] = 1
		ys[i] = float64(s.Fraud)
	}

	var theta [nParams]float64
	obj := t.objective(xs, ys, theta)

	var res fitResult
	for iter := 1; iter <= t.cfg.MaxIter; iter++ {
		res.iterations = iter

		grad, hess := t.derivatives(xs, ys, theta)
		var neg [nParams]float64
		for i := range grad {
			neg[i] = -grad[i]
		}
		step, err := solve(hess, neg)
		if err != nil {
			return fitResult{}, fmt.Errorf("%w: newton system at iteration %d: %w", ErrTraining, iter, err)
		}

		var slope float64
		for i := range step {
			slope += grad[i] * step[i]
		}

		// Armijo backtracking.
		alpha := 1.0
		var next [nParams]float64
		var nextObj float64
		for {
			for i := range theta {
				next[i] = theta[i] + alpha*step[i]
			}
			nextObj = t.objective(xs, ys, next)
			if nextObj <= obj+1e-4*alpha*slope || alpha < 1e-10 {
				break
			}
			alpha /= 2
		}

		var maxStep float64
		for i := range step {
			maxStep = math.Max(maxStep, math.Abs(alpha*step[i]))
		}
		theta, obj = next, nextObj

		if maxStep < t.cfg.Tolerance {
			res.converged = true
			break
		}
	}

	copy(res.weights[:], theta[:features.Count])
	res.bias = theta[features.Count]
	return res, nil
}

func (t *Trainer) objective(xs [][nParams]float64, ys []float64, theta [nParams]float64) float64 {
	var reg float64
	for i := 0; i < features.Count; i++ {
		reg += theta[i] * theta[i]
	}
	var loss float64
	for i, x := range xs {
		z := dot(x, theta)
		loss += softplus(z) - ys[i]*z
	}
	return 0.5*reg + t.cfg.C*loss
}

func (t *Trainer) derivatives(xs [][nParams]float64, ys []float64, theta [nParams]float64) ([nParams]float64, [nParams][nParams]float64) {
	var grad [nParams]float64
	var hess [nParams][nParams]float64

	for i, x := range xs {
		p := sigmoid(dot(x, theta))
		r := p - ys[i]
		w := p * (1 - p)
		for a := 0; a < nParams; a++ {
			grad[a] += t.cfg.C * r * x[a]
			for b := 0; b <= a; b++ {
				hess[a][b] += t.cfg.C * w * x[a] * x[b]
			}
		}
	}
	for a := 0; a < nParams; a++ {
		for b := 0; b < a; b++ {
			hess[b][a] = hess[a][b]
		}
	}
	for i := 0; i < features.Count; i++ {
		grad[i] += theta[i]
		hess[i][i]++
	}
	return grad, hess
}

func dot(x, theta [nParams]float64) float64 {
	var z float64
	for i := range x {
		z += x[i] * theta[i]
	}
	return z
}

// sigmoid is evaluated on the side that cannot overflow.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus returns log(1+exp(z)).
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
