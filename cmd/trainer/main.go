package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"securestay-risk/internal/common"
	"securestay-risk/internal/features"
	"securestay-risk/internal/logging"
	"securestay-risk/internal/ml"
	"securestay-risk/internal/synth"
)

type options struct {
	samples int
	seed    int64
	out     string
}

// smokeBookings are scored after training as a sanity check.
var smokeBookings = []struct {
	name string
	fv   features.FeatureVector
}{
	{"clean booking", features.FeatureVector{}},
	{"four flags", features.FeatureVector{CountryMismatch: 1, RapidAttempts: 1, OddHour: 1, HighValueBooking: 1}},
	{"mismatch at odd hour", features.FeatureVector{CountryMismatch: 1, OddHour: 1}},
}

func main() {
	var (
		samples  = flag.Int("samples", common.DefaultSamples, "Number of synthetic bookings to generate")
		seed     = flag.Int64("seed", common.DefaultSeed, "Random seed for synthesis and the train/test split")
		out      = flag.String("out", common.DefaultArtifactName, "Path of the model artifact to write")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
	logging.Setup(*logLevel, "console")

	if err := run(options{samples: *samples, seed: *seed, out: *out}, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

func run(opts options, w io.Writer) error {
	if opts.samples <= 0 {
		return fmt.Errorf("%w: samples must be positive, got %d", ml.ErrTraining, opts.samples)
	}

	log.Info().Int("samples", opts.samples).Int64("seed", opts.seed).Msg("generating synthetic bookings")
	ds := synth.Generate(opts.samples, opts.seed)
	balance := ds.Balance()
	log.Info().Int("fraud", balance.Fraud).Int("legit", balance.Legit).Msg("dataset ready")

	artifact, report, err := ml.Train(ds, common.DefaultTestFraction, opts.seed)
	if err != nil {
		return err
	}

	if err := artifact.Save(opts.out); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	md := &ml.ModelMetadata{
		Version:      artifact.Version,
		TrainedAt:    artifact.TrainedAt,
		Features:     artifact.Features,
		Seed:         opts.seed,
		Samples:      opts.samples,
		TestFraction: common.DefaultTestFraction,
		ClassBalance: balance,
		Evaluation:   report,
	}
	if err := ml.SaveMetadata(opts.out, md); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	log.Info().
		Str("version", artifact.Version).
		Float64("accuracy", report.Accuracy).
		Float64("precision", report.Precision).
		Float64("recall", report.Recall).
		Float64("f1", report.F1).
		Float64("auc", report.AUC).
		Float64("log_loss", report.LogLoss).
		Int("train_size", report.TrainSize).
		Int("test_size", report.TestSize).
		Str("model_path", opts.out).
		Msg("model saved")

	fmt.Fprintln(w, report.ClassificationReport())

	// Reload from disk so the smoke check covers the persisted artifact.
	engine := ml.NewEngine()
	if err := engine.Load(opts.out); err != nil {
		return fmt.Errorf("reload model: %w", err)
	}
	for _, b := range smokeBookings {
		p, err := engine.Predict(b.fv)
		if err != nil {
			return fmt.Errorf("smoke check %q: %w", b.name, err)
		}
		fmt.Fprintf(w, "%-22s %s  risk=%.4f\n", b.name, b.fv, p)
	}
	return nil
}
