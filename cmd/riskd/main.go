package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/cfg"
	"securestay-risk/internal/events"
	"securestay-risk/internal/features"
	"securestay-risk/internal/geo"
	"securestay-risk/internal/logging"
	"securestay-risk/internal/metrics"
	"securestay-risk/internal/ml"
	"securestay-risk/internal/server"
	"securestay-risk/internal/storage"
)

// tracker combines the two history interfaces the extractor needs.
type tracker interface {
	features.AttemptTracker
	features.DeviceHistory
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logging.Setup(c.LogLevel, c.LogFormat)

	if err := run(context.Background(), c, metrics.New(), prometheus.DefaultGatherer); err != nil {
		log.Error().Err(err).Msg("riskd failed")
		os.Exit(1)
	}
}

// run serves until ctx is done or a signal arrives. It owns every resource it
// opens and closes them before returning.
func run(ctx context.Context, c cfg.Settings, m *metrics.Metrics, gatherer prometheus.Gatherer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mw := metrics.NewWrapper(m)
	errs := mw.Errors()

	engine := ml.NewEngine(ml.WithMetrics(mw))
	if err := engine.Load(c.ModelPath); err != nil {
		errs.Inc()
		log.Error().Err(err).Str("kind", string(ml.KindOf(err))).Msg("serving without a model, run the trainer first")
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("close failed")
			}
		}
	}()

	hub := server.NewHub(mw.WSClients())
	hub.Start()
	closers = append(closers, func() error { hub.Stop(); return nil })

	var (
		assessor server.Assessor
		store    server.AssessmentStore
	)
	if st := initializeStorage(c, errs); st != nil {
		closers = append(closers, st.Close)
		store = st

		svc, err := initializeAssessment(ctx, c, engine, st, hub, mw, &closers)
		if err != nil {
			return fmt.Errorf("assessment setup: %w", err)
		}
		assessor = svc
	}

	srv := server.New(server.Config{
		Addr:            c.Addr(),
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		ShutdownTimeout: 10 * time.Second,
	}, engine, assessor, store,
		server.WithHub(hub),
		server.WithMetrics(mw),
		server.WithGatherer(gatherer),
		server.WithNotFound(func(err error) bool { return errors.Is(err, storage.ErrNotFound) }),
	)

	var (
		wg       sync.WaitGroup
		serveErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if serveErr = srv.Start(); serveErr != nil {
			errs.Inc()
			log.Error().Err(serveErr).Msg("http server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel)

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	wg.Wait()
	log.Info().Msg("riskd stopped")
	return serveErr
}

// initializeStorage opens the assessment store. Without it the service still
// answers /predict but assessments are disabled.
func initializeStorage(c cfg.Settings, errs metrics.MetricsCounter) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		errs.Inc()
		log.Warn().Err(err).Msg("storage initialization failed, assessments disabled")
		return nil
	}
	return store
}

func initializeAssessment(ctx context.Context, c cfg.Settings, engine *ml.Engine, store *storage.Store,
	hub *server.Hub, mw *metrics.MetricsWrapper, closers *[]func() error) (*assess.Service, error) {
	ec, err := c.ExtractorConfig()
	if err != nil {
		return nil, err
	}

	hist := initializeTracker(ctx, c, closers)

	var opts []features.ExtractorOption
	if c.GeoIP.Path != "" {
		resolver, err := geo.Open(c.GeoIP.Path, c.GeoIP.HighRiskCountries)
		if err != nil {
			log.Warn().Err(err).Msg("geoip disabled")
		} else {
			*closers = append(*closers, resolver.Close)
			opts = append(opts, features.WithGeoResolver(resolver))
		}
	}
	extractor := features.NewExtractor(ec, hist, hist, opts...)

	notifiers := []assess.Notifier{hub}
	if len(c.Kafka.Brokers) > 0 {
		pub, err := events.NewPublisher(events.Config{Brokers: c.Kafka.Brokers, Topic: c.Kafka.Topic})
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		*closers = append(*closers, pub.Close)
		notifiers = append(notifiers, pub)
		log.Info().Strs("brokers", c.Kafka.Brokers).Str("topic", c.Kafka.Topic).Msg("publishing assessments to kafka")
	}

	policy := c.Policy()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return assess.NewService(policy, extractor, engine, store,
		assess.WithNotifiers(notifiers...),
		assess.WithMetrics(mw),
	), nil
}

// initializeTracker prefers redis so attempt history is shared across
// replicas, and falls back to process memory.
func initializeTracker(ctx context.Context, c cfg.Settings, closers *[]func() error) tracker {
	if c.Redis.Addr == "" {
		log.Info().Msg("attempt history kept in memory")
		return features.NewMemoryTracker()
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := storage.DialRedis(dialCtx, c.Redis.Addr, c.Redis.Password, c.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Str("addr", c.Redis.Addr).Msg("redis unavailable, attempt history kept in memory")
		return features.NewMemoryTracker()
	}
	*closers = append(*closers, client.Close)
	log.Info().Str("addr", c.Redis.Addr).Msg("attempt history kept in redis")
	return storage.NewRedisTracker(client, 0)
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
