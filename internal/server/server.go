// Package server exposes the risk engine and the booking assessment flow over
// HTTP using echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/features"
	"securestay-risk/internal/ml"
)

// DetailModelNotLoaded is the error detail returned while no model is loaded.
const DetailModelNotLoaded = "Model is not loaded. Check server logs."

const serviceMessage = "Fraud Detection API is running"

// Engine is satisfied by *ml.Engine.
type Engine interface {
	Predict(fv features.FeatureVector) (float64, error)
	Status() ml.Status
}

// Assessor is satisfied by *assess.Service.
type Assessor interface {
	Assess(ctx context.Context, b features.Booking) (*assess.Assessment, error)
}

// AssessmentStore is satisfied by *storage.Store.
type AssessmentStore interface {
	GetAssessment(id uuid.UUID) (*assess.Assessment, error)
	Recent(limit int) ([]assess.Assessment, error)
	Between(start, end time.Time) ([]assess.Assessment, error)
}

// MetricsInterface defines the metrics reported by the HTTP layer.
type MetricsInterface interface {
	HTTPRequestInc(method, route string, code int)
}

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       string
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		BodyLimit:       "64K",
	}
}

type Server struct {
	echo     *echo.Echo
	cfg      Config
	engine   Engine
	assessor Assessor
	store    AssessmentStore
	hub      *Hub
	metrics  MetricsInterface
	gatherer prometheus.Gatherer
	validate *validator.Validate
	notFound func(error) bool
}

type Option func(*Server)

// WithHub mounts the live assessment feed.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

func WithMetrics(m MetricsInterface) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithNotFound tells the server which store errors mean a missing assessment.
func WithNotFound(isNotFound func(error) bool) Option {
	return func(s *Server) { s.notFound = isNotFound }
}

// New builds the server and registers its routes. assessor and store may be
// nil, in which case the assessment routes answer 503.
func New(cfg Config, engine Engine, assessor Assessor, store AssessmentStore, opts ...Option) *Server {
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = DefaultConfig().BodyLimit
	}
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		assessor: assessor,
		store:    store,
		gatherer: prometheus.DefaultGatherer,
		validate: newValidator(),
		notFound: func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(s.observe)

	s.echo = e
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/predict", s.handlePredict)
	s.echo.GET("/model/info", s.handleModelInfo)
	s.echo.POST("/assess", s.handleAssess)
	s.echo.GET("/assessments", s.handleListAssessments)
	s.echo.GET("/assessments/:id", s.handleGetAssessment)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	if s.hub != nil {
		s.echo.GET("/ws/assessments", s.hub.ServeWS)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Info().Str("address", s.cfg.Addr).Msg("starting http server")
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	log.Info().Msg("http server stopped")
	return nil
}

// observe logs each request and counts it by route template.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req, res := c.Request(), c.Response()
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.HTTPRequestInc(req.Method, route, res.Status)
		}
		log.Debug().
			Str("method", req.Method).
			Str("route", route).
			Int("status", res.Status).
			Dur("latency", time.Since(start)).
			Msg("http request")
		return nil
	}
}

type errorBody struct {
	Detail any `json:"detail"`
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var body any = http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		body = he.Message
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled request error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{Detail: body})
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func detail(code int, d any) *echo.HTTPError {
	return echo.NewHTTPError(code, d)
}
