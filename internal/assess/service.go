package assess

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"securestay-risk/internal/features"
	"securestay-risk/internal/ml"
)

// Assessment is the stored outcome of scoring one booking.
type Assessment struct {
	ID           uuid.UUID              `json:"id"`
	BookingRef   string                 `json:"booking_ref"`
	GuestID      string                 `json:"guest_id"`
	Amount       decimal.Decimal        `json:"amount"`
	Flags        features.FeatureVector `json:"flags"`
	RiskScore    float64                `json:"risk_score"`
	Percent      int                    `json:"fraud_score"`
	Decision     Decision               `json:"status"`
	Label        string                 `json:"label"`
	Reasons      []string               `json:"reasons"`
	ModelVersion string                 `json:"model_version"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Scorer is satisfied by *ml.Engine.
type Scorer interface {
	Predict(fv features.FeatureVector) (float64, error)
	Status() ml.Status
}

type SignalExtractor interface {
	Extract(ctx context.Context, b features.Booking) (features.FeatureVector, error)
}

type Store interface {
	StoreAssessment(a *Assessment) error
}

// Notifier receives every stored assessment.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a *Assessment) error
}

// MetricsInterface defines the metrics reported by the service.
type MetricsInterface interface {
	AssessmentsInc(decision string)
	SignalRaisedInc(flag string)
	NotifyFailuresInc(sink string)
}

type Service struct {
	policy    Policy
	extractor SignalExtractor
	scorer    Scorer
	store     Store
	notifiers []Notifier
	metrics   MetricsInterface
	now       func() time.Time
}

type Option func(*Service)

func WithNotifiers(n ...Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

func WithMetrics(m MetricsInterface) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(policy Policy, extractor SignalExtractor, scorer Scorer, store Store, opts ...Option) *Service {
	s := &Service{
		policy:    policy,
		extractor: extractor,
		scorer:    scorer,
		store:     store,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }

// Assess extracts signals, scores and decides a booking, stores the result and
// notifies sinks. Scoring and storage failures fail the call. Sink failures are
// logged only.
func (s *Service) Assess(ctx context.Context, b features.Booking) (*Assessment, error) {
	if b.Ref == "" {
		b.Ref = NewBookingRef()
	}
	if b.PlacedAt.IsZero() {
		b.PlacedAt = s.now()
	}

	fv, err := s.extractor.Extract(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("extract signals for %s: %w", b.Ref, err)
	}

	score, err := s.scorer.Predict(fv)
	if err != nil {
		return nil, fmt.Errorf("score booking %s: %w", b.Ref, err)
	}

	a := &Assessment{
		ID:           uuid.New(),
		BookingRef:   b.Ref,
		GuestID:      b.GuestID,
		Amount:       b.Amount,
		Flags:        fv,
		RiskScore:    score,
		Percent:      Percent(score),
		Decision:     s.policy.Decide(score),
		Label:        s.policy.Label(score),
		Reasons:      Reasons(fv),
		ModelVersion: s.scorer.Status().Version,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.store.StoreAssessment(a); err != nil {
		return nil, fmt.Errorf("store assessment %s: %w", a.ID, err)
	}

	if s.metrics != nil {
		s.metrics.AssessmentsInc(string(a.Decision))
		for _, name := range fv.Raised() {
			s.metrics.SignalRaisedInc(name)
		}
	}

	for _, n := range s.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			log.Warn().Err(err).Str("sink", n.Name()).Str("assessment_id", a.ID.String()).Msg("failed to notify sink")
			if s.metrics != nil {
				s.metrics.NotifyFailuresInc(n.Name())
			}
		}
	}

	log.Info().
		Str("assessment_id", a.ID.String()).
		Str("booking_ref", a.BookingRef).
		Int("fraud_score", a.Percent).
		Str("status", string(a.Decision)).
		Strs("reasons", a.Reasons).
		Msg("booking assessed")

	return a, nil
}

// NewBookingRef returns a reference of the form REF-123456.
func NewBookingRef() string {
	return fmt.Sprintf("REF-%d", 100000+rand.IntN(900000))
}
