package features

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Booking carries the raw booking details the risk flags are derived from.
type Booking struct {
	Ref            string          `json:"booking_ref"`
	GuestID        string          `json:"guest_id" validate:"required"`
	DeviceID       string          `json:"device_id"`
	IP             string          `json:"ip_address" validate:"omitempty,ip"`
	Country        string          `json:"country" validate:"omitempty,len=2"`
	BillingCountry string          `json:"billing_country" validate:"required,len=2"`
	Amount         decimal.Decimal `json:"amount"`
	PlacedAt       time.Time       `json:"placed_at"`
}

// GeoInfo is what the extractor needs to know about an IP address.
type GeoInfo struct {
	Country   string
	Anonymous bool
	HighRisk  bool
}

// GeoResolver resolves an IP address. A resolver returns a zero GeoInfo and no
// error for addresses it has no data for.
type GeoResolver interface {
	Lookup(ip string) (GeoInfo, error)
}

// AttemptTracker records booking attempts and reports whether the previous
// attempt by the same guest falls inside the window.
type AttemptTracker interface {
	RecordAttempt(ctx context.Context, guestID string, at time.Time, window time.Duration) (bool, error)
}

// DeviceHistory remembers the last device per guest and reports a change.
type DeviceHistory interface {
	SwapDevice(ctx context.Context, guestID, deviceID string) (bool, error)
}

// ExtractorConfig holds the thresholds used to raise flags.
type ExtractorConfig struct {
	HighValueThreshold decimal.Decimal
	OddHourStart       int
	OddHourEnd         int
	RapidWindow        time.Duration
	Location           *time.Location
}

// DefaultExtractorConfig mirrors the booking front end's rules.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		HighValueThreshold: decimal.NewFromInt(500000),
		OddHourStart:       23,
		OddHourEnd:         6,
		RapidWindow:        10 * time.Minute,
		Location:           time.Local,
	}
}

// Extractor derives FeatureVectors from bookings.
type Extractor struct {
	cfg      ExtractorConfig
	attempts AttemptTracker
	devices  DeviceHistory
	geo      GeoResolver
	now      func() time.Time
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithGeoResolver enables IP based signals.
func WithGeoResolver(g GeoResolver) ExtractorOption {
	return func(e *Extractor) { e.geo = g }
}

// WithClock overrides the time source used when a booking has no timestamp.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an extractor. attempts and devices are required.
func NewExtractor(cfg ExtractorConfig, attempts AttemptTracker, devices DeviceHistory, opts ...ExtractorOption) *Extractor {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	e := &Extractor{
		cfg:      cfg,
		attempts: attempts,
		devices:  devices,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the six flags for a booking. Tracker failures abort the
// extraction; a geo lookup failure only disables the IP based signals.
func (e *Extractor) Extract(ctx context.Context, b Booking) (FeatureVector, error) {
	placedAt := b.PlacedAt
	if placedAt.IsZero() {
		placedAt = e.now()
	}

	var geo GeoInfo
	if e.geo != nil && b.IP != "" {
		info, err := e.geo.Lookup(b.IP)
		if err != nil {
			log.Warn().Err(err).Str("ip", b.IP).Msg("geo lookup failed, ip signals disabled")
		} else {
			geo = info
		}
	}

	rapid, err := e.attempts.RecordAttempt(ctx, b.GuestID, placedAt, e.cfg.RapidWindow)
	if err != nil {
		return FeatureVector{}, fmt.Errorf("record attempt: %w", err)
	}

	var deviceChanged bool
	if b.DeviceID != "" {
		deviceChanged, err = e.devices.SwapDevice(ctx, b.GuestID, b.DeviceID)
		if err != nil {
			return FeatureVector{}, fmt.Errorf("device history: %w", err)
		}
	}

	fv := FeatureVector{
		CountryMismatch:  flag(countryMismatch(b, geo)),
		RapidAttempts:    flag(rapid),
		OddHour:          flag(e.oddHour(placedAt)),
		HighValueBooking: flag(b.Amount.GreaterThan(e.cfg.HighValueThreshold)),
		DeviceChange:     flag(deviceChanged),
		IPRisk:           flag(geo.Anonymous || geo.HighRisk),
	}

	log.Debug().
		Str("booking_ref", b.Ref).
		Str("guest_id", b.GuestID).
		Str("flags", fv.String()).
		Msg("booking signals extracted")

	return fv, nil
}

func (e *Extractor) oddHour(t time.Time) bool {
	h := t.In(e.cfg.Location).Hour()
	start, end := e.cfg.OddHourStart, e.cfg.OddHourEnd
	if start > end {
		return h >= start || h <= end
	}
	return h >= start && h <= end
}

func countryMismatch(b Booking, geo GeoInfo) bool {
	billing := strings.TrimSpace(b.BillingCountry)
	if billing == "" {
		return false
	}
	if declared := strings.TrimSpace(b.Country); declared != "" {
		return !strings.EqualFold(declared, billing)
	}
	if geo.Country != "" {
		return !strings.EqualFold(geo.Country, billing)
	}
	return false
}
