// Package assess turns a risk score into a booking decision and runs the full
// booking assessment flow.
package assess

import (
	"fmt"
	"math"

	"securestay-risk/internal/common"
	"securestay-risk/internal/features"
)

// Decision is the booking status shown to guests and staff.
type Decision string

const (
	Confirmed   Decision = "Confirmed"
	UnderReview Decision = "Under Review"
	Rejected    Decision = "Rejected"
)

// Display labels.
const (
	LabelFraudulent = "FRAUDULENT"
	LabelLegitimate = "LEGITIMATE"
)

// StandardPattern is the only reason given when no flag is raised.
const StandardPattern = "Standard transaction pattern"

var reasonText = []struct {
	flag string
	text string
}{
	{features.IPRisk, "High Risk IP detected"},
	{features.OddHour, "Booking placed at unusual hour"},
	{features.RapidAttempts, "Velocity check failed (Rapid attempts)"},
	{features.CountryMismatch, "Billing country does not match IP"},
	{features.HighValueBooking, "High value booking"},
	{features.DeviceChange, "Booking made from a new device"},
}

// Policy maps risk scores to decisions. Bands are in percent: a score above
// RejectAbove is rejected, above ReviewAbove goes to review.
type Policy struct {
	ReviewAbove    int
	RejectAbove    int
	LabelThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{
		ReviewAbove:    common.DefaultReviewAbove,
		RejectAbove:    common.DefaultRejectAbove,
		LabelThreshold: 0.5,
	}
}

func (p Policy) Validate() error {
	if p.ReviewAbove < 0 || p.RejectAbove > 100 {
		return fmt.Errorf("review bands must be within 0..100, got %d/%d", p.ReviewAbove, p.RejectAbove)
	}
	if p.ReviewAbove >= p.RejectAbove {
		return fmt.Errorf("review band %d must be below reject band %d", p.ReviewAbove, p.RejectAbove)
	}
	if p.LabelThreshold <= 0 || p.LabelThreshold >= 1 {
		return fmt.Errorf("label threshold %v outside (0,1)", p.LabelThreshold)
	}
	return nil
}

// Percent converts a probability to a whole percentage.
func Percent(score float64) int {
	return int(math.Round(score * 100))
}

func (p Policy) Decide(score float64) Decision {
	pct := Percent(score)
	switch {
	case pct > p.RejectAbove:
		return Rejected
	case pct > p.ReviewAbove:
		return UnderReview
	default:
		return Confirmed
	}
}

func (p Policy) Label(score float64) string {
	if score > p.LabelThreshold {
		return LabelFraudulent
	}
	return LabelLegitimate
}

// Reasons explains the raised flags. It never returns an empty list.
func Reasons(fv features.FeatureVector) []string {
	var out []string
	for _, r := range reasonText {
		if v, _ := fv.Value(r.flag); v == 1 {
			out = append(out, r.text)
		}
	}
	if len(out) == 0 {
		return []string{StandardPattern}
	}
	return out
}
