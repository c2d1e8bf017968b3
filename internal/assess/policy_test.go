package assess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"securestay-risk/internal/features"
)

func TestPolicy_Decide(t *testing.T) {
	p := DefaultPolicy()
	testCases := []struct {
		score    float64
		expected Decision
	}{
		{0, Confirmed},
		{0.2, Confirmed},
		{0.204, Confirmed}, // rounds to 20
		{0.21, UnderReview},
		{0.5, UnderReview},
		{0.8, UnderReview},
		{0.804, UnderReview},
		{0.81, Rejected},
		{1, Rejected},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, p.Decide(tc.score), "score %v", tc.score)
	}
}

func TestPolicy_Label(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, LabelLegitimate, p.Label(0.5))
	assert.Equal(t, LabelFraudulent, p.Label(0.5001))
	assert.Equal(t, LabelLegitimate, p.Label(0.01))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{ReviewAbove: 80, RejectAbove: 20, LabelThreshold: 0.5}.Validate())
	assert.Error(t, Policy{ReviewAbove: -1, RejectAbove: 20, LabelThreshold: 0.5}.Validate())
	assert.Error(t, Policy{ReviewAbove: 20, RejectAbove: 101, LabelThreshold: 0.5}.Validate())
	assert.Error(t, Policy{ReviewAbove: 20, RejectAbove: 80, LabelThreshold: 1}.Validate())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0.001))
	assert.Equal(t, 5, Percent(0.049))
	assert.Equal(t, 95, Percent(0.95))
	assert.Equal(t, 100, Percent(1))
}

func TestReasons(t *testing.T) {
	assert.Equal(t, []string{StandardPattern}, Reasons(features.FeatureVector{}))

	got := Reasons(features.FeatureVector{CountryMismatch: 1, OddHour: 1, IPRisk: 1})
	assert.Equal(t, []string{
		"High Risk IP detected",
		"Booking placed at unusual hour",
		"Billing country does not match IP",
	}, got)

	all := Reasons(features.FromValues([6]int{1, 1, 1, 1, 1, 1}))
	assert.Len(t, all, 6)
	assert.NotContains(t, all, StandardPattern)
}
