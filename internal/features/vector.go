// Package features defines the booking risk feature vector and derives it from
// raw booking details.
//
// A FeatureVector is the canonical six-flag representation consumed by the
// classifier. Flag order is part of the model contract: artifacts record the
// order they were trained on and inference maps vectors into it by name.
package features

import (
	"errors"
	"fmt"
)

// Count is the number of risk flags in a FeatureVector.
const Count = 6

// Canonical flag names, in model order.
const (
	CountryMismatch  = "country_mismatch"
	RapidAttempts    = "rapid_attempts"
	OddHour          = "odd_hour"
	HighValueBooking = "high_value_booking"
	DeviceChange     = "device_change"
	IPRisk           = "ip_risk"
)

var names = [Count]string{
	CountryMismatch,
	RapidAttempts,
	OddHour,
	HighValueBooking,
	DeviceChange,
	IPRisk,
}

// ErrInvalidFeature is returned when a flag is not 0 or 1, or a flag name is unknown.
var ErrInvalidFeature = errors.New("invalid feature")

// FeatureVector holds the six binary risk flags of a booking.
type FeatureVector struct {
	CountryMismatch  int `json:"country_mismatch"`
	RapidAttempts    int `json:"rapid_attempts"`
	OddHour          int `json:"odd_hour"`
	HighValueBooking int `json:"high_value_booking"`
	DeviceChange     int `json:"device_change"`
	IPRisk           int `json:"ip_risk"`
}

// Names returns the canonical flag order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}

// Index returns the canonical position of a flag name.
func Index(name string) (int, bool) {
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// FromValues builds a vector from values in canonical order.
func FromValues(v [Count]int) FeatureVector {
	return FeatureVector{
		CountryMismatch:  v[0],
		RapidAttempts:    v[1],
		OddHour:          v[2],
		HighValueBooking: v[3],
		DeviceChange:     v[4],
		IPRisk:           v[5],
	}
}

// FromMap builds a vector from named flags. Every canonical name must be present
// and no other names are accepted.
func FromMap(m map[string]int) (FeatureVector, error) {
	var v [Count]int
	for name, val := range m {
		i, ok := Index(name)
		if !ok {
			return FeatureVector{}, fmt.Errorf("%w: unknown flag %q", ErrInvalidFeature, name)
		}
		v[i] = val
	}
	for _, name := range names {
		if _, ok := m[name]; !ok {
			return FeatureVector{}, fmt.Errorf("%w: missing flag %q", ErrInvalidFeature, name)
		}
	}
	fv := FromValues(v)
	return fv, fv.Validate()
}

// Values returns the flags in canonical order.
func (fv FeatureVector) Values() [Count]int {
	return [Count]int{
		fv.CountryMismatch,
		fv.RapidAttempts,
		fv.OddHour,
		fv.HighValueBooking,
		fv.DeviceChange,
		fv.IPRisk,
	}
}

// Value looks a flag up by name.
func (fv FeatureVector) Value(name string) (int, bool) {
	i, ok := Index(name)
	if !ok {
		return 0, false
	}
	return fv.Values()[i], true
}

// Map returns the flags keyed by name.
func (fv FeatureVector) Map() map[string]int {
	vals := fv.Values()
	m := make(map[string]int, Count)
	for i, name := range names {
		m[name] = vals[i]
	}
	return m
}

// Count returns the number of raised flags. Only meaningful for a valid vector.
func (fv FeatureVector) Count() int {
	var n int
	for _, v := range fv.Values() {
		n += v
	}
	return n
}

// Raised returns the names of flags set to 1, in canonical order.
func (fv FeatureVector) Raised() []string {
	var out []string
	for i, v := range fv.Values() {
		if v == 1 {
			out = append(out, names[i])
		}
	}
	return out
}

// Validate rejects any flag outside {0,1}. Values are never coerced.
func (fv FeatureVector) Validate() error {
	for i, v := range fv.Values() {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: %s must be 0 or 1, got %d", ErrInvalidFeature, names[i], v)
		}
	}
	return nil
}

func (fv FeatureVector) String() string {
	v := fv.Values()
	return fmt.Sprintf("[%d %d %d %d %d %d]", v[0], v[1], v[2], v[3], v[4], v[5])
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
