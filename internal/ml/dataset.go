package ml

import (
	"fmt"

	"securestay-risk/internal/features"
)

// LabeledSample is a feature vector with its fraud label (0 or 1).
type LabeledSample struct {
	Features features.FeatureVector `json:"features"`
	Fraud    int                    `json:"fraud"`
}

// ClassBalance counts samples per label.
type ClassBalance struct {
	Fraud int `json:"fraud"`
	Legit int `json:"legit"`
}

// Dataset is an ordered collection of labeled samples.
type Dataset struct {
	Samples []LabeledSample
}

func (d Dataset) Len() int { return len(d.Samples) }

// Balance counts fraud and legitimate samples. Labels other than 1 count as legit;
// use Validate to reject them.
func (d Dataset) Balance() ClassBalance {
	var b ClassBalance
	for _, s := range d.Samples {
		if s.Fraud == 1 {
			b.Fraud++
		} else {
			b.Legit++
		}
	}
	return b
}

// Classes returns the number of distinct labels present.
func (d Dataset) Classes() int {
	b := d.Balance()
	n := 0
	if b.Fraud > 0 {
		n++
	}
	if b.Legit > 0 {
		n++
	}
	return n
}

// Validate checks every sample's flags and label.
func (d Dataset) Validate() error {
	for i, s := range d.Samples {
		if err := s.Features.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if s.Fraud != 0 && s.Fraud != 1 {
			return fmt.Errorf("sample %d: label must be 0 or 1, got %d", i, s.Fraud)
		}
	}
	return nil
}

func (d Dataset) subset(idx []int) Dataset {
	out := make([]LabeledSample, len(idx))
	for i, j := range idx {
		out[i] = d.Samples[j]
	}
	return Dataset{Samples: out}
}
