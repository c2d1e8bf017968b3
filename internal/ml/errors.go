package ml

import (
	"errors"

	"securestay-risk/internal/features"
)

var (
	// ErrTraining is returned when a dataset cannot be fitted.
	ErrTraining = errors.New("training failed")
	// ErrArtifactNotFound is returned when no artifact exists at the given path.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrArtifactCorrupt is returned when an artifact cannot be decoded or fails validation.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")
	// ErrModelNotLoaded is returned by the engine before a model has been published.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrInvalidFeature is returned for flags outside {0,1} or unknown flag names.
	ErrInvalidFeature = features.ErrInvalidFeature
)

// FailureKind classifies an error returned by this package.
type FailureKind string

const (
	KindNone             FailureKind = ""
	KindTraining         FailureKind = "training"
	KindArtifactNotFound FailureKind = "artifact_not_found"
	KindArtifactCorrupt  FailureKind = "artifact_corrupt"
	KindModelNotLoaded   FailureKind = "model_not_loaded"
	KindInvalidFeature   FailureKind = "invalid_feature"
	KindUnknown          FailureKind = "unknown"
)

// KindOf maps err onto a FailureKind. A nil error yields KindNone.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrModelNotLoaded):
		return KindModelNotLoaded
	case errors.Is(err, ErrArtifactNotFound):
		return KindArtifactNotFound
	case errors.Is(err, ErrArtifactCorrupt):
		return KindArtifactCorrupt
	case errors.Is(err, ErrTraining):
		return KindTraining
	case errors.Is(err, ErrInvalidFeature):
		return KindInvalidFeature
	default:
		return KindUnknown
	}
}
