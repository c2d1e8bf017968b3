package ml

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"securestay-risk/internal/features"
)

// Artifact is a trained classifier. Weights follow Features, which is the order
// the model was trained on. Artifacts are never modified after creation.
type Artifact struct {
	Version         string
	Features        []string
	Weights         []float64
	Bias            float64
	TrainedAt       time.Time
	TrainingSamples int
}

var artifactMagic = []byte("SSRM")

const artifactFormat byte = 1

const (
	fieldVersion   protowire.Number = 1
	fieldFeatures  protowire.Number = 2
	fieldWeights   protowire.Number = 3
	fieldBias      protowire.Number = 4
	fieldTrainedAt protowire.Number = 5
	fieldSamples   protowire.Number = 6
)

// Validate checks the feature list and parameters.
func (a *Artifact) Validate() error {
	if len(a.Features) != features.Count {
		return fmt.Errorf("expected %d features, got %d", features.Count, len(a.Features))
	}
	seen := make(map[string]bool, len(a.Features))
	for _, name := range a.Features {
		if _, ok := features.Index(name); !ok {
			return fmt.Errorf("unknown feature %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = true
	}
	if len(a.Weights) != len(a.Features) {
		return fmt.Errorf("%d weights for %d features", len(a.Weights), len(a.Features))
	}
	for i, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is not finite", i)
		}
	}
	if math.IsNaN(a.Bias) || math.IsInf(a.Bias, 0) {
		return errors.New("bias is not finite")
	}
	return nil
}

// Clone returns a deep copy.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Features = slices.Clone(a.Features)
	c.Weights = slices.Clone(a.Weights)
	return &c
}

// MarshalBinary encodes the artifact as magic, format byte and a protobuf wire body.
func (a *Artifact) MarshalBinary() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactCorrupt, err)
	}

	b := make([]byte, 0, 256)
	b = append(b, artifactMagic...)
	b = append(b, artifactFormat)

	if a.Version != "" {
		b = protowire.AppendTag(b, fieldVersion, protowire.BytesType)
		b = protowire.AppendString(b, a.Version)
	}
	for _, name := range a.Features {
		b = protowire.AppendTag(b, fieldFeatures, protowire.BytesType)
		b = protowire.AppendString(b, name)
	}

	packed := make([]byte, 0, 8*len(a.Weights))
	for _, w := range a.Weights {
		packed = protowire.AppendFixed64(packed, math.Float64bits(w))
	}
	b = protowire.AppendTag(b, fieldWeights, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)

	b = protowire.AppendTag(b, fieldBias, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(a.Bias))

	if !a.TrainedAt.IsZero() {
		b = protowire.AppendTag(b, fieldTrainedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.TrainedAt.UnixNano()))
	}
	if a.TrainingSamples > 0 {
		b = protowire.AppendTag(b, fieldSamples, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.TrainingSamples))
	}
	return b, nil
}

// UnmarshalBinary decodes and validates an encoded artifact. Unknown fields are
// skipped.
func (a *Artifact) UnmarshalBinary(data []byte) error {
	if len(data) < len(artifactMagic)+1 || !bytes.Equal(data[:len(artifactMagic)], artifactMagic) {
		return fmt.Errorf("%w: missing header", ErrArtifactCorrupt)
	}
	if f := data[len(artifactMagic)]; f != artifactFormat {
		return fmt.Errorf("%w: unsupported format %d", ErrArtifactCorrupt, f)
	}

	var (
		out     Artifact
		hasBias bool
	)
	b := data[len(artifactMagic)+1:]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return corrupt(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			out.Version = v
		case num == fieldFeatures && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			out.Features = append(out.Features, v)
		case num == fieldWeights && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				for len(packed) > 0 {
					v, m := protowire.ConsumeFixed64(packed)
					if m < 0 {
						return corrupt(protowire.ParseError(m))
					}
					out.Weights = append(out.Weights, math.Float64frombits(v))
					packed = packed[m:]
				}
			}
		case num == fieldWeights && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			out.Weights = append(out.Weights, math.Float64frombits(v))
		case num == fieldBias && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			out.Bias = math.Float64frombits(v)
			hasBias = n >= 0
		case num == fieldTrainedAt && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			out.TrainedAt = time.Unix(0, int64(v)).UTC()
		case num == fieldSamples && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			out.TrainingSamples = int(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return corrupt(protowire.ParseError(n))
		}
		b = b[n:]
	}

	if !hasBias {
		return corrupt(errors.New("missing bias"))
	}
	if err := out.Validate(); err != nil {
		return corrupt(err)
	}
	*a = out
	return nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrArtifactCorrupt, err)
}

// Save writes the artifact to path atomically: readers see either the previous
// file or the complete new one.
func (a *Artifact) Save(path string) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// LoadArtifact reads an artifact written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	var a Artifact
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
