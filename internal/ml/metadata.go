package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// legacyMetadataName is checked when no per-artifact sidecar exists.
const legacyMetadataName = "model_metadata.json"

// ModelMetadata describes how an artifact was produced.
type ModelMetadata struct {
	Version      string            `json:"version"`
	TrainedAt    time.Time         `json:"trained_at"`
	Features     []string          `json:"features"`
	Seed         int64             `json:"seed"`
	Samples      int               `json:"samples"`
	TestFraction float64           `json:"test_fraction"`
	ClassBalance ClassBalance      `json:"class_balance"`
	Evaluation   *EvaluationReport `json:"evaluation,omitempty"`
}

// MetadataPath returns the sidecar path for an artifact: fraud_model_v2.bin ->
// fraud_model_v2.metadata.json.
func MetadataPath(modelPath string) string {
	stem := strings.TrimSuffix(modelPath, filepath.Ext(modelPath))
	return stem + ".metadata.json"
}

// SaveMetadata writes md next to the artifact at modelPath.
func SaveMetadata(modelPath string, md *ModelMetadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return writeFileAtomic(MetadataPath(modelPath), data)
}

// LoadMetadata reads the sidecar of the artifact at modelPath, falling back to
// model_metadata.json in the same directory.
func LoadMetadata(modelPath string) (*ModelMetadata, error) {
	md, err := decodeMetadata(MetadataPath(modelPath))
	if err == nil {
		return md, nil
	}
	legacy := filepath.Join(filepath.Dir(modelPath), legacyMetadataName)
	if md, lerr := decodeMetadata(legacy); lerr == nil {
		return md, nil
	}
	return nil, err
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &md, nil
}
