package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securestay-risk/internal/ml"
)

func TestRun_WritesArtifactAndMetadata(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fraud_model_v2.bin")
	var buf bytes.Buffer

	require.NoError(t, run(options{samples: 1000, seed: 42, out: out}, &buf))

	a, err := ml.LoadArtifact(out)
	require.NoError(t, err)
	assert.Len(t, a.Weights, 6)

	md, err := ml.LoadMetadata(out)
	require.NoError(t, err)
	assert.Equal(t, a.Version, md.Version)
	assert.Equal(t, int64(42), md.Seed)
	assert.Equal(t, 1000, md.Samples)
	require.NotNil(t, md.Evaluation)
	assert.Equal(t, 300, md.Evaluation.TestSize)

	_, err = os.Stat(filepath.Join(filepath.Dir(out), "fraud_model_v2.metadata.json"))
	assert.NoError(t, err)

	report := buf.String()
	assert.Contains(t, report, "clean booking")
	assert.Contains(t, report, "four flags")
	assert.Contains(t, report, "mismatch at odd hour")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()

	err := run(options{samples: 0, seed: 42, out: filepath.Join(dir, "m.bin")}, &bytes.Buffer{})
	assert.ErrorIs(t, err, ml.ErrTraining)

	blocker := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	err = run(options{samples: 1000, seed: 42, out: filepath.Join(blocker, "m.bin")}, &bytes.Buffer{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ml.ErrTraining)
}
