package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securestay-risk/internal/cfg"
	"securestay-risk/internal/metrics"
	"securestay-risk/internal/storage"
)

func testSettings(t *testing.T) cfg.Settings {
	t.Helper()
	c := cfg.Default()
	dir := t.TempDir()
	c.DataPath = filepath.Join(dir, "data")
	c.ModelPath = filepath.Join(dir, "missing.bin")
	c.Port = 0
	return c
}

// reopen fails while another handle still holds the bbolt file lock.
func reopen(t *testing.T, dataPath string) {
	t.Helper()
	store, err := storage.New(dataPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestRun_SetupErrorClosesStore(t *testing.T) {
	c := testSettings(t)
	c.Review.ReviewAbove = 90
	c.Review.RejectAbove = 80

	reg := prometheus.NewRegistry()
	err := run(context.Background(), c, metrics.NewWithRegistry(reg), reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assessment setup")

	reopen(t, c.DataPath)
}

func TestRun_StopsWhenContextDone(t *testing.T) {
	c := testSettings(t)
	ctx, cancel := context.WithCancel(context.Background())

	reg := prometheus.NewRegistry()
	done := make(chan error, 1)
	go func() { done <- run(ctx, c, metrics.NewWithRegistry(reg), reg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	reopen(t, c.DataPath)
}
