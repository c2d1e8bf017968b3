package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/features"
	"securestay-risk/internal/ml"
	"securestay-risk/internal/server"
	"securestay-risk/internal/storage"
)

func testArtifact() *ml.Artifact {
	return &ml.Artifact{
		Version:   "v2-20260301-093000",
		Features:  features.Names(),
		Weights:   []float64{1.2, 1.5, 1.8, 1.0, 0.8, 2.0},
		Bias:      -3.5,
		TrainedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func newAPI(t *testing.T, loaded bool) (*Client, *ml.Engine) {
	t.Helper()
	engine := ml.NewEngine()
	if loaded {
		require.NoError(t, engine.Use(testArtifact()))
	}

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ec := features.DefaultExtractorConfig()
	ec.Location = time.UTC
	tracker := features.NewMemoryTracker()
	svc := assess.NewService(assess.DefaultPolicy(), features.NewExtractor(ec, tracker, tracker), engine, store)

	srv := server.New(server.DefaultConfig(), engine, svc, store,
		server.WithGatherer(prometheus.NewRegistry()),
		server.WithNotFound(func(err error) bool { return errors.Is(err, storage.ErrNotFound) }),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, 2*time.Second), engine
}

func TestClient_Predict(t *testing.T) {
	c, engine := newAPI(t, true)
	fv := features.FromValues([features.Count]int{1, 1, 1, 1, 0, 0})

	got, err := c.Predict(context.Background(), fv)
	require.NoError(t, err)
	want, err := engine.Predict(fv)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestClient_PredictRejected(t *testing.T) {
	c, _ := newAPI(t, true)

	_, err := c.Predict(context.Background(), features.FeatureVector{CountryMismatch: 3})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "country_mismatch")
	assert.False(t, apiErr.ModelNotLoaded())
}

func TestClient_ModelNotLoaded(t *testing.T) {
	c, _ := newAPI(t, false)

	score, err := c.Predict(context.Background(), features.FeatureVector{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.ModelNotLoaded())
	assert.Zero(t, score)

	h, err := c.Health(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "unavailable", h.Status)
	assert.False(t, h.ModelLoaded)
}

func TestClient_HealthAndInfo(t *testing.T) {
	c, _ := newAPI(t, true)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "v2-20260301-093000", h.ModelVersion)

	st, err := c.ModelInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Loaded)
	assert.Equal(t, features.Names(), st.Features)
}

func TestClient_AssessAndFetch(t *testing.T) {
	c, _ := newAPI(t, true)
	ctx := context.Background()

	a, err := c.Assess(ctx, features.Booking{
		Ref:            "REF-222333",
		GuestID:        "G-7",
		Country:        "SG",
		BillingCountry: "ID",
		Amount:         decimal.NewFromInt(250000),
		PlacedAt:       time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "REF-222333", a.BookingRef)
	assert.Equal(t, 1, a.Flags.CountryMismatch)
	assert.Equal(t, []string{"Billing country does not match IP"}, a.Reasons)

	got, err := c.Assessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	recent, err := c.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	_, err = c.Assessment(ctx, uuid.New())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "assessment not found", apiErr.Detail)
}

func TestClient_TransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Predict(context.Background(), features.FeatureVector{})
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
