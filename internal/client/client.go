// Package client calls the risk scoring API over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/features"
	"securestay-risk/internal/ml"
	"securestay-risk/internal/server"
)

// APIError is a non-2xx response. Callers never receive a fallback score.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("risk api: %d %s", e.StatusCode, e.Detail)
}

// ModelNotLoaded reports whether the server had no model to score with.
func (e *APIError) ModelNotLoaded() bool {
	return e.StatusCode == http.StatusInternalServerError && e.Detail == server.DetailModelNotLoaded
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// Health is the body of GET /health.
type Health struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
}

type Client struct {
	rest *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	r := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &Client{rest: r}
}

// Predict scores a feature vector.
func (c *Client) Predict(ctx context.Context, fv features.FeatureVector) (float64, error) {
	var out struct {
		RiskScore float64 `json:"risk_score"`
	}
	if err := c.do(ctx, http.MethodPost, "/predict", fv, &out); err != nil {
		return 0, err
	}
	return out.RiskScore, nil
}

// Health returns the readiness report. A 503 yields the report and an *APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	resp, err := c.rest.R().SetContext(ctx).SetResult(&h).Get("/health")
	if err != nil {
		return Health{}, fmt.Errorf("risk api: GET /health: %w", err)
	}
	if resp.IsError() {
		_ = json.Unmarshal(resp.Body(), &h)
		return h, &APIError{StatusCode: resp.StatusCode(), Detail: h.Status}
	}
	return h, nil
}

// Assess submits a booking for a full assessment.
func (c *Client) Assess(ctx context.Context, b features.Booking) (*assess.Assessment, error) {
	var a assess.Assessment
	if err := c.do(ctx, http.MethodPost, "/assess", b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Assessment(ctx context.Context, id uuid.UUID) (*assess.Assessment, error) {
	var a assess.Assessment
	if err := c.do(ctx, http.MethodGet, "/assessments/"+id.String(), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Recent lists the newest assessments.
func (c *Client) Recent(ctx context.Context, limit int) ([]assess.Assessment, error) {
	var out struct {
		Assessments []assess.Assessment `json:"assessments"`
	}
	path := "/assessments?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Assessments, nil
}

func (c *Client) ModelInfo(ctx context.Context) (ml.Status, error) {
	var st ml.Status
	err := c.do(ctx, http.MethodGet, "/model/info", nil, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.rest.R().SetContext(ctx).SetResult(result)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("risk api: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}

func newAPIError(resp *resty.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode(), Detail: http.StatusText(resp.StatusCode())}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil || len(body.Detail) == 0 {
		return e
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		e.Detail = s
	} else {
		e.Detail = string(body.Detail)
	}
	return e
}
