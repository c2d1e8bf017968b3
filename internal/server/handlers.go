package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/common"
	"securestay-risk/internal/features"
	"securestay-risk/internal/ml"
)

// predictRequest accepts exactly the six flags. Pointers tell a missing flag
// apart from a zero.
type predictRequest struct {
	CountryMismatch  *int `json:"country_mismatch" validate:"required,oneof=0 1"`
	RapidAttempts    *int `json:"rapid_attempts" validate:"required,oneof=0 1"`
	OddHour          *int `json:"odd_hour" validate:"required,oneof=0 1"`
	HighValueBooking *int `json:"high_value_booking" validate:"required,oneof=0 1"`
	DeviceChange     *int `json:"device_change" validate:"required,oneof=0 1"`
	IPRisk           *int `json:"ip_risk" validate:"required,oneof=0 1"`
}

func (r predictRequest) vector() features.FeatureVector {
	return features.FeatureVector{
		CountryMismatch:  *r.CountryMismatch,
		RapidAttempts:    *r.RapidAttempts,
		OddHour:          *r.OddHour,
		HighValueBooking: *r.HighValueBooking,
		DeviceChange:     *r.DeviceChange,
		IPRisk:           *r.IPRisk,
	}
}

type predictResponse struct {
	RiskScore float64 `json:"risk_score"`
}

type rootResponse struct {
	Message      string `json:"message"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
}

type listResponse struct {
	Assessments []assess.Assessment `json:"assessments"`
	Count       int                 `json:"count"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleRoot(c echo.Context) error {
	st := s.engine.Status()
	return c.JSON(http.StatusOK, rootResponse{
		Message:      serviceMessage,
		ModelLoaded:  st.Loaded,
		ModelVersion: st.Version,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	st := s.engine.Status()
	if !st.Loaded {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", ModelLoaded: true, ModelVersion: st.Version})
}

func (s *Server) handleModelInfo(c echo.Context) error {
	st := s.engine.Status()
	if !st.Loaded {
		return c.JSON(http.StatusServiceUnavailable, st)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handlePredict(c echo.Context) error {
	var req predictRequest
	if errs := s.decodeStrict(c, &req); errs != nil {
		return detail(http.StatusUnprocessableEntity, errs)
	}

	p, err := s.engine.Predict(req.vector())
	if err != nil {
		return s.scoringError(err)
	}
	return c.JSON(http.StatusOK, predictResponse{RiskScore: p})
}

func (s *Server) handleAssess(c echo.Context) error {
	if s.assessor == nil {
		return detail(http.StatusServiceUnavailable, "assessments are not enabled")
	}

	var b features.Booking
	if errs := s.decodeStrict(c, &b); errs != nil {
		return detail(http.StatusUnprocessableEntity, errs)
	}
	if b.Amount.IsNegative() {
		return detail(http.StatusUnprocessableEntity, []FieldError{{
			Field: "amount", Code: "ERR_MIN", Message: "amount must not be negative",
		}})
	}

	a, err := s.assessor.Assess(c.Request().Context(), b)
	if err != nil {
		return s.scoringError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) handleListAssessments(c echo.Context) error {
	if s.store == nil {
		return detail(http.StatusServiceUnavailable, "assessments are not enabled")
	}

	limit := common.DefaultRecentListing
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return detail(http.StatusUnprocessableEntity, []FieldError{{
				Field: "limit", Code: "ERR_MIN", Message: "limit must be a positive integer",
			}})
		}
		limit = min(n, common.MaxRecentListing)
	}

	from, to := c.QueryParam("from"), c.QueryParam("to")
	var (
		out []assess.Assessment
		err error
	)
	if from == "" && to == "" {
		out, err = s.store.Recent(limit)
	} else {
		start, end, ferrs := parseRange(from, to)
		if ferrs != nil {
			return detail(http.StatusUnprocessableEntity, ferrs)
		}
		out, err = s.store.Between(start, end)
		if len(out) > limit {
			out = out[:limit]
		}
	}
	if err != nil {
		return fmt.Errorf("list assessments: %w", err)
	}
	if out == nil {
		out = []assess.Assessment{}
	}
	return c.JSON(http.StatusOK, listResponse{Assessments: out, Count: len(out)})
}

func (s *Server) handleGetAssessment(c echo.Context) error {
	if s.store == nil {
		return detail(http.StatusServiceUnavailable, "assessments are not enabled")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return detail(http.StatusUnprocessableEntity, []FieldError{{
			Field: "id", Code: "ERR_UUID", Message: "id must be a valid UUID",
		}})
	}
	a, err := s.store.GetAssessment(id)
	if err != nil {
		if s.notFound(err) {
			return detail(http.StatusNotFound, "assessment not found")
		}
		return fmt.Errorf("get assessment %s: %w", id, err)
	}
	return c.JSON(http.StatusOK, a)
}

// scoringError maps engine failures to responses.
func (s *Server) scoringError(err error) error {
	switch ml.KindOf(err) {
	case ml.KindModelNotLoaded:
		log.Error().Err(err).Msg("prediction requested before model load")
		return detail(http.StatusInternalServerError, DetailModelNotLoaded)
	case ml.KindInvalidFeature:
		return detail(http.StatusUnprocessableEntity, err.Error())
	default:
		return detail(http.StatusInternalServerError, "Prediction error: "+err.Error())
	}
}

// decodeStrict decodes a single JSON object, rejecting unknown fields and
// trailing data, then runs struct validation.
func (s *Server) decodeStrict(c echo.Context, dst any) []FieldError {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return []FieldError{decodeError(err)}
	}
	if dec.More() {
		return []FieldError{{Code: "ERR_BODY", Message: "request body must be a single JSON object"}}
	}

	if err := s.validate.StructCtx(c.Request().Context(), dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []FieldError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
		}
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fieldError(fe))
		}
		return out
	}
	return nil
}

func decodeError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return FieldError{
			Field:   typeErr.Field,
			Code:    "ERR_TYPE",
			Message: fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type),
		}
	}
	msg := err.Error()
	if name, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		field := strings.Trim(name, `"`)
		return FieldError{Field: field, Code: "ERR_UNKNOWN_FIELD", Message: fmt.Sprintf("%s is not a known field", field)}
	}
	return FieldError{Code: "ERR_BODY", Message: msg}
}

func fieldError(fe validator.FieldError) FieldError {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "len":
		msg = fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "ip":
		msg = fmt.Sprintf("%s must be a valid IP address", field)
	default:
		msg = fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
	return FieldError{Field: field, Code: "ERR_" + strings.ToUpper(fe.Tag()), Message: msg}
}

func parseRange(from, to string) (time.Time, time.Time, []FieldError) {
	var errs []FieldError
	start, end := time.Unix(0, 0).UTC(), time.Now().UTC()
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			errs = append(errs, FieldError{Field: "from", Code: "ERR_TIME", Message: "from must be an RFC 3339 timestamp"})
		}
		start = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			errs = append(errs, FieldError{Field: "to", Code: "ERR_TIME", Message: "to must be an RFC 3339 timestamp"})
		}
		end = t
	}
	if errs == nil && end.Before(start) {
		errs = append(errs, FieldError{Field: "to", Code: "ERR_RANGE", Message: "to must not be before from"})
	}
	return start, end, errs
}
