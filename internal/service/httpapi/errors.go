package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/service/lifecycle"
)

// requestError — тело или параметры запроса не разобраны.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type stepResponse struct {
	Name   string `json:"name"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error,omitempty"`
}

type reportResponse struct {
	Operation string         `json:"operation"`
	Steps     []stepResponse `json:"steps"`
	Partial   bool           `json:"partially_applied"`
}

func newReportResponse(report lifecycle.Report) reportResponse {
	steps := make([]stepResponse, 0, len(report.Steps))
	for _, s := range report.Steps {
		step := stepResponse{Name: s.Name, Target: s.Target}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		steps = append(steps, step)
	}
	return reportResponse{
		Operation: string(report.Operation),
		Steps:     steps,
		Partial:   report.PartiallyApplied(),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPrecondition),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

func (a *API) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = fe.Tag()
		}
		resp.Details = fields
	}

	var stepErr *lifecycle.StepError
	if errors.As(err, &stepErr) {
		resp.Details = newReportResponse(stepErr.Report)
	}

	if status >= http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
		a.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.JSON(status, resp)
}
