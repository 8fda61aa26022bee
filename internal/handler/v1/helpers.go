package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/service"
)

// ErrorMode selects how service errors map onto status codes.
type ErrorMode string

const (
	// ErrorModeCompat answers 404 for an unknown patient and 400 with the
	// raw message for everything else.
	ErrorModeCompat ErrorMode = "compat"
	// ErrorModeStrict gives each failure kind its own status code.
	ErrorModeStrict ErrorMode = "strict"
)

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, mode ErrorMode, err error) {
	_ = c.Error(err)

	if errors.Is(err, patient.ErrPatientNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "patient not found"})
		return
	}

	if mode != ErrorModeStrict {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var validErr *patient.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, features.ErrSchemaMismatch):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "SCHEMA_MISMATCH",
		})

	case errors.Is(err, patient.ErrConcurrentModification):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "dataset was modified concurrently, retry the request",
			Code:  "CONCURRENT_MODIFICATION",
		})

	case errors.Is(err, patient.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "dataset storage unavailable",
			Code:  "STORAGE_UNAVAILABLE",
		})

	case errors.Is(err, service.ErrExplainUnsupported):
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// bindPayload decodes the body as a free-form JSON object. Numbers stay
// float64 so field coercion sees what the client sent.
func bindPayload(c *gin.Context) (map[string]any, bool) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return nil, false
	}
	if payload == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: body must be a JSON object"})
		return nil, false
	}
	return payload, true
}
