package api

import (
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sensorhub/annotator/internal/editor"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

const correlationChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCorrelationID returns a short id tying a response to its log line.
func generateCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	for i := range b {
		b[i] = correlationChars[int(b[i])%len(correlationChars)]
	}
	return string(b)
}

// NewErrorResponse builds an ErrorResponse with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	return &ErrorResponse{
		Error:         errText,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// statusFor maps an error to the HTTP status the host sees.
func statusFor(err error) int {
	if errors.Is(err, editor.ErrReadOnly) {
		return http.StatusForbidden
	}

	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	switch ee.Category {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryValidation, errors.CategoryGeometry:
		return http.StatusUnprocessableEntity
	case errors.CategoryState, errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNetwork, errors.CategoryRemoteRejection, errors.CategorySpeciesLookup, errors.CategoryHTTP:
		return http.StatusBadGateway
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryCancellation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError logs err and writes it as an ErrorResponse. A zero code derives
// the status from the error category.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = statusFor(err)
	}
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Path()),
		logger.Int("status", code),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		c.log.Error(message, fields...)
	} else {
		c.log.Debug(message, fields...)
	}
	return ctx.JSON(code, resp)
}
