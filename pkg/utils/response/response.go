package response

import (
	"net/http"

	"ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the JSON body written for failed requests.
type ErrorBody struct {
	Code    errors.ErrorCode `json:"code"`               // Error code
	Message string           `json:"message"`            // Caller-safe message
	Details interface{}      `json:"details,omitempty"`  // Additional details (client errors only)
	TraceID string           `json:"trace_id,omitempty"` // Request trace ID
}

// Success writes data as the response body.
// Sandbox payloads are returned unwrapped so judge clients can decode them directly.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error sends an error response.
// Server-side failures are logged with full detail and answered with the generic code message.
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)
	status := customErr.Code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(customErr.Code)),
		zap.String("message", customErr.Error()),
		zap.Any("details", customErr.Details),
	}
	if status >= http.StatusInternalServerError {
		fields = append(fields, zap.String("stack", customErr.Stack))
		logger.Error(c.Request.Context(), "request failed", fields...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	body := ErrorBody{
		Code:    customErr.Code,
		Message: customErr.PublicMessage(),
		TraceID: getTraceID(c),
	}
	if status < http.StatusInternalServerError && len(customErr.Details) > 0 {
		body.Details = customErr.Details
	}
	c.JSON(status, body)
}

// BadRequest sends a 400 bad request error
func BadRequest(c *gin.Context, message string) {
	Error(c, errors.BadRequest(message))
}

// AbortWithError aborts the request and sends error response
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}
