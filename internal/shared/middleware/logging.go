package middleware

import (
	"net/http"
	"strings"
	"time"

	"adspace/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "request_id"
	ContextLogger    = "request_logger"
)

// RequestLogger tags every request with an ID, echoed back in X-Request-ID,
// and logs it once the handler chain has run.
func RequestLogger(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)
		c.Set(ContextRequestID, requestID)
		c.Set(ContextLogger, base.WithRequestID(requestID))

		c.Next()

		l := LoggerFrom(c)
		if a, ok := ActorFromContext(c); ok {
			l = l.WithActor(a.String())
		}
		if strings.Contains(c.FullPath(), "/bookings/:id") {
			l = l.WithBooking(c.Param("id"))
		}
		if status := c.Writer.Status(); status >= http.StatusBadRequest && len(c.Errors) > 0 {
			l.LogHTTPError(c, c.Errors.Last(), status)
		}
		l.LogHTTPRequest(c, time.Since(start))
	}
}

// LoggerFrom returns the request-scoped logger, or the process default
// outside RequestLogger.
func LoggerFrom(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(ContextLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.GetDefault()
}
