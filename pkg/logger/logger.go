package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	// Get log level from environment
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	// Create handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Create handler based on environment
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// Use JSON handler for production (structured)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("request_id", requestID)),
	}
}

// WithActor adds the acting identity to logger context
func (l *Logger) WithActor(actor string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("actor", actor)),
	}
}

// WithBooking adds the booking ID to logger context
func (l *Logger) WithBooking(bookingID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("booking_id", bookingID)),
	}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("error", err.Error())),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}
	l.Logger.Log(c.Request.Context(), level,
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Booking lifecycle logging methods

// LogBookingCreated logs when a booking is created
func (l *Logger) LogBookingCreated(ctx context.Context, bookingID, spaceID, actor string) {
	l.Logger.InfoContext(ctx,
		"Booking Created",
		slog.String("booking_id", bookingID),
		slog.String("space_id", spaceID),
		slog.String("actor", actor),
	)
}

// LogTransition logs an applied booking status transition
func (l *Logger) LogTransition(ctx context.Context, bookingID, from, to, actor string) {
	l.Logger.InfoContext(ctx,
		"Booking Transition",
		slog.String("booking_id", bookingID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("actor", actor),
	)
}

// LogInvalidTransition logs a rejected transition. These point at a race or a
// stale client, so they are logged at error level with the full context.
func (l *Logger) LogInvalidTransition(ctx context.Context, resource, resourceID, current, requested, actor string) {
	l.Logger.ErrorContext(ctx,
		"Invalid Transition",
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("current", current),
		slog.String("requested", requested),
		slog.String("actor", actor),
	)
}

// LogPaymentFailure logs a declined charge
func (l *Logger) LogPaymentFailure(ctx context.Context, bookingID, kind, reason string) {
	l.Logger.WarnContext(ctx,
		"Payment Failure",
		slog.String("booking_id", bookingID),
		slog.String("kind", kind),
		slog.String("reason", reason),
	)
}

// LogPayoutFailure logs a failed transfer to a space owner
func (l *Logger) LogPayoutFailure(ctx context.Context, bookingID, stage string, attempt int, reason string) {
	l.Logger.ErrorContext(ctx,
		"Payout Failure",
		slog.String("booking_id", bookingID),
		slog.String("stage", stage),
		slog.Int("attempt", attempt),
		slog.String("reason", reason),
	)
}

// LogAdminOverride logs a privileged action
func (l *Logger) LogAdminOverride(ctx context.Context, adminID, action, bookingID string) {
	l.Logger.InfoContext(ctx,
		"Admin Override",
		slog.String("admin_id", adminID),
		slog.String("action", action),
		slog.String("booking_id", bookingID),
	)
}

// LogJobFired logs a durable job being handled
func (l *Logger) LogJobFired(ctx context.Context, jobID, kind, bookingID string, lateBy time.Duration) {
	l.Logger.InfoContext(ctx,
		"Scheduled Job Fired",
		slog.String("job_id", jobID),
		slog.String("kind", kind),
		slog.String("booking_id", bookingID),
		slog.Duration("late_by", lateBy),
	)
}

// Security logging methods

// LogAuthFailure logs failed token verification
func (l *Logger) LogAuthFailure(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Authentication Failure",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// LogWebhookRejected logs a webhook that failed signature verification
func (l *Logger) LogWebhookRejected(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Webhook Rejected",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}
