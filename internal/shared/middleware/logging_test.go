package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adspace/internal/shared/actor"
	"adspace/internal/shared/errs"
	"adspace/internal/shared/middleware"
	"adspace/internal/shared/testutil"
	"adspace/internal/shared/utils/response"
	"adspace/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &line), raw)
		lines = append(lines, line)
	}
	return lines
}

func findLine(lines []map[string]interface{}, msg string) map[string]interface{} {
	for _, l := range lines {
		if l["msg"] == msg {
			return l
		}
	}
	return nil
}

func newLoggedRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	l := &logger.Logger{Logger: slog.New(slog.NewJSONHandler(buf, nil))}
	router := gin.New()
	router.Use(middleware.RequestLogger(l))
	bookings := router.Group("/bookings", middleware.JWTAuth(testutil.Config()))
	bookings.GET("/:id", func(c *gin.Context) {
		response.Error(c, errs.NotFound("booking %s not found", c.Param("id")))
	})
	return router
}

func TestRequestLoggerTagsRequestAndActor(t *testing.T) {
	var buf bytes.Buffer
	router := newLoggedRouter(&buf)

	userID := uuid.New()
	bookingID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/bookings/"+bookingID, nil)
	req.Header.Set("Authorization", "Bearer "+testutil.Token(t, testutil.Config(), actor.RoleAdvertiser, userID))
	req.Header.Set(middleware.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(middleware.HeaderRequestID))

	lines := logLines(t, &buf)
	request := findLine(lines, "HTTP Request")
	require.NotNil(t, request)
	assert.Equal(t, "req-123", request["request_id"])
	assert.Equal(t, actor.Advertiser(userID).String(), request["actor"])
	assert.Equal(t, bookingID, request["booking_id"])
	assert.EqualValues(t, http.StatusNotFound, request["status"])

	failure := findLine(lines, "HTTP Error")
	require.NotNil(t, failure)
	assert.Contains(t, failure["error"], "not found")
}

func TestAuthFailureIsLoggedWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	router := newLoggedRouter(&buf)

	req := httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	requestID := w.Header().Get(middleware.HeaderRequestID)
	require.NotEmpty(t, requestID)

	lines := logLines(t, &buf)
	failure := findLine(lines, "Authentication Failure")
	require.NotNil(t, failure)
	assert.Equal(t, requestID, failure["request_id"])
	assert.NotEmpty(t, failure["reason"])

	request := findLine(lines, "HTTP Request")
	require.NotNil(t, request)
	assert.Nil(t, request["actor"])
}
