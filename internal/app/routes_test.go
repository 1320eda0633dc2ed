package app_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"adspace/internal/processor"
	"adspace/internal/shared/actor"
	"adspace/internal/shared/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
}

type api struct {
	t      *testing.T
	env    *testutil.Env
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	gin.SetMode(gin.TestMode)
	env := testutil.NewEngine(t)
	router := gin.New()
	env.RegisterRoutes(router.Group("/api/v1"))
	return &api{t: t, env: env, router: router}
}

func (a *api) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *api) token(role string, id uuid.UUID) string {
	return testutil.Token(a.t, a.env.Config, role, id)
}

func TestBookingRoutes(t *testing.T) {
	a := newAPI(t)
	space := a.env.Space(t)
	campaign := a.env.Campaign(t)
	advertiser := a.token(actor.RoleAdvertiser, campaign.AdvertiserID)
	owner := a.token(actor.RoleOwner, space.OwnerID)

	body := map[string]string{
		"space_id":    space.ID.String(),
		"campaign_id": campaign.ID.String(),
		"start_date":  testutil.Day(10),
		"end_date":    testutil.Day(12),
	}

	code, _ := a.do(http.MethodPost, "/api/v1/bookings", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPost, "/api/v1/bookings", owner, body)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := a.do(http.MethodPost, "/api/v1/bookings", advertiser, body)
	require.Equal(t, http.StatusCreated, code, res.Message)
	var created struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
		Total  int64     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &created))
	assert.Equal(t, "PENDING_APPROVAL", created.Status)
	assert.Positive(t, created.Total)

	code, res = a.do(http.MethodPost, "/api/v1/bookings", advertiser, body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(res.Errors), "DATE_CONFLICT")

	code, _ = a.do(http.MethodPost, "/api/v1/bookings/"+created.ID.String()+"/approve", owner, nil)
	assert.Equal(t, http.StatusOK, code)

	code, res = a.do(http.MethodGet, "/api/v1/bookings/"+created.ID.String()+"/status", advertiser, nil)
	require.Equal(t, http.StatusOK, code)
	var status struct {
		Status       string   `json:"status"`
		NextStatuses []string `json:"next_statuses"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &status))
	assert.Equal(t, "APPROVED", status.Status)
	assert.Contains(t, status.NextStatuses, "CONFIRMED")

	stranger := a.token(actor.RoleAdvertiser, uuid.New())
	code, _ = a.do(http.MethodGet, "/api/v1/bookings/"+created.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPost, "/api/v1/bookings/"+created.ID.String()+"/reject", owner, map[string]string{"reason": "changed my mind"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	a := newAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(processor.SignatureHeader, "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newAPI(t)
	owner := a.token(actor.RoleOwner, uuid.New())

	code, _ := a.do(http.MethodGet, "/api/v1/admin/payment-flows", owner, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := a.do(http.MethodGet, "/api/v1/admin/payment-flows", a.token(actor.RoleAdmin, uuid.New()), nil)
	assert.Equal(t, http.StatusOK, code, res.Message)
}

func TestBlockedDateRoutes(t *testing.T) {
	a := newAPI(t)
	space := a.env.Space(t)
	owner := a.token(actor.RoleOwner, space.OwnerID)
	path := "/api/v1/spaces/" + space.ID.String() + "/blocked-dates"
	body := map[string]string{
		"start_date": testutil.Day(10),
		"end_date":   testutil.Day(12),
		"reason":     "repainting",
	}

	code, _ := a.do(http.MethodPost, path, "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPost, path, a.token(actor.RoleAdvertiser, uuid.New()), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPost, path, a.token(actor.RoleOwner, uuid.New()), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, res := a.do(http.MethodPost, path, owner, body)
	require.Equal(t, http.StatusCreated, code, res.Message)
	var blocked struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &blocked))

	code, res = a.do(http.MethodGet, "/api/v1/spaces/"+space.ID.String()+"/availability?start_date="+testutil.Day(12)+"&end_date="+testutil.Day(13), "", nil)
	require.Equal(t, http.StatusOK, code)
	var result struct {
		Available bool `json:"available"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &result))
	assert.False(t, result.Available)

	a.env.Book(t, space, a.env.Campaign(t), 20, 22)
	code, res = a.do(http.MethodPost, path, owner, map[string]string{
		"start_date": testutil.Day(22),
		"end_date":   testutil.Day(23),
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(res.Errors), "DATE_CONFLICT")

	code, _ = a.do(http.MethodDelete, path+"/"+blocked.ID.String(), owner, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodDelete, path+"/"+blocked.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
