package handler

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/albinvayalil/emartCheck/internal/metrics"
	"github.com/albinvayalil/emartCheck/internal/model"
	"github.com/albinvayalil/emartCheck/internal/repository"
	"github.com/albinvayalil/emartCheck/internal/service"
	"github.com/albinvayalil/emartCheck/internal/validation"
)

type stubService struct {
	validateEmail string
	validateErr   error

	detailsResp *model.UserDetails
	detailsErr  error

	submitResp  model.BatchResult
	submitErr   error
	submitCalls int
	lastOrder   model.OrderRequest
}

func (s *stubService) ValidateUser(ctx context.Context, userID, password string) (string, error) {
	return s.validateEmail, s.validateErr
}

func (s *stubService) GetUserDetails(ctx context.Context, userID string) (*model.UserDetails, error) {
	return s.detailsResp, s.detailsErr
}

func (s *stubService) SubmitOrder(ctx context.Context, req model.OrderRequest) (model.BatchResult, error) {
	s.submitCalls++
	s.lastOrder = req
	return s.submitResp, s.submitErr
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger, nil).SetupRouter()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, string(data)
}

func TestHealth(t *testing.T) {
	status, body := do(t, newTestRouter(t, &stubService{}), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestValidateUser(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			svc:        &stubService{validateEmail: "alice@example.com"},
			body:       `{"user_id":"u1","password":"pass123"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"success","user":"u1","email":"alice@example.com"}`,
		},
		{
			name:       "invalid credentials",
			svc:        &stubService{validateErr: service.ErrInvalidCredentials},
			body:       `{"user_id":"u1","password":"nope"}`,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"status":"failed"}`,
		},
		{
			name:       "malformed body",
			svc:        &stubService{},
			body:       `{"user_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "storage error",
			svc:        &stubService{validateErr: errors.New("connection reset")},
			body:       `{"user_id":"u1","password":"pass123"}`,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, newTestRouter(t, tt.svc), http.MethodPost, "/validateuser", tt.body)

			assert.Equal(t, tt.wantStatus, status)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, body)
			}
		})
	}
}

func TestGetUserDetails(t *testing.T) {
	svc := &stubService{detailsResp: &model.UserDetails{
		UserID:      "u1",
		KYCVerified: true,
		Balance:     decimal.NewFromInt(50000),
	}}

	status, body := do(t, newTestRouter(t, svc), http.MethodGet, "/userdetails/u1", "")

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"user_id":"u1","kyc_verified":true,"balance":50000}`, body)
}

func TestGetUserDetails_NotFound(t *testing.T) {
	svc := &stubService{detailsErr: repository.ErrUserNotFound}

	status, body := do(t, newTestRouter(t, svc), http.MethodGet, "/userdetails/ghost", "")

	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"User not found"}`, body)
}

func TestSubmitOrder(t *testing.T) {
	const order = `{"user_id":"u1","items":[{"product_id":"p1","name":"Mouse","quantity":2,"price":10.5}],"total":21}`

	tests := []struct {
		name       string
		result     model.BatchResult
		wantStatus int
		wantBody   string
	}{
		{
			name:       "all delivered",
			result:     model.BatchResult{Delivered: 3, Total: 3},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"success","message":"3/3 items recorded"}`,
		},
		{
			name:       "partial",
			result:     model.BatchResult{Delivered: 2, Total: 3},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"partial","message":"2/3 items recorded"}`,
		},
		{
			name:       "nothing delivered",
			result:     model.BatchResult{Delivered: 0, Total: 2},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"status":"partial","message":"0/2 items recorded"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{submitResp: tt.result}

			status, body := do(t, newTestRouter(t, svc), http.MethodPost, "/submitorder", order)

			assert.Equal(t, tt.wantStatus, status)
			assert.JSONEq(t, tt.wantBody, body)

			require.Equal(t, 1, svc.submitCalls)
			assert.Equal(t, "u1", svc.lastOrder.UserID)
			require.Len(t, svc.lastOrder.Items, 1)
			assert.Equal(t, 2, svc.lastOrder.Items[0].Quantity)
			assert.True(t, decimal.RequireFromString("21").Equal(svc.lastOrder.TotalAmount))
		})
	}
}

func TestSubmitOrder_BadRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantBody string
	}{
		{
			name:     "missing fields",
			body:     `{"user_id":"","items":[]}`,
			err:      validation.ErrMissingOrderFields,
			wantBody: `{"status":"failed","message":"Missing user_id or items"}`,
		},
		{
			name:     "invalid item",
			body:     `{"user_id":"u1","items":[{"product_id":"p1","quantity":0}]}`,
			err:      validation.ErrInvalidItem,
			wantBody: `{"status":"failed","message":"Invalid item in order"}`,
		},
		{
			name:     "malformed body",
			body:     `not json`,
			wantBody: `{"status":"failed","message":"Missing user_id or items"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{submitErr: tt.err}

			status, body := do(t, newTestRouter(t, svc), http.MethodPost, "/submitorder", tt.body)

			assert.Equal(t, http.StatusBadRequest, status)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	status, _ := do(t, newTestRouter(t, &stubService{}), http.MethodGet, "/submitorder", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestRouter_CORS(t *testing.T) {
	router := newTestRouter(t, &stubService{})

	preflight := httptest.NewRequest(http.MethodOptions, "/submitorder", nil)
	preflight.Header.Set("Origin", "http://shop.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, preflight)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://shop.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidateUser_CancelledRequestWritesNoBody(t *testing.T) {
	router := newTestRouter(t, &stubService{validateErr: context.Canceled})

	req := httptest.NewRequest(http.MethodPost, "/validateuser", strings.NewReader(`{"user_id":"u1","password":"pass123"}`))
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Zero(t, rec.Body.Len())
}

func TestRouter_Metrics(t *testing.T) {
	logger := zap.NewNop()

	status, _ := do(t, NewHandler(&stubService{}, logger, nil).SetupRouter(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, status)

	m := metrics.New(prometheus.NewRegistry())
	m.ObserveBatch("success", "200")

	router := NewHandler(&stubService{}, logger, m.Handler()).SetupRouter()

	status, body := do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "orderprocessor_orders_total")

	// Скрейпер Prometheus всегда просит gzip и распаковывает ответ один раз.
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(res.Body)
	require.NoError(t, err)
	defer zr.Close()

	text, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "# HELP"), "body is not exposition text: %q", text[:min(len(text), 16)])
	assert.Contains(t, string(text), `orderprocessor_orders_total{code="200",status="success"} 1`)
}
