package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), Recovery(slog.New(slog.NewTextHandler(io.Discard, nil))), RequestID)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"kind":"internal","message":"internal server error"}}`, rec.Body.String())
}

func TestRequestIDFrom(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-1", seen)
	assert.Empty(t, RequestIDFrom(req.Context()))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name        string
		expected    string
		provided    string
		debug       bool
		wantStatus  int
		wantMessage string
	}{
		{name: "valid", expected: "k", provided: "k", wantStatus: http.StatusOK},
		{name: "missing", expected: "k", wantStatus: http.StatusUnauthorized, wantMessage: "missing X-API-KEY header"},
		{name: "wrong", expected: "k", provided: "x", wantStatus: http.StatusUnauthorized, wantMessage: "invalid API key"},
		{name: "wrong with debug", expected: "k", provided: "x", debug: true, wantStatus: http.StatusUnauthorized, wantMessage: "x does not match k"},
		{name: "not configured", provided: "x", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))
			handler := APIKey(tt.expected, tt.debug, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPut, "/", nil)
			if tt.provided != "" {
				req.Header.Set("X-API-KEY", tt.provided)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantMessage != "" {
				assert.Contains(t, rec.Body.String(), tt.wantMessage)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, logs.String(), "level=WARN")
				assert.Contains(t, logs.String(), "kind=auth")
				assert.NotContains(t, logs.String(), "does not match")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor("validation"))
	assert.Equal(t, http.StatusUnauthorized, statusFor("auth"))
	assert.Equal(t, http.StatusNotFound, statusFor("not_found"))
	assert.Equal(t, http.StatusBadGateway, statusFor("upstream_render"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("store"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("internal"))
}

func TestAPIKey_LogsRejectionWithoutKeys(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequestID, APIKey("server-secret-1234", true, logger))

	req := httptest.NewRequest(http.MethodDelete, "/badges/proj", nil)
	req.Header.Set("X-API-KEY", "client-guess-5678")
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	out := logs.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "method=DELETE")
	assert.Contains(t, out, "path=/badges/proj")
	assert.Contains(t, out, "request_id=req-42")
	assert.Contains(t, out, `error="invalid API key"`)
	assert.NotContains(t, out, "server-secret-1234")
	assert.NotContains(t, out, "client-guess-5678")
}
