package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/metrics"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/render"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/service"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/storage"
)

const testAPIKey = "s3cret"

type testEnv struct {
	handler    http.Handler
	renderDown *atomic.Bool
	metrics    *metrics.Metrics
}

// newTestEnv wires the real service, render client and filesystem store
// against a fake render service that echoes the requested badge.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	down := &atomic.Bool{}
	renderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		badgePath := strings.TrimSuffix(strings.TrimPrefix(r.URL.EscapedPath(), "/badge/"), ".svg")
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte("<svg>" + badgePath + "</svg>"))
	}))
	t.Cleanup(renderSrv.Close)

	m := metrics.New()
	renderer, err := render.NewClient(render.Config{BaseURL: renderSrv.URL, Observer: m})
	require.NoError(t, err)

	store, err := storage.NewFilesystemStorage(filepath.Join(t.TempDir(), "badges"))
	require.NoError(t, err)

	badges, err := service.New(service.Config{
		Renderer: renderer,
		Storage:  storage.NewInstrumented(store, m),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	cfg := Config{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Badges:  badges,
		APIKey:  testAPIKey,
		Metrics: m,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)

	return &testEnv{handler: srv.Handler(), renderDown: down, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authorized {
		req.Header.Set("X-API-KEY", testAPIKey)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type errorResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Fields  []struct {
			Field  string `json:"field"`
			Reason string `json:"reason"`
		} `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "badge service is required")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPutThenGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/badges/myproject-coverage", `{"label":"coverage","value":85.5}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","location":"/badges/myproject-coverage"}`, rec.Body.String())
	assert.Equal(t, "/badges/myproject-coverage", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, "/v1/badges/myproject-coverage", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "<svg>coverage-85.5%25-yellowgreen</svg>", rec.Body.String())
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))
}

func TestPutThenGet_Brightgreen(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/badges/myproj", `{"label":"coverage","value":92}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/badges/myproj", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<svg>coverage-92%25-brightgreen</svg>", rec.Body.String())
}

func TestPutLiteral(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/badges/build", `{"label":"build status","value":{"text":"passing","color":"brightgreen"}}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/badges/build", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<svg>build+status-passing-brightgreen</svg>", rec.Body.String())
}

func TestPutValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "boolean value", body: `{"label":"coverage","value":true}`, wantField: "value"},
		{name: "out of range", body: `{"label":"coverage","value":101}`, wantField: "value"},
		{name: "numeric string", body: `{"label":"coverage","value":"85"}`, wantField: "value"},
		{name: "missing label", body: `{"value":50}`, wantField: "label"},
		{name: "literal without color", body: `{"label":"build","value":{"text":"ok"}}`, wantField: "value.color"},
		{name: "not json", body: `{label`, wantField: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPut, "/v1/badges/proj", tt.body, true)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, "validation", resp.Error.Kind)
			require.NotEmpty(t, resp.Error.Fields)
			assert.Equal(t, tt.wantField, resp.Error.Fields[0].Field)

			rec = env.do(t, http.MethodGet, "/v1/badges/proj", "", false)
			assert.Equal(t, http.StatusNotFound, rec.Code, "nothing stored")
		})
	}
}

func TestPutBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	body := `{"label":"` + strings.Repeat("x", MaxBodySize) + `","value":1}`
	rec := env.do(t, http.MethodPut, "/v1/badges/proj", body, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", decodeError(t, rec).Error.Fields[0].Field)
}

func TestRenderServiceDown(t *testing.T) {
	env := newTestEnv(t)
	env.renderDown.Store(true)

	rec := env.do(t, http.MethodPut, "/v1/badges/proj", `{"label":"coverage","value":50}`, true)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "upstream_render", resp.Error.Kind)
	assert.Equal(t, "render service returned status 503", resp.Error.Message)
}

func TestGetMissing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/badges/nonexistent", "", false)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error.Kind)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/badges/proj", `{"label":"coverage","value":50}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/badges/proj", "", true)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/badges/proj", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/badges/proj", "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code, "deleting twice succeeds")
}

func TestAuth(t *testing.T) {
	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPut, "/v1/badges/proj", `{"label":"coverage","value":50}`},
		{http.MethodDelete, "/v1/badges/proj", ""},
		{http.MethodPost, "/v1/coverage-reports", `{"name":"proj","reports":[]}`},
		{http.MethodPost, "/v1/coverage-profiles/proj", "mode: set\n"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			env := newTestEnv(t)

			for _, key := range []string{"", "wrong"} {
				req := httptest.NewRequest(route.method, route.path, strings.NewReader(route.body))
				if key != "" {
					req.Header.Set("X-API-KEY", key)
				}
				rec := httptest.NewRecorder()
				env.handler.ServeHTTP(rec, req)

				require.Equal(t, http.StatusUnauthorized, rec.Code)
				resp := decodeError(t, rec)
				assert.Equal(t, "auth", resp.Error.Kind)
				assert.NotContains(t, resp.Error.Message, testAPIKey)
			}
		})
	}

	t.Run("debug echoes keys", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.Debug = true })

		req := httptest.NewRequest(http.MethodDelete, "/v1/badges/proj", nil)
		req.Header.Set("X-API-KEY", "wrong")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "wrong does not match s3cret", decodeError(t, rec).Error.Message)
	})

	t.Run("server without key rejects writes", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.APIKey = "" })

		req := httptest.NewRequest(http.MethodDelete, "/v1/badges/proj", nil)
		req.Header.Set("X-API-KEY", "")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("reads need no key", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/v1/badges/proj", "", false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCoverageReport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/coverage-reports",
		`{"name":"proj","reports":[{"label":"unit","value":60},{"label":"integration","value":{"text":"n/a","color":"lightgrey"}}]}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `{"unit":"proj-unit","integration":"proj-integration"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/badges/proj-unit", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<svg>unit-60%25-orange</svg>", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/badges/proj-integration", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("invalid item", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/coverage-reports",
			`{"name":"other","reports":[{"label":"unit","value":60},{"label":"","value":60}]}`, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "reports[1].label", decodeError(t, rec).Error.Fields[0].Field)

		rec = env.do(t, http.MethodGet, "/v1/badges/other-unit", "", false)
		assert.Equal(t, http.StatusNotFound, rec.Code, "nothing stored")
	})

	t.Run("render failure", func(t *testing.T) {
		env.renderDown.Store(true)
		defer env.renderDown.Store(false)

		rec := env.do(t, http.MethodPost, "/v1/coverage-reports",
			`{"name":"proj","reports":[{"label":"unit","value":99}]}`, true)
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, decodeError(t, rec).Error.Message, "reports[0]")

		rec = env.do(t, http.MethodGet, "/v1/badges/proj-unit", "", false)
		assert.Equal(t, "<svg>unit-60%25-orange</svg>", rec.Body.String(), "previous badge kept")
	})
}

func TestCoverageProfile(t *testing.T) {
	env := newTestEnv(t)
	profile := "mode: set\nexample.com/p/a.go:1.1,2.2 3 1\nexample.com/p/a.go:3.1,4.2 1 0\n"

	rec := env.do(t, http.MethodPost, "/v1/coverage-profiles/proj?label="+url.QueryEscape("unit tests"), profile, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","location":"/badges/proj","percent":75,"statements":4,"covered":3}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/badges/proj", "", false)
	assert.Equal(t, "<svg>unit+tests-75%25-yellow</svg>", rec.Body.String())

	t.Run("invalid profile", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/coverage-profiles/proj", "garbage", true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "profile", decodeError(t, rec).Error.Fields[0].Field)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPut, "/v1/badges/proj", `{"label":"coverage","value":50}`, true)
	env.do(t, http.MethodGet, "/v1/badges/proj", "", false)

	rec := env.do(t, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `badgehouse_http_requests_total{method="GET",route="GET /v1/badges/{badgeName}",status="200"} 1`)
	assert.Contains(t, body, `badgehouse_renders_total{result="success"} 1`)
	assert.Contains(t, body, `badgehouse_storage_operations_total{op="put",result="success"} 1`)
}

func TestServer_StartShutdown(t *testing.T) {
	srv, err := New(Config{Port: 0, Badges: &stubBadges{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-errCh)
}

// stubBadges satisfies BadgeService for tests that never reach it.
type stubBadges struct {
	BadgeService
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/health", "", false)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}
