package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ze-dashboard/internal/config"
)

const firmsCSV = `entity_id,name,historical_revenue,industry,bank,package,balance
A,Pekara Sunce,5000,bakery,UniCredit,basic,120.50
B,Kafe Most,8000,cafe,Raiffeisen,pro,0
`

const posCSV = `entity_id,date,product,unit_price,quantity
A,2024-01-01,coffee,10,2
A,2024-01-02,coffee,10,3
B,2024-01-01,cake,4,5
B,2024-01-02,cake,4,2
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	firms := filepath.Join(dir, "firms.csv")
	pos := filepath.Join(dir, "pos.csv")
	require.NoError(t, os.WriteFile(firms, []byte(firmsCSV), 0o600))
	require.NoError(t, os.WriteFile(pos, []byte(posCSV), 0o600))

	t.Setenv("ZE_SOURCES_FIRMS", firms)
	t.Setenv("ZE_SOURCES_POS", pos)
	t.Setenv("ZE_SECURITY_RATE_LIMIT_ENABLED", "false")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return a
}

func TestHandleDashboard(t *testing.T) {
	w := httptest.NewRecorder()
	handleDashboard(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cacheMaxAge, w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), pageTitle)
	assert.Contains(t, w.Body.String(), "/sse/live")
}

func TestApp_ServesBeforeFirstLoad(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/performance", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestApp_EndToEnd(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.analytics.Refresh(context.Background()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/performance", nil)
	req.Header.Set("X-Request-ID", "req-42")
	a.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Period  string `json:"period"`
			Records []struct {
				Category string `json:"category"`
			} `json:"records"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "2024-01-02", resp.Data.Period)
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, "AT_OR_ABOVE_AVERAGE", resp.Data.Records[0].Category)
	assert.Equal(t, "BELOW_AVERAGE", resp.Data.Records[1].Category)

	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `ze_dashboard_http_requests_total{method="GET",route="GET /api/performance",status="200"}`)
	assert.Contains(t, body, "ze_dashboard_pipeline_refreshes_total")
}

func TestApp_InvalidPipelineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Policy = "median"

	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestApp_Upload(t *testing.T) {
	a := newTestApp(t)

	body := "entity_id,date,product,unit_price,quantity\nC,2024-05-01,bread,2,4\n"
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pos?name=may.csv", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	assert.Contains(t, w.Body.String(), `"source":"upload:may.csv"`)
}
