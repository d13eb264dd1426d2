package server

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ze-dashboard/internal/config"
	"ze-dashboard/internal/models"
	"ze-dashboard/internal/observability"
	"ze-dashboard/internal/services"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type noFetcher struct{}

func (noFetcher) Fetch(context.Context, string) ([]byte, error) {
	return nil, stderrors.New("no source configured")
}

func newTestServer(t *testing.T) (*Server, *services.Analytics) {
	t.Helper()
	m := observability.NewMetrics()
	a, err := services.NewAnalytics(noFetcher{}, services.Options{Logger: discard, Metrics: m})
	require.NoError(t, err)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.SetData(
		[]models.Firm{{EntityID: "A", Name: "Pekara"}},
		[]models.Transaction{
			{EntityID: "A", Date: day, Product: "bread", UnitPrice: decimal.NewFromInt(2), Quantity: 5},
			{EntityID: "A", Date: day.AddDate(0, 0, 1), Product: "bread", UnitPrice: decimal.NewFromInt(2), Quantity: 7},
		},
	))

	dashboard := func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "dashboard")
	}
	return NewServer(a, discard, &TemplateHandlers{Dashboard: dashboard}, Options{
		Metrics:        m,
		MaxUploadBytes: 1 << 20,
		Version:        "test",
	}), a
}

func TestServer_Routes(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/admin/stats", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/firms", http.StatusOK},
		{http.MethodGet, "/api/revenue/daily", http.StatusOK},
		{http.MethodGet, "/api/revenue/monthly", http.StatusOK},
		{http.MethodGet, "/api/trend", http.StatusOK},
		{http.MethodGet, "/api/summary", http.StatusOK},
		{http.MethodGet, "/api/performance", http.StatusOK},
		{http.MethodGet, "/api/leaders", http.StatusOK},
		{http.MethodGet, "/sse/firms", http.StatusOK},
		{http.MethodGet, "/sse/performance", http.StatusOK},
		{http.MethodGet, "/sse/revenue", http.StatusOK},
		{http.MethodGet, "/sse/refresh-all", http.StatusOK},
		{http.MethodGet, "/missing", http.StatusNotFound},
		{http.MethodPost, "/api/firms", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/pos", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestServer_MetricsExposeRefreshes(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Contains(t, w.Body.String(), "ze_dashboard_")
}

func TestServer_UploadThenReset(t *testing.T) {
	srv, a := newTestServer(t)

	body := "entity_id,date,product,unit_price,quantity\nB,2024-03-01,cake,4,1\n"
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pos", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	snap, err := a.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Transactions)

	// The configured source is unreachable, so the reset reload fails
	// upstream and the uploaded data stays served.
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/pos", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	snap, err = a.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Transactions)
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestGracefulServer_ShutdownRunsHooks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := NewGracefulServer(&http.Server{Handler: http.NotFoundHandler()}, discard, testServerConfig())

	var calls atomic.Int32
	for range 3 {
		gs.RegisterShutdownHook(func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestGracefulServer_HookErrorIsReturned(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := NewGracefulServer(&http.Server{Handler: http.NotFoundHandler()}, discard, testServerConfig())
	boom := stderrors.New("flush failed")
	gs.RegisterShutdownHook(func(context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = gs.Serve(ctx, ln)
	assert.ErrorIs(t, err, boom)
}

func TestGracefulServer_ShutdownEndsStreams(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	})
	gs := NewGracefulServer(&http.Server{Handler: stream}, discard, testServerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	<-started

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("open stream blocked shutdown")
	}
}

func TestGracefulServer_RunListenError(t *testing.T) {
	gs := NewGracefulServer(&http.Server{Addr: "256.0.0.1:bad"}, discard, testServerConfig())
	assert.Error(t, gs.Run(context.Background()))
}
