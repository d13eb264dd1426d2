package handlers

import (
	"bufio"
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseEvents(body string) []string {
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
	}
	return events
}

func TestNewSSEHandlers(t *testing.T) {
	a, _ := newAnalytics(t)
	h := NewSSEHandlers(a, discard, 2048)

	require.NotNil(t, h)
	assert.Same(t, a, h.analytics)
	assert.Equal(t, int64(2048), h.maxUpload)
}

func TestSSEHandlers_Sections(t *testing.T) {
	h := NewSSEHandlers(loadedAnalytics(t), discard, 1<<20)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    []string
	}{
		{"firms", h.HandleFirms, []string{`id="firms"`, "Pekara Sunce", "UNDERPERFORMING"}},
		{"performance", h.HandlePerformance, []string{`id="performance"`, "2024-01-02", "BELOW_AVERAGE"}},
		{"revenue", h.HandleRevenue, []string{`id="summary"`, `id="trend"`, "58.00 KM"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/sse/"+tt.name, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
			body := w.Body.String()
			assert.Contains(t, sseEvents(body), "datastar-patch-elements")
			for _, want := range tt.want {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestSSEHandlers_SectionsBeforeLoad(t *testing.T) {
	a, _ := newAnalytics(t)
	h := NewSSEHandlers(a, discard, 1<<20)

	w := httptest.NewRecorder()
	h.HandleFirms(w, httptest.NewRequest(http.MethodGet, "/sse/firms", nil))

	body := w.Body.String()
	assert.Contains(t, body, `id="firms"`)
	assert.Contains(t, body, noDataMessage)
}

func TestSSEHandlers_HandleRefreshAll(t *testing.T) {
	h := NewSSEHandlers(loadedAnalytics(t), discard, 1<<20)

	w := httptest.NewRecorder()
	h.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all", nil))

	body := w.Body.String()
	events := sseEvents(body)
	assert.Equal(t, 4, strings.Count(strings.Join(events, " "), "datastar-patch-elements"))
	assert.Contains(t, events, "datastar-patch-signals")
	assert.Contains(t, body, `"transactions":6`)
	assert.Contains(t, body, `"period":"2024-01-02"`)
	assert.NotContains(t, body, `id="status"`)
}

func TestSSEHandlers_HandleRefreshAll_Reload(t *testing.T) {
	a, f := newAnalytics(t)
	h := NewSSEHandlers(a, discard, 1<<20)

	w := httptest.NewRecorder()
	h.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all?reload=1", nil))
	assert.Contains(t, w.Body.String(), "Data reloaded.")
	assert.Contains(t, w.Body.String(), "Pekara Sunce")

	f.fail(context.DeadlineExceeded)
	w = httptest.NewRecorder()
	h.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all?reload=1", nil))
	body := w.Body.String()
	assert.Contains(t, body, "Refresh failed, showing previous data")
	assert.Contains(t, body, "Pekara Sunce")
}

func TestSSEHandlers_HandleUpload(t *testing.T) {
	a := loadedAnalytics(t)
	h := NewSSEHandlers(a, discard, 1<<20)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "feb.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("entity_id,date,product,unit_price,quantity\nA,2024-02-01,coffee,10,1\nA,2024-02-02,coffee,10,2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sse/pos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.HandleUpload(w, req)

	assert.Contains(t, w.Body.String(), "Accepted 2 transactions from feb.csv.")
	snap, err := a.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Transactions)
}

func TestSSEHandlers_HandleUpload_Rejected(t *testing.T) {
	a := loadedAnalytics(t)
	h := NewSSEHandlers(a, discard, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/sse/pos?name=bad.csv",
		strings.NewReader("entity_id,date,product\nA,2024-02-01,coffee\n"))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	h.HandleUpload(w, req)

	body := w.Body.String()
	assert.Contains(t, body, `id="status"`)
	assert.Contains(t, body, "Input does not have the required columns")
	assert.Contains(t, body, "unit_price")

	snap, err := a.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Transactions)
}

func TestSSEHandlers_HandleLive(t *testing.T) {
	a := loadedAnalytics(t)
	h := NewSSEHandlers(a, discard, 1<<20)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleLive))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	nextSignals := func() string {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: signals "); ok {
				return data
			}
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return ""
	}

	assert.Contains(t, nextSignals(), `"transactions":6`)

	_, err = a.IngestPOS(context.Background(), "feb.csv",
		[]byte("entity_id,date,product,unit_price,quantity\nA,2024-02-01,coffee,10,1\n"))
	require.NoError(t, err)

	assert.Contains(t, nextSignals(), `"transactions":1`)

	cancel()
	assert.Eventually(t, func() bool {
		return a.Stats()["subscribers"] == 0
	}, 5*time.Second, 10*time.Millisecond)
}
