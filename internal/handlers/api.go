package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"ze-dashboard/internal/errors"
	"ze-dashboard/internal/ingest"
	"ze-dashboard/internal/models"
	"ze-dashboard/internal/observability"
	"ze-dashboard/internal/services"
)

const cacheMaxAge = "public, max-age=30"

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	maxUpload int64
	version   string
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger, maxUpload int64, version string) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
		maxUpload: maxUpload,
		version:   version,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(r.Context(), w, h.logger, toAppError(err), observability.GetRequestID(r.Context()))
}

// toAppError maps pipeline errors onto API error codes.
func toAppError(err error) error {
	var appErr *errors.AppError
	var tooLarge *http.MaxBytesError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, services.ErrNoData):
		return errors.NoData("No data has been loaded yet")
	case stderrors.Is(err, ingest.ErrSchema):
		return errors.SchemaWrap(err, "Input does not have the required columns")
	case stderrors.Is(err, ingest.ErrValidation):
		return errors.ValidationWrap(err, "Input batch rejected")
	case stderrors.As(err, &tooLarge):
		return errors.PayloadTooLarge(fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
	default:
		return errors.InternalWrap(err, "An unexpected error occurred")
	}
}

func (h *APIHandlers) snapshot(w http.ResponseWriter, r *http.Request) (*services.Snapshot, bool) {
	snap, err := h.analytics.Snapshot()
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return snap, true
}

func (h *APIHandlers) HandleFirms(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", cacheMaxAge)
	errors.WriteSuccess(w, snap.Firms)
}

func (h *APIHandlers) HandleDailyRevenue(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	rbp := snap.Daily
	if r.URL.Query().Get("group") == "product" {
		rbp = snap.ProductDaily
	}
	w.Header().Set("Cache-Control", cacheMaxAge)
	errors.WriteSuccess(w, filterEntity(rbp, r.URL.Query().Get("entity")))
}

func (h *APIHandlers) HandleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", cacheMaxAge)
	errors.WriteSuccess(w, filterEntity(snap.Monthly, r.URL.Query().Get("entity")))
}

func filterEntity(rbp []models.RevenueByPeriod, entity string) []models.RevenueByPeriod {
	if entity == "" {
		return rbp
	}
	out := make([]models.RevenueByPeriod, 0)
	for _, r := range rbp {
		if r.Key.EntityID == entity {
			out = append(out, r)
		}
	}
	return out
}

func (h *APIHandlers) HandleTrend(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", cacheMaxAge)
	errors.WriteSuccess(w, snap.Trend)
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	errors.WriteSuccess(w, snap.Summary)
}

type performanceResponse struct {
	Group       models.GroupBy             `json:"group"`
	Granularity models.Granularity         `json:"granularity"`
	Policy      models.Policy              `json:"policy"`
	Period      *models.Period             `json:"period"`
	Records     []models.PerformanceRecord `json:"records"`
	Leaders     models.Leaders             `json:"leaders"`
}

// HandlePerformance serves ?group=entity|product and an optional ?period in
// the snapshot's granularity (YYYY-MM-DD or YYYY-MM). Without a period the
// latest one is used.
func (h *APIHandlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.performance(w, r)
	if !ok {
		return
	}
	errors.WriteSuccess(w, resp)
}

func (h *APIHandlers) HandleLeaders(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.performance(w, r)
	if !ok {
		return
	}
	errors.WriteSuccess(w, map[string]any{
		"group":   resp.Group,
		"period":  resp.Period,
		"leaders": resp.Leaders,
	})
}

func (h *APIHandlers) performance(w http.ResponseWriter, r *http.Request) (*performanceResponse, bool) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return nil, false
	}

	q := r.URL.Query()
	group, err := models.ParseGroupBy(q.Get("group"))
	if err != nil {
		h.fail(w, r, errors.BadRequest(err.Error()))
		return nil, false
	}

	resp := &performanceResponse{
		Group:       group,
		Granularity: snap.Granularity,
		Policy:      snap.Policy,
		Records:     []models.PerformanceRecord{},
	}

	if raw := q.Get("period"); raw != "" {
		period, err := parsePeriod(raw, snap.Granularity)
		if err != nil {
			h.fail(w, r, errors.BadRequest(err.Error()))
			return nil, false
		}
		records, leaders, err := h.analytics.PerformanceAt(group, period)
		if err != nil {
			h.fail(w, r, err)
			return nil, false
		}
		resp.Period = &period
		resp.Records = append(resp.Records, records...)
		resp.Leaders = leaders
		return resp, true
	}

	if snap.HasPeriod {
		period := snap.Period
		records, leaders := snap.Performance(group)
		resp.Period = &period
		resp.Records = append(resp.Records, records...)
		resp.Leaders = leaders
	}
	return resp, true
}

func parsePeriod(raw string, g models.Granularity) (models.Period, error) {
	layout := "2006-01-02"
	if g == models.GranularityMonth {
		layout = "2006-01"
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return models.Period{}, fmt.Errorf("period %q must be formatted as %s for %s granularity", raw, layout, g)
	}
	return models.PeriodOf(t, g), nil
}

// HandleUploadPOS accepts a CSV or XLSX export either as the raw body or as
// the "file" field of a multipart form.
func (h *APIHandlers) HandleUploadPOS(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r, h.maxUpload)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	n, err := h.analytics.IngestPOS(r.Context(), name, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
		"name":         name,
		"transactions": n,
	})
}

func (h *APIHandlers) HandleResetPOS(w http.ResponseWriter, r *http.Request) {
	if err := h.analytics.ResetPOS(r.Context()); err != nil {
		h.fail(w, r, refreshError(err))
		return
	}
	errors.WriteSuccess(w, h.analytics.Stats())
}

func (h *APIHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.analytics.Refresh(r.Context()); err != nil {
		h.fail(w, r, refreshError(err))
		return
	}
	errors.WriteSuccess(w, h.analytics.Stats())
}

// refreshError reports source failures as upstream errors; ingestion errors
// keep their own codes.
func refreshError(err error) error {
	if stderrors.Is(err, ingest.ErrSchema) || stderrors.Is(err, ingest.ErrValidation) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.UpstreamWrap(err, "Data source timed out")
	}
	return errors.UpstreamWrap(err, "Could not load data sources")
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if _, err := h.analytics.Snapshot(); err != nil {
		status = "waiting_for_data"
	}
	errors.WriteSuccess(w, map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.Stats())
}

const xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(limit); err != nil {
			return "", nil, uploadError(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.BadRequestWrap(err, `Multipart upload needs a "file" field`)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, uploadError(err)
		}
		return filepath.Base(header.Filename), data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, uploadError(err)
	}
	if len(data) == 0 {
		return "", nil, errors.BadRequest("Upload body is empty")
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.csv"
		if mediaType == xlsxMediaType {
			name = "upload.xlsx"
		}
	}
	return filepath.Base(name), data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return err
	}
	return errors.BadRequestWrap(err, "Could not read upload")
}
