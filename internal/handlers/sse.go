package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"ze-dashboard/internal/errors"
	"ze-dashboard/internal/services"
	"ze-dashboard/internal/ui/templates"
)

const noDataMessage = "No data loaded yet. Waiting for the first refresh."

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	maxUpload int64
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger, maxUpload int64) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

func (h *SSEHandlers) patch(ctx context.Context, sse *datastar.ServerSentEventGenerator, components ...templ.Component) error {
	for _, c := range components {
		html, err := templates.String(ctx, c)
		if err != nil {
			return fmt.Errorf("render fragment: %w", err)
		}
		if err := sse.PatchElements(html); err != nil {
			return fmt.Errorf("patch elements: %w", err)
		}
	}
	return nil
}

// section renders one part of the page from the current snapshot, or a
// placeholder before the first load.
func (h *SSEHandlers) section(w http.ResponseWriter, r *http.Request, id string, build func(*services.Snapshot) []templ.Component) {
	sse := datastar.NewSSE(w, r)

	var components []templ.Component
	snap, err := h.analytics.Snapshot()
	switch {
	case stderrors.Is(err, services.ErrNoData):
		components = []templ.Component{templates.Empty(id, noDataMessage)}
	case err != nil:
		h.logger.ErrorContext(r.Context(), "load snapshot", "error", err)
		return
	default:
		components = build(snap)
	}

	if err := h.patch(r.Context(), sse, components...); err != nil {
		h.logger.WarnContext(r.Context(), "sse patch failed", "section", id, "error", err)
	}
}

func (h *SSEHandlers) HandleFirms(w http.ResponseWriter, r *http.Request) {
	h.section(w, r, "firms", func(s *services.Snapshot) []templ.Component {
		return []templ.Component{templates.Firms(s.Firms)}
	})
}

func (h *SSEHandlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	h.section(w, r, "performance", func(s *services.Snapshot) []templ.Component {
		return []templ.Component{performanceFragment(s)}
	})
}

func (h *SSEHandlers) HandleRevenue(w http.ResponseWriter, r *http.Request) {
	h.section(w, r, "summary", func(s *services.Snapshot) []templ.Component {
		return []templ.Component{templates.Summary(s.Summary), templates.Trend(s.Trend)}
	})
}

func performanceFragment(s *services.Snapshot) templ.Component {
	if !s.HasPeriod {
		return templates.Empty("performance", "No transactions to evaluate.")
	}
	return templates.PerformanceTables(s.Period.String(), s.Entities, s.Products, s.EntityLeaders)
}

// patchAll sends every section plus the header signals.
func (h *SSEHandlers) patchAll(ctx context.Context, sse *datastar.ServerSentEventGenerator) error {
	snap, err := h.analytics.Snapshot()
	if stderrors.Is(err, services.ErrNoData) {
		return h.patch(ctx, sse, templates.Empty("summary", noDataMessage))
	}
	if err != nil {
		return err
	}

	if err := h.patch(ctx, sse,
		templates.Summary(snap.Summary),
		templates.Trend(snap.Trend),
		performanceFragment(snap),
		templates.Firms(snap.Firms),
	); err != nil {
		return err
	}

	period := ""
	if snap.HasPeriod {
		period = snap.Period.String()
	}
	signals, err := json.Marshal(map[string]any{
		"refreshedAt":  snap.RefreshedAt.Format(time.DateTime),
		"transactions": snap.Transactions,
		"period":       period,
	})
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	return sse.PatchSignals(signals)
}

// HandleRefreshAll re-sends every section. With ?reload=1 it first reloads
// the data sources; a failed reload is reported and the old data is shown.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	var status templ.Component
	if r.URL.Query().Get("reload") != "" {
		if err := h.analytics.Refresh(r.Context()); err != nil {
			status = templates.Status("error", "Refresh failed, showing previous data: "+err.Error())
		} else {
			status = templates.Status("ok", "Data reloaded.")
		}
	}

	sse := datastar.NewSSE(w, r)
	if status != nil {
		if err := h.patch(r.Context(), sse, status); err != nil {
			h.logger.WarnContext(r.Context(), "sse patch failed", "error", err)
			return
		}
	}
	if err := h.patchAll(r.Context(), sse); err != nil {
		h.logger.WarnContext(r.Context(), "sse patch failed", "error", err)
	}
}

// HandleLive streams the whole dashboard, then again after every published
// snapshot, until the client goes away.
func (h *SSEHandlers) HandleLive(w http.ResponseWriter, r *http.Request) {
	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	updates, unsubscribe := h.analytics.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	sse := datastar.NewSSE(w, r)
	if err := h.patchAll(ctx, sse); err != nil {
		h.logger.WarnContext(ctx, "live stream closed", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.patchAll(ctx, sse); err != nil {
				h.logger.WarnContext(ctx, "live stream closed", "error", err)
				return
			}
		}
	}
}

// HandleUpload is the dashboard form's upload path. Outcomes are reported in
// the status element; live streams pick up the new snapshot on their own.
func (h *SSEHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r, h.maxUpload)
	var n int
	if err == nil {
		n, err = h.analytics.IngestPOS(r.Context(), name, data)
	}

	status := templates.Status("ok", fmt.Sprintf("Accepted %d transactions from %s.", n, name))
	if err != nil {
		status = templates.Status("error", uploadMessage(err))
	}

	sse := datastar.NewSSE(w, r)
	if err := h.patch(r.Context(), sse, status); err != nil {
		h.logger.WarnContext(r.Context(), "sse patch failed", "error", err)
	}
}

func uploadMessage(err error) string {
	var appErr *errors.AppError
	if !stderrors.As(toAppError(err), &appErr) {
		return "Upload failed."
	}
	if appErr.Details != "" {
		return appErr.Message + ": " + appErr.Details
	}
	return appErr.Message
}
