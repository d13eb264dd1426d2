package templates

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ze-dashboard/internal/models"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

func TestDashboard(t *testing.T) {
	out := render(t, Dashboard("Revenue <dashboard>"))

	assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
	assert.Contains(t, out, "<title>Revenue &lt;dashboard&gt;</title>")
	assert.Contains(t, out, `data-init="@get('/sse/live')"`)
	for _, id := range []string{"status", "summary", "trend", "performance", "firms", "upload"} {
		assert.Contains(t, out, `id="`+id+`"`)
	}
}

func TestFirms_EscapesAndBadges(t *testing.T) {
	out := render(t, Firms([]models.FirmAssessment{{
		Firm: models.Firm{
			Name:              `<script>alert("x")</script>`,
			HistoricalRevenue: decimal.NewFromInt(5000),
			Balance:           decimal.RequireFromString("12.5"),
		},
		Category:       models.CategoryUnderperforming,
		Recommendation: "underperforming",
	}}))

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "5000.00 KM")
	assert.Contains(t, out, "12.50 KM")
	assert.Contains(t, out, `<span class="badge UNDERPERFORMING">UNDERPERFORMING</span>`)
}

func TestFirms_Empty(t *testing.T) {
	assert.Contains(t, render(t, Firms(nil)), "No firms loaded.")
}

func TestPerformanceTables(t *testing.T) {
	delta := decimal.NewFromInt(5)
	worst := decimal.NewFromInt(-12)
	entities := []models.PerformanceRecord{
		{
			Key:      models.Key{EntityID: "A"},
			Observed: decimal.NewFromInt(30),
			Baseline: models.Baseline{Value: decimal.NewFromInt(25), Periods: 1, Defined: true},
			Delta:    &delta,
			Category: models.CategoryAtOrAboveAverage,
		},
		{
			Key:      models.Key{EntityID: "B"},
			Observed: decimal.NewFromInt(8),
			Baseline: models.Baseline{Value: decimal.NewFromInt(20), Periods: 1, Defined: true},
			Delta:    &worst,
			Category: models.CategoryBelowAverage,
		},
		{
			Key:      models.Key{EntityID: "C"},
			Observed: decimal.NewFromInt(20),
			Category: models.CategoryUndefined,
		},
	}
	leaders := models.Leaders{Best: &entities[0], Worst: &entities[1]}

	out := render(t, PerformanceTables("2024-01-02", entities, nil, leaders))

	assert.Contains(t, out, `<section id="performance">`)
	assert.Contains(t, out, "Performance for 2024-01-02")
	assert.Contains(t, out, "Best: <strong>A</strong> (+5.00 KM)")
	assert.Contains(t, out, "Worst: <strong>B</strong> (-12.00 KM)")
	assert.Contains(t, out, `<td class="num up">+5.00 KM</td>`)
	assert.Contains(t, out, "No revenue in this period.")
	// C has neither a baseline nor a delta.
	assert.Equal(t, 2, strings.Count(out, `<td class="num">&ndash;</td>`))
}

func TestSummary(t *testing.T) {
	out := render(t, Summary(models.RevenueSummary{
		AsOf:         "2024-01-02",
		Today:        decimal.NewFromInt(58),
		Yesterday:    decimal.NewFromInt(45),
		DayDelta:     decimal.NewFromInt(13),
		CurrentMonth: decimal.NewFromInt(103),
		MonthDelta:   decimal.NewFromInt(103),
	}))

	assert.Contains(t, out, "Revenue as of 2024-01-02")
	assert.Contains(t, out, `<div class="delta up">+13.00 KM</div>`)
	assert.Contains(t, out, "0.00 KM")
}

func TestTrend(t *testing.T) {
	day := func(d int) models.Period {
		return models.PeriodOf(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC), models.GranularityDay)
	}
	out := render(t, Trend([]models.TrendPoint{
		{Period: day(1), Revenue: decimal.NewFromInt(50)},
		{Period: day(2), Revenue: decimal.NewFromInt(100)},
	}))

	assert.Contains(t, out, `points="20.0,100.0 780.0,20.0"`)
	assert.Contains(t, out, "<title>2024-01-02: 100.00 KM</title>")

	assert.Contains(t, render(t, Trend(nil)), "No transactions.")
}

func TestStatusAndEmpty(t *testing.T) {
	assert.Equal(t, `<div id="status" class="status error">bad &amp; worse</div>`, render(t, Status("error", "bad & worse")))
	assert.Equal(t, `<section id="firms"><p class="empty">none</p></section>`, render(t, Empty("firms", "none")))
}

func TestComponents_EscapeAttributes(t *testing.T) {
	out := render(t, Empty(`x" onclick="alert(1)`, "none"))
	assert.Contains(t, out, `<section id="x&#34; onclick=&#34;alert(1)">`)

	out = render(t, Status(`ok" onmouseover="x`, "done"))
	assert.NotContains(t, out, `" onmouseover="`)
}

func TestComponents_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	components := map[string]templ.Component{
		"dashboard":   Dashboard("t"),
		"summary":     Summary(models.RevenueSummary{}),
		"firms":       Firms(nil),
		"performance": PerformanceTables("p", nil, nil, models.Leaders{}),
		"trend":       Trend(nil),
	}
	for name, c := range components {
		var b strings.Builder
		err := c.Render(ctx, &b)
		assert.ErrorIs(t, err, context.Canceled, name)
		assert.Empty(t, b.String(), name)
	}
}

func TestString(t *testing.T) {
	out, err := String(context.Background(), Status("ok", "done"))
	require.NoError(t, err)
	assert.Contains(t, out, "done")
}
