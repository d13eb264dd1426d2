package revenue

import (
	"time"

	"github.com/shopspring/decimal"

	"ze-dashboard/internal/models"
)

// Summarize compares the day and month containing asOf with the day and month
// before them. Days without sales count as zero here: these are totals, not
// per-period aggregates.
func Summarize(txs []models.Transaction, asOf time.Time) models.RevenueSummary {
	today := models.PeriodOf(asOf, models.GranularityDay)
	yesterday := today.Prev()
	month := models.PeriodOf(asOf, models.GranularityMonth)
	lastMonth := month.Prev()

	s := models.RevenueSummary{
		AsOf:         today.String(),
		Today:        decimal.Zero,
		Yesterday:    decimal.Zero,
		CurrentMonth: decimal.Zero,
		LastMonth:    decimal.Zero,
	}

	for _, tx := range txs {
		rev := tx.LineRevenue()

		switch day := models.PeriodOf(tx.Date, models.GranularityDay); {
		case day.Equal(today):
			s.Today = s.Today.Add(rev)
		case day.Equal(yesterday):
			s.Yesterday = s.Yesterday.Add(rev)
		}

		switch m := models.PeriodOf(tx.Date, models.GranularityMonth); {
		case m.Equal(month):
			s.CurrentMonth = s.CurrentMonth.Add(rev)
		case m.Equal(lastMonth):
			s.LastMonth = s.LastMonth.Add(rev)
		}
	}

	s.DayDelta = s.Today.Sub(s.Yesterday)
	s.MonthDelta = s.CurrentMonth.Sub(s.LastMonth)
	return s
}
