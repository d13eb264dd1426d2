package revenue

import (
	"slices"

	"github.com/shopspring/decimal"

	"ze-dashboard/internal/models"
)

type bucket struct {
	key    models.Key
	period string
}

// Aggregate sums line revenue per (key, period). Groups without transactions
// are absent from the result rather than zero. Output is sorted by key, then
// period.
func Aggregate(txs []models.Transaction, group models.GroupBy, g models.Granularity) []models.RevenueByPeriod {
	groups := make(map[bucket]*models.RevenueByPeriod)

	for _, tx := range txs {
		period := models.PeriodOf(tx.Date, g)
		b := bucket{key: tx.Key(group), period: period.String()}

		agg := groups[b]
		if agg == nil {
			agg = &models.RevenueByPeriod{Key: b.key, Period: period, Revenue: decimal.Zero}
			groups[b] = agg
		}
		agg.Revenue = agg.Revenue.Add(tx.LineRevenue())
		agg.Transactions++
	}

	result := make([]models.RevenueByPeriod, 0, len(groups))
	for _, agg := range groups {
		result = append(result, *agg)
	}
	sortByKeyPeriod(result)
	return result
}

func sortByKeyPeriod(rbp []models.RevenueByPeriod) {
	slices.SortFunc(rbp, func(a, b models.RevenueByPeriod) int {
		if c := a.Key.Compare(b.Key); c != 0 {
			return c
		}
		return a.Period.Compare(b.Period)
	})
}

// Trend totals revenue per period across all keys, oldest first.
func Trend(rbp []models.RevenueByPeriod) []models.TrendPoint {
	totals := make(map[string]*models.TrendPoint)
	for _, r := range rbp {
		label := r.Period.String()
		p := totals[label]
		if p == nil {
			p = &models.TrendPoint{Period: r.Period, Revenue: decimal.Zero}
			totals[label] = p
		}
		p.Revenue = p.Revenue.Add(r.Revenue)
	}

	result := make([]models.TrendPoint, 0, len(totals))
	for _, p := range totals {
		result = append(result, *p)
	}
	slices.SortFunc(result, func(a, b models.TrendPoint) int {
		return a.Period.Compare(b.Period)
	})
	return result
}

func Total(rbp []models.RevenueByPeriod) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rbp {
		total = total.Add(r.Revenue)
	}
	return total
}

func TotalLineRevenue(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.LineRevenue())
	}
	return total
}

// LatestPeriod returns the most recent period present in rbp.
func LatestPeriod(rbp []models.RevenueByPeriod) (models.Period, bool) {
	if len(rbp) == 0 {
		return models.Period{}, false
	}
	latest := rbp[0].Period
	for _, r := range rbp[1:] {
		if latest.Before(r.Period) {
			latest = r.Period
		}
	}
	return latest, true
}
