package revenue

import (
	"slices"

	"ze-dashboard/internal/models"
)

// Evaluate produces one record per key that has revenue in period. Baselines
// come from the key's earlier periods only. Records are ordered by key.
func Evaluate(rbp []models.RevenueByPeriod, period models.Period, c Classifier) []models.PerformanceRecord {
	history := make(map[models.Key]*accumulator)
	var current []models.RevenueByPeriod

	for _, r := range rbp {
		switch {
		case r.Period.Equal(period):
			current = append(current, r)
		case r.Period.Before(period):
			acc := history[r.Key]
			if acc == nil {
				acc = &accumulator{}
				history[r.Key] = acc
			}
			acc.add(r.Revenue)
		}
	}

	slices.SortFunc(current, func(a, b models.RevenueByPeriod) int {
		return a.Key.Compare(b.Key)
	})

	records := make([]models.PerformanceRecord, 0, len(current))
	for _, r := range current {
		var b models.Baseline
		if acc := history[r.Key]; acc != nil {
			b = acc.baseline()
		} else {
			b = accumulator{}.baseline()
		}

		cl := c.Classify(r.Revenue, b)
		records = append(records, models.PerformanceRecord{
			Key:      r.Key,
			Period:   period,
			Observed: r.Revenue,
			Baseline: b,
			Delta:    cl.Delta,
			Category: cl.Category,
		})
	}
	return records
}

// Rank picks the records with the highest and lowest delta. Records with an
// undefined delta are skipped. Ties go to the first record in key order.
func Rank(records []models.PerformanceRecord) models.Leaders {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b models.PerformanceRecord) int {
		return a.Key.Compare(b.Key)
	})

	var leaders models.Leaders
	for i := range ordered {
		r := &ordered[i]
		if r.Delta == nil {
			continue
		}
		if leaders.Best == nil || r.Delta.GreaterThan(*leaders.Best.Delta) {
			leaders.Best = r
		}
		if leaders.Worst == nil || r.Delta.LessThan(*leaders.Worst.Delta) {
			leaders.Worst = r
		}
	}
	return leaders
}
