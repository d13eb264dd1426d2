package revenue

import (
	"github.com/shopspring/decimal"

	"ze-dashboard/internal/models"
)

// ComputeBaseline averages the key's revenue over the periods strictly before
// evaluated. The evaluated period never contributes to its own baseline. With
// no prior period the baseline is undefined.
func ComputeBaseline(rbp []models.RevenueByPeriod, key models.Key, evaluated models.Period) models.Baseline {
	var acc accumulator
	for _, r := range rbp {
		if r.Key == key && r.Period.Before(evaluated) {
			acc.add(r.Revenue)
		}
	}
	return acc.baseline()
}

type accumulator struct {
	sum decimal.Decimal
	n   int
}

func (a *accumulator) add(v decimal.Decimal) {
	a.sum = a.sum.Add(v)
	a.n++
}

func (a accumulator) baseline() models.Baseline {
	if a.n == 0 {
		return models.Baseline{Value: decimal.Zero}
	}
	return models.Baseline{
		Value:   a.sum.Div(decimal.NewFromInt(int64(a.n))),
		Periods: a.n,
		Defined: true,
	}
}
