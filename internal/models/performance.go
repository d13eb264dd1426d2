package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryUndefined        Category = "UNDEFINED"
	CategoryBelowAverage     Category = "BELOW_AVERAGE"
	CategoryAtOrAboveAverage Category = "AT_OR_ABOVE_AVERAGE"
	CategoryUnderperforming  Category = "UNDERPERFORMING"
	CategoryExpected         Category = "EXPECTED"
	CategoryStrong           Category = "STRONG"
)

// Policy names a classification strategy.
type Policy string

const (
	PolicyTwoWay   Policy = "two-way"
	PolicyThreeWay Policy = "three-way"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyTwoWay, "", "twoway", "relative":
		return PolicyTwoWay, nil
	case PolicyThreeWay, "threeway", "threshold":
		return PolicyThreeWay, nil
	default:
		return "", fmt.Errorf("unknown classification policy %q", s)
	}
}

// PerformanceRecord is produced per key for the evaluated period. Delta is nil
// when the baseline is undefined.
type PerformanceRecord struct {
	Key      Key              `json:"key"`
	Period   Period           `json:"period"`
	Observed decimal.Decimal  `json:"observed"`
	Baseline Baseline         `json:"baseline"`
	Delta    *decimal.Decimal `json:"delta"`
	Category Category         `json:"category"`
}

type Leaders struct {
	Best  *PerformanceRecord `json:"best"`
	Worst *PerformanceRecord `json:"worst"`
}
