package revenue

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ze-dashboard/internal/models"
)

type Classification struct {
	Delta    *decimal.Decimal
	Category models.Category
}

// Classifier assigns a performance category to an observed value given its
// baseline. An undefined baseline always yields CategoryUndefined and a nil
// delta.
type Classifier interface {
	Policy() models.Policy
	Classify(observed decimal.Decimal, b models.Baseline) Classification
}

// TwoWay compares against the baseline: below it or not.
type TwoWay struct{}

func (TwoWay) Policy() models.Policy { return models.PolicyTwoWay }

func (TwoWay) Classify(observed decimal.Decimal, b models.Baseline) Classification {
	if !b.Defined {
		return Classification{Category: models.CategoryUndefined}
	}
	delta := observed.Sub(b.Value)
	if delta.IsNegative() {
		return Classification{Delta: &delta, Category: models.CategoryBelowAverage}
	}
	return Classification{Delta: &delta, Category: models.CategoryAtOrAboveAverage}
}

// ThreeWay buckets the absolute value with fixed thresholds: below Low is
// underperforming, above High is strong, anything in [Low, High] is expected.
type ThreeWay struct {
	Low  decimal.Decimal
	High decimal.Decimal
}

func DefaultThreeWay() ThreeWay {
	return ThreeWay{Low: decimal.NewFromInt(6000), High: decimal.NewFromInt(10000)}
}

func (ThreeWay) Policy() models.Policy { return models.PolicyThreeWay }

// Categorize classifies a standalone value, such as a firm's historical
// revenue, that has no baseline to compare against.
func (t ThreeWay) Categorize(value decimal.Decimal) models.Category {
	switch {
	case value.LessThan(t.Low):
		return models.CategoryUnderperforming
	case value.GreaterThan(t.High):
		return models.CategoryStrong
	default:
		return models.CategoryExpected
	}
}

func (t ThreeWay) Classify(observed decimal.Decimal, b models.Baseline) Classification {
	if !b.Defined {
		return Classification{Category: models.CategoryUndefined}
	}
	delta := observed.Sub(b.Value)
	return Classification{Delta: &delta, Category: t.Categorize(observed)}
}

func (t ThreeWay) validate() error {
	if t.High.LessThan(t.Low) {
		return fmt.Errorf("three-way thresholds: high %s is below low %s", t.High, t.Low)
	}
	return nil
}

// NewClassifier selects a strategy by policy name. thresholds is used only
// for the three-way policy.
func NewClassifier(policy models.Policy, thresholds ThreeWay) (Classifier, error) {
	switch policy {
	case models.PolicyTwoWay:
		return TwoWay{}, nil
	case models.PolicyThreeWay:
		if err := thresholds.validate(); err != nil {
			return nil, err
		}
		return thresholds, nil
	default:
		return nil, fmt.Errorf("unknown classification policy %q", policy)
	}
}
