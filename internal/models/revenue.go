package models

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type GroupBy string

const (
	GroupEntity        GroupBy = "entity"
	GroupEntityProduct GroupBy = "entity_product"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(s))) {
	case GroupEntity, "", "firm":
		return GroupEntity, nil
	case GroupEntityProduct, "product", "entity-product":
		return GroupEntityProduct, nil
	default:
		return "", fmt.Errorf("unknown grouping %q", s)
	}
}

// Key identifies an aggregation group. Product is empty unless the group is
// GroupEntityProduct.
type Key struct {
	EntityID string `json:"entity_id"`
	Product  string `json:"product,omitempty"`
}

func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.EntityID, o.EntityID); c != 0 {
		return c
	}
	return cmp.Compare(k.Product, o.Product)
}

func (k Key) String() string {
	if k.Product == "" {
		return k.EntityID
	}
	return k.EntityID + "/" + k.Product
}

type RevenueByPeriod struct {
	Key          Key             `json:"key"`
	Period       Period          `json:"period"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

// Baseline is a historical mean. Defined is false when there were no prior
// periods to average; Value is meaningless in that case.
type Baseline struct {
	Value   decimal.Decimal `json:"value"`
	Periods int             `json:"periods"`
	Defined bool            `json:"defined"`
}

type TrendPoint struct {
	Period  Period          `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
}

// RevenueSummary compares the reference day and month with the ones before.
type RevenueSummary struct {
	AsOf         string          `json:"as_of"`
	Today        decimal.Decimal `json:"today"`
	Yesterday    decimal.Decimal `json:"yesterday"`
	DayDelta     decimal.Decimal `json:"day_delta"`
	CurrentMonth decimal.Decimal `json:"current_month"`
	LastMonth    decimal.Decimal `json:"last_month"`
	MonthDelta   decimal.Decimal `json:"month_delta"`
}
