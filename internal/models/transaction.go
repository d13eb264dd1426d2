package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single point-of-sale line after ingestion.
type Transaction struct {
	EntityID  string          `json:"entity_id" validate:"required"`
	Date      time.Time       `json:"date" validate:"required"`
	Product   string          `json:"product"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
}

func (t Transaction) LineRevenue() decimal.Decimal {
	return t.UnitPrice.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

func (t Transaction) Key(group GroupBy) Key {
	if group == GroupEntityProduct {
		return Key{EntityID: t.EntityID, Product: t.Product}
	}
	return Key{EntityID: t.EntityID}
}

// Firm is a row of the firm registry.
type Firm struct {
	EntityID          string          `json:"entity_id" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	HistoricalRevenue decimal.Decimal `json:"historical_revenue"`
	Industry          string          `json:"industry"`
	Bank              string          `json:"bank"`
	Package           string          `json:"package"`
	Balance           decimal.Decimal `json:"balance"`
}

type FirmAssessment struct {
	Firm           Firm     `json:"firm"`
	Category       Category `json:"category"`
	Recommendation string   `json:"recommendation"`
}
