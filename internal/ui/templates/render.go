// Package templates renders the dashboard page and the fragments that SSE
// handlers patch into it. Every fragment's root element carries the id it
// replaces.
package templates

//go:generate templ generate

import (
	"context"
	"strings"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"
)

// String renders c into a string, for patching over SSE.
func String(ctx context.Context, c templ.Component) (string, error) {
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " KM"
}

func signedMoney(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + money(d)
	}
	return money(d)
}

func trendClass(d decimal.Decimal) string {
	switch {
	case d.IsPositive():
		return "up"
	case d.IsNegative():
		return "down"
	default:
		return "flat"
	}
}
