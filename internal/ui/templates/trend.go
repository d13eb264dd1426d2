package templates

import (
	"strings"

	"github.com/shopspring/decimal"

	"ze-dashboard/internal/models"
)

const (
	chartWidth  = 800
	chartHeight = 200
	chartPad    = 20
)

// marker is one plotted point with its hover label.
type marker struct {
	x, y  string
	label string
}

func markers(points []models.TrendPoint) []marker {
	peak := peakOf(points)
	out := make([]marker, 0, len(points))
	for i, p := range points {
		x, y := plot(i, len(points), p.Revenue, peak)
		out = append(out, marker{
			x:     coord(x),
			y:     coord(y),
			label: p.Period.String() + ": " + money(p.Revenue),
		})
	}
	return out
}

func polyline(points []models.TrendPoint) string {
	peak := peakOf(points)
	var b strings.Builder
	for i, p := range points {
		x, y := plot(i, len(points), p.Revenue, peak)
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(coord(x))
		b.WriteByte(',')
		b.WriteString(coord(y))
	}
	return b.String()
}

func peakOf(points []models.TrendPoint) decimal.Decimal {
	peak := decimal.Zero
	for _, p := range points {
		if p.Revenue.GreaterThan(peak) {
			peak = p.Revenue
		}
	}
	return peak
}

func coord(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

func plot(i, n int, v, peak decimal.Decimal) (float64, float64) {
	x := float64(chartPad)
	if n > 1 {
		x += float64(i) * float64(chartWidth-2*chartPad) / float64(n-1)
	}
	ratio := 0.0
	if peak.IsPositive() {
		ratio = v.Div(peak).InexactFloat64()
	}
	y := float64(chartHeight-chartPad) - ratio*float64(chartHeight-2*chartPad)
	return x, y
}
