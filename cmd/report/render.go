package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"ze-dashboard/internal/models"
)

type renderFunc func(io.Writer, *report) error

func renderer(format string) (renderFunc, error) {
	switch strings.ToLower(format) {
	case "table", "":
		return renderTable, nil
	case "json":
		return renderJSON, nil
	case "xlsx":
		return renderXLSX, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want table, json or xlsx)", format)
	}
}

func renderJSON(w io.Writer, rep *report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	categoryStyles = map[models.Category]lipgloss.Style{
		models.CategoryBelowAverage:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		models.CategoryUnderperforming:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		models.CategoryAtOrAboveAverage: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.CategoryStrong:           lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.CategoryExpected:         lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		models.CategoryUndefined:        mutedStyle,
	}
)

// table lays out plain cells in padded columns. Styles are applied after
// padding so widths are measured on the visible text.
type table struct {
	headers []string
	rows    [][]string
	styles  map[int]func(string) lipgloss.Style
}

func (t *table) render(w io.Writer) error {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for i, h := range t.headers {
		b.WriteString(headerStyle.Width(widths[i] + 2).Render(h))
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		for i, cell := range row {
			style := lipgloss.NewStyle()
			if f := t.styles[i]; f != nil {
				style = f(cell)
			}
			b.WriteString(style.Width(widths[i] + 2).Render(cell))
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func categoryStyle(cell string) lipgloss.Style {
	return categoryStyles[models.Category(cell)]
}

func optional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

func baseline(b models.Baseline) string {
	if !b.Defined {
		return "-"
	}
	return b.Value.StringFixed(2)
}

func performanceRows(records []models.PerformanceRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Key.EntityID,
			r.Key.Product,
			r.Observed.StringFixed(2),
			baseline(r.Baseline),
			optional(r.Delta),
			string(r.Category),
		})
	}
	return rows
}

func leaderLine(label string, r *models.PerformanceRecord) string {
	if r == nil {
		return label + ": -"
	}
	name := r.Key.EntityID
	if r.Key.Product != "" {
		name += "/" + r.Key.Product
	}
	return fmt.Sprintf("%s: %s (%s)", label, name, optional(r.Delta))
}

func renderTable(w io.Writer, rep *report) error {
	var b strings.Builder

	period := "no transactions"
	if rep.Period != nil {
		period = rep.Period.String()
	}
	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("Performance %s by %s (%s)", period, rep.Group, rep.Policy)))
	if len(rep.Records) == 0 {
		fmt.Fprintln(&b, mutedStyle.Render("No keys observed in this period."))
	} else {
		perf := &table{
			headers: []string{"Entity", "Product", "Observed", "Baseline", "Delta", "Category"},
			rows:    performanceRows(rep.Records),
			styles:  map[int]func(string) lipgloss.Style{5: categoryStyle},
		}
		if err := perf.render(&b); err != nil {
			return err
		}
		fmt.Fprintln(&b, leaderLine("Best", rep.Leaders.Best))
		fmt.Fprintln(&b, leaderLine("Worst", rep.Leaders.Worst))
	}

	s := rep.Summary
	fmt.Fprintln(&b, titleStyle.Render("Revenue as of "+s.AsOf))
	fmt.Fprintf(&b, "Today %s (%s vs yesterday)  This month %s (%s vs last month)\n",
		s.Today.StringFixed(2), s.DayDelta.StringFixed(2),
		s.CurrentMonth.StringFixed(2), s.MonthDelta.StringFixed(2))

	fmt.Fprintln(&b, titleStyle.Render("Firms"))
	firms := &table{
		headers: []string{"Firm", "Historical revenue", "Category", "Recommendation"},
		styles:  map[int]func(string) lipgloss.Style{2: categoryStyle},
	}
	for _, a := range rep.Firms {
		firms.rows = append(firms.rows, []string{
			a.Firm.Name,
			a.Firm.HistoricalRevenue.StringFixed(2),
			string(a.Category),
			a.Recommendation,
		})
	}
	if err := firms.render(&b); err != nil {
		return err
	}

	_, err := io.WriteString(w, b.String())
	return err
}

const (
	performanceSheet = "Performance"
	firmsSheet       = "Firms"
)

func renderXLSX(w io.Writer, rep *report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", performanceSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(firmsSheet); err != nil {
		return err
	}

	header := []any{"Entity", "Product", "Period", "Observed", "Baseline", "Delta", "Category"}
	if err := f.SetSheetRow(performanceSheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rep.Records {
		row := []any{r.Key.EntityID, r.Key.Product, r.Period.String(), r.Observed.InexactFloat64(), nil, nil, string(r.Category)}
		if r.Baseline.Defined {
			row[4] = r.Baseline.Value.InexactFloat64()
		}
		if r.Delta != nil {
			row[5] = r.Delta.InexactFloat64()
		}
		if err := f.SetSheetRow(performanceSheet, cell(1, i+2), &row); err != nil {
			return err
		}
	}

	header = []any{"Entity", "Firm", "Industry", "Historical revenue", "Balance", "Category", "Recommendation"}
	if err := f.SetSheetRow(firmsSheet, "A1", &header); err != nil {
		return err
	}
	for i, a := range rep.Firms {
		row := []any{
			a.Firm.EntityID,
			a.Firm.Name,
			a.Firm.Industry,
			a.Firm.HistoricalRevenue.InexactFloat64(),
			a.Firm.Balance.InexactFloat64(),
			string(a.Category),
			a.Recommendation,
		}
		if err := f.SetSheetRow(firmsSheet, cell(1, i+2), &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
