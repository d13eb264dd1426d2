package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"ze-dashboard/internal/models"
)

// Transactions converts a point-of-sale table into typed records. Any schema
// or cell problem rejects the whole table.
func Transactions(t *Table) ([]models.Transaction, error) {
	const source = "transactions"

	idx, err := resolve(source, t.Header, transactionColumns)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	txs := make([]models.Transaction, 0, len(t.Rows))
	for i, row := range t.Rows {
		c := cells{row: row, idx: idx, line: t.Line(i)}
		tx := models.Transaction{
			EntityID:  c.text("entity_id"),
			Date:      c.date("date"),
			Product:   c.text("product"),
			UnitPrice: c.decimal("unit_price"),
			Quantity:  c.integer("quantity"),
		}
		if len(c.issues) == 0 {
			c.issues = validateRecord(tx, c.line)
		}
		issues = append(issues, c.issues...)
		txs = append(txs, tx)
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Source: source, Issues: issues}
	}
	return txs, nil
}

// Firms converts a firm registry table into typed records.
func Firms(t *Table) ([]models.Firm, error) {
	const source = "firms"

	idx, err := resolve(source, t.Header, firmColumns)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	firms := make([]models.Firm, 0, len(t.Rows))
	for i, row := range t.Rows {
		c := cells{row: row, idx: idx, line: t.Line(i)}
		f := models.Firm{
			EntityID:          c.text("entity_id"),
			Name:              c.text("name"),
			HistoricalRevenue: c.decimal("historical_revenue"),
			Industry:          c.text("industry"),
			Bank:              c.text("bank"),
			Package:           c.text("package"),
			Balance:           c.decimal("balance"),
		}
		if len(c.issues) == 0 {
			c.issues = validateRecord(f, c.line)
		}
		issues = append(issues, c.issues...)
		firms = append(firms, f)
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Source: source, Issues: issues}
	}
	return firms, nil
}

// CheckTransactions applies the record rules to in-memory transactions.
// Issue rows are 1-based record positions.
func CheckTransactions(txs []models.Transaction) error {
	var issues []Issue
	for i, tx := range txs {
		issues = append(issues, validateRecord(tx, i+1)...)
	}
	if len(issues) > 0 {
		return &ValidationError{Source: "transactions", Issues: issues}
	}
	return nil
}

// CheckFirms applies the record rules to in-memory firms.
func CheckFirms(firms []models.Firm) error {
	var issues []Issue
	for i, f := range firms {
		issues = append(issues, validateRecord(f, i+1)...)
	}
	if len(issues) > 0 {
		return &ValidationError{Source: "firms", Issues: issues}
	}
	return nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02.01.2006",
	"02.01.2006.",
	"02.01.2006 15:04",
	"01/02/2006",
}

type cells struct {
	row    []string
	idx    map[string]int
	line   int
	issues []Issue
}

func (c *cells) text(name string) string {
	i := c.idx[name]
	if i >= len(c.row) {
		return ""
	}
	return strings.TrimSpace(c.row[i])
}

func (c *cells) fail(name, value, reason string) {
	c.issues = append(c.issues, Issue{Row: c.line, Column: name, Value: value, Reason: reason})
}

func (c *cells) date(name string) time.Time {
	v := c.text(name)
	if v == "" {
		c.fail(name, v, "missing date")
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	if t, ok := excelSerial(v); ok {
		return t
	}
	c.fail(name, v, "unparseable date")
	return time.Time{}
}

// maxExcelSerial is 9999-12-31, the last date a workbook can hold.
const maxExcelSerial = 2958465

// excelSerial reads a workbook date cell stored as a day serial number.
func excelSerial(v string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 1 || serial > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

func (c *cells) decimal(name string) decimal.Decimal {
	v := c.text(name)
	if v == "" {
		c.fail(name, v, "missing number")
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		c.fail(name, v, "not a finite number")
		return decimal.Zero
	}
	return d
}

func (c *cells) integer(name string) int {
	v := c.text(name)
	if v == "" {
		c.fail(name, v, "missing number")
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.fail(name, v, "not an integer")
		return 0
	}
	return n
}
