package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is raw tabular input: a header row followed by data rows. Lines[i] is
// the 1-based source line (CSV) or sheet row (XLSX) where Rows[i] starts.
type Table struct {
	Header []string
	Rows   [][]string
	Lines  []int
}

// Line returns the source line of data row i.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

var zipMagic = []byte("PK\x03\x04")

// ReadTable decodes CSV or XLSX bytes. XLSX is chosen by file extension or by
// the zip signature at the start of data.
func ReadTable(name string, data []byte) (*Table, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") || bytes.HasPrefix(data, zipMagic) {
		return ReadXLSX(bytes.NewReader(data))
	}
	return ReadCSV(bytes.NewReader(data))
}

func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return newTable(records, lines)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &SchemaError{Source: "xlsx", Reason: "workbook has no sheets"}
	}

	// Raw values keep dates as serial numbers and numbers unformatted.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return newTable(rows, lines)
}

// newTable drops blank records and splits off the header. lines holds the
// source line of each record.
func newTable(records [][]string, lines []int) (*Table, error) {
	var rows [][]string
	var kept []int
	for i, record := range records {
		if !blank(record) {
			rows = append(rows, record)
			kept = append(kept, lines[i])
		}
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Source: "table", Reason: "no header row"}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Header: header, Rows: rows[1:], Lines: kept[1:]}, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
