package ingest

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func mustTable(t *testing.T, content string) *Table {
	t.Helper()
	table, err := ReadTable("input.csv", []byte(content))
	require.NoError(t, err)
	return table
}

func TestTransactions_Valid(t *testing.T) {
	table := mustTable(t, `entity_id,date,product,unit_price,quantity
A,2024-03-01,X,10,2
A,2024-03-01,Y,5.50,1
B,2024-03-02,X,10,3`)

	txs, err := Transactions(table)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, "A", txs[0].EntityID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), txs[0].Date)
	assert.True(t, txs[1].UnitPrice.Equal(decimal.RequireFromString("5.50")))
	assert.Equal(t, 3, txs[2].Quantity)
	assert.True(t, txs[0].LineRevenue().Equal(decimal.NewFromInt(20)))
}

func TestTransactions_SpreadsheetHeaders(t *testing.T) {
	table := mustTable(t, `Firma,Datum,Proizvod,Cijena (KM),Količina
F1,15.01.2024,Kafa,2.5,4
F1,2024-01-16 09:30:00,Sok,3,1`)

	txs, err := Transactions(table)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), txs[0].Date)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), txs[1].Date)
	assert.True(t, txs[0].LineRevenue().Equal(decimal.NewFromInt(10)))
}

func TestTransactions_MissingColumn(t *testing.T) {
	table := mustTable(t, `entity_id,date,product,quantity
A,2024-03-01,X,2`)

	txs, err := Transactions(table)
	require.Error(t, err)
	assert.Nil(t, txs)
	assert.True(t, errors.Is(err, ErrSchema))

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"unit_price"}, schemaErr.Missing)
}

func TestTransactions_RejectsBatch(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		column string
	}{
		{"negative quantity", "A,2024-03-02,X,10,-1", "quantity"},
		{"negative price", "A,2024-03-02,X,-10,1", "unit_price"},
		{"unparseable date", "A,yesterday,X,10,1", "date"},
		{"non numeric price", "A,2024-03-02,X,ten,1", "unit_price"},
		{"non finite price", "A,2024-03-02,X,NaN,1", "unit_price"},
		{"fractional quantity", "A,2024-03-02,X,10,1.5", "quantity"},
		{"missing entity", ",2024-03-02,X,10,1", "entity_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := mustTable(t, "entity_id,date,product,unit_price,quantity\n"+
				"A,2024-03-01,X,10,2\n"+tt.row)

			txs, err := Transactions(table)
			require.Error(t, err)
			assert.Nil(t, txs, "no partial result on a rejected batch")
			assert.True(t, errors.Is(err, ErrValidation))

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Issues, 1)
			assert.Equal(t, 3, vErr.Issues[0].Row)
			assert.Equal(t, tt.column, vErr.Issues[0].Column)
		})
	}
}

func TestTransactions_ReportsEveryIssue(t *testing.T) {
	table := mustTable(t, `entity_id,date,product,unit_price,quantity
A,bad,X,ten,-1
B,2024-01-01,X,-1,1`)

	_, err := Transactions(table)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Issues, 3)
	assert.Contains(t, err.Error(), "3 issue(s)")
}

func TestTransactions_HeaderOnly(t *testing.T) {
	txs, err := Transactions(mustTable(t, "entity_id,date,product,unit_price,quantity\n"))
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestReadTable_Empty(t *testing.T) {
	_, err := ReadTable("empty.csv", nil)
	assert.True(t, errors.Is(err, ErrSchema))
}

func TestReadTable_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"Entity ID", "Date", "Product", "Unit Price", "Quantity"},
		{"A", "2024-02-01", "X", "10", "2"},
		{"A", "2024-02-02", "X", "10", "3"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := ReadTable("pos.xlsx", buf.Bytes())
	require.NoError(t, err)

	txs, err := Transactions(table)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[1].LineRevenue().Equal(decimal.NewFromInt(30)))
}

func TestTransactions_IssueRowIsSourceLine(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{
			name:    "blank row before bad row",
			content: "entity_id,date,product,unit_price,quantity\nA,2024-03-01,X,10,2\n,,,,\nA,2024-03-02,X,10,-1\n",
			want:    4,
		},
		{
			name:    "empty line before bad row",
			content: "entity_id,date,product,unit_price,quantity\n\nA,2024-03-01,X,10,2\nA,2024-03-02,X,10,-1\n",
			want:    4,
		},
		{
			name:    "quoted multi-line product",
			content: "entity_id,date,product,unit_price,quantity\nA,2024-03-01,\"Gift\nbox\",10,2\nA,2024-03-02,X,10,-1\n",
			want:    4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transactions(mustTable(t, tt.content))

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Issues, 1)
			assert.Equal(t, tt.want, vErr.Issues[0].Row)
			assert.Equal(t, "quantity", vErr.Issues[0].Column)
		})
	}
}

func writeWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestReadTable_XLSXTypedCells(t *testing.T) {
	data := writeWorkbook(t, [][]any{
		{"Entity ID", "Date", "Product", "Unit Price", "Quantity"},
		{"A", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "X", 10.5, 2},
		{"B", time.Date(2024, 3, 2, 14, 30, 0, 0, time.UTC), "Y", 1234.25, 1},
	})

	table, err := ReadTable("pos.xlsx", data)
	require.NoError(t, err)

	txs, err := Transactions(table)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), txs[0].Date)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), txs[1].Date)
	assert.True(t, txs[0].LineRevenue().Equal(decimal.NewFromInt(21)))
	assert.True(t, txs[1].UnitPrice.Equal(decimal.RequireFromString("1234.25")))
}

func TestReadTable_XLSXRowNumbers(t *testing.T) {
	data := writeWorkbook(t, [][]any{
		{"entity_id", "date", "product", "unit_price", "quantity"},
		{"A", "2024-03-01", "X", 10, 2},
		{nil, nil, nil, nil, nil},
		{"A", "2024-03-02", "X", 10, -1},
	})

	table, err := ReadTable("pos.xlsx", data)
	require.NoError(t, err)

	_, err = Transactions(table)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Len(t, vErr.Issues, 1)
	assert.Equal(t, 4, vErr.Issues[0].Row)
}

func TestExcelSerial(t *testing.T) {
	got, ok := excelSerial("45352")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	for _, v := range []string{"0", "-3", "20240301", "abc"} {
		_, ok := excelSerial(v)
		assert.False(t, ok, v)
	}
}

func TestFirms(t *testing.T) {
	table := mustTable(t, `ID firme,Naziv firme,POS promet KM,Djelatnost,Banka,Paket,Stanje
1,Pekara Zlatno Zrno,5999,Ugostiteljstvo,UniCredit,Basic,1200.50
2,Frizerski salon Ena,10001,Usluge,Raiffeisen,Pro,-300`)

	firms, err := Firms(table)
	require.NoError(t, err)
	require.Len(t, firms, 2)
	assert.Equal(t, "Pekara Zlatno Zrno", firms[0].Name)
	assert.True(t, firms[0].HistoricalRevenue.Equal(decimal.NewFromInt(5999)))
	assert.True(t, firms[1].Balance.Equal(decimal.NewFromInt(-300)))
	assert.Equal(t, "Pro", firms[1].Package)
}

func TestFirms_Invalid(t *testing.T) {
	t.Run("missing name column", func(t *testing.T) {
		table := mustTable(t, "entity_id,historical_revenue,industry,bank,package,balance\n1,100,a,b,c,0")
		_, err := Firms(table)
		assert.True(t, errors.Is(err, ErrSchema))
	})

	t.Run("blank name", func(t *testing.T) {
		table := mustTable(t, "entity_id,name,historical_revenue,industry,bank,package,balance\n1,,100,a,b,c,0")
		_, err := Firms(table)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("bad revenue", func(t *testing.T) {
		table := mustTable(t, "entity_id,name,historical_revenue,industry,bank,package,balance\n1,Firm,lots,a,b,c,0")
		_, err := Firms(table)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "unit price", normalizeHeader("  Unit_Price "))
	assert.Equal(t, "cijena (km)", normalizeHeader("Cijena  (KM)"))
	assert.Equal(t, "entity id", normalizeHeader("ENTITY-ID"))
}
