package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func testParser(t *testing.T, header ...string) *Parser {
	t.Helper()
	index, err := MapHeaders(header)
	require.NoError(t, err)
	return NewParser(index, WithClock(func() time.Time { return fixedNow }), WithRand(func(int) int { return 42 }))
}

func textRow(line int, values ...string) RawRow {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = TextCell(v)
	}
	return RawRow{Line: line, Cells: cells}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   Cell
		want string
	}{
		{TextCell("5"), "5"},
		{TextCell("$1,234.50"), "1234.5"},
		{TextCell("Rs 12.75"), "12.75"},
		{TextCell("Rs. 12.75"), "0.12"},
		{TextCell("-3"), "-3"},
		{TextCell("1.2.3"), "1.2"},
		{TextCell(".5"), "0.5"},
		{NumberCell(9.99), "9.99"},
	}
	for _, tt := range tests {
		got := ParseDecimal(tt.in)
		require.NotNil(t, got, "input %q", tt.in.String())
		assert.True(t, decimal.RequireFromString(tt.want).Equal(*got), "input %q got %s", tt.in.String(), got)
	}
}

func TestParseDecimal_UnparseableIsNil(t *testing.T) {
	for _, c := range []Cell{EmptyCell(), TextCell("abc"), TextCell("-"), TextCell("..")} {
		assert.Nil(t, ParseDecimal(c), "input %q", c.String())
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   Cell
		want int
	}{
		{TextCell("10"), 10},
		{TextCell("12.9"), 12},
		{TextCell("-3.5"), -3},
		{TextCell("1,000 pcs"), 1000},
		{NumberCell(7.8), 7},
		{TextCell("0"), 0},
	}
	for _, tt := range tests {
		got := ParseInt(tt.in)
		require.NotNil(t, got, "input %q", tt.in.String())
		assert.Equal(t, tt.want, *got, "input %q", tt.in.String())
	}

	assert.Nil(t, ParseInt(TextCell("n/a")))
	assert.Nil(t, ParseInt(EmptyCell()))
	assert.Nil(t, ParseInt(TextCell("99999999999999999999")))
	assert.Nil(t, ParseInt(NumberCell(-1e19)))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "Yes", "1", " yes "} {
		assert.True(t, ParseBool(TextCell(v)), v)
	}
	for _, v := range []string{"false", "no", "0", "", "y", "2"} {
		assert.False(t, ParseBool(TextCell(v)), v)
	}
	assert.True(t, ParseBool(NumberCell(1)))
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		name string
		in   Cell
		want string
	}{
		{"iso unchanged", TextCell("2024-05-01"), "2024-05-01"},
		{"serial one", NumberCell(1), "1899-12-31"},
		{"serial zero", NumberCell(0), "1899-12-30"},
		{"serial modern", NumberCell(45292), "2024-01-01"},
		{"serial with time", NumberCell(45292.75), "2024-01-01"},
		{"serial past duration range", NumberCell(106752), "2192-04-09"},
		{"serial max", NumberCell(2958465), "9999-12-31"},
		{"serial max with time", NumberCell(2958465.999), "9999-12-31"},
		{"native date", DateCell(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)), "2025-02-03"},
		{"year first slash", TextCell("2024/5/1"), "2024-05-01"},
		{"year first dot", TextCell("2024.12.31"), "2024-12-31"},
		{"day first slash", TextCell("03/04/2024"), "2024-04-03"},
		{"day first dash unpadded", TextCell("1-2-2025"), "2025-02-01"},
		{"day first dot", TextCell("31.12.2026"), "2026-12-31"},
		{"two digit year unchanged", TextCell("03/04/24"), "03/04/24"},
		{"free text unchanged", TextCell("next year"), "next year"},
		{"empty", EmptyCell(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceDate(tt.in))
		})
	}
}

func TestCoerceDate_IdempotentOnISO(t *testing.T) {
	for _, s := range []string{"2024-01-01", "1999-12-31", "2024-02-30"} {
		once := CoerceDate(TextCell(s))
		assert.Equal(t, s, once)
		assert.Equal(t, once, CoerceDate(TextCell(once)))
	}
}

func TestIsValidDate(t *testing.T) {
	assert.True(t, IsValidDate("2024-02-29"))
	assert.False(t, IsValidDate("2023-02-29"))
	assert.False(t, IsValidDate("2024-13-01"))
	assert.False(t, IsValidDate("2024-1-01"))
	assert.False(t, IsValidDate("03/04/24"))
}

func TestParser_Parse(t *testing.T) {
	p := testParser(t, "Name", "Category", "Qty", "Cost", "Price", "Reorder Level", "Expiry", "Rx", "Barcode", "Unit")
	row := p.Parse(textRow(7, "Amoxicillin", "prescription", "40", "5.25", "$8.00", "15", "31/12/2026", "yes", "8901234567890", "boxes"))

	assert.Equal(t, 7, row.RowNumber)
	assert.Equal(t, "Amoxicillin", row.Name)
	assert.Equal(t, "prescription", row.Category)
	require.NotNil(t, row.Quantity)
	assert.Equal(t, 40, *row.Quantity)
	require.NotNil(t, row.CostPrice)
	assert.Equal(t, "5.25", row.CostPrice.String())
	require.NotNil(t, row.SellingPrice)
	assert.Equal(t, "8", row.SellingPrice.String())
	assert.Equal(t, 15, row.ReorderLevel)
	assert.Equal(t, "2026-12-31", row.ExpiryDate)
	assert.True(t, row.PrescriptionRequired)
	assert.Equal(t, "8901234567890", row.Barcode)
	assert.Equal(t, "boxes", row.Unit)
	assert.Empty(t, row.Errors)
}

func TestParser_Defaults(t *testing.T) {
	p := testParser(t, "name", "category", "quantity", "costPrice", "sellingPrice", "reorderLevel", "barcode")
	row := p.Parse(textRow(2, "Cetirizine", "otc", "5", "1", "2", "", ""))

	assert.Equal(t, 10, row.ReorderLevel)
	assert.Equal(t, "pieces", row.Unit)
	assert.Equal(t, "PH24031500042", row.Barcode)
	assert.False(t, row.PrescriptionRequired)
}

func TestParser_ShortRowReadsEmptyCells(t *testing.T) {
	p := testParser(t, "name", "category", "quantity", "costPrice", "sellingPrice")
	row := p.Parse(textRow(3, "Ibuprofen", "otc"))

	assert.Nil(t, row.Quantity)
	assert.Nil(t, row.CostPrice)
	assert.Nil(t, row.SellingPrice)
}

func TestGenerateBarcode(t *testing.T) {
	index, err := MapHeaders([]string{"name", "category", "quantity", "costPrice", "sellingPrice"})
	require.NoError(t, err)
	p := NewParser(index)

	for i := 0; i < 50; i++ {
		code := p.GenerateBarcode()
		assert.NotEmpty(t, code)
		assert.True(t, strings.HasPrefix(code, BarcodePrefix), code)
		assert.Len(t, code, len(BarcodePrefix)+6+5)
	}

	zero := NewParser(index, WithClock(func() time.Time { return fixedNow }), WithRand(func(int) int { return 7 }))
	assert.Equal(t, "PH24031500007", zero.GenerateBarcode())
}
