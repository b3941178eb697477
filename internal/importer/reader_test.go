package importer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadSheet_CSV(t *testing.T) {
	data := "\ufeffName,Category,Qty,Cost,Price,Description\n" +
		"\"Paracetamol, 500mg\",otc,10,1.5,3,\"says \"\"take with water\"\"\"\n" +
		"\n" +
		",,,,,\n" +
		"Ibuprofen,otc,5,2,4\n"

	sheet, err := ReadSheet("stock.CSV", strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Category", "Qty", "Cost", "Price", "Description"}, sheet.Header)
	require.Len(t, sheet.Rows, 2)

	first := sheet.Rows[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "Paracetamol, 500mg", first.At(0).Text)
	assert.Equal(t, `says "take with water"`, first.At(5).Text)

	second := sheet.Rows[1]
	assert.Equal(t, 5, second.Line)
	assert.Len(t, second.Cells, 5)
	assert.True(t, second.At(5).IsEmpty())
}

func TestReadSheet_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"name *", "category *", "quantity *", "costPrice *", "sellingPrice *", "expiryDate", "barcode"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Cetirizine", "otc", 12, 1.25, 2.5, 46023, "00123"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"Loratadine", "otc", 3, 1, 2}))

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	sheet, err := ReadSheet("upload.xlsx", &buf)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)

	row := sheet.Rows[0]
	assert.Equal(t, 2, row.Line)
	assert.Equal(t, CellText, row.At(0).Kind)
	assert.Equal(t, CellNumber, row.At(2).Kind)
	assert.Equal(t, float64(12), row.At(2).Number)
	assert.Equal(t, "2026-01-01", CoerceDate(row.At(5)))
	assert.Equal(t, "00123", row.At(6).String())

	assert.Equal(t, 4, sheet.Rows[1].Line)
}

func TestXLSXCell_LongDigitStringsStayText(t *testing.T) {
	sscc := xlsxCell("123456789012345678")
	assert.Equal(t, CellText, sscc.Kind)
	assert.Equal(t, "123456789012345678", sscc.String())

	assert.Equal(t, CellNumber, xlsxCell("123456789012345").Kind)
	assert.Equal(t, CellNumber, xlsxCell("1.23456789012346E+17").Kind)
	assert.Equal(t, CellNumber, xlsxCell("45292.749999999997").Kind)
}

func TestReadSheet_UnsupportedFormat(t *testing.T) {
	for _, name := range []string{"stock.xls", "stock.txt", "stock"} {
		_, err := ReadSheet(name, strings.NewReader("name\nx\n"))
		assert.True(t, errors.Is(err, ErrUnsupportedFormat), name)
	}
}

func TestReadSheet_EmptyFile(t *testing.T) {
	for _, data := range []string{"", "name,category\n", "name,category\n,\n\n"} {
		_, err := ReadSheet("stock.csv", strings.NewReader(data))
		assert.True(t, errors.Is(err, ErrEmptyFile), "data %q", data)
	}
}
