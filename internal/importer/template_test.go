package importer

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-service/internal/models"
)

func TestTemplates_ImportCleanly(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		write    func(*bytes.Buffer, models.ImportTemplate) error
	}{
		{"csv", "template.csv", func(b *bytes.Buffer, tpl models.ImportTemplate) error { return WriteCSVTemplate(b, tpl) }},
		{"xlsx", "template.xlsx", func(b *bytes.Buffer, tpl models.ImportTemplate) error { return WriteXLSXTemplate(b, tpl) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := InventoryImportTemplate()
			var buf bytes.Buffer
			require.NoError(t, tt.write(&buf, tpl))

			report, err := newTestImporter(newMemStore()).Run(context.Background(), RunRequest{
				PharmacyID:   "ph-1",
				FileName:     tt.fileName,
				File:         &buf,
				ValidateOnly: true,
			})
			require.NoError(t, err)
			assert.Equal(t, len(tpl.SampleData), report.TotalRows)
			assert.Equal(t, len(tpl.SampleData), report.ValidRows)
			assert.Empty(t, report.Errors)
		})
	}
}

func TestWriteCSVExport_RoundTrips(t *testing.T) {
	records := []models.InventoryRecord{{
		Name:         "Ibuprofen 200mg",
		Category:     "otc",
		Quantity:     5,
		Unit:         "pieces",
		CostPrice:    decimal.RequireFromString("1.20"),
		SellingPrice: decimal.RequireFromString("2.00"),
		ReorderLevel: 10,
		ExpiryDate:   "2027-01-31",
		Barcode:      "0012345",
		Status:       models.StockStatusLowStock,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSVExport(&buf, records))

	rows, err := newTestImporter(newMemStore()).ParseFile("export.csv", &buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Valid(), rows[0].Errors)
	assert.Equal(t, "Ibuprofen 200mg", rows[0].Name)
	require.NotNil(t, rows[0].Quantity)
	assert.Equal(t, 5, *rows[0].Quantity)
	assert.Equal(t, "0012345", rows[0].Barcode)
	assert.Equal(t, "2027-01-31", rows[0].ExpiryDate)
}
