package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"pharmacy-service/internal/models"
)

// TemplateSheetName is the sheet written into the xlsx template
const TemplateSheetName = "Inventory"

// InventoryImportTemplate returns the template for inventory imports
func InventoryImportTemplate() models.ImportTemplate {
	return models.ImportTemplate{
		Entity:  "inventory",
		Version: "1.0",
		Columns: []models.ImportTemplateColumn{
			{Name: string(FieldName), Description: "Product or medicine name", Required: true, Type: "string", Example: "Paracetamol 500mg"},
			{Name: string(FieldGenericName), Description: "Generic (INN) name", Required: false, Type: "string", Example: "Acetaminophen"},
			{Name: string(FieldCategory), Description: "Category (otc, prescription, supplement...)", Required: true, Type: "string", Example: "otc"},
			{Name: string(FieldDosageForm), Description: "Dosage form", Required: false, Type: "string", Example: "tablet"},
			{Name: string(FieldStrength), Description: "Strength", Required: false, Type: "string", Example: "500mg"},
			{Name: string(FieldManufacturer), Description: "Manufacturer", Required: false, Type: "string", Example: "GSK"},
			{Name: string(FieldQuantity), Description: "Quantity in stock", Required: true, Type: "number", Example: "100"},
			{Name: string(FieldUnit), Description: "Unit of measure (default pieces)", Required: false, Type: "string", Example: "strips"},
			{Name: string(FieldCostPrice), Description: "Unit cost price", Required: true, Type: "number", Example: "2.50"},
			{Name: string(FieldSellingPrice), Description: "Unit selling price", Required: true, Type: "number", Example: "4.00"},
			{Name: string(FieldReorderLevel), Description: "Reorder level (default 10)", Required: false, Type: "number", Example: "20"},
			{Name: string(FieldBatchNumber), Description: "Batch or lot number", Required: false, Type: "string", Example: "B2024-001"},
			{Name: string(FieldExpiryDate), Description: "Expiry date (YYYY-MM-DD)", Required: false, Type: "date", Example: "2028-12-31"},
			{Name: string(FieldManufactureDate), Description: "Manufacture date (YYYY-MM-DD)", Required: false, Type: "date", Example: "2024-01-15"},
			{Name: string(FieldBarcode), Description: "Barcode (generated when empty)", Required: false, Type: "string", Example: ""},
			{Name: string(FieldLocation), Description: "Shelf or storage location", Required: false, Type: "string", Example: "Shelf A1"},
			{Name: string(FieldSupplier), Description: "Supplier name", Required: false, Type: "string", Example: "MedSupply Co."},
			{Name: string(FieldDescription), Description: "Notes", Required: false, Type: "string", Example: ""},
			{Name: string(FieldPrescriptionRequired), Description: "Prescription required (true/false)", Required: false, Type: "boolean", Example: "false"},
		},
		SampleData: []map[string]string{
			{
				"name":                 "Paracetamol 500mg",
				"genericName":          "Acetaminophen",
				"category":             "otc",
				"dosageForm":           "tablet",
				"strength":             "500mg",
				"manufacturer":         "GSK",
				"quantity":             "100",
				"unit":                 "strips",
				"costPrice":            "2.50",
				"sellingPrice":         "4.00",
				"reorderLevel":         "20",
				"batchNumber":          "B2024-001",
				"expiryDate":           "2028-12-31",
				"manufactureDate":      "2024-01-15",
				"location":             "Shelf A1",
				"supplier":             "MedSupply Co.",
				"prescriptionRequired": "false",
			},
			{
				"name":                 "Amoxicillin 250mg",
				"genericName":          "Amoxicillin",
				"category":             "prescription",
				"dosageForm":           "capsule",
				"strength":             "250mg",
				"manufacturer":         "Pfizer",
				"quantity":             "50",
				"unit":                 "boxes",
				"costPrice":            "5.00",
				"sellingPrice":         "8.50",
				"reorderLevel":         "10",
				"batchNumber":          "AMX-7781",
				"expiryDate":           "2028-06-30",
				"manufactureDate":      "2024-06-01",
				"location":             "Shelf B3",
				"supplier":             "PharmaDist Ltd",
				"prescriptionRequired": "true",
			},
		},
	}
}

// WriteCSVTemplate writes the template header and sample rows as CSV
func WriteCSVTemplate(w io.Writer, template models.ImportTemplate) error {
	writer := csv.NewWriter(w)

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, sample := range template.SampleData {
		row := make([]string, len(template.Columns))
		for i, col := range template.Columns {
			row[i] = sample[col.Name]
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSXTemplate writes the template as a workbook with styled headers.
// Required columns get a different fill and a trailing " *".
func WriteXLSXTemplate(w io.Writer, template models.ImportTemplate) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := TemplateSheetName
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		text, style := col.Name, headerStyle
		if col.Required {
			text, style = col.Name+" *", requiredStyle
		}
		f.SetCellValue(sheetName, cell, text)
		f.SetCellStyle(sheetName, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)
	}

	for rowIdx, sample := range template.SampleData {
		for colIdx, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, sample[col.Name])
		}
	}

	_, err = f.WriteTo(w)
	return err
}

// ExportColumns are the CSV export headers: every import column plus status
var ExportColumns = append(fieldNames(), "status")

// WriteCSVExport writes inventory records using the import column layout,
// so an export can be edited and imported again.
func WriteCSVExport(w io.Writer, records []models.InventoryRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ExportColumns); err != nil {
		return err
	}
	for i := range records {
		if err := writer.Write(exportRow(&records[i])); err != nil {
			return fmt.Errorf("failed to write export row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func exportRow(r *models.InventoryRecord) []string {
	return []string{
		r.Name,
		r.GenericName,
		r.Category,
		r.DosageForm,
		r.Strength,
		r.Manufacturer,
		strconv.Itoa(r.Quantity),
		r.Unit,
		r.CostPrice.StringFixed(2),
		r.SellingPrice.StringFixed(2),
		strconv.Itoa(r.ReorderLevel),
		r.BatchNumber,
		r.ExpiryDate,
		r.ManufactureDate,
		r.Barcode,
		r.Location,
		r.Supplier,
		r.Description,
		strconv.FormatBool(r.PrescriptionRequired),
		string(r.Status),
	}
}

func fieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = string(f)
	}
	return names
}
