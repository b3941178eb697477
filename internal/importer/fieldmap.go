package importer

import (
	"fmt"
	"strings"
)

// Field is a canonical inventory import column
type Field string

const (
	FieldName                 Field = "name"
	FieldGenericName          Field = "genericName"
	FieldCategory             Field = "category"
	FieldDosageForm           Field = "dosageForm"
	FieldStrength             Field = "strength"
	FieldManufacturer         Field = "manufacturer"
	FieldQuantity             Field = "quantity"
	FieldUnit                 Field = "unit"
	FieldCostPrice            Field = "costPrice"
	FieldSellingPrice         Field = "sellingPrice"
	FieldReorderLevel         Field = "reorderLevel"
	FieldBatchNumber          Field = "batchNumber"
	FieldExpiryDate           Field = "expiryDate"
	FieldManufactureDate      Field = "manufactureDate"
	FieldBarcode              Field = "barcode"
	FieldLocation             Field = "location"
	FieldSupplier             Field = "supplier"
	FieldDescription          Field = "description"
	FieldPrescriptionRequired Field = "prescriptionRequired"
)

// Fields lists every canonical field in template column order
var Fields = []Field{
	FieldName, FieldGenericName, FieldCategory, FieldDosageForm, FieldStrength,
	FieldManufacturer, FieldQuantity, FieldUnit, FieldCostPrice, FieldSellingPrice,
	FieldReorderLevel, FieldBatchNumber, FieldExpiryDate, FieldManufactureDate,
	FieldBarcode, FieldLocation, FieldSupplier, FieldDescription, FieldPrescriptionRequired,
}

// RequiredFields must each be matched by a header column for an import to proceed
var RequiredFields = []Field{FieldName, FieldCategory, FieldQuantity, FieldCostPrice, FieldSellingPrice}

// headerSynonyms maps normalized header text to its canonical field
var headerSynonyms = map[string]Field{
	"name":          FieldName,
	"product name":  FieldName,
	"product":       FieldName,
	"medicine name": FieldName,
	"medicine":      FieldName,
	"item name":     FieldName,
	"drug name":     FieldName,

	"generic name": FieldGenericName,
	"genericname":  FieldGenericName,
	"generic":      FieldGenericName,

	"category": FieldCategory,
	"type":     FieldCategory,

	"dosage form": FieldDosageForm,
	"dosageform":  FieldDosageForm,
	"form":        FieldDosageForm,

	"strength": FieldStrength,
	"dosage":   FieldStrength,

	"manufacturer": FieldManufacturer,
	"brand":        FieldManufacturer,
	"company":      FieldManufacturer,

	"quantity": FieldQuantity,
	"qty":      FieldQuantity,
	"stock":    FieldQuantity,
	"in stock": FieldQuantity,

	"unit": FieldUnit,
	"uom":  FieldUnit,

	"cost price": FieldCostPrice,
	"costprice":  FieldCostPrice,
	"cost":       FieldCostPrice,
	"unit price": FieldCostPrice,
	"unit cost":  FieldCostPrice,

	"selling price": FieldSellingPrice,
	"sellingprice":  FieldSellingPrice,
	"sale price":    FieldSellingPrice,
	"price":         FieldSellingPrice,
	"mrp":           FieldSellingPrice,
	"retail price":  FieldSellingPrice,

	"reorder level": FieldReorderLevel,
	"reorderlevel":  FieldReorderLevel,
	"reorder point": FieldReorderLevel,
	"min stock":     FieldReorderLevel,

	"batch number": FieldBatchNumber,
	"batchnumber":  FieldBatchNumber,
	"batch no":     FieldBatchNumber,
	"batch":        FieldBatchNumber,
	"lot":          FieldBatchNumber,

	"expiry date": FieldExpiryDate,
	"expirydate":  FieldExpiryDate,
	"expiry":      FieldExpiryDate,
	"exp date":    FieldExpiryDate,
	"expiration":  FieldExpiryDate,

	"manufacture date": FieldManufactureDate,
	"manufacturedate":  FieldManufactureDate,
	"mfg date":         FieldManufactureDate,
	"mfg":              FieldManufactureDate,

	"barcode": FieldBarcode,
	"sku":     FieldBarcode,
	"upc":     FieldBarcode,

	"location": FieldLocation,
	"shelf":    FieldLocation,
	"rack":     FieldLocation,

	"supplier": FieldSupplier,
	"vendor":   FieldSupplier,

	"description": FieldDescription,
	"notes":       FieldDescription,

	"prescription required": FieldPrescriptionRequired,
	"prescriptionrequired":  FieldPrescriptionRequired,
	"prescription":          FieldPrescriptionRequired,
	"rx":                    FieldPrescriptionRequired,
	"rx required":           FieldPrescriptionRequired,
}

// NormalizeHeader lowercases and trims a header cell and drops the
// trailing required-column marker written by the xlsx template.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSpace(strings.TrimSuffix(h, "*"))
	return h
}

// LookupField returns the canonical field for a header cell, if any
func LookupField(header string) (Field, bool) {
	f, ok := headerSynonyms[NormalizeHeader(header)]
	return f, ok
}

// FieldIndex maps canonical fields to the column index they were found at
type FieldIndex map[Field]int

// Column returns the column index of f
func (fi FieldIndex) Column(f Field) (int, bool) {
	i, ok := fi[f]
	return i, ok
}

// MissingColumnsError is returned when required columns are absent from the header row
type MissingColumnsError struct {
	Fields []Field
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("Missing required columns: %s", strings.Join(names, ", "))
}

// Names returns the missing fields as strings
func (e *MissingColumnsError) Names() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return names
}

// MapHeaders resolves the header row to a FieldIndex. When several columns
// map to the same field the leftmost one is used. A *MissingColumnsError
// listing exactly the unmatched required fields is returned alongside the
// partial index.
func MapHeaders(header []string) (FieldIndex, error) {
	index := make(FieldIndex)
	for i, h := range header {
		f, ok := LookupField(h)
		if !ok {
			continue
		}
		if _, seen := index[f]; !seen {
			index[f] = i
		}
	}

	var missing []Field
	for _, f := range RequiredFields {
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return index, &MissingColumnsError{Fields: missing}
	}
	return index, nil
}

// IsRequired reports whether f is one of the required fields
func IsRequired(f Field) bool {
	for _, r := range RequiredFields {
		if r == f {
			return true
		}
	}
	return false
}
