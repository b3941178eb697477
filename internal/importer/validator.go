package importer

import (
	"pharmacy-service/internal/models"
)

// Row validation messages
const (
	MsgNameRequired           = "Name is required"
	MsgCategoryRequired       = "Category is required"
	MsgQuantityInvalid        = "Quantity must be a non-negative number"
	MsgCostPriceInvalid       = "Cost price must be a non-negative number"
	MsgSellingPriceInvalid    = "Selling price must be a non-negative number"
	MsgExpiryDateInvalid      = "Expiry date must be a valid date (YYYY-MM-DD)"
	MsgManufactureDateInvalid = "Manufacture date must be a valid date (YYYY-MM-DD)"
)

// Validate appends a message to row.Errors for every rule the row breaks.
// It returns true when the row has no errors.
func Validate(row *models.ImportRow) bool {
	if row.Errors == nil {
		row.Errors = []string{}
	}
	if row.Name == "" {
		row.Errors = append(row.Errors, MsgNameRequired)
	}
	if row.Category == "" {
		row.Errors = append(row.Errors, MsgCategoryRequired)
	}
	if row.Quantity == nil || *row.Quantity < 0 {
		row.Errors = append(row.Errors, MsgQuantityInvalid)
	}
	if row.CostPrice == nil || row.CostPrice.IsNegative() {
		row.Errors = append(row.Errors, MsgCostPriceInvalid)
	}
	if row.SellingPrice == nil || row.SellingPrice.IsNegative() {
		row.Errors = append(row.Errors, MsgSellingPriceInvalid)
	}
	if row.ExpiryDate != "" && !IsValidDate(row.ExpiryDate) {
		row.Errors = append(row.Errors, MsgExpiryDateInvalid)
	}
	if row.ManufactureDate != "" && !IsValidDate(row.ManufactureDate) {
		row.Errors = append(row.Errors, MsgManufactureDateInvalid)
	}
	return row.Valid()
}
