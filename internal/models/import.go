package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportRow is one candidate inventory record parsed from a spreadsheet row.
// Quantity and prices are nil when the cell could not be parsed as a number.
type ImportRow struct {
	RowNumber            int              `json:"rowNumber"`
	Name                 string           `json:"name"`
	GenericName          string           `json:"genericName,omitempty"`
	Category             string           `json:"category"`
	DosageForm           string           `json:"dosageForm,omitempty"`
	Strength             string           `json:"strength,omitempty"`
	Manufacturer         string           `json:"manufacturer,omitempty"`
	Quantity             *int             `json:"quantity"`
	Unit                 string           `json:"unit"`
	CostPrice            *decimal.Decimal `json:"costPrice"`
	SellingPrice         *decimal.Decimal `json:"sellingPrice"`
	ReorderLevel         int              `json:"reorderLevel"`
	BatchNumber          string           `json:"batchNumber,omitempty"`
	ExpiryDate           string           `json:"expiryDate,omitempty"`
	ManufactureDate      string           `json:"manufactureDate,omitempty"`
	Barcode              string           `json:"barcode"`
	Location             string           `json:"location,omitempty"`
	Supplier             string           `json:"supplier,omitempty"`
	Description          string           `json:"description,omitempty"`
	PrescriptionRequired bool             `json:"prescriptionRequired"`
	Errors               []string         `json:"errors"`
}

// Valid reports whether the row is eligible for persistence
func (r *ImportRow) Valid() bool {
	return len(r.Errors) == 0
}

// ToRecord converts a validated row into a new inventory record for the pharmacy.
// Status is computed against today.
func (r *ImportRow) ToRecord(pharmacyID string, today time.Time) *InventoryRecord {
	rec := &InventoryRecord{
		PharmacyID:           pharmacyID,
		Name:                 r.Name,
		GenericName:          r.GenericName,
		Category:             r.Category,
		DosageForm:           r.DosageForm,
		Strength:             r.Strength,
		Manufacturer:         r.Manufacturer,
		Unit:                 r.Unit,
		ReorderLevel:         r.ReorderLevel,
		BatchNumber:          r.BatchNumber,
		ExpiryDate:           r.ExpiryDate,
		ManufactureDate:      r.ManufactureDate,
		Barcode:              r.Barcode,
		Location:             r.Location,
		Supplier:             r.Supplier,
		Description:          r.Description,
		PrescriptionRequired: r.PrescriptionRequired,
		Source:               RecordSourceImport,
	}
	if r.Quantity != nil {
		rec.Quantity = *r.Quantity
	}
	if r.CostPrice != nil {
		rec.CostPrice = *r.CostPrice
	}
	if r.SellingPrice != nil {
		rec.SellingPrice = *r.SellingPrice
	}
	rec.RefreshStatus(today)
	return rec
}

// ImportSessionState is the lifecycle state of an import session
type ImportSessionState string

const (
	ImportStateIdle         ImportSessionState = "idle"
	ImportStateAwaitingFile ImportSessionState = "awaiting_file"
	ImportStatePreviewing   ImportSessionState = "previewing"
	ImportStateImporting    ImportSessionState = "importing"
	ImportStateCompleted    ImportSessionState = "completed"
	ImportStateFailed       ImportSessionState = "failed"
)

// ImportRowError is a row excluded from the import with its messages
type ImportRowError struct {
	Row      int      `json:"row"`
	Name     string   `json:"name,omitempty"`
	Messages []string `json:"messages"`
}

// ImportPreview summarizes a parsed file before it is confirmed
type ImportPreview struct {
	FileName       string           `json:"fileName"`
	TotalRows      int              `json:"totalRows"`
	ValidRows      int              `json:"validRows"`
	ErrorRows      int              `json:"errorRows"`
	Rows           []ImportRow      `json:"rows"`
	MoreRows       int              `json:"moreRows"`
	Errors         []ImportRowError `json:"errors"`
	MoreErrors     int              `json:"moreErrors"`
	MissingColumns []string         `json:"missingColumns,omitempty"`
}

// ImportProgress is the cumulative write progress of an import
type ImportProgress struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// ImportReport is the outcome of a finished (or validate-only) import
type ImportReport struct {
	Success      bool             `json:"success"`
	TotalRows    int              `json:"totalRows"`
	ValidRows    int              `json:"validRows"`
	SkippedCount int              `json:"skippedCount"`
	Imported     int              `json:"imported"`
	Batches      int              `json:"batches"`
	ValidateOnly bool             `json:"validateOnly,omitempty"`
	Errors       []ImportRowError `json:"errors,omitempty"`
	CreatedIDs   []string         `json:"createdIds,omitempty"`
	Failure      string           `json:"failure,omitempty"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
}

// ImportSessionView is the externally visible state of an import session
type ImportSessionView struct {
	ID         string             `json:"id"`
	PharmacyID string             `json:"pharmacyId"`
	State      ImportSessionState `json:"state"`
	Preview    *ImportPreview     `json:"preview,omitempty"`
	Progress   ImportProgress     `json:"progress"`
	Report     *ImportReport      `json:"report,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}
