package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockStatus is the derived stock/expiry state of an inventory item
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in-stock"
	StockStatusLowStock   StockStatus = "low-stock"
	StockStatusOutOfStock StockStatus = "out-of-stock"
	StockStatusNearExpiry StockStatus = "near-expiry"
	StockStatusExpired    StockStatus = "expired"
)

// NearExpiryWindow is how far ahead of today an expiry date counts as near-expiry
const NearExpiryWindow = 30 * 24 * time.Hour

// DateLayout is the ISO calendar date format used for expiry and manufacture dates
const DateLayout = "2006-01-02"

// Default values applied to records that omit them
const (
	DefaultReorderLevel = 10
	DefaultUnit         = "pieces"
)

// RecordSource tells how an inventory record was created
type RecordSource string

const (
	RecordSourceManual RecordSource = "manual"
	RecordSourceImport RecordSource = "import"
)

// InventoryRecord is one medicine/product line held by a pharmacy
type InventoryRecord struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PharmacyID string    `json:"pharmacyId" gorm:"type:varchar(255);not null;index"`

	Name         string `json:"name" gorm:"type:varchar(255);not null;index"`
	GenericName  string `json:"genericName" gorm:"type:varchar(255)"`
	Category     string `json:"category" gorm:"type:varchar(100);not null;index"`
	DosageForm   string `json:"dosageForm" gorm:"type:varchar(100)"`
	Strength     string `json:"strength" gorm:"type:varchar(100)"`
	Manufacturer string `json:"manufacturer" gorm:"type:varchar(255)"`

	// Stock
	Quantity     int    `json:"quantity" gorm:"not null;default:0"`
	Unit         string `json:"unit" gorm:"type:varchar(50);not null;default:'pieces'"`
	ReorderLevel int    `json:"reorderLevel" gorm:"not null;default:10"`

	// Pricing
	CostPrice    decimal.Decimal `json:"costPrice" gorm:"type:decimal(12,2);not null;default:0"`
	SellingPrice decimal.Decimal `json:"sellingPrice" gorm:"type:decimal(12,2);not null;default:0"`

	// Batch tracking, dates are YYYY-MM-DD or empty
	BatchNumber     string `json:"batchNumber" gorm:"type:varchar(100)"`
	ExpiryDate      string `json:"expiryDate" gorm:"type:varchar(10);index"`
	ManufactureDate string `json:"manufactureDate" gorm:"type:varchar(10)"`

	Barcode              string `json:"barcode" gorm:"type:varchar(100);index"`
	Location             string `json:"location" gorm:"type:varchar(255)"`
	Supplier             string `json:"supplier" gorm:"type:varchar(255)"`
	Description          string `json:"description" gorm:"type:text"`
	PrescriptionRequired bool   `json:"prescriptionRequired" gorm:"default:false"`

	Status          StockStatus  `json:"status" gorm:"type:varchar(20);not null;index"`
	Source          RecordSource `json:"source" gorm:"type:varchar(20);not null;default:'manual'"`
	ImportSessionID *string      `json:"importSessionId,omitempty" gorm:"type:varchar(64);index"`

	// Audit fields
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
	CreatedBy *string         `json:"createdBy,omitempty"`
	UpdatedBy *string         `json:"updatedBy,omitempty"`
}

func (InventoryRecord) TableName() string {
	return "inventory_items"
}

// RefreshStatus recomputes Status from the record's stock and expiry fields
func (r *InventoryRecord) RefreshStatus(today time.Time) {
	r.Status = ComputeStockStatus(r.Quantity, r.ReorderLevel, r.ExpiryDate, today)
}

// ComputeStockStatus derives the status of an item. Expiry checks take
// precedence over stock checks. An empty or unparseable expiry date skips
// the expiry checks.
func ComputeStockStatus(quantity, reorderLevel int, expiryDate string, today time.Time) StockStatus {
	if expiryDate != "" {
		if expiry, err := time.Parse(DateLayout, expiryDate); err == nil {
			day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
			if expiry.Before(day) {
				return StockStatusExpired
			}
			if !expiry.After(day.Add(NearExpiryWindow)) {
				return StockStatusNearExpiry
			}
		}
	}

	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity <= reorderLevel:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// IsValidStockStatus reports whether s is one of the known statuses
func IsValidStockStatus(s StockStatus) bool {
	switch s {
	case StockStatusInStock, StockStatusLowStock, StockStatusOutOfStock, StockStatusNearExpiry, StockStatusExpired:
		return true
	}
	return false
}

// ActivityType names an entry in the activity feed
type ActivityType string

const (
	ActivityInventoryCreated  ActivityType = "inventory.created"
	ActivityInventoryUpdated  ActivityType = "inventory.updated"
	ActivityInventoryDeleted  ActivityType = "inventory.deleted"
	ActivityInventoryImported ActivityType = "inventory.imported"
)

// Activity is one entry of a pharmacy's activity feed
type Activity struct {
	ID         uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PharmacyID string       `json:"pharmacyId" gorm:"type:varchar(255);not null;index"`
	Type       ActivityType `json:"type" gorm:"type:varchar(50);not null;index"`
	Message    string       `json:"message" gorm:"type:text;not null"`
	RecordID   *string      `json:"recordId,omitempty" gorm:"type:varchar(64)"`
	Actor      *string      `json:"actor,omitempty" gorm:"type:varchar(255)"`
	CreatedAt  time.Time    `json:"createdAt" gorm:"index"`
}

func (Activity) TableName() string {
	return "activities"
}

// Request/Response models

type CreateInventoryRequest struct {
	Name                 string          `json:"name" binding:"required,min=1,max=255"`
	GenericName          string          `json:"genericName,omitempty"`
	Category             string          `json:"category" binding:"required,min=1,max=100"`
	DosageForm           string          `json:"dosageForm,omitempty"`
	Strength             string          `json:"strength,omitempty"`
	Manufacturer         string          `json:"manufacturer,omitempty"`
	Quantity             int             `json:"quantity" binding:"gte=0"`
	Unit                 string          `json:"unit,omitempty"`
	ReorderLevel         *int            `json:"reorderLevel,omitempty" binding:"omitempty,gte=0"`
	CostPrice            decimal.Decimal `json:"costPrice"`
	SellingPrice         decimal.Decimal `json:"sellingPrice"`
	BatchNumber          string          `json:"batchNumber,omitempty"`
	ExpiryDate           string          `json:"expiryDate,omitempty"`
	ManufactureDate      string          `json:"manufactureDate,omitempty"`
	Barcode              string          `json:"barcode,omitempty"`
	Location             string          `json:"location,omitempty"`
	Supplier             string          `json:"supplier,omitempty"`
	Description          string          `json:"description,omitempty"`
	PrescriptionRequired bool            `json:"prescriptionRequired,omitempty"`
}

type UpdateInventoryRequest struct {
	Name                 *string          `json:"name,omitempty" binding:"omitempty,min=1,max=255"`
	GenericName          *string          `json:"genericName,omitempty"`
	Category             *string          `json:"category,omitempty" binding:"omitempty,min=1,max=100"`
	DosageForm           *string          `json:"dosageForm,omitempty"`
	Strength             *string          `json:"strength,omitempty"`
	Manufacturer         *string          `json:"manufacturer,omitempty"`
	Quantity             *int             `json:"quantity,omitempty" binding:"omitempty,gte=0"`
	Unit                 *string          `json:"unit,omitempty"`
	ReorderLevel         *int             `json:"reorderLevel,omitempty" binding:"omitempty,gte=0"`
	CostPrice            *decimal.Decimal `json:"costPrice,omitempty"`
	SellingPrice         *decimal.Decimal `json:"sellingPrice,omitempty"`
	BatchNumber          *string          `json:"batchNumber,omitempty"`
	ExpiryDate           *string          `json:"expiryDate,omitempty"`
	ManufactureDate      *string          `json:"manufactureDate,omitempty"`
	Barcode              *string          `json:"barcode,omitempty"`
	Location             *string          `json:"location,omitempty"`
	Supplier             *string          `json:"supplier,omitempty"`
	Description          *string          `json:"description,omitempty"`
	PrescriptionRequired *bool            `json:"prescriptionRequired,omitempty"`
}

// Response models
type InventoryResponse struct {
	Success bool             `json:"success"`
	Data    *InventoryRecord `json:"data,omitempty"`
	Message *string          `json:"message,omitempty"`
}

type InventoryListResponse struct {
	Success    bool              `json:"success"`
	Data       []InventoryRecord `json:"data"`
	Pagination *PaginationMeta   `json:"pagination,omitempty"`
}

type ActivityListResponse struct {
	Success bool       `json:"success"`
	Data    []Activity `json:"data"`
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// PaginationMeta represents pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}
