package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pharmacy-service/internal/models"
)

// ErrNotFound is returned when a record does not exist for the pharmacy
var ErrNotFound = errors.New("record not found")

// Sortable fields and the column each one orders by
var sortColumns = map[string]string{
	"name":         "name",
	"category":     "category",
	"quantity":     "quantity",
	"sellingPrice": "selling_price",
	"costPrice":    "cost_price",
	"expiryDate":   "expiry_date",
	"status":       "status",
	"createdAt":    "created_at",
	"updatedAt":    "updated_at",
}

// DefaultSort is used when a filter names no or an unknown sort field
const DefaultSort = "createdAt"

// IsSortable reports whether field can be used in InventoryFilter.SortBy
func IsSortable(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// InventoryFilter selects and orders a page of one pharmacy's inventory
type InventoryFilter struct {
	PharmacyID string
	Search     string
	Category   string
	Status     models.StockStatus
	SortBy     string
	SortDesc   bool
	Page       int
	Limit      int
}

func (f InventoryFilter) sortColumn() string {
	if col, ok := sortColumns[f.SortBy]; ok {
		return col
	}
	return sortColumns[DefaultSort]
}

func (f InventoryFilter) offset() int {
	if f.Page > 0 && f.Limit > 0 {
		return (f.Page - 1) * f.Limit
	}
	return 0
}

// Snapshot is the full result of a filtered query at one point in time
type Snapshot struct {
	Records []models.InventoryRecord `json:"records"`
	Total   int64                    `json:"total"`
	Page    int                      `json:"page"`
	Limit   int                      `json:"limit"`
	ReadAt  time.Time                `json:"readAt"`
}

// InventoryRepositoryInterface is the document-collection contract the
// handlers, the importer and the CLI are written against
type InventoryRepositoryInterface interface {
	CreateRecord(ctx context.Context, record *models.InventoryRecord) error
	GetRecord(ctx context.Context, pharmacyID string, id uuid.UUID) (*models.InventoryRecord, error)
	UpdateRecord(ctx context.Context, record *models.InventoryRecord) error
	DeleteRecord(ctx context.Context, pharmacyID string, id uuid.UUID) error
	ListRecords(ctx context.Context, filter InventoryFilter) (*Snapshot, error)
	// Subscribe delivers a snapshot for filter immediately and again after
	// every change to the pharmacy's inventory. A slow reader only sees the
	// latest snapshot. The channel is closed when ctx is done.
	Subscribe(ctx context.Context, filter InventoryFilter) (<-chan *Snapshot, error)

	LogActivity(ctx context.Context, activity *models.Activity) error
	ListActivity(ctx context.Context, pharmacyID string, limit int) ([]models.Activity, error)

	Ping(ctx context.Context) error
}

// deliverLatest hands s to out, replacing a snapshot the reader has not taken yet
func deliverLatest(out chan *Snapshot, s *Snapshot) {
	for {
		select {
		case out <- s:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// runSubscription re-runs list on every signal until ctx is done or signals closes
func runSubscription(ctx context.Context, list func(context.Context) (*Snapshot, error), signals <-chan struct{}, onError func(error)) <-chan *Snapshot {
	out := make(chan *Snapshot, 1)
	go func() {
		defer close(out)
		for {
			snap, err := list(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				onError(err)
			} else {
				deliverLatest(out, snap)
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}
