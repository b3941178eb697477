package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pharmacy-service/internal/models"
)

func TestStockLevel_IgnoresExpiry(t *testing.T) {
	assert.Equal(t, models.StockStatusOutOfStock, StockLevel(&models.InventoryRecord{Quantity: 0, ReorderLevel: 10, ExpiryDate: "2000-01-01"}))
	assert.Equal(t, models.StockStatusLowStock, StockLevel(&models.InventoryRecord{Quantity: 10, ReorderLevel: 10}))
	assert.Equal(t, models.StockStatusInStock, StockLevel(&models.InventoryRecord{Quantity: 11, ReorderLevel: 10}))
}

func TestAlertCandidates(t *testing.T) {
	records := []*models.InventoryRecord{
		{Name: "a", Quantity: 0, ReorderLevel: 5},
		{Name: "b", Quantity: 50, ReorderLevel: 5},
		{Name: "c", Quantity: 3, ReorderLevel: 5},
	}

	got := AlertCandidates(records)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "a", got[0].Name)
		assert.Equal(t, "c", got[1].Name)
	}
	assert.Empty(t, AlertCandidates(nil))
}

func TestNewStockEventPublisher_RequiresURL(t *testing.T) {
	_, err := NewStockEventPublisher("", nil)
	assert.Error(t, err)
}
