// Package events publishes pharmacy inventory events to NATS
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"pharmacy-service/internal/models"
)

// StockEventPublisher publishes stock alerts and import summaries to NATS
type StockEventPublisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewStockEventPublisher connects to NATS and makes sure the inventory stream exists
func NewStockEventPublisher(natsURL string, logger *logrus.Logger) (*StockEventPublisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "pharmacy-service-publisher"

	publisher, err := events.NewPublisher(config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := publisher.EnsureStream(ctx, events.StreamInventory, []string{"inventory.>"}); err != nil {
		log.WithError(err).Warn("Failed to ensure inventory stream exists")
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log.WithField("component", "stock-events"),
	}, nil
}

// StockLevel classifies a record by quantity alone, ignoring expiry.
// It returns in-stock, low-stock or out-of-stock.
func StockLevel(rec *models.InventoryRecord) models.StockStatus {
	switch {
	case rec.Quantity <= 0:
		return models.StockStatusOutOfStock
	case rec.Quantity <= rec.ReorderLevel:
		return models.StockStatusLowStock
	default:
		return models.StockStatusInStock
	}
}

// AlertCandidates returns the records that are low or out of stock
func AlertCandidates(records []*models.InventoryRecord) []*models.InventoryRecord {
	var out []*models.InventoryRecord
	for _, rec := range records {
		if StockLevel(rec) != models.StockStatusInStock {
			out = append(out, rec)
		}
	}
	return out
}

func inventoryItem(rec *models.InventoryRecord) events.InventoryItem {
	return events.InventoryItem{
		ProductID:     rec.ID.String(),
		Name:          rec.Name,
		SKU:           rec.Barcode,
		CurrentStock:  rec.Quantity,
		ReorderPoint:  rec.ReorderLevel,
		WarehouseName: rec.Location,
	}
}

// PublishStockAlert publishes inventory.low_stock or inventory.out_of_stock
// for a record whose quantity is at or below its reorder level
func (p *StockEventPublisher) PublishStockAlert(ctx context.Context, pharmacyID string, rec *models.InventoryRecord) error {
	level := StockLevel(rec)
	if level == models.StockStatusInStock {
		return nil
	}

	eventType := events.InventoryLowStock
	alertLevel := "warning"
	message := fmt.Sprintf("Low stock alert: %s (barcode: %s) has %d %s remaining (reorder level: %d)", rec.Name, rec.Barcode, rec.Quantity, rec.Unit, rec.ReorderLevel)
	if level == models.StockStatusOutOfStock {
		eventType = events.InventoryOutOfStock
		alertLevel = "critical"
		message = fmt.Sprintf("Out of stock: %s (barcode: %s) is out of stock", rec.Name, rec.Barcode)
	}

	event := events.NewInventoryEvent(eventType, pharmacyID)
	event.Items = []events.InventoryItem{inventoryItem(rec)}
	event.AlertLevel = alertLevel
	event.AlertMessage = message
	event.CalculateSummary()

	fields := logrus.Fields{
		"pharmacy_id": pharmacyID,
		"record_id":   rec.ID.String(),
		"level":       level,
	}
	if err := p.publisher.PublishInventory(ctx, event); err != nil {
		p.logger.WithFields(fields).WithError(err).Error("Failed to publish stock alert")
		return err
	}
	p.logger.WithFields(fields).Info("Published stock alert")
	return nil
}

// PublishStockAdjusted publishes inventory.adjusted when a record's quantity changes
func (p *StockEventPublisher) PublishStockAdjusted(ctx context.Context, pharmacyID, actor string, previousStock int, rec *models.InventoryRecord) error {
	item := inventoryItem(rec)
	item.PreviousStock = previousStock

	event := events.NewInventoryEvent(events.InventoryAdjusted, pharmacyID)
	event.Items = []events.InventoryItem{item}
	event.AdjustmentReason = "manual edit"
	event.AdjustedBy = actor
	switch {
	case rec.Quantity > previousStock:
		event.AdjustmentType = "add"
	case rec.Quantity < previousStock:
		event.AdjustmentType = "remove"
	default:
		event.AdjustmentType = "set"
	}
	event.AlertLevel = "info"
	event.AlertMessage = fmt.Sprintf("Stock adjusted: %s changed from %d to %d", rec.Name, previousStock, rec.Quantity)

	if err := p.publisher.PublishInventory(ctx, event); err != nil {
		p.logger.WithField("record_id", rec.ID.String()).WithError(err).Error("Failed to publish inventory.adjusted event")
		return err
	}
	return nil
}

// PublishImportSummary publishes one inventory.adjusted event covering every imported record
func (p *StockEventPublisher) PublishImportSummary(ctx context.Context, pharmacyID, actor string, report *models.ImportReport, records []*models.InventoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	event := events.NewInventoryEvent(events.InventoryAdjusted, pharmacyID)
	event.Items = make([]events.InventoryItem, len(records))
	for i, rec := range records {
		event.Items[i] = inventoryItem(rec)
	}
	event.AdjustmentReason = "bulk import"
	event.AdjustedBy = actor
	event.AdjustmentType = "add"
	event.AlertLevel = "info"
	event.AlertMessage = fmt.Sprintf("Imported %d inventory items (%d rows skipped)", report.Imported, report.SkippedCount)
	event.CalculateSummary()

	if err := p.publisher.PublishInventory(ctx, event); err != nil {
		p.logger.WithField("pharmacy_id", pharmacyID).WithError(err).Error("Failed to publish import summary")
		return err
	}
	return nil
}

// ImportFinished publishes the import summary and a stock alert for every
// imported record that arrived low or out of stock. Failures are logged only.
func (p *StockEventPublisher) ImportFinished(ctx context.Context, pharmacyID, actor string, report *models.ImportReport, records []*models.InventoryRecord) {
	_ = p.PublishImportSummary(ctx, pharmacyID, actor, report, records)
	for _, rec := range AlertCandidates(records) {
		_ = p.PublishStockAlert(ctx, pharmacyID, rec)
	}
}

// IsConnected returns true if connected to NATS
func (p *StockEventPublisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the NATS connection
func (p *StockEventPublisher) Close() {
	p.publisher.Close()
}
