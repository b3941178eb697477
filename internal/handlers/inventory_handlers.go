package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmacy-service/internal/importer"
	"pharmacy-service/internal/middleware"
	"pharmacy-service/internal/models"
	"pharmacy-service/internal/repository"
)

// StockEvents publishes stock changes made through the API. It is optional.
type StockEvents interface {
	PublishStockAdjusted(ctx context.Context, pharmacyID, actor string, previousStock int, rec *models.InventoryRecord) error
	PublishStockAlert(ctx context.Context, pharmacyID string, rec *models.InventoryRecord) error
}

// PageConfig bounds list page sizes
type PageConfig struct {
	DefaultLimit int
	MaxLimit     int
}

type InventoryHandler struct {
	repo   repository.InventoryRepositoryInterface
	events StockEvents
	pages  PageConfig
	logger *logrus.Entry
	now    func() time.Time
}

func NewInventoryHandler(repo repository.InventoryRepositoryInterface, events StockEvents, pages PageConfig, logger *logrus.Logger) *InventoryHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if pages.DefaultLimit <= 0 {
		pages.DefaultLimit = 20
	}
	if pages.MaxLimit < pages.DefaultLimit {
		pages.MaxLimit = pages.DefaultLimit
	}
	return &InventoryHandler{
		repo:   repo,
		events: events,
		pages:  pages,
		logger: logger.WithField("component", "inventory-handler"),
		now:    time.Now,
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	})
}

func stringPtr(s string) *string {
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// bindFilter reads the list query parameters shared by list, stream and export
func (h *InventoryHandler) bindFilter(c *gin.Context, paginate bool) (repository.InventoryFilter, bool) {
	filter := repository.InventoryFilter{
		PharmacyID: middleware.GetPharmacyID(c),
		Search:     strings.TrimSpace(c.Query("search")),
		Category:   strings.TrimSpace(c.Query("category")),
		SortBy:     c.DefaultQuery("sortBy", repository.DefaultSort),
	}

	if status := c.Query("status"); status != "" {
		filter.Status = models.StockStatus(status)
		if !models.IsValidStockStatus(filter.Status) {
			respondError(c, http.StatusBadRequest, "INVALID_STATUS", fmt.Sprintf("Unknown status %q", status))
			return filter, false
		}
	}

	if !repository.IsSortable(filter.SortBy) {
		respondError(c, http.StatusBadRequest, "INVALID_SORT", fmt.Sprintf("Cannot sort by %q", filter.SortBy))
		return filter, false
	}

	switch order := strings.ToLower(c.DefaultQuery("sortOrder", "desc")); order {
	case "asc":
	case "desc":
		filter.SortDesc = true
	default:
		respondError(c, http.StatusBadRequest, "INVALID_SORT", "sortOrder must be asc or desc")
		return filter, false
	}

	if !paginate {
		return filter, true
	}

	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.pages.DefaultLimit)))
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = h.pages.DefaultLimit
	}
	if filter.Limit > h.pages.MaxLimit {
		filter.Limit = h.pages.MaxLimit
	}
	return filter, true
}

func (h *InventoryHandler) recordID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid inventory item ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *InventoryHandler) logActivity(ctx context.Context, pharmacyID, actor string, activityType models.ActivityType, rec *models.InventoryRecord, message string) {
	activity := &models.Activity{
		PharmacyID: pharmacyID,
		Type:       activityType,
		Message:    message,
		RecordID:   stringPtr(rec.ID.String()),
		Actor:      optionalString(actor),
	}
	if err := h.repo.LogActivity(ctx, activity); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"pharmacy_id": pharmacyID,
			"record_id":   rec.ID.String(),
			"type":        activityType,
		}).Error("Failed to log activity")
	}
}

// ListInventory returns one page of the pharmacy's inventory
func (h *InventoryHandler) ListInventory(c *gin.Context) {
	filter, ok := h.bindFilter(c, true)
	if !ok {
		return
	}

	snap, err := h.repo.ListRecords(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).WithField("pharmacy_id", filter.PharmacyID).Error("Failed to list inventory")
		respondError(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to retrieve inventory")
		return
	}

	c.JSON(http.StatusOK, models.InventoryListResponse{
		Success: true,
		Data:    snap.Records,
		Pagination: &models.PaginationMeta{
			Page:       filter.Page,
			Limit:      filter.Limit,
			TotalItems: snap.Total,
			TotalPages: int(math.Ceil(float64(snap.Total) / float64(filter.Limit))),
		},
	})
}

// GetInventoryItem retrieves one inventory item by ID
func (h *InventoryHandler) GetInventoryItem(c *gin.Context) {
	id, ok := h.recordID(c)
	if !ok {
		return
	}

	rec, err := h.repo.GetRecord(c.Request.Context(), middleware.GetPharmacyID(c), id)
	if err != nil {
		h.storeError(c, err, "Failed to retrieve inventory item")
		return
	}

	c.JSON(http.StatusOK, models.InventoryResponse{Success: true, Data: rec})
}

// CreateInventoryItem adds a single item entered by hand
func (h *InventoryHandler) CreateInventoryItem(c *gin.Context) {
	pharmacyID := middleware.GetPharmacyID(c)
	actor := middleware.GetActor(c)

	var req models.CreateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if msg := validatePricesAndDates(req.CostPrice, req.SellingPrice, req.ExpiryDate, req.ManufactureDate); msg != "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}

	rec := &models.InventoryRecord{
		PharmacyID:           pharmacyID,
		Name:                 strings.TrimSpace(req.Name),
		GenericName:          req.GenericName,
		Category:             strings.TrimSpace(req.Category),
		DosageForm:           req.DosageForm,
		Strength:             req.Strength,
		Manufacturer:         req.Manufacturer,
		Quantity:             req.Quantity,
		Unit:                 req.Unit,
		ReorderLevel:         models.DefaultReorderLevel,
		CostPrice:            req.CostPrice,
		SellingPrice:         req.SellingPrice,
		BatchNumber:          req.BatchNumber,
		ExpiryDate:           req.ExpiryDate,
		ManufactureDate:      req.ManufactureDate,
		Barcode:              req.Barcode,
		Location:             req.Location,
		Supplier:             req.Supplier,
		Description:          req.Description,
		PrescriptionRequired: req.PrescriptionRequired,
		Source:               models.RecordSourceManual,
		CreatedBy:            optionalString(actor),
		UpdatedBy:            optionalString(actor),
	}
	if req.ReorderLevel != nil {
		rec.ReorderLevel = *req.ReorderLevel
	}
	if rec.Unit == "" {
		rec.Unit = models.DefaultUnit
	}
	if rec.Barcode == "" {
		rec.Barcode = importer.NewParser(nil, importer.WithClock(h.now)).GenerateBarcode()
	}
	rec.RefreshStatus(h.now())

	if err := h.repo.CreateRecord(c.Request.Context(), rec); err != nil {
		h.logger.WithError(err).WithField("pharmacy_id", pharmacyID).Error("Failed to create inventory item")
		respondError(c, http.StatusInternalServerError, "CREATION_FAILED", "Failed to create inventory item")
		return
	}

	h.logActivity(c.Request.Context(), pharmacyID, actor, models.ActivityInventoryCreated, rec, fmt.Sprintf("Added %s to inventory", rec.Name))
	h.publishStock(c.Request.Context(), pharmacyID, actor, 0, rec)

	c.JSON(http.StatusCreated, models.InventoryResponse{
		Success: true,
		Data:    rec,
		Message: stringPtr("Inventory item created successfully"),
	})
}

// UpdateInventoryItem applies a partial update and recomputes the status
func (h *InventoryHandler) UpdateInventoryItem(c *gin.Context) {
	pharmacyID := middleware.GetPharmacyID(c)
	actor := middleware.GetActor(c)
	id, ok := h.recordID(c)
	if !ok {
		return
	}

	var req models.UpdateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	rec, err := h.repo.GetRecord(c.Request.Context(), pharmacyID, id)
	if err != nil {
		h.storeError(c, err, "Failed to retrieve inventory item")
		return
	}
	previousStock := rec.Quantity

	applyUpdate(rec, &req)
	if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Category) == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "name and category cannot be empty")
		return
	}
	if msg := validatePricesAndDates(rec.CostPrice, rec.SellingPrice, rec.ExpiryDate, rec.ManufactureDate); msg != "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}
	rec.UpdatedBy = optionalString(actor)
	rec.RefreshStatus(h.now())

	if err := h.repo.UpdateRecord(c.Request.Context(), rec); err != nil {
		h.storeError(c, err, "Failed to update inventory item")
		return
	}

	h.logActivity(c.Request.Context(), pharmacyID, actor, models.ActivityInventoryUpdated, rec, fmt.Sprintf("Updated %s", rec.Name))
	if rec.Quantity != previousStock {
		h.publishStock(c.Request.Context(), pharmacyID, actor, previousStock, rec)
	}

	c.JSON(http.StatusOK, models.InventoryResponse{
		Success: true,
		Data:    rec,
		Message: stringPtr("Inventory item updated successfully"),
	})
}

// DeleteInventoryItem soft deletes an item
func (h *InventoryHandler) DeleteInventoryItem(c *gin.Context) {
	pharmacyID := middleware.GetPharmacyID(c)
	id, ok := h.recordID(c)
	if !ok {
		return
	}

	rec, err := h.repo.GetRecord(c.Request.Context(), pharmacyID, id)
	if err != nil {
		h.storeError(c, err, "Failed to retrieve inventory item")
		return
	}
	if err := h.repo.DeleteRecord(c.Request.Context(), pharmacyID, id); err != nil {
		h.storeError(c, err, "Failed to delete inventory item")
		return
	}

	h.logActivity(c.Request.Context(), pharmacyID, middleware.GetActor(c), models.ActivityInventoryDeleted, rec, fmt.Sprintf("Removed %s from inventory", rec.Name))

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: stringPtr("Inventory item deleted successfully"),
	})
}

// StreamInventory sends a server-sent "snapshot" event with the filtered
// listing now and after every change, until the client goes away
func (h *InventoryHandler) StreamInventory(c *gin.Context) {
	filter, ok := h.bindFilter(c, true)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	snapshots, err := h.repo.Subscribe(ctx, filter)
	if err != nil {
		h.logger.WithError(err).WithField("pharmacy_id", filter.PharmacyID).Error("Failed to subscribe to inventory")
		respondError(c, http.StatusInternalServerError, "SUBSCRIBE_FAILED", "Failed to subscribe to inventory changes")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			c.SSEvent("snapshot", snap)
			c.Writer.Flush()
		}
	}
}

// ExportInventory downloads the filtered inventory as CSV
func (h *InventoryHandler) ExportInventory(c *gin.Context) {
	filter, ok := h.bindFilter(c, false)
	if !ok {
		return
	}

	snap, err := h.repo.ListRecords(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).WithField("pharmacy_id", filter.PharmacyID).Error("Failed to export inventory")
		respondError(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to retrieve inventory")
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=inventory_%s.csv", h.now().Format("20060102")))
	c.Status(http.StatusOK)
	if err := importer.WriteCSVExport(c.Writer, snap.Records); err != nil {
		h.logger.WithError(err).Error("Failed to write inventory export")
	}
}

// ListActivity returns the pharmacy's most recent activity entries
func (h *InventoryHandler) ListActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	switch {
	case limit < 1:
		limit = min(50, h.pages.MaxLimit)
	case limit > h.pages.MaxLimit:
		limit = h.pages.MaxLimit
	}

	activities, err := h.repo.ListActivity(c.Request.Context(), middleware.GetPharmacyID(c), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list activity")
		respondError(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to retrieve activity")
		return
	}

	c.JSON(http.StatusOK, models.ActivityListResponse{Success: true, Data: activities})
}

func (h *InventoryHandler) storeError(c *gin.Context, err error, message string) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Inventory item not found")
		return
	}
	h.logger.WithError(err).WithField("pharmacy_id", middleware.GetPharmacyID(c)).Error(message)
	respondError(c, http.StatusInternalServerError, "STORE_ERROR", message)
}

// publishStock reports a stock change and, when the item is at or below its
// reorder level, a stock alert. Failures are logged by the publisher.
func (h *InventoryHandler) publishStock(ctx context.Context, pharmacyID, actor string, previousStock int, rec *models.InventoryRecord) {
	if h.events == nil {
		return
	}
	_ = h.events.PublishStockAdjusted(ctx, pharmacyID, actor, previousStock, rec)
	_ = h.events.PublishStockAlert(ctx, pharmacyID, rec)
}

func validatePricesAndDates(costPrice, sellingPrice decimal.Decimal, expiryDate, manufactureDate string) string {
	if costPrice.IsNegative() {
		return importer.MsgCostPriceInvalid
	}
	if sellingPrice.IsNegative() {
		return importer.MsgSellingPriceInvalid
	}
	if expiryDate != "" && !importer.IsValidDate(expiryDate) {
		return importer.MsgExpiryDateInvalid
	}
	if manufactureDate != "" && !importer.IsValidDate(manufactureDate) {
		return importer.MsgManufactureDateInvalid
	}
	return ""
}

func applyUpdate(rec *models.InventoryRecord, req *models.UpdateInventoryRequest) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&rec.Name, req.Name)
	setString(&rec.GenericName, req.GenericName)
	setString(&rec.Category, req.Category)
	setString(&rec.DosageForm, req.DosageForm)
	setString(&rec.Strength, req.Strength)
	setString(&rec.Manufacturer, req.Manufacturer)
	setString(&rec.Unit, req.Unit)
	setString(&rec.BatchNumber, req.BatchNumber)
	setString(&rec.ExpiryDate, req.ExpiryDate)
	setString(&rec.ManufactureDate, req.ManufactureDate)
	setString(&rec.Barcode, req.Barcode)
	setString(&rec.Location, req.Location)
	setString(&rec.Supplier, req.Supplier)
	setString(&rec.Description, req.Description)

	if req.Quantity != nil {
		rec.Quantity = *req.Quantity
	}
	if req.ReorderLevel != nil {
		rec.ReorderLevel = *req.ReorderLevel
	}
	if req.CostPrice != nil {
		rec.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		rec.SellingPrice = *req.SellingPrice
	}
	if req.PrescriptionRequired != nil {
		rec.PrescriptionRequired = *req.PrescriptionRequired
	}
	if rec.Unit == "" {
		rec.Unit = models.DefaultUnit
	}
}
