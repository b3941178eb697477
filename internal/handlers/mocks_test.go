package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"pharmacy-service/internal/middleware"
	"pharmacy-service/internal/models"
	"pharmacy-service/internal/repository"
)

// MockInventoryRepository is a mock implementation of InventoryRepositoryInterface
type MockInventoryRepository struct {
	mock.Mock
}

var _ repository.InventoryRepositoryInterface = (*MockInventoryRepository)(nil)

func (m *MockInventoryRepository) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockInventoryRepository) GetRecord(ctx context.Context, pharmacyID string, id uuid.UUID) (*models.InventoryRecord, error) {
	args := m.Called(ctx, pharmacyID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryRecord), args.Error(1)
}

func (m *MockInventoryRepository) UpdateRecord(ctx context.Context, record *models.InventoryRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockInventoryRepository) DeleteRecord(ctx context.Context, pharmacyID string, id uuid.UUID) error {
	args := m.Called(ctx, pharmacyID, id)
	return args.Error(0)
}

func (m *MockInventoryRepository) ListRecords(ctx context.Context, filter repository.InventoryFilter) (*repository.Snapshot, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Snapshot), args.Error(1)
}

func (m *MockInventoryRepository) Subscribe(ctx context.Context, filter repository.InventoryFilter) (<-chan *repository.Snapshot, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan *repository.Snapshot), args.Error(1)
}

func (m *MockInventoryRepository) LogActivity(ctx context.Context, activity *models.Activity) error {
	args := m.Called(ctx, activity)
	return args.Error(0)
}

func (m *MockInventoryRepository) ListActivity(ctx context.Context, pharmacyID string, limit int) ([]models.Activity, error) {
	args := m.Called(ctx, pharmacyID, limit)
	return args.Get(0).([]models.Activity), args.Error(1)
}

func (m *MockInventoryRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockStockEvents is a mock implementation of StockEvents
type MockStockEvents struct {
	mock.Mock
}

var _ StockEvents = (*MockStockEvents)(nil)

func (m *MockStockEvents) PublishStockAdjusted(ctx context.Context, pharmacyID, actor string, previousStock int, rec *models.InventoryRecord) error {
	args := m.Called(ctx, pharmacyID, actor, previousStock, rec)
	return args.Error(0)
}

func (m *MockStockEvents) PublishStockAlert(ctx context.Context, pharmacyID string, rec *models.InventoryRecord) error {
	args := m.Called(ctx, pharmacyID, rec)
	return args.Error(0)
}

const testPharmacyID = "ph-1"

// Helper to setup test router with the pharmacy scope applied
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.PharmacyMiddleware(), middleware.ActorMiddleware())
	return r
}
