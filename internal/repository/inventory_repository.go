package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pharmacy-service/internal/models"
	"pharmacy-service/internal/realtime"
)

// Cache settings
const (
	RecordCacheTTL = 5 * time.Minute
	CacheKeyPrefix = "pharmacy:inventory:"
)

// InventoryRepository stores inventory in postgres through gorm, caches
// single records in Redis and signals changes through a Notifier
type InventoryRepository struct {
	db       *gorm.DB
	redis    *redis.Client
	cache    *cache.CacheLayer
	notifier realtime.Notifier
	logger   *logrus.Entry
}

var _ InventoryRepositoryInterface = (*InventoryRepository)(nil)

func NewInventoryRepository(db *gorm.DB, redisClient *redis.Client, notifier realtime.Notifier, logger *logrus.Logger) *InventoryRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if notifier == nil {
		notifier = realtime.NewLocalNotifier()
	}
	repo := &InventoryRepository{
		db:       db,
		redis:    redisClient,
		notifier: notifier,
		logger:   logger.WithField("component", "postgres_repository"),
	}

	if redisClient != nil {
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 5000,
			L1TTL:      30 * time.Second,
			DefaultTTL: RecordCacheTTL,
			KeyPrefix:  CacheKeyPrefix,
		})
	}

	return repo
}

// AutoMigrate creates or updates the inventory and activity tables
func (r *InventoryRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.InventoryRecord{}, &models.Activity{})
}

func recordCacheKey(pharmacyID string, id uuid.UUID) string {
	return fmt.Sprintf("record:%s:%s", pharmacyID, id.String())
}

// invalidateRecord drops the cached copy of a record
func (r *InventoryRepository) invalidateRecord(ctx context.Context, pharmacyID string, id uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, recordCacheKey(pharmacyID, id))
}

// changed invalidates the record cache and signals subscribers of the pharmacy
func (r *InventoryRepository) changed(ctx context.Context, pharmacyID string, id uuid.UUID) {
	r.invalidateRecord(ctx, pharmacyID, id)
	if err := r.notifier.Notify(ctx, realtime.InventoryTopic(pharmacyID)); err != nil {
		r.logger.WithError(err).WithField("pharmacy_id", pharmacyID).Warn("Failed to signal inventory change")
	}
}

// CacheStats returns cache statistics, or nil without Redis
func (r *InventoryRepository) CacheStats() *cache.CacheStats {
	if r.cache == nil {
		return nil
	}
	stats := r.cache.Stats()
	return &stats
}

// RedisHealth pings Redis
func (r *InventoryRepository) RedisHealth(ctx context.Context) error {
	if r.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.redis.Ping(ctx).Err()
}

// Ping checks the database connection
func (r *InventoryRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateRecord inserts a record with a server-assigned id and timestamps
func (r *InventoryRepository) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	now := time.Now()
	record.ID = uuid.New()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Source == "" {
		record.Source = models.RecordSourceManual
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create inventory record: %w", err)
	}
	r.changed(ctx, record.PharmacyID, record.ID)
	return nil
}

// GetRecord reads a record, through the Redis cache when available
func (r *InventoryRepository) GetRecord(ctx context.Context, pharmacyID string, id uuid.UUID) (*models.InventoryRecord, error) {
	cacheKey := recordCacheKey(pharmacyID, id)

	if r.redis != nil {
		val, err := r.redis.Get(ctx, CacheKeyPrefix+cacheKey).Result()
		if err == nil {
			var record models.InventoryRecord
			if err := json.Unmarshal([]byte(val), &record); err == nil {
				return &record, nil
			}
		}
	}

	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("pharmacy_id = ? AND id = ?", pharmacyID, id).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory record: %w", err)
	}

	if r.redis != nil {
		if data, marshalErr := json.Marshal(record); marshalErr == nil {
			r.redis.Set(ctx, CacheKeyPrefix+cacheKey, data, RecordCacheTTL)
		}
	}

	return &record, nil
}

// UpdateRecord saves every field of an existing record and stamps UpdatedAt
func (r *InventoryRepository) UpdateRecord(ctx context.Context, record *models.InventoryRecord) error {
	record.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("pharmacy_id = ? AND id = ?", record.PharmacyID, record.ID).
		Select("*").
		Omit("id", "pharmacy_id", "created_at", "created_by", "deleted_at", "source", "import_session_id").
		Updates(record)
	if result.Error != nil {
		return fmt.Errorf("failed to update inventory record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	r.changed(ctx, record.PharmacyID, record.ID)
	return nil
}

// DeleteRecord soft deletes a record
func (r *InventoryRepository) DeleteRecord(ctx context.Context, pharmacyID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("pharmacy_id = ? AND id = ?", pharmacyID, id).
		Delete(&models.InventoryRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete inventory record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	r.changed(ctx, pharmacyID, id)
	return nil
}

// ListRecords returns one page of a pharmacy's inventory with the total count
func (r *InventoryRepository) ListRecords(ctx context.Context, filter InventoryFilter) (*Snapshot, error) {
	var records []models.InventoryRecord
	var total int64
	query := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).Where("pharmacy_id = ?", filter.PharmacyID)

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("(name ILIKE ? OR generic_name ILIKE ? OR barcode ILIKE ? OR batch_number ILIKE ?)", like, like, like, like)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count inventory records: %w", err)
	}

	// Apply pagination if specified
	if filter.Page > 0 && filter.Limit > 0 {
		query = query.Offset(filter.offset()).Limit(filter.Limit)
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	if err := query.Order(filter.sortColumn() + " " + direction).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list inventory records: %w", err)
	}

	return &Snapshot{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
		ReadAt:  time.Now(),
	}, nil
}

// Subscribe streams snapshots of filter, re-querying on every change signal
func (r *InventoryRepository) Subscribe(ctx context.Context, filter InventoryFilter) (<-chan *Snapshot, error) {
	signals, err := r.notifier.Listen(ctx, realtime.InventoryTopic(filter.PharmacyID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to inventory changes: %w", err)
	}
	list := func(ctx context.Context) (*Snapshot, error) { return r.ListRecords(ctx, filter) }
	return runSubscription(ctx, list, signals, func(err error) {
		r.logger.WithError(err).WithField("pharmacy_id", filter.PharmacyID).Error("Failed to refresh inventory snapshot")
	}), nil
}

// LogActivity appends an entry to the pharmacy's activity feed
func (r *InventoryRepository) LogActivity(ctx context.Context, activity *models.Activity) error {
	activity.ID = uuid.New()
	activity.CreatedAt = time.Now()
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest activity entries first
func (r *InventoryRepository) ListActivity(ctx context.Context, pharmacyID string, limit int) ([]models.Activity, error) {
	var activities []models.Activity
	query := r.db.WithContext(ctx).Where("pharmacy_id = ?", pharmacyID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return activities, nil
}
