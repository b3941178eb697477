package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pharmacy-service/internal/config"
	"pharmacy-service/internal/realtime"
)

// Open connects the inventory store selected by cfg.StoreDriver, migrating
// or indexing it as needed. The returned close func releases the
// connection. redisClient may be nil.
func Open(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *logrus.Logger) (InventoryRepositoryInterface, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := config.InitMongo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := NewMongoInventoryRepository(db, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Println("✓ Using MongoDB inventory store")
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil

	case config.StoreDriverPostgres:
		db, err := config.InitDB(cfg)
		if err != nil {
			return nil, nil, err
		}

		var notifier realtime.Notifier
		if redisClient != nil {
			notifier = realtime.NewRedisNotifier(redisClient, logger)
		} else {
			notifier = realtime.NewLocalNotifier()
		}

		repo := NewInventoryRepository(db, redisClient, notifier, logger)
		if err := repo.AutoMigrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Println("✓ Using PostgreSQL inventory store")

		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repo, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
