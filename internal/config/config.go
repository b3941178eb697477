package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store drivers accepted in STORE_DRIVER
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	// Database
	StoreDriver string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// MongoDB
	MongoURI      string
	MongoDatabase string

	// Redis
	RedisURL string

	// Server
	Port        string
	Environment string
	CORSOrigins []string

	// NATS
	NATSURL string

	// Import
	ImportBatchSize  int
	ImportSessionTTL time.Duration
	MaxUploadBytes   int64

	// Pagination
	DefaultPageSize int
	MaxPageSize     int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))
	maxPageSize, _ := strconv.Atoi(getEnv("MAX_PAGE_SIZE", "100"))
	batchSize, _ := strconv.Atoi(getEnv("IMPORT_BATCH_SIZE", "20"))
	maxUpload, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	sessionTTL, err := time.ParseDuration(getEnv("IMPORT_SESSION_TTL", "30m"))
	if err != nil {
		sessionTTL = 30 * time.Minute
	}

	cfg := &Config{
		// Database - fetch password from GCP Secret Manager if enabled
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      dbPort,
		DBUser:      getEnv("DB_USER", "postgres"),
		DBName:      getEnv("DB_NAME", "pharmacy_db"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "pharmacy"),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Server
		Port:        getEnv("PORT", "8088"),
		Environment: getEnv("ENVIRONMENT", "development"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		// NATS
		NATSURL: getEnv("NATS_URL", ""),

		// Import
		ImportBatchSize:  batchSize,
		ImportSessionTTL: sessionTTL,
		MaxUploadBytes:   maxUpload,

		// Pagination
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
	}
	if cfg.StoreDriver == StoreDriverPostgres {
		cfg.DBPassword = secrets.GetDBPassword()
	}
	return cfg
}

// Validate reports configuration that cannot work
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMongo:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", c.StoreDriver, StoreDriverPostgres, StoreDriverMongo)
	}
	if c.ImportBatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.ImportBatchSize)
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// InitRedis connects to Redis when REDIS_URL is set. It returns nil when
// Redis is not configured or unreachable; callers fall back to in-process
// change notification and no record cache.
func InitRedis(cfg *Config) *redis.Client {
	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not configured, caching disabled")
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: Failed to parse Redis URL: %v", err)
		return nil
	}
	if password := secrets.GetRedisPassword(); password != "" {
		opt.Password = password
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v (continuing without cache)", err)
		_ = client.Close()
		return nil
	}

	log.Println("✓ Connected to Redis")
	return client
}

// InitMongo connects to MongoDB and returns the configured database
func InitMongo(ctx context.Context, cfg *Config) (*mongo.Client, *mongo.Database, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(timeoutCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(timeoutCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Println("✓ Connected to MongoDB")
	return client, client.Database(cfg.MongoDatabase), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
