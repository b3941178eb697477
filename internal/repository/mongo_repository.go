package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pharmacy-service/internal/models"
)

// Mongo collection names
const (
	InventoryCollection = "inventory_items"
	ActivityCollection  = "activities"
)

// inventoryDocument is the stored shape of an inventory record
type inventoryDocument struct {
	ID                   string               `bson:"_id"`
	PharmacyID           string               `bson:"pharmacy_id"`
	Name                 string               `bson:"name"`
	GenericName          string               `bson:"generic_name,omitempty"`
	Category             string               `bson:"category"`
	DosageForm           string               `bson:"dosage_form,omitempty"`
	Strength             string               `bson:"strength,omitempty"`
	Manufacturer         string               `bson:"manufacturer,omitempty"`
	Quantity             int                  `bson:"quantity"`
	Unit                 string               `bson:"unit"`
	ReorderLevel         int                  `bson:"reorder_level"`
	CostPrice            primitive.Decimal128 `bson:"cost_price"`
	SellingPrice         primitive.Decimal128 `bson:"selling_price"`
	BatchNumber          string               `bson:"batch_number,omitempty"`
	ExpiryDate           string               `bson:"expiry_date,omitempty"`
	ManufactureDate      string               `bson:"manufacture_date,omitempty"`
	Barcode              string               `bson:"barcode,omitempty"`
	Location             string               `bson:"location,omitempty"`
	Supplier             string               `bson:"supplier,omitempty"`
	Description          string               `bson:"description,omitempty"`
	PrescriptionRequired bool                 `bson:"prescription_required"`
	Status               string               `bson:"status"`
	Source               string               `bson:"source"`
	ImportSessionID      *string              `bson:"import_session_id,omitempty"`
	CreatedAt            time.Time            `bson:"created_at"`
	UpdatedAt            time.Time            `bson:"updated_at"`
	DeletedAt            *time.Time           `bson:"deleted_at,omitempty"`
	CreatedBy            *string              `bson:"created_by,omitempty"`
	UpdatedBy            *string              `bson:"updated_by,omitempty"`
}

type activityDocument struct {
	ID         string    `bson:"_id"`
	PharmacyID string    `bson:"pharmacy_id"`
	Type       string    `bson:"type"`
	Message    string    `bson:"message"`
	RecordID   *string   `bson:"record_id,omitempty"`
	Actor      *string   `bson:"actor,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toInventoryDocument(r *models.InventoryRecord) *inventoryDocument {
	return &inventoryDocument{
		ID:                   r.ID.String(),
		PharmacyID:           r.PharmacyID,
		Name:                 r.Name,
		GenericName:          r.GenericName,
		Category:             r.Category,
		DosageForm:           r.DosageForm,
		Strength:             r.Strength,
		Manufacturer:         r.Manufacturer,
		Quantity:             r.Quantity,
		Unit:                 r.Unit,
		ReorderLevel:         r.ReorderLevel,
		CostPrice:            toDecimal128(r.CostPrice),
		SellingPrice:         toDecimal128(r.SellingPrice),
		BatchNumber:          r.BatchNumber,
		ExpiryDate:           r.ExpiryDate,
		ManufactureDate:      r.ManufactureDate,
		Barcode:              r.Barcode,
		Location:             r.Location,
		Supplier:             r.Supplier,
		Description:          r.Description,
		PrescriptionRequired: r.PrescriptionRequired,
		Status:               string(r.Status),
		Source:               string(r.Source),
		ImportSessionID:      r.ImportSessionID,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		CreatedBy:            r.CreatedBy,
		UpdatedBy:            r.UpdatedBy,
	}
}

func (d *inventoryDocument) toRecord() models.InventoryRecord {
	id, _ := uuid.Parse(d.ID)
	return models.InventoryRecord{
		ID:                   id,
		PharmacyID:           d.PharmacyID,
		Name:                 d.Name,
		GenericName:          d.GenericName,
		Category:             d.Category,
		DosageForm:           d.DosageForm,
		Strength:             d.Strength,
		Manufacturer:         d.Manufacturer,
		Quantity:             d.Quantity,
		Unit:                 d.Unit,
		ReorderLevel:         d.ReorderLevel,
		CostPrice:            fromDecimal128(d.CostPrice),
		SellingPrice:         fromDecimal128(d.SellingPrice),
		BatchNumber:          d.BatchNumber,
		ExpiryDate:           d.ExpiryDate,
		ManufactureDate:      d.ManufactureDate,
		Barcode:              d.Barcode,
		Location:             d.Location,
		Supplier:             d.Supplier,
		Description:          d.Description,
		PrescriptionRequired: d.PrescriptionRequired,
		Status:               models.StockStatus(d.Status),
		Source:               models.RecordSource(d.Source),
		ImportSessionID:      d.ImportSessionID,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		CreatedBy:            d.CreatedBy,
		UpdatedBy:            d.UpdatedBy,
	}
}

// MongoInventoryRepository stores inventory in MongoDB. Subscriptions are
// driven by change streams, which need a replica set or sharded cluster.
type MongoInventoryRepository struct {
	db         *mongo.Database
	inventory  *mongo.Collection
	activities *mongo.Collection
	logger     *logrus.Entry
}

var _ InventoryRepositoryInterface = (*MongoInventoryRepository)(nil)

func NewMongoInventoryRepository(db *mongo.Database, logger *logrus.Logger) *MongoInventoryRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MongoInventoryRepository{
		db:         db,
		inventory:  db.Collection(InventoryCollection),
		activities: db.Collection(ActivityCollection),
		logger:     logger.WithField("component", "mongo_repository"),
	}
}

// EnsureIndexes creates the indexes the list and activity queries rely on
func (r *MongoInventoryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.inventory.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pharmacy_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "pharmacy_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "pharmacy_id", Value: 1}, {Key: "barcode", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create inventory indexes: %w", err)
	}
	_, err = r.activities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pharmacy_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create activity indexes: %w", err)
	}
	return nil
}

func (r *MongoInventoryRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

func liveRecord(pharmacyID string, id uuid.UUID) bson.M {
	return bson.M{"_id": id.String(), "pharmacy_id": pharmacyID, "deleted_at": bson.M{"$exists": false}}
}

func (r *MongoInventoryRepository) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	now := time.Now().UTC()
	record.ID = uuid.New()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Source == "" {
		record.Source = models.RecordSourceManual
	}

	if _, err := r.inventory.InsertOne(ctx, toInventoryDocument(record)); err != nil {
		return fmt.Errorf("failed to create inventory record: %w", err)
	}
	return nil
}

func (r *MongoInventoryRepository) GetRecord(ctx context.Context, pharmacyID string, id uuid.UUID) (*models.InventoryRecord, error) {
	var doc inventoryDocument
	err := r.inventory.FindOne(ctx, liveRecord(pharmacyID, id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory record: %w", err)
	}
	rec := doc.toRecord()
	return &rec, nil
}

func (r *MongoInventoryRepository) UpdateRecord(ctx context.Context, record *models.InventoryRecord) error {
	record.UpdatedAt = time.Now().UTC()
	doc := toInventoryDocument(record)

	set := bson.M{
		"name":                  doc.Name,
		"generic_name":          doc.GenericName,
		"category":              doc.Category,
		"dosage_form":           doc.DosageForm,
		"strength":              doc.Strength,
		"manufacturer":          doc.Manufacturer,
		"quantity":              doc.Quantity,
		"unit":                  doc.Unit,
		"reorder_level":         doc.ReorderLevel,
		"cost_price":            doc.CostPrice,
		"selling_price":         doc.SellingPrice,
		"batch_number":          doc.BatchNumber,
		"expiry_date":           doc.ExpiryDate,
		"manufacture_date":      doc.ManufactureDate,
		"barcode":               doc.Barcode,
		"location":              doc.Location,
		"supplier":              doc.Supplier,
		"description":           doc.Description,
		"prescription_required": doc.PrescriptionRequired,
		"status":                doc.Status,
		"updated_at":            doc.UpdatedAt,
		"updated_by":            doc.UpdatedBy,
	}

	res, err := r.inventory.UpdateOne(ctx, liveRecord(record.PharmacyID, record.ID), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update inventory record: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRecord soft deletes a record by stamping deleted_at
func (r *MongoInventoryRepository) DeleteRecord(ctx context.Context, pharmacyID string, id uuid.UUID) error {
	res, err := r.inventory.UpdateOne(ctx, liveRecord(pharmacyID, id), bson.M{"$set": bson.M{"deleted_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to delete inventory record: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoInventoryRepository) listFilter(filter InventoryFilter) bson.M {
	q := bson.M{"pharmacy_id": filter.PharmacyID, "deleted_at": bson.M{"$exists": false}}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"generic_name": pattern},
			bson.M{"barcode": pattern},
			bson.M{"batch_number": pattern},
		}
	}
	if filter.Category != "" {
		q["category"] = filter.Category
	}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	return q
}

func (r *MongoInventoryRepository) ListRecords(ctx context.Context, filter InventoryFilter) (*Snapshot, error) {
	q := r.listFilter(filter)

	total, err := r.inventory.CountDocuments(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to count inventory records: %w", err)
	}

	direction := 1
	if filter.SortDesc {
		direction = -1
	}
	findOptions := options.Find().SetSort(bson.D{{Key: filter.sortColumn(), Value: direction}, {Key: "_id", Value: 1}})
	if filter.Page > 0 && filter.Limit > 0 {
		findOptions.SetSkip(int64(filter.offset())).SetLimit(int64(filter.Limit))
	}

	cursor, err := r.inventory.Find(ctx, q, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []inventoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode inventory records: %w", err)
	}

	records := make([]models.InventoryRecord, len(docs))
	for i := range docs {
		records[i] = docs[i].toRecord()
	}
	return &Snapshot{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
		ReadAt:  time.Now(),
	}, nil
}

// Subscribe watches the inventory collection for changes to the
// pharmacy's documents and re-runs the query after each one
func (r *MongoInventoryRepository) Subscribe(ctx context.Context, filter InventoryFilter) (<-chan *Snapshot, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.pharmacy_id": filter.PharmacyID}}},
	}
	stream, err := r.inventory.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("failed to watch inventory changes: %w", err)
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			select {
			case signals <- struct{}{}:
			default:
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).WithField("pharmacy_id", filter.PharmacyID).Error("Inventory change stream ended")
		}
	}()

	list := func(ctx context.Context) (*Snapshot, error) { return r.ListRecords(ctx, filter) }
	return runSubscription(ctx, list, signals, func(err error) {
		r.logger.WithError(err).WithField("pharmacy_id", filter.PharmacyID).Error("Failed to refresh inventory snapshot")
	}), nil
}

func (r *MongoInventoryRepository) LogActivity(ctx context.Context, activity *models.Activity) error {
	activity.ID = uuid.New()
	activity.CreatedAt = time.Now().UTC()
	doc := activityDocument{
		ID:         activity.ID.String(),
		PharmacyID: activity.PharmacyID,
		Type:       string(activity.Type),
		Message:    activity.Message,
		RecordID:   activity.RecordID,
		Actor:      activity.Actor,
		CreatedAt:  activity.CreatedAt,
	}
	if _, err := r.activities.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

func (r *MongoInventoryRepository) ListActivity(ctx context.Context, pharmacyID string, limit int) ([]models.Activity, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.activities.Find(ctx, bson.M{"pharmacy_id": pharmacyID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []activityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}

	activities := make([]models.Activity, len(docs))
	for i, d := range docs {
		id, _ := uuid.Parse(d.ID)
		activities[i] = models.Activity{
			ID:         id,
			PharmacyID: d.PharmacyID,
			Type:       models.ActivityType(d.Type),
			Message:    d.Message,
			RecordID:   d.RecordID,
			Actor:      d.Actor,
			CreatedAt:  d.CreatedAt,
		}
	}
	return activities, nil
}
