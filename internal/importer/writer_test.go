package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pharmacy-service/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory Store that can be told to fail specific rows
type memStore struct {
	mu         sync.Mutex
	records    []*models.InventoryRecord
	activities []*models.Activity
	failNames  map[string]bool
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
}

func newMemStore(failNames ...string) *memStore {
	s := &memStore{failNames: make(map[string]bool)}
	for _, n := range failNames {
		s.failNames[n] = true
	}
	return s
}

func (s *memStore) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxFlight.Load()
		if n <= cur || s.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.failNames[record.Name] {
		return errors.New("backend rejected write")
	}
	record.ID = uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) LogActivity(ctx context.Context, activity *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return nil
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func validRows(n int) []models.ImportRow {
	rows := make([]models.ImportRow, n)
	for i := range rows {
		row := validRow()
		row.RowNumber = i + 2
		row.Name = fmt.Sprintf("Item %d", i+1)
		row.Quantity = intPtr(100)
		rows[i] = row
	}
	return rows
}

func TestBatchWriter_TwoBatches(t *testing.T) {
	store := newMemStore()
	w := NewBatchWriter(20, nil)

	var progress []models.ImportProgress
	result, err := w.Write(context.Background(), store, WriteRequest{PharmacyID: "ph-1", Rows: validRows(25)}, func(p models.ImportProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 25, result.Imported)
	assert.Equal(t, []models.ImportProgress{{Imported: 20, Total: 25}, {Imported: 25, Total: 25}}, progress)
	assert.Equal(t, 25, store.recordCount())
	assert.LessOrEqual(t, int(store.maxFlight.Load()), 20)
	assert.Len(t, result.RecordIDs(), 25)
}

func TestBatchWriter_RecordsCarryPharmacyAndStatus(t *testing.T) {
	store := newMemStore()
	w := NewBatchWriter(5, nil)

	rows := validRows(1)
	rows[0].Quantity = intPtr(0)
	result, err := w.Write(context.Background(), store, WriteRequest{PharmacyID: "ph-9", Actor: "alice", SessionID: "sess-1", Rows: rows}, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, "ph-9", rec.PharmacyID)
	assert.Equal(t, models.StockStatusOutOfStock, rec.Status)
	assert.Equal(t, models.RecordSourceImport, rec.Source)
	require.NotNil(t, rec.CreatedBy)
	assert.Equal(t, "alice", *rec.CreatedBy)
	require.NotNil(t, rec.ImportSessionID)
	assert.Equal(t, "sess-1", *rec.ImportSessionID)
}

func TestBatchWriter_HaltsOnFailedBatch(t *testing.T) {
	store := newMemStore("Item 23")
	w := NewBatchWriter(20, nil)

	var progress []models.ImportProgress
	result, err := w.Write(context.Background(), store, WriteRequest{PharmacyID: "ph-1", Rows: validRows(45)}, func(p models.ImportProgress) {
		progress = append(progress, p)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchFailed))
	assert.Contains(t, err.Error(), "row 24")

	// the second batch is awaited in full; the third never starts
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 39, result.Imported)
	assert.Equal(t, 39, store.recordCount())
	assert.Equal(t, []models.ImportProgress{{Imported: 20, Total: 45}}, progress)
}

func TestBatchWriter_EmptyInput(t *testing.T) {
	called := false
	result, err := NewBatchWriter(20, nil).Write(context.Background(), newMemStore(), WriteRequest{}, func(models.ImportProgress) { called = true })
	require.NoError(t, err)

	assert.Equal(t, 0, result.Batches)
	assert.False(t, called)
}

func TestBatchWriter_CancelStopsBetweenBatches(t *testing.T) {
	store := newMemStore()
	w := NewBatchWriter(10, nil)
	ctx, cancel := context.WithCancel(context.Background())

	result, err := w.Write(ctx, store, WriteRequest{Rows: validRows(30)}, func(p models.ImportProgress) {
		if p.Imported == 10 {
			cancel()
		}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 10, result.Imported)
	assert.Equal(t, 10, store.recordCount())
}

func TestNewBatchWriter_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, NewBatchWriter(0, nil).BatchSize())
}
