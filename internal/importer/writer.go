package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pharmacy-service/internal/models"
)

// DefaultBatchSize is the number of records written concurrently per batch
const DefaultBatchSize = 20

// ErrBatchFailed wraps the first write error of a halted import
var ErrBatchFailed = errors.New("import batch failed")

// RecordCreator persists a single new inventory record, assigning its id
type RecordCreator interface {
	CreateRecord(ctx context.Context, record *models.InventoryRecord) error
}

// ProgressFunc receives cumulative progress after each completed batch
type ProgressFunc func(models.ImportProgress)

// WriteRequest is the set of validated rows to persist for one pharmacy
type WriteRequest struct {
	PharmacyID string
	Actor      string
	SessionID  string
	Rows       []models.ImportRow
}

// WriteResult reports what a BatchWriter managed to persist
type WriteResult struct {
	Imported int
	Total    int
	Batches  int
	Records  []*models.InventoryRecord
}

// RecordIDs returns the ids of the persisted records in row order
func (r *WriteResult) RecordIDs() []string {
	ids := make([]string, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.ID.String()
	}
	return ids
}

// BatchWriter persists rows in fixed-size batches. Writes within a batch run
// concurrently; batches run one after another.
type BatchWriter struct {
	batchSize int
	now       func() time.Time
	logger    *logrus.Entry
}

func NewBatchWriter(batchSize int, logger *logrus.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BatchWriter{
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.WithField("component", "batch_writer"),
	}
}

// BatchSize returns the configured batch size
func (w *BatchWriter) BatchSize() int {
	return w.batchSize
}

// Write persists req.Rows. The first batch containing a failed write halts
// the import: the returned result counts every record confirmed written,
// including those of the failed batch, and nothing is rolled back.
// Cancelling ctx stops the writer between batches; a batch already issued
// always runs to completion.
func (w *BatchWriter) Write(ctx context.Context, target RecordCreator, req WriteRequest, progress ProgressFunc) (*WriteResult, error) {
	total := len(req.Rows)
	result := &WriteResult{
		Total:   total,
		Records: make([]*models.InventoryRecord, 0, total),
	}
	writeCtx := context.WithoutCancel(ctx)
	today := w.now()

	for start := 0; start < total; start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("import stopped after %d of %d records: %w", result.Imported, total, err)
		}

		end := min(start+w.batchSize, total)
		batch := req.Rows[start:end]
		records := make([]*models.InventoryRecord, len(batch))
		written := make([]bool, len(batch))

		var g errgroup.Group
		for i := range batch {
			records[i] = w.buildRecord(&batch[i], req, today)
			g.Go(func() error {
				if err := target.CreateRecord(writeCtx, records[i]); err != nil {
					return fmt.Errorf("row %d: %w", batch[i].RowNumber, err)
				}
				written[i] = true
				return nil
			})
		}
		err := g.Wait()

		for i, ok := range written {
			if ok {
				result.Records = append(result.Records, records[i])
				result.Imported++
			}
		}
		result.Batches++

		if err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"pharmacy_id": req.PharmacyID,
				"session_id":  req.SessionID,
				"batch":       result.Batches,
				"imported":    result.Imported,
				"total":       total,
			}).Warn("Import halted on failed batch")
			return result, fmt.Errorf("%w: batch %d: %w", ErrBatchFailed, result.Batches, err)
		}

		if progress != nil {
			progress(models.ImportProgress{Imported: result.Imported, Total: total})
		}
	}

	return result, nil
}

func (w *BatchWriter) buildRecord(row *models.ImportRow, req WriteRequest, today time.Time) *models.InventoryRecord {
	rec := row.ToRecord(req.PharmacyID, today)
	if req.Actor != "" {
		rec.CreatedBy = stringPtr(req.Actor)
		rec.UpdatedBy = stringPtr(req.Actor)
	}
	if req.SessionID != "" {
		rec.ImportSessionID = stringPtr(req.SessionID)
	}
	return rec
}

func stringPtr(s string) *string {
	return &s
}
