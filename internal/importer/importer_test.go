package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-service/internal/models"
)

const scenarioHeader = "Product Name,Category,Stock,Unit Price,Selling Price\n"

type recordingHook struct {
	mu      sync.Mutex
	reports []*models.ImportReport
	records int
}

func (h *recordingHook) ImportFinished(ctx context.Context, pharmacyID, actor string, report *models.ImportReport, records []*models.InventoryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, report)
	h.records += len(records)
}

func newTestImporter(store Store, hooks ...CompletionHook) *Importer {
	im := New(store, Config{BatchSize: 20, SessionTTL: time.Minute}, nil, hooks...)
	im.now = func() time.Time { return fixedNow }
	return im
}

func csvWithRows(n int) string {
	var b strings.Builder
	b.WriteString("name,category,quantity,costPrice,sellingPrice\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Item %d,otc,%d,1.50,3.00\n", i, 100+i)
	}
	return b.String()
}

func TestParseFile_ScenarioOutOfStockRow(t *testing.T) {
	im := newTestImporter(newMemStore())
	rows, err := im.ParseFile("stock.csv", strings.NewReader(scenarioHeader+"Paracetamol,otc,0,5,10\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.NotNil(t, row.Quantity)
	assert.Equal(t, 0, *row.Quantity)
	assert.Equal(t, "5", row.CostPrice.String())
	assert.Equal(t, "10", row.SellingPrice.String())
	assert.Empty(t, row.Errors)

	rec := row.ToRecord("ph-1", fixedNow)
	assert.Equal(t, models.StockStatusOutOfStock, rec.Status)
}

func TestParseFile_ScenarioEmptyName(t *testing.T) {
	im := newTestImporter(newMemStore())
	rows, err := im.ParseFile("stock.csv", strings.NewReader(scenarioHeader+",otc,10,5,10\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, []string{"Name is required"}, rows[0].Errors)
	assert.Empty(t, ValidRows(rows))
}

func TestParseFile_ScenarioMissingColumn(t *testing.T) {
	im := newTestImporter(newMemStore())
	_, err := im.ParseFile("stock.csv", strings.NewReader("Product Name,Category,Stock,Unit Price\nParacetamol,otc,0,5\n"))
	require.Error(t, err)

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []Field{FieldSellingPrice}, missing.Fields)
	assert.True(t, IsFileError(err))
}

func TestRun_ValidateOnly(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)

	report, err := im.Run(context.Background(), RunRequest{
		PharmacyID:   "ph-1",
		FileName:     "stock.csv",
		File:         strings.NewReader(scenarioHeader + "Paracetamol,otc,0,5,10\n,otc,1,1,1\n"),
		ValidateOnly: true,
	})
	require.NoError(t, err)

	assert.True(t, report.ValidateOnly)
	assert.False(t, report.Success)
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 1, report.ValidRows)
	assert.Equal(t, 1, report.SkippedCount)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 3, report.Errors[0].Row)
	assert.Equal(t, 0, store.recordCount())
}

func TestRun_WritesValidRowsAndLogsActivity(t *testing.T) {
	store := newMemStore()
	hook := &recordingHook{}
	im := newTestImporter(store, hook)

	var progress []models.ImportProgress
	report, err := im.Run(context.Background(), RunRequest{
		PharmacyID: "ph-1",
		Actor:      "bob",
		FileName:   "stock.csv",
		File:       strings.NewReader(csvWithRows(25) + ",otc,1,1,1\n"),
		Progress:   func(p models.ImportProgress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 25, report.Imported)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Len(t, report.CreatedIDs, 25)
	assert.Equal(t, []models.ImportProgress{{Imported: 20, Total: 25}, {Imported: 25, Total: 25}}, progress)

	require.Len(t, store.activities, 1)
	assert.Equal(t, models.ActivityInventoryImported, store.activities[0].Type)
	assert.Equal(t, "Imported 25 inventory items from stock.csv", store.activities[0].Message)
	assert.Equal(t, 25, hook.records)
}

func TestRun_FileErrorsAbort(t *testing.T) {
	im := newTestImporter(newMemStore())

	_, err := im.Run(context.Background(), RunRequest{FileName: "stock.pdf", File: strings.NewReader("x")})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = im.Run(context.Background(), RunRequest{FileName: "stock.csv", File: strings.NewReader(scenarioHeader)})
	assert.True(t, errors.Is(err, ErrEmptyFile))
}

func TestSession_Lifecycle(t *testing.T) {
	store := newMemStore()
	hook := &recordingHook{}
	im := newTestImporter(store, hook)

	view, err := im.Open("ph-1", "carol")
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateAwaitingFile, view.State)

	preview, err := im.Load("ph-1", view.ID, "stock.csv", strings.NewReader(csvWithRows(25)))
	require.NoError(t, err)
	assert.Equal(t, 25, preview.ValidRows)

	_, err = im.Confirm(context.Background(), "ph-1", view.ID)
	require.NoError(t, err)
	im.Wait()

	got, err := im.Get("ph-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateCompleted, got.State)
	assert.Equal(t, models.ImportProgress{Imported: 25, Total: 25}, got.Progress)
	require.NotNil(t, got.Report)
	assert.True(t, got.Report.Success)
	assert.Equal(t, 25, store.recordCount())
	require.Len(t, store.activities, 1)
	assert.Equal(t, "carol", *store.activities[0].Actor)
	assert.Len(t, hook.reports, 1)

	// a finished session can be restarted but not confirmed again
	_, err = im.Confirm(context.Background(), "ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	reopened, err := im.Reopen("ph-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateAwaitingFile, reopened.State)
	assert.Nil(t, reopened.Report)
}

func TestSession_FailedImport(t *testing.T) {
	store := newMemStore("Item 3")
	im := newTestImporter(store)

	view, err := im.Open("ph-1", "")
	require.NoError(t, err)
	_, err = im.Load("ph-1", view.ID, "stock.csv", strings.NewReader(csvWithRows(5)))
	require.NoError(t, err)
	_, err = im.Confirm(context.Background(), "ph-1", view.ID)
	require.NoError(t, err)
	im.Wait()

	got, err := im.Get("ph-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateFailed, got.State)
	assert.Equal(t, 4, got.Report.Imported)
	assert.False(t, got.Report.Success)
	assert.Contains(t, got.Report.Failure, "backend rejected write")

	// no retry: the only way forward is a new file
	_, err = im.Confirm(context.Background(), "ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = im.Cancel("ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = im.Reopen("ph-1", view.ID)
	assert.NoError(t, err)
}

func TestSession_InvalidTransitions(t *testing.T) {
	im := newTestImporter(newMemStore())
	view, err := im.Open("ph-1", "")
	require.NoError(t, err)

	_, err = im.Confirm(context.Background(), "ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "confirm before a file is loaded")

	_, err = im.Reopen("ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "reopen while awaiting a file")

	_, err = im.Load("ph-1", view.ID, "stock.csv", strings.NewReader(csvWithRows(1)))
	require.NoError(t, err)
	_, err = im.Load("ph-1", view.ID, "stock.csv", strings.NewReader(csvWithRows(1)))
	assert.True(t, errors.Is(err, ErrInvalidTransition), "second load while previewing")

	cancelled, err := im.Cancel("ph-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateIdle, cancelled.State)
	assert.Nil(t, cancelled.Preview)

	_, err = im.Cancel("ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "cancel while idle")
}

func TestSession_FileErrorKeepsAwaitingFile(t *testing.T) {
	im := newTestImporter(newMemStore())
	view, err := im.Open("ph-1", "")
	require.NoError(t, err)

	_, err = im.Load("ph-1", view.ID, "stock.csv", strings.NewReader("name,category\nx,y\n"))
	require.Error(t, err)

	got, err := im.Get("ph-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStateAwaitingFile, got.State)
}

func TestSession_ScopedToPharmacy(t *testing.T) {
	im := newTestImporter(newMemStore())
	view, err := im.Open("ph-1", "")
	require.NoError(t, err)

	_, err = im.Get("ph-2", view.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(im.Discard("ph-2", view.ID), ErrSessionNotFound))

	require.NoError(t, im.Discard("ph-1", view.ID))
	_, err = im.Get("ph-1", view.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestBuildPreview_Caps(t *testing.T) {
	rows := validRows(70)
	for i := 0; i < 15; i++ {
		rows[i].Errors = []string{MsgNameRequired}
	}

	p := BuildPreview("big.csv", rows)
	assert.Equal(t, 70, p.TotalRows)
	assert.Equal(t, 55, p.ValidRows)
	assert.Equal(t, 15, p.ErrorRows)
	assert.Len(t, p.Rows, PreviewRowLimit)
	assert.Equal(t, 20, p.MoreRows)
	assert.Len(t, p.Errors, PreviewErrorLimit)
	assert.Equal(t, 5, p.MoreErrors)
	assert.Equal(t, 2, p.Errors[0].Row)
}

func TestSweep_RemovesIdleSessions(t *testing.T) {
	im := newTestImporter(newMemStore())
	stale, err := im.Open("ph-1", "")
	require.NoError(t, err)

	later := fixedNow.Add(2 * time.Minute)
	im.now = func() time.Time { return later }
	fresh, err := im.Open("ph-1", "")
	require.NoError(t, err)

	assert.Equal(t, 1, im.Sweep(later.Add(30*time.Second)))

	_, err = im.Get("ph-1", stale.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = im.Get("ph-1", fresh.ID)
	assert.NoError(t, err)
}

func TestStartJanitor_StopsWithContext(t *testing.T) {
	im := newTestImporter(newMemStore())
	ctx, cancel := context.WithCancel(context.Background())
	im.StartJanitor(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.ImportStatePreviewing, models.ImportStateIdle))
	assert.True(t, CanTransition(models.ImportStateImporting, models.ImportStateFailed))
	assert.False(t, CanTransition(models.ImportStateAwaitingFile, models.ImportStateFailed))
	assert.False(t, CanTransition(models.ImportStateFailed, models.ImportStateImporting))
	assert.False(t, CanTransition(models.ImportStateImporting, models.ImportStateIdle))
}
