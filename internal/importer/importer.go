package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pharmacy-service/internal/models"
)

// DefaultSessionTTL is how long an untouched session is kept
const DefaultSessionTTL = 30 * time.Minute

// Store is the persistence the importer needs
type Store interface {
	RecordCreator
	LogActivity(ctx context.Context, activity *models.Activity) error
}

// CompletionHook is told about every import that wrote at least one record
type CompletionHook interface {
	ImportFinished(ctx context.Context, pharmacyID, actor string, report *models.ImportReport, records []*models.InventoryRecord)
}

// Config tunes an Importer
type Config struct {
	BatchSize  int
	SessionTTL time.Duration
}

// Importer owns the import session registry and runs imports against a Store
type Importer struct {
	store  Store
	writer *BatchWriter
	hooks  []CompletionHook
	logger *logrus.Entry
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func New(store Store, cfg Config, logger *logrus.Logger, hooks ...CompletionHook) *Importer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Importer{
		store:    store,
		writer:   NewBatchWriter(cfg.BatchSize, logger),
		hooks:    hooks,
		logger:   logger.WithField("component", "importer"),
		ttl:      cfg.SessionTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// ParseFile reads, maps, parses and validates every row of a file. File
// level problems (format, empty file, missing columns) are returned as
// errors before any row is parsed.
func (im *Importer) ParseFile(fileName string, r io.Reader) ([]models.ImportRow, error) {
	sheet, err := ReadSheet(fileName, r)
	if err != nil {
		return nil, err
	}
	index, err := MapHeaders(sheet.Header)
	if err != nil {
		return nil, err
	}

	parser := NewParser(index, WithClock(im.now))
	rows := make([]models.ImportRow, 0, len(sheet.Rows))
	for _, raw := range sheet.Rows {
		row := parser.Parse(raw)
		Validate(&row)
		rows = append(rows, row)
	}
	return rows, nil
}

// Open starts a new session waiting for a file
func (im *Importer) Open(pharmacyID, actor string) (*models.ImportSessionView, error) {
	now := im.now()
	s := newSession(uuid.New().String(), pharmacyID, actor, now)
	if err := s.open(now); err != nil {
		return nil, err
	}

	im.mu.Lock()
	im.sessions[s.id] = s
	im.mu.Unlock()

	im.logger.WithFields(logrus.Fields{"pharmacy_id": pharmacyID, "session_id": s.id}).Debug("Import session opened")
	return s.view(), nil
}

// Reopen moves an idle, completed or failed session back to AwaitingFile
func (im *Importer) Reopen(pharmacyID, id string) (*models.ImportSessionView, error) {
	s, err := im.lookup(pharmacyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(im.now()); err != nil {
		return nil, err
	}
	return s.view(), nil
}

// Get returns the current view of a session
func (im *Importer) Get(pharmacyID, id string) (*models.ImportSessionView, error) {
	s, err := im.lookup(pharmacyID, id)
	if err != nil {
		return nil, err
	}
	return s.view(), nil
}

// Load parses and validates a file into a session awaiting one. On a file
// level error the session keeps waiting for a file.
func (im *Importer) Load(pharmacyID, id, fileName string, r io.Reader) (*models.ImportPreview, error) {
	s, err := im.lookup(pharmacyID, id)
	if err != nil {
		return nil, err
	}
	if state := s.State(); state != models.ImportStateAwaitingFile {
		return nil, fmt.Errorf("%w: cannot load a file while %s", ErrInvalidTransition, state)
	}

	rows, err := im.ParseFile(fileName, r)
	if err != nil {
		return nil, err
	}
	preview := BuildPreview(fileName, rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(models.ImportStatePreviewing, im.now()); err != nil {
		return nil, err
	}
	s.fileName = fileName
	s.rows = rows
	s.preview = preview
	s.progress = models.ImportProgress{Total: preview.ValidRows}

	p := *preview
	return &p, nil
}

// Confirm starts writing the valid rows of a previewing session in the
// background. The write is detached from ctx cancellation.
func (im *Importer) Confirm(ctx context.Context, pharmacyID, id string) (*models.ImportSessionView, error) {
	s, err := im.lookup(pharmacyID, id)
	if err != nil {
		return nil, err
	}

	now := im.now()
	s.mu.Lock()
	if err := s.transitionLocked(models.ImportStateImporting, now); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req := WriteRequest{
		PharmacyID: s.pharmacyID,
		Actor:      s.actor,
		SessionID:  s.id,
		Rows:       ValidRows(s.rows),
	}
	fileName := s.fileName
	errRows := ErrorRows(s.rows)
	total := len(s.rows)
	s.progress = models.ImportProgress{Total: len(req.Rows)}
	s.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	im.wg.Add(1)
	go func() {
		defer im.wg.Done()

		result, werr := im.writer.Write(bg, im.store, req, func(p models.ImportProgress) {
			s.mu.Lock()
			s.progress = p
			s.updatedAt = im.now()
			s.mu.Unlock()
		})
		report := buildReport(total, req.Rows, errRows, result, werr, now, im.now())

		s.mu.Lock()
		next := models.ImportStateCompleted
		if werr != nil {
			next = models.ImportStateFailed
		}
		if err := s.transitionLocked(next, im.now()); err != nil {
			im.logger.WithError(err).WithField("session_id", s.id).Error("Import session left in unexpected state")
		}
		s.progress = models.ImportProgress{Imported: result.Imported, Total: result.Total}
		s.report = report
		s.rows = nil
		s.mu.Unlock()

		im.finish(bg, req, fileName, report, result)
	}()

	return s.view(), nil
}

// Cancel discards a loaded file, or the wait for one, and idles the session
func (im *Importer) Cancel(pharmacyID, id string) (*models.ImportSessionView, error) {
	s, err := im.lookup(pharmacyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.cancel(im.now()); err != nil {
		return nil, err
	}
	return s.view(), nil
}

// Discard removes a session and its rows. A session that is importing
// cannot be discarded until its import finishes.
func (im *Importer) Discard(pharmacyID, id string) error {
	s, err := im.lookup(pharmacyID, id)
	if err != nil {
		return err
	}
	if s.State() == models.ImportStateImporting {
		return fmt.Errorf("%w: import in progress", ErrInvalidTransition)
	}

	im.mu.Lock()
	delete(im.sessions, id)
	im.mu.Unlock()
	return nil
}

// Sweep discards sessions untouched for longer than the session TTL and
// returns how many were removed. Importing sessions are never swept.
func (im *Importer) Sweep(now time.Time) int {
	im.mu.Lock()
	defer im.mu.Unlock()

	removed := 0
	for id, s := range im.sessions {
		if s.State() == models.ImportStateImporting {
			continue
		}
		if s.idleSince(now) > im.ttl {
			delete(im.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired sessions every interval until ctx is done
func (im *Importer) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := im.Sweep(im.now()); n > 0 {
					im.logger.WithField("removed", n).Debug("Expired import sessions swept")
				}
			}
		}
	}()
}

// Wait blocks until every background import has finished
func (im *Importer) Wait() {
	im.wg.Wait()
}

// RunRequest describes a one-shot import
type RunRequest struct {
	PharmacyID   string
	Actor        string
	FileName     string
	File         io.Reader
	ValidateOnly bool
	Progress     ProgressFunc
}

// Run parses, validates and (unless ValidateOnly) writes a file in one
// call. A halted write returns the partial report together with the error.
func (im *Importer) Run(ctx context.Context, req RunRequest) (*models.ImportReport, error) {
	startedAt := im.now()
	rows, err := im.ParseFile(req.FileName, req.File)
	if err != nil {
		return nil, err
	}
	valid := ValidRows(rows)
	errRows := ErrorRows(rows)

	if req.ValidateOnly {
		return &models.ImportReport{
			Success:      len(errRows) == 0,
			TotalRows:    len(rows),
			ValidRows:    len(valid),
			SkippedCount: len(errRows),
			ValidateOnly: true,
			Errors:       errRows,
		}, nil
	}

	wreq := WriteRequest{PharmacyID: req.PharmacyID, Actor: req.Actor, Rows: valid}
	result, werr := im.writer.Write(ctx, im.store, wreq, req.Progress)
	report := buildReport(len(rows), valid, errRows, result, werr, startedAt, im.now())
	im.finish(context.WithoutCancel(ctx), wreq, req.FileName, report, result)
	return report, werr
}

// finish records the activity entry and runs completion hooks
func (im *Importer) finish(ctx context.Context, req WriteRequest, fileName string, report *models.ImportReport, result *WriteResult) {
	fields := logrus.Fields{
		"pharmacy_id": req.PharmacyID,
		"session_id":  req.SessionID,
		"imported":    report.Imported,
		"skipped":     report.SkippedCount,
	}
	if report.Success {
		im.logger.WithFields(fields).Info("Inventory import completed")
	} else {
		im.logger.WithFields(fields).WithField("failure", report.Failure).Warn("Inventory import failed")
	}

	if report.Imported == 0 {
		return
	}

	activity := &models.Activity{
		PharmacyID: req.PharmacyID,
		Type:       models.ActivityInventoryImported,
		Message:    importMessage(fileName, report),
	}
	if req.Actor != "" {
		activity.Actor = stringPtr(req.Actor)
	}
	if req.SessionID != "" {
		activity.RecordID = stringPtr(req.SessionID)
	}
	if err := im.store.LogActivity(ctx, activity); err != nil {
		im.logger.WithError(err).WithFields(fields).Error("Failed to log import activity")
	}

	for _, h := range im.hooks {
		h.ImportFinished(ctx, req.PharmacyID, req.Actor, report, result.Records)
	}
}

func importMessage(fileName string, report *models.ImportReport) string {
	if report.Success {
		return fmt.Sprintf("Imported %d inventory items from %s", report.Imported, fileName)
	}
	return fmt.Sprintf("Imported %d of %d inventory items from %s before the import failed", report.Imported, report.ValidRows, fileName)
}

func buildReport(total int, valid []models.ImportRow, errRows []models.ImportRowError, result *WriteResult, werr error, startedAt, finishedAt time.Time) *models.ImportReport {
	report := &models.ImportReport{
		Success:      werr == nil,
		TotalRows:    total,
		ValidRows:    len(valid),
		SkippedCount: len(errRows),
		Imported:     result.Imported,
		Batches:      result.Batches,
		Errors:       errRows,
		CreatedIDs:   result.RecordIDs(),
		StartedAt:    &startedAt,
		FinishedAt:   &finishedAt,
	}
	if werr != nil {
		report.Failure = werr.Error()
	}
	return report
}

func (im *Importer) lookup(pharmacyID, id string) (*Session, error) {
	im.mu.Lock()
	s, ok := im.sessions[id]
	im.mu.Unlock()
	if !ok || s.pharmacyID != pharmacyID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// IsFileError reports whether err is a file level import error, as
// opposed to a write or state error
func IsFileError(err error) bool {
	var missing *MissingColumnsError
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrUnreadableFile) || errors.As(err, &missing)
}
