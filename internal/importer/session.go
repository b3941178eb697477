package importer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pharmacy-service/internal/models"
)

// Preview limits
const (
	PreviewRowLimit   = 50
	PreviewErrorLimit = 10
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the session's current state
	ErrInvalidTransition = errors.New("invalid import session transition")
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("import session not found")
)

// allowedTransitions lists the legal next states for each state
var allowedTransitions = map[models.ImportSessionState][]models.ImportSessionState{
	models.ImportStateIdle:         {models.ImportStateAwaitingFile},
	models.ImportStateAwaitingFile: {models.ImportStatePreviewing, models.ImportStateIdle},
	models.ImportStatePreviewing:   {models.ImportStateImporting, models.ImportStateIdle},
	models.ImportStateImporting:    {models.ImportStateCompleted, models.ImportStateFailed},
	models.ImportStateCompleted:    {models.ImportStateAwaitingFile},
	models.ImportStateFailed:       {models.ImportStateAwaitingFile},
}

// CanTransition reports whether a session may move from one state to another
func CanTransition(from, to models.ImportSessionState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one import from file selection to its final report. It owns
// its parsed rows; they are dropped on cancel and when the session is discarded.
type Session struct {
	mu sync.Mutex

	id         string
	pharmacyID string
	actor      string
	state      models.ImportSessionState

	fileName string
	rows     []models.ImportRow
	preview  *models.ImportPreview
	progress models.ImportProgress
	report   *models.ImportReport

	createdAt time.Time
	updatedAt time.Time
}

func newSession(id, pharmacyID, actor string, now time.Time) *Session {
	return &Session{
		id:         id,
		pharmacyID: pharmacyID,
		actor:      actor,
		state:      models.ImportStateIdle,
		createdAt:  now,
		updatedAt:  now,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() models.ImportSessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transitionLocked moves the session to next; s.mu must be held
func (s *Session) transitionLocked(next models.ImportSessionState, now time.Time) error {
	if !CanTransition(s.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	s.updatedAt = now
	return nil
}

// open moves an idle or finished session to AwaitingFile, clearing any previous file
func (s *Session) open(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(models.ImportStateAwaitingFile, now); err != nil {
		return err
	}
	s.resetLocked()
	return nil
}

// cancel drops a loaded file (or the wait for one) and returns the session to Idle
func (s *Session) cancel(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(models.ImportStateIdle, now); err != nil {
		return err
	}
	s.resetLocked()
	return nil
}

func (s *Session) resetLocked() {
	s.fileName = ""
	s.rows = nil
	s.preview = nil
	s.progress = models.ImportProgress{}
	s.report = nil
}

// view returns a snapshot of the session safe to hand to callers
func (s *Session) view() *models.ImportSessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &models.ImportSessionView{
		ID:         s.id,
		PharmacyID: s.pharmacyID,
		State:      s.state,
		Progress:   s.progress,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.preview != nil {
		p := *s.preview
		v.Preview = &p
	}
	if s.report != nil {
		r := *s.report
		v.Report = &r
	}
	return v
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.updatedAt)
}

// BuildPreview summarizes parsed rows, capping the rows and error rows shown
func BuildPreview(fileName string, rows []models.ImportRow) *models.ImportPreview {
	p := &models.ImportPreview{
		FileName:  fileName,
		TotalRows: len(rows),
		Rows:      make([]models.ImportRow, 0, min(len(rows), PreviewRowLimit)),
		Errors:    make([]models.ImportRowError, 0),
	}
	for _, row := range rows {
		if len(p.Rows) < PreviewRowLimit {
			p.Rows = append(p.Rows, row)
		}
		if row.Valid() {
			p.ValidRows++
			continue
		}
		p.ErrorRows++
		if len(p.Errors) < PreviewErrorLimit {
			p.Errors = append(p.Errors, rowError(row))
		}
	}
	p.MoreRows = p.TotalRows - len(p.Rows)
	p.MoreErrors = p.ErrorRows - len(p.Errors)
	return p
}

// ValidRows returns the rows without errors, in source order
func ValidRows(rows []models.ImportRow) []models.ImportRow {
	valid := make([]models.ImportRow, 0, len(rows))
	for _, row := range rows {
		if row.Valid() {
			valid = append(valid, row)
		}
	}
	return valid
}

// ErrorRows returns every invalid row as a row error
func ErrorRows(rows []models.ImportRow) []models.ImportRowError {
	errs := make([]models.ImportRowError, 0)
	for _, row := range rows {
		if !row.Valid() {
			errs = append(errs, rowError(row))
		}
	}
	return errs
}

func rowError(row models.ImportRow) models.ImportRowError {
	return models.ImportRowError{Row: row.RowNumber, Name: row.Name, Messages: row.Errors}
}
