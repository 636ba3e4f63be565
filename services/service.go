// Package services implements the moderation core: the visibility policy,
// the submission trust rule, vote aggregation with derived flags, the
// moderation toggles and the purge job. Handlers stay thin; everything
// that mutates moderation state lives here so it can be tested without
// HTTP plumbing.
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
)

// ErrNotFound is the distinct signal for "no such entity for this viewer".
// It deliberately covers both "does not exist" and "exists but hidden".
var ErrNotFound = errors.New("not found")

// ErrThreadClosed rejects replies into closed threads.
var ErrThreadClosed = errors.New("thread is closed")

// ErrNotEditable rejects edits outside the edit window, after a reply
// arrived, or in a closed thread.
var ErrNotEditable = errors.New("post is not editable")

// ErrTooManyUploads rejects submissions exceeding the per-kind upload cap.
var ErrTooManyUploads = fmt.Errorf("at most %d media and %d attachments per post", models.MaxUploadsPerKind, models.MaxUploadsPerKind)

// ThreadMovedError reports that a thread exists but under a different
// category; callers should redirect to its canonical location.
type ThreadMovedError struct {
	Thread *models.Thread
}

func (e *ThreadMovedError) Error() string {
	return fmt.Sprintf("thread %d moved to category %s", e.Thread.ID, e.Thread.Category)
}

// Viewer captures the privilege set visibility decisions depend on. The
// zero value is an anonymous viewer.
type Viewer struct {
	UserID      uint
	CanModerate bool
}

// ViewerFor derives a Viewer from an authenticated user. Pass nil for
// anonymous requests.
func ViewerFor(u *models.User) Viewer {
	if u == nil {
		return Viewer{}
	}
	return Viewer{UserID: u.ID, CanModerate: u.CanModerate()}
}

// Service carries the shared dependencies of the moderation core.
type Service struct {
	db  *gorm.DB
	q   tasks.Enqueuer
	cfg config.AppConfig
}

// New builds the moderation core on top of a database and a task queue.
func New(db *gorm.DB, q tasks.Enqueuer, cfg config.AppConfig) *Service {
	return &Service{db: db, q: q, cfg: cfg}
}

// DB exposes the underlying handle for read-only lookups in handlers.
func (s *Service) DB() *gorm.DB {
	return s.db
}

// lockForUpdate adds a row lock on dialects that support it. SQLite (used
// by the test suite) serializes writes on its own.
func (s *Service) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(forUpdate)
}
