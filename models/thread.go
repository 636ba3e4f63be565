package models

import (
	"fmt"
	"time"
)

// Thread categories. URLs use the plural form (e.g. /comments/discussions/).
const (
	CategoryDiscussion = "discussion"
	CategoryRequest    = "request"
	CategoryIssue      = "issue"
)

// ValidCategory reports whether c is one of the known thread categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryDiscussion, CategoryRequest, CategoryIssue:
		return true
	}
	return false
}

// Thread is a top-level discussion container scoped to a category. A thread
// is created implicitly when a root post is submitted. IsDeleted is derived
// state: it becomes true exactly when no non-deleted posts remain, and is
// never toggled independently. Hard deletion only happens through the purge
// job once a deleted thread has aged out with zero posts left.
type Thread struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Category  string    `gorm:"size:20;not null;index;default:'discussion'" json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
	IsClosed  bool      `gorm:"default:false" json:"is_closed"`
	IsDeleted bool      `gorm:"default:false;index" json:"is_deleted"`
	Posts     []Post    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// Path returns the site-relative canonical location of the thread.
func (t *Thread) Path() string {
	return fmt.Sprintf("/comments/%ss/%d/", t.Category, t.ID)
}
