package models

import (
	"fmt"
	"time"
)

// Post is a single message inside a thread. A nil ParentID marks the root
// post of its thread.
//
// The moderation state is carried by four independent boolean axes
// (IsDeleted, IsApproved, IsFlagged, IsSpam) plus IsHighlighted. They are
// deliberately not collapsed into one enum: nothing in the write path
// prevents any of the 16 deleted/approved/flagged/spam combinations, and
// semantically odd ones (a spam post that is also highlighted, a deleted
// post that is still approved) are valid rows that simply render according
// to the visibility policy.
//
// ContentCleaned is the sanitized rendering of Content. NULL means the
// asynchronous cleaning job has not run yet; readers must show a processing
// placeholder until it is set. Every mutation of Content resets
// ContentCleaned to NULL.
type Post struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	ThreadID uint  `gorm:"not null;index" json:"thread_id"`
	ParentID *uint `gorm:"index" json:"parent_id"`
	AuthorID uint  `gorm:"not null;index" json:"author_id"`

	Content        string  `gorm:"type:text;not null" json:"content"`
	ContentCleaned *string `gorm:"type:text" json:"content_cleaned"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `gorm:"index" json:"updated_at"`
	Edited    *time.Time `json:"edited"`

	IsDeleted     bool `gorm:"default:false;index" json:"is_deleted"`
	IsApproved    bool `gorm:"default:false;index" json:"is_approved"`
	IsFlagged     bool `gorm:"default:false" json:"is_flagged"`
	IsSpam        bool `gorm:"default:false" json:"is_spam"`
	IsHighlighted bool `gorm:"default:false" json:"is_highlighted"`

	Thread Thread `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Parent *Post  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	Author User   `gorm:"foreignKey:AuthorID" json:"author"`

	Votes       []Vote       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Media       []Media      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"media,omitempty"`
	Attachments []Attachment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"attachments,omitempty"`
}

// IsActive reports whether the post is visible to ordinary viewers:
// approved and neither deleted nor spam.
func (p *Post) IsActive() bool {
	return p.IsApproved && !p.IsDeleted && !p.IsSpam
}

// IsRoot reports whether the post opens its thread.
func (p *Post) IsRoot() bool {
	return p.ParentID == nil
}

// Path returns the site-relative location of the post within its thread
// page. Thread must be preloaded or passed through PathIn.
func (p *Post) Path() string {
	return p.PathIn(&p.Thread)
}

// PathIn is Path with an explicit thread, for callers that did not preload
// the association.
func (p *Post) PathIn(t *Thread) string {
	return fmt.Sprintf("%s#post-%d", t.Path(), p.ID)
}
