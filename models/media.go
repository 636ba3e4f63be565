package models

import "time"

// MaxUploadsPerKind caps images and files per post (3 of each).
const MaxUploadsPerKind = 3

// Media is an uploaded image owned by a post. Width and height are derived
// when the upload is stored. The mere presence of media forces the owning
// post into the unapproved state regardless of author trust.
type Media struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Path      string    `gorm:"size:1024;not null" json:"path"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// Attachment is an arbitrary uploaded file owned by a post. Like Media it
// forces the post into the unapproved state.
type Attachment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Path      string    `gorm:"size:1024;not null" json:"path"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
