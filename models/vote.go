package models

import "time"

// Vote modes.
const (
	VoteUp   = 1
	VoteDown = -1
)

// Vote records a single user's +1/-1 on a post. The (post_id, user_id)
// pair is unique; voting again removes the existing vote instead of
// updating it, so rows are only ever created and deleted.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_votes_post_user" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_votes_post_user" json:"user_id"`
	Mode      int       `gorm:"not null" json:"mode"`
	CreatedAt time.Time `json:"created_at"`

	Post Post `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	User User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
