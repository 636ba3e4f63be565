package models

import (
	"crypto/md5"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Author is a read-only projection of a User as it appears on posts. It is
// a value type, not a subtype: it wraps the identity reference and derives
// display properties from it.
type Author struct {
	User *User
}

// AuthorOf wraps the post author identity.
func AuthorOf(u *User) Author {
	return Author{User: u}
}

// DisplayName resolves the name shown next to a post: full name when both
// parts are set, otherwise first name, otherwise username.
func (a Author) DisplayName() string {
	u := a.User
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return u.Username
	}
}

// AvatarURL returns the user's configured avatar, falling back to a
// Gravatar derived from the e-mail address.
func (a Author) AvatarURL() string {
	u := a.User
	if u == nil {
		return ""
	}
	if u.AvatarURL != "" {
		return u.AvatarURL
	}
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(u.Email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=identicon", sum)
}

// IsTrusted reports whether the author has at least one previously approved
// post. excludePostID is subtracted from the lookup so an edit does not
// count the post being edited as its own proof of trust; pass 0 when
// creating a new post.
func (a Author) IsTrusted(db *gorm.DB, excludePostID uint) (bool, error) {
	if a.User == nil {
		return false, nil
	}
	var count int64
	q := db.Model(&Post{}).Where("author_id = ? AND is_approved = ?", a.User.ID, true)
	if excludePostID != 0 {
		q = q.Where("id <> ?", excludePostID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
