package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
)

// Thread list filters, matching the listing URLs.
const (
	FilterOpen   = "open"
	FilterClosed = "closed"
	FilterAll    = "all"
)

// visibleThreads scopes threads of a category to what the viewer may see.
//
// Moderators see every thread whose root post is either clean (not
// deleted, not spam) or was modified within the staff preview window, so
// fresh unapproved submissions show up for review. Ordinary and anonymous
// viewers never see deleted threads and require a fully active root post:
// approved, not deleted, not spam.
func (s *Service) visibleThreads(v Viewer, category string) *gorm.DB {
	q := s.db.Model(&models.Thread{}).Where("threads.category = ?", category)
	if v.CanModerate {
		cutoff := time.Now().Add(-s.cfg.StaffPreviewWindow)
		return q.Where(
			"EXISTS (SELECT 1 FROM posts WHERE posts.thread_id = threads.id AND posts.parent_id IS NULL"+
				" AND ((posts.is_deleted = ? AND posts.is_spam = ?) OR posts.updated_at >= ?))",
			false, false, cutoff,
		)
	}
	return q.Where("threads.is_deleted = ?", false).Where(
		"EXISTS (SELECT 1 FROM posts WHERE posts.thread_id = threads.id AND posts.parent_id IS NULL"+
			" AND posts.is_deleted = ? AND posts.is_spam = ? AND posts.is_approved = ?)",
		false, false, true,
	)
}

// ListThreads returns one page of visible threads plus the total count.
// filter is one of FilterOpen, FilterClosed, FilterAll.
func (s *Service) ListThreads(v Viewer, category, filter string, page, perPage int) ([]models.Thread, int64, error) {
	q := s.visibleThreads(v, category)
	switch filter {
	case FilterClosed:
		q = q.Where("threads.is_closed = ?", true)
	case FilterAll:
	default:
		q = q.Where("threads.is_closed = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var threads []models.Thread
	err := q.Order("threads.updated_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&threads).Error
	return threads, total, err
}

// GetThread resolves a thread for the viewer. When the thread is not
// visible under the requested category but exists under another one, a
// ThreadMovedError carries its canonical location; otherwise ErrNotFound
// is returned for missing and hidden threads alike.
func (s *Service) GetThread(v Viewer, category string, threadID uint) (*models.Thread, error) {
	var thread models.Thread
	err := s.visibleThreads(v, category).Where("threads.id = ?", threadID).First(&thread).Error
	if err == nil {
		return &thread, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var moved models.Thread
	if err := s.db.Where("id = ? AND category <> ?", threadID, category).First(&moved).Error; err == nil {
		return nil, &ThreadMovedError{Thread: &moved}
	}
	return nil, ErrNotFound
}

// FirstPost resolves the thread's first post for the viewer class:
// moderators get the earliest root post regardless of moderation state,
// everyone else the earliest fully active one. ErrNotFound signals a
// thread with no qualifying first post (e.g. only pending or deleted
// posts), which maps to a 404 rather than an empty page.
func (s *Service) FirstPost(v Viewer, threadID uint) (*models.Post, error) {
	q := s.db.Where("thread_id = ? AND parent_id IS NULL", threadID)
	if !v.CanModerate {
		q = q.Where("is_deleted = ? AND is_spam = ? AND is_approved = ?", false, false, true)
	}
	var post models.Post
	if err := q.Order("created_at ASC").First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListPosts returns the thread's posts visible to the viewer in creation
// order. Moderators see everything including deleted, spam and pending
// posts; others only active ones.
func (s *Service) ListPosts(v Viewer, threadID uint) ([]models.Post, error) {
	q := s.db.Preload("Author").Preload("Media").Preload("Attachments").
		Where("thread_id = ?", threadID)
	if !v.CanModerate {
		q = q.Where("is_deleted = ? AND is_spam = ? AND is_approved = ?", false, false, true)
	}
	var posts []models.Post
	err := q.Order("created_at ASC").Find(&posts).Error
	return posts, err
}

// GetPost loads one post of a thread under the viewer's post visibility.
func (s *Service) GetPost(v Viewer, threadID, postID uint) (*models.Post, error) {
	q := s.db.Where("thread_id = ? AND id = ?", threadID, postID)
	if !v.CanModerate {
		q = q.Where("is_deleted = ? AND is_spam = ? AND is_approved = ?", false, false, true)
	}
	var post models.Post
	if err := q.First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}
