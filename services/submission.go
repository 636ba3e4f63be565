package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
	"github.com/parley-forum/parley/utils"
)

// ErrBadCategory rejects unknown thread categories.
var ErrBadCategory = errors.New("unknown category")

// ErrEmptyContent rejects blank submissions.
var ErrEmptyContent = errors.New("content must not be empty")

// notifyDelay gives the committing transaction a moment to become visible
// to the workers before the fan-out reads the post back.
const notifyDelay = time.Second

// Submission is the author-supplied part of a new or edited post. Media
// and Attachments are already-stored upload rows without a PostID yet.
type Submission struct {
	Content     string
	Media       []models.Media
	Attachments []models.Attachment
}

func (sub *Submission) validate() error {
	if strings.TrimSpace(sub.Content) == "" {
		return ErrEmptyContent
	}
	if len(sub.Media) > models.MaxUploadsPerKind || len(sub.Attachments) > models.MaxUploadsPerKind {
		return ErrTooManyUploads
	}
	return nil
}

func (sub *Submission) hasUploads() bool {
	return len(sub.Media) > 0 || len(sub.Attachments) > 0
}

// CreateThread opens a new thread in the category with sub as its root
// post. The post is auto-approved only for a trusted author (at least one
// prior approved post) submitting without any uploads; any media or
// attachment forces review regardless of trust.
func (s *Service) CreateThread(ctx context.Context, author *models.User, category string, sub Submission) (*models.Post, error) {
	if !models.ValidCategory(category) {
		return nil, ErrBadCategory
	}
	if err := sub.validate(); err != nil {
		return nil, err
	}

	post := &models.Post{AuthorID: author.ID, Content: sub.Content}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		thread := &models.Thread{Category: category}
		if err := tx.Create(thread).Error; err != nil {
			return err
		}
		trusted, err := models.AuthorOf(author).IsTrusted(tx, 0)
		if err != nil {
			return err
		}
		post.ThreadID = thread.ID
		post.IsApproved = trusted && !sub.hasUploads()
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return attachUploads(tx, post.ID, sub)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, post, false)
	return post, nil
}

// Reply adds a post under parentID. Moderation state of the thread does
// not block replies, a closed thread does.
func (s *Service) Reply(ctx context.Context, author *models.User, category string, threadID, parentID uint, sub Submission) (*models.Post, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	var thread models.Thread
	if err := s.db.Where("id = ? AND category = ?", threadID, category).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if thread.IsClosed {
		return nil, ErrThreadClosed
	}

	var parent models.Post
	if err := s.db.Where("id = ? AND thread_id = ?", parentID, threadID).First(&parent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	post := &models.Post{
		ThreadID: thread.ID,
		ParentID: &parent.ID,
		AuthorID: author.ID,
		Content:  sub.Content,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		trusted, err := models.AuthorOf(author).IsTrusted(tx, 0)
		if err != nil {
			return err
		}
		post.IsApproved = trusted && !sub.hasUploads()
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return attachUploads(tx, post.ID, sub)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, post, true)
	return post, nil
}

// EditPost replaces the content (and uploads) of the author's own post.
// The approval re-evaluation excludes the post itself from the trust
// lookup, and the sanitized rendering is re-armed: content_cleaned drops
// back to NULL until the cleaning job runs again.
func (s *Service) EditPost(ctx context.Context, author *models.User, category string, threadID, postID uint, sub Submission) (*models.Post, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	var thread models.Thread
	if err := s.db.Where("id = ? AND category = ?", threadID, category).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var post models.Post
	if err := s.db.Where("id = ? AND thread_id = ? AND author_id = ?", postID, threadID, author.ID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	editable, err := s.isEditable(&thread, &post)
	if err != nil {
		return nil, err
	}
	if !editable {
		return nil, ErrNotEditable
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// uploads are replaced wholesale; the trust rule sees the
		// post-edit totals
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Media{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := attachUploads(tx, post.ID, sub); err != nil {
			return err
		}

		trusted, err := models.AuthorOf(author).IsTrusted(tx, post.ID)
		if err != nil {
			return err
		}
		post.Content = sub.Content
		post.ContentCleaned = nil
		post.Edited = &now
		post.IsApproved = trusted && !sub.hasUploads()
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			Updates(map[string]interface{}{
				"content":         post.Content,
				"content_cleaned": nil,
				"edited":          post.Edited,
				"is_approved":     post.IsApproved,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, &post, false)
	return &post, nil
}

// IsEditable reports whether the post can still be edited: its thread is
// open, it is younger than the edit window, and nobody replied to it yet.
func (s *Service) IsEditable(post *models.Post) (bool, error) {
	var thread models.Thread
	if err := s.db.First(&thread, post.ThreadID).Error; err != nil {
		return false, err
	}
	return s.isEditable(&thread, post)
}

func (s *Service) isEditable(thread *models.Thread, post *models.Post) (bool, error) {
	if thread.IsClosed {
		return false, nil
	}
	if time.Since(post.CreatedAt) > s.cfg.EditWindow {
		return false, nil
	}
	var replies int64
	if err := s.db.Model(&models.Post{}).Where("parent_id = ?", post.ID).Count(&replies).Error; err != nil {
		return false, err
	}
	return replies == 0, nil
}

// afterWrite arms the sanitization job and the moderation or reply
// notifications for a freshly written post. This is explicit orchestration
// on the write path; there is no implicit hook machinery to re-trigger it.
func (s *Service) afterWrite(ctx context.Context, post *models.Post, isReply bool) {
	if err := s.q.Enqueue(ctx, tasks.Task{Type: tasks.TypeCleanContent, PostID: post.ID}); err != nil {
		utils.Sugar.Errorf("enqueue clean for post %d failed: %v", post.ID, err)
	}

	if !post.IsApproved {
		err := s.q.EnqueueIn(ctx, tasks.Task{
			Type:   tasks.TypeModerationPending,
			PostID: post.ID,
			Mode:   tasks.ModeApproval,
		}, notifyDelay)
		if err != nil {
			utils.Sugar.Errorf("enqueue pending notification for post %d failed: %v", post.ID, err)
		}
	} else if isReply {
		err := s.q.EnqueueIn(ctx, tasks.Task{Type: tasks.TypeNewReply, PostID: post.ID}, notifyDelay)
		if err != nil {
			utils.Sugar.Errorf("enqueue reply notification for post %d failed: %v", post.ID, err)
		}
	}

	utils.InvalidateByPrefix("cache:threads:")
}

func attachUploads(tx *gorm.DB, postID uint, sub Submission) error {
	for i := range sub.Media {
		sub.Media[i].PostID = postID
		if err := tx.Create(&sub.Media[i]).Error; err != nil {
			return err
		}
	}
	for i := range sub.Attachments {
		sub.Attachments[i].PostID = postID
		if err := tx.Create(&sub.Attachments[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
