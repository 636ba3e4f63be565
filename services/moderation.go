package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
	"github.com/parley-forum/parley/utils"
)

// Moderation toggles. Each flips one boolean axis and leaves the others
// untouched; the axes are independent, so a post can be approved and
// flagged and spam all at once.

// ToggleApproved flips is_approved. On the false-to-true edge the author
// is notified and, for replies, the ancestor chain gets its reply
// notification that auto-approval would have produced.
func (s *Service) ToggleApproved(ctx context.Context, category string, threadID, postID uint) (*models.Post, error) {
	post, err := s.postInThread(category, threadID, postID)
	if err != nil {
		return nil, err
	}

	post.IsApproved = !post.IsApproved
	err = s.db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("is_approved", post.IsApproved).Error
	if err != nil {
		return nil, err
	}

	if post.IsApproved {
		if err := s.q.Enqueue(ctx, tasks.Task{Type: tasks.TypePostApproved, PostID: post.ID}); err != nil {
			utils.Sugar.Errorf("enqueue approved notification for post %d failed: %v", post.ID, err)
		}
		if post.ParentID != nil {
			if err := s.q.Enqueue(ctx, tasks.Task{Type: tasks.TypeNewReply, PostID: post.ID}); err != nil {
				utils.Sugar.Errorf("enqueue reply notification for post %d failed: %v", post.ID, err)
			}
		}
	}

	utils.InvalidateByPrefix("cache:threads:")
	return post, nil
}

// ToggleSpam flips is_spam.
func (s *Service) ToggleSpam(ctx context.Context, category string, threadID, postID uint) (*models.Post, error) {
	post, err := s.postInThread(category, threadID, postID)
	if err != nil {
		return nil, err
	}

	post.IsSpam = !post.IsSpam
	err = s.db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("is_spam", post.IsSpam).Error
	if err != nil {
		return nil, err
	}

	utils.InvalidateByPrefix("cache:threads:")
	return post, nil
}

// ToggleDeleted flips is_deleted on the post and re-derives the thread's
// own is_deleted: a thread is deleted exactly when no non-deleted post
// remains in it. Restoring any post therefore restores the thread.
func (s *Service) ToggleDeleted(ctx context.Context, category string, threadID, postID uint) (*models.Post, error) {
	post, err := s.postInThread(category, threadID, postID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		post.IsDeleted = !post.IsDeleted
		err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			Update("is_deleted", post.IsDeleted).Error
		if err != nil {
			return err
		}

		var remaining int64
		err = tx.Model(&models.Post{}).
			Where("thread_id = ? AND is_deleted = ?", threadID, false).
			Count(&remaining).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Thread{}).Where("id = ?", threadID).
			Update("is_deleted", remaining == 0).Error
	})
	if err != nil {
		return nil, err
	}

	utils.InvalidateByPrefix("cache:threads:")
	return post, nil
}

// SetThreadClosed opens or closes a thread. Closing stops replies, edits
// and nothing else; existing posts stay visible.
func (s *Service) SetThreadClosed(ctx context.Context, category string, threadID uint, closed bool) (*models.Thread, error) {
	var thread models.Thread
	if err := s.db.Where("id = ? AND category = ?", threadID, category).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if thread.IsClosed != closed {
		err := s.db.Model(&models.Thread{}).Where("id = ?", thread.ID).
			Update("is_closed", closed).Error
		if err != nil {
			return nil, err
		}
		thread.IsClosed = closed
	}

	utils.InvalidateByPrefix("cache:threads:")
	return &thread, nil
}

// postInThread resolves a post regardless of its moderation state; the
// toggles must reach hidden posts.
func (s *Service) postInThread(category string, threadID, postID uint) (*models.Post, error) {
	var thread models.Thread
	if err := s.db.Where("id = ? AND category = ?", threadID, category).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var post models.Post
	if err := s.db.Where("id = ? AND thread_id = ?", postID, threadID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}
