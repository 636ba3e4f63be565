package tasks

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/utils"
)

// Notification fan-out. The fan-out tasks resolve their recipient sets at
// execution time, so permission changes between enqueue and delivery are
// honored, and every recipient gets an independent mail task so one broken
// mailbox cannot block the rest.

// handleModerationPending mails every user currently holding moderation
// permission about a pending, flagged or highlighted post.
func (w *Worker) handleModerationPending(ctx context.Context, t Task) error {
	var moderators []models.User
	err := w.db.Where("role IN ?", []string{models.RoleModerator, models.RoleAdmin}).
		Find(&moderators).Error
	if err != nil {
		return err
	}

	for _, m := range moderators {
		err := w.queue.Enqueue(ctx, Task{
			Type:   TypeModerationPendingUser,
			PostID: t.PostID,
			UserID: m.ID,
			Mode:   t.Mode,
		})
		if err != nil {
			return fmt.Errorf("fan-out to user %d: %w", m.ID, err)
		}
	}
	return nil
}

func (w *Worker) handleModerationPendingUser(t Task) error {
	post, user, err := w.loadPostAndUser(t.PostID, t.UserID)
	if err != nil || post == nil {
		return err
	}

	link := w.absoluteURL(post)
	site := w.cfg.SiteName

	var subject, body string
	switch t.Mode {
	case ModeFlagged:
		subject = fmt.Sprintf("%s - Post has been flagged", site)
		body = fmt.Sprintf("A comment on %s has just been flagged, you can review it at the following location:\n\n%s", site, link)
	case ModeHighlighted:
		subject = fmt.Sprintf("%s - Post has been highlighted", site)
		body = fmt.Sprintf("A comment on %s has just been highlighted, you can review it at the following location:\n\n%s", site, link)
	default:
		subject = fmt.Sprintf("%s - Post approval pending", site)
		body = fmt.Sprintf("A new comment on %s has just been posted, you can approve it at the following location:\n\n%s", site, link)
	}

	return w.deliver(user.Email, subject, body, post)
}

// handlePostApproved mails the author of a post that just became approved.
// If the post got disapproved again before delivery the task is dropped.
func (w *Worker) handlePostApproved(t Task) error {
	var post models.Post
	err := w.db.Where("id = ? AND is_approved = ?", t.PostID, true).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	var author models.User
	if err := w.db.First(&author, post.AuthorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	site := w.cfg.SiteName
	subject := fmt.Sprintf("%s - Post approved", site)
	body := fmt.Sprintf("Your comment on %s has just been approved, you can view it at the following location:\n\n%s", site, w.absoluteURL(&post))
	return w.deliver(author.Email, subject, body, &post)
}

// handleNewReply fans a freshly approved reply out to the distinct authors
// along its ancestor chain. A user who authored several ancestors is
// notified once.
func (w *Worker) handleNewReply(ctx context.Context, t Task) error {
	var post models.Post
	err := w.db.Where("id = ? AND is_approved = ?", t.PostID, true).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	authorIDs, err := w.ancestorAuthors(&post)
	if err != nil {
		return err
	}

	for _, id := range authorIDs {
		err := w.queue.Enqueue(ctx, Task{
			Type:   TypeNewReplyUser,
			PostID: post.ID,
			UserID: id,
		})
		if err != nil {
			return fmt.Errorf("fan-out to user %d: %w", id, err)
		}
	}
	return nil
}

func (w *Worker) handleNewReplyUser(t Task) error {
	post, user, err := w.loadPostAndUser(t.PostID, t.UserID)
	if err != nil || post == nil {
		return err
	}
	if !post.IsApproved {
		return nil
	}

	site := w.cfg.SiteName
	subject := fmt.Sprintf("%s - New reply to your post", site)
	body := fmt.Sprintf("A new reply to your comment on %s has just been posted, you can view it at the following location:\n\n%s", site, w.absoluteURL(post))
	return w.deliver(user.Email, subject, body, post)
}

// ancestorAuthors walks parent links to the root and returns the distinct
// author IDs in nearest-first order.
func (w *Worker) ancestorAuthors(post *models.Post) ([]uint, error) {
	var ids []uint
	parentID := post.ParentID
	for parentID != nil {
		var parent models.Post
		if err := w.db.First(&parent, *parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, err
		}
		ids = append(ids, parent.AuthorID)
		parentID = parent.ParentID
	}
	return utils.UniqueUint(ids), nil
}

// loadPostAndUser fetches the task's subjects. A vanished post or user
// makes the task moot; (nil, nil, nil) tells the caller to drop it.
func (w *Worker) loadPostAndUser(postID, userID uint) (*models.Post, *models.User, error) {
	var post models.Post
	if err := w.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var user models.User
	if err := w.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return &post, &user, nil
}

// deliver appends a short excerpt of the post and sends the mail. Send
// failures are transient: the task is retried with the standard policy.
func (w *Worker) deliver(to, subject, body string, post *models.Post) error {
	if to == "" {
		return nil
	}
	if post.ContentCleaned != nil {
		if excerpt := utils.Excerpt(*post.ContentCleaned, 200); excerpt != "" {
			body += "\n\n---\n" + excerpt
		}
	}
	if err := w.sendMail(to, subject, body); err != nil {
		return fmt.Errorf("send to %s: %v: %w", to, err, ErrRetry)
	}
	return nil
}

// absoluteURL builds the deep link used in notification mails.
func (w *Worker) absoluteURL(post *models.Post) string {
	var thread models.Thread
	if err := w.db.First(&thread, post.ThreadID).Error; err != nil {
		return w.cfg.SiteBaseURL
	}
	return w.cfg.SiteBaseURL + post.PathIn(&thread)
}
