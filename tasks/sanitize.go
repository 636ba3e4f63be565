package tasks

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/utils"
)

// handleCleanContent reloads the post and re-derives content_cleaned,
// persisting only that column. Running twice is harmless: the cleaner is
// idempotent and the derivation always starts from the current content.
//
// A missing post is treated as transient (the job may outrun replication
// of the row that enqueued it) and retried; after the attempts are
// exhausted the post simply stays in its "processing" display state.
func (w *Worker) handleCleanContent(t Task) error {
	var post models.Post
	if err := w.db.First(&post, t.PostID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("post %d not visible yet: %w", t.PostID, ErrRetry)
		}
		return err
	}

	cleaned := utils.CleanContent(post.Content)
	return w.db.Model(&models.Post{}).
		Where("id = ?", post.ID).
		UpdateColumn("content_cleaned", cleaned).Error
}
