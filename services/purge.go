package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/utils"
)

// PurgeOnce hard-deletes soft-deleted rows whose deletion has aged past
// the retention window. Posts go first, with their votes and uploads;
// threads follow only once they are marked deleted, aged, and hold no
// posts at all. A thread that still has purgeable posts is picked up by a
// later run.
func (s *Service) PurgeOnce(now time.Time) error {
	cutoff := now.Add(-s.cfg.PurgeAge)
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		err := tx.Model(&models.Post{}).
			Where("is_deleted = ? AND updated_at < ?", true, cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Where("post_id IN ?", ids).Delete(&models.Vote{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id IN ?", ids).Delete(&models.Media{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id IN ?", ids).Delete(&models.Attachment{}).Error; err != nil {
				return err
			}
			// replies to a purged post survive as orphans of the tree,
			// not dangling rows
			err = tx.Model(&models.Post{}).
				Where("parent_id IN ?", ids).
				Update("parent_id", nil).Error
			if err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ids).Delete(&models.Post{}).Error; err != nil {
				return err
			}
		}

		return tx.
			Where("is_deleted = ? AND updated_at < ?", true, cutoff).
			Where("NOT EXISTS (SELECT 1 FROM posts WHERE posts.thread_id = threads.id)").
			Delete(&models.Thread{}).Error
	})
}

// StartPurger runs PurgeOnce on a fixed interval until stop is closed.
func (s *Service) StartPurger(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.PurgeOnce(time.Now()); err != nil {
					utils.Sugar.Errorf("purge run failed: %v", err)
				}
			}
		}
	}()
}
