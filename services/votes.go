package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
	"github.com/parley-forum/parley/utils"
)

// ErrBadVoteMode rejects vote modes other than "up" and "down".
var ErrBadVoteMode = errors.New("vote mode must be up or down")

var forUpdate = clause.Locking{Strength: "UPDATE"}

const (
	flaggedThreshold     = -3
	highlightedThreshold = 3
)

// VoteResult reports the outcome of a vote toggle.
type VoteResult struct {
	Post    *models.Post
	Removed bool
	Sum     int
}

// Vote records or retracts user's vote on the post. A repeated vote is a
// toggle: it removes the existing vote whatever its direction, so changing
// sides takes two requests. The post row is locked for the whole mutation
// and is_flagged/is_highlighted are re-derived from the vote sum on every
// call, never incrementally.
//
// Moderators are notified when a flag transitions from false to true; a
// post sitting at the threshold never re-notifies on further votes.
func (s *Service) Vote(ctx context.Context, user *models.User, category string, threadID, postID uint, mode string) (*VoteResult, error) {
	var value int
	switch mode {
	case "up":
		value = models.VoteUp
	case "down":
		value = models.VoteDown
	default:
		return nil, ErrBadVoteMode
	}

	var thread models.Thread
	if err := s.db.Where("id = ? AND category = ?", threadID, category).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var res VoteResult
	var wasFlagged, wasHighlighted bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := s.lockForUpdate(tx).Where("id = ? AND thread_id = ?", postID, threadID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		wasFlagged, wasHighlighted = post.IsFlagged, post.IsHighlighted

		var existing models.Vote
		err := tx.Where("post_id = ? AND user_id = ?", post.ID, user.ID).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			res.Removed = true
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote := models.Vote{PostID: post.ID, UserID: user.ID, Mode: value}
			if err := tx.Create(&vote).Error; err != nil {
				return err
			}
		default:
			return err
		}

		var sum int64
		err = tx.Model(&models.Vote{}).
			Where("post_id = ?", post.ID).
			Select("COALESCE(SUM(mode), 0)").
			Scan(&sum).Error
		if err != nil {
			return err
		}

		post.IsFlagged = sum <= flaggedThreshold
		post.IsHighlighted = sum >= highlightedThreshold
		err = tx.Model(&models.Post{}).Where("id = ?", post.ID).
			Updates(map[string]interface{}{
				"is_flagged":     post.IsFlagged,
				"is_highlighted": post.IsHighlighted,
			}).Error
		if err != nil {
			return err
		}

		res.Post = &post
		res.Sum = int(sum)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Post.IsFlagged && !wasFlagged {
		s.notifyFlagEdge(ctx, res.Post.ID, tasks.ModeFlagged)
	}
	if res.Post.IsHighlighted && !wasHighlighted {
		s.notifyFlagEdge(ctx, res.Post.ID, tasks.ModeHighlighted)
	}
	return &res, nil
}

func (s *Service) notifyFlagEdge(ctx context.Context, postID uint, flagMode string) {
	err := s.q.Enqueue(ctx, tasks.Task{
		Type:   tasks.TypeModerationPending,
		PostID: postID,
		Mode:   flagMode,
	})
	if err != nil {
		utils.Sugar.Errorf("enqueue %s notification for post %d failed: %v", flagMode, postID, err)
	}
}

// VoteSum returns the current vote total for a post.
func (s *Service) VoteSum(postID uint) (int, error) {
	var sum int64
	err := s.db.Model(&models.Vote{}).
		Where("post_id = ?", postID).
		Select("COALESCE(SUM(mode), 0)").
		Scan(&sum).Error
	return int(sum), err
}

// VoteSums returns the vote totals for a set of posts in one query. Posts
// without votes are absent from the map.
func (s *Service) VoteSums(postIDs []uint) (map[uint]int, error) {
	sums := make(map[uint]int, len(postIDs))
	if len(postIDs) == 0 {
		return sums, nil
	}
	type row struct {
		PostID uint
		Sum    int64
	}
	var rows []row
	err := s.db.Model(&models.Vote{}).
		Where("post_id IN ?", postIDs).
		Select("post_id, SUM(mode) AS sum").
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		sums[r.PostID] = int(r.Sum)
	}
	return sums, nil
}

// UserVote returns the user's vote on the post, or nil when none exists.
func (s *Service) UserVote(postID, userID uint) (*models.Vote, error) {
	var vote models.Vote
	err := s.db.Where("post_id = ? AND user_id = ?", postID, userID).First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vote, nil
}
