package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/services"
	"github.com/parley-forum/parley/utils"
)

// ModerationController exposes the per-post moderation toggles. All of
// its routes sit behind the moderator permission gate.
type ModerationController struct {
	svc *services.Service
}

func NewModerationController(svc *services.Service) *ModerationController {
	return &ModerationController{svc: svc}
}

// ToggleApproved flips a post's approval.
func (m *ModerationController) ToggleApproved(ctx *gin.Context) {
	m.toggle(ctx, m.svc.ToggleApproved)
}

// ToggleSpam flips a post's spam mark.
func (m *ModerationController) ToggleSpam(ctx *gin.Context) {
	m.toggle(ctx, m.svc.ToggleSpam)
}

// ToggleDeleted flips a post's soft deletion and re-derives the thread's.
func (m *ModerationController) ToggleDeleted(ctx *gin.Context) {
	m.toggle(ctx, m.svc.ToggleDeleted)
}

func (m *ModerationController) toggle(ctx *gin.Context, fn func(c context.Context, category string, threadID, postID uint) (*models.Post, error)) {
	category, ok := categoryParam(ctx)
	if !ok {
		utils.NotFound(ctx, 40401, "unknown category")
		return
	}
	threadID, ok := uintParam(ctx, "id")
	if !ok {
		utils.NotFound(ctx, 40402, "thread not found")
		return
	}
	postID, ok := uintParam(ctx, "postId")
	if !ok {
		utils.NotFound(ctx, 40403, "post not found")
		return
	}

	post, err := fn(ctx.Request.Context(), category, threadID, postID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.NotFound(ctx, 40403, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to update post")
		return
	}

	utils.Success(ctx, gin.H{
		"id":             post.ID,
		"thread_id":      post.ThreadID,
		"is_approved":    post.IsApproved,
		"is_deleted":     post.IsDeleted,
		"is_flagged":     post.IsFlagged,
		"is_spam":        post.IsSpam,
		"is_highlighted": post.IsHighlighted,
	})
}
