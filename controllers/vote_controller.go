package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parley-forum/parley/middleware"
	"github.com/parley-forum/parley/services"
	"github.com/parley-forum/parley/utils"
)

// VoteController handles the up/down vote toggle.
type VoteController struct {
	svc *services.Service
}

func NewVoteController(svc *services.Service) *VoteController {
	return &VoteController{svc: svc}
}

// Vote toggles the caller's vote on a post. The mode path segment is
// "up" or "down"; a second vote in any direction removes the first.
func (v *VoteController) Vote(ctx *gin.Context) {
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
	user := middleware.CurrentUser(ctx)

	res, err := v.svc.Vote(ctx.Request.Context(), user, category, threadID, postID, ctx.Param("mode"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBadVoteMode):
			utils.Error(ctx, http.StatusBadRequest, 40009, "vote mode must be up or down")
		case errors.Is(err, services.ErrNotFound):
			utils.NotFound(ctx, 40403, "post not found")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to record vote")
		}
		return
	}

	utils.Success(ctx, gin.H{
		"post_id":        res.Post.ID,
		"removed":        res.Removed,
		"vote_sum":       res.Sum,
		"is_flagged":     res.Post.IsFlagged,
		"is_highlighted": res.Post.IsHighlighted,
	})
}
