package controllers

import (
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parley-forum/parley/middleware"
	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/services"
	"github.com/parley-forum/parley/utils"
)

const maxUploadBytes = 10 << 20

// PostController serves thread detail pages and the submission endpoints.
type PostController struct {
	svc       *services.Service
	uploadDir string
}

func NewPostController(svc *services.Service) *PostController {
	return &PostController{svc: svc, uploadDir: "./uploads"}
}

// ShowThread returns the thread with its visible posts. A thread living
// under a different category answers with a permanent redirect to its
// canonical path; missing and hidden threads are the same 404.
func (p *PostController) ShowThread(ctx *gin.Context) {
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

	viewer := services.ViewerFor(middleware.CurrentUser(ctx))
	thread, err := p.svc.GetThread(viewer, category, threadID)
	if err != nil {
		var moved *services.ThreadMovedError
		if errors.As(err, &moved) {
			ctx.Redirect(http.StatusMovedPermanently, moved.Thread.Path())
			return
		}
		if errors.Is(err, services.ErrNotFound) {
			utils.NotFound(ctx, 40402, "thread not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to load thread")
		return
	}

	first, err := p.svc.FirstPost(viewer, thread.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.NotFound(ctx, 40402, "thread not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to load thread")
		return
	}

	posts, err := p.svc.ListPosts(viewer, thread.ID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to load posts")
		return
	}

	ids := make([]uint, 0, len(posts))
	for i := range posts {
		ids = append(ids, posts[i].ID)
	}
	sums, err := p.svc.VoteSums(ids)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load votes")
		return
	}

	items := make([]gin.H, 0, len(posts))
	for i := range posts {
		items = append(items, p.postView(viewer, thread, &posts[i], sums[posts[i].ID]))
	}

	utils.Success(ctx, gin.H{
		"thread": gin.H{
			"id":         thread.ID,
			"category":   thread.Category,
			"path":       thread.Path(),
			"is_closed":  thread.IsClosed,
			"created_at": thread.CreatedAt,
			"updated_at": thread.UpdatedAt,
		},
		"first_post_id": first.ID,
		"posts":         items,
	})
}

// CreateThread opens a new thread from the submitted root post.
func (p *PostController) CreateThread(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		utils.NotFound(ctx, 40401, "unknown category")
		return
	}
	user := middleware.CurrentUser(ctx)

	sub, ok := p.bindSubmission(ctx)
	if !ok {
		return
	}

	post, err := p.svc.CreateThread(ctx.Request.Context(), user, category, sub)
	if err != nil {
		p.submissionError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"id":          post.ID,
		"thread_id":   post.ThreadID,
		"is_approved": post.IsApproved,
	})
}

// Reply adds a post under an existing one.
func (p *PostController) Reply(ctx *gin.Context) {
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
	parentID, ok := uintParam(ctx, "postId")
	if !ok {
		utils.NotFound(ctx, 40403, "post not found")
		return
	}
	user := middleware.CurrentUser(ctx)

	sub, ok := p.bindSubmission(ctx)
	if !ok {
		return
	}

	post, err := p.svc.Reply(ctx.Request.Context(), user, category, threadID, parentID, sub)
	if err != nil {
		p.submissionError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"id":          post.ID,
		"thread_id":   post.ThreadID,
		"parent_id":   post.ParentID,
		"is_approved": post.IsApproved,
	})
}

// EditPost replaces the content of the caller's own post while it is
// still editable.
func (p *PostController) EditPost(ctx *gin.Context) {
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

	sub, ok := p.bindSubmission(ctx)
	if !ok {
		return
	}

	post, err := p.svc.EditPost(ctx.Request.Context(), user, category, threadID, postID, sub)
	if err != nil {
		p.submissionError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"id":          post.ID,
		"thread_id":   post.ThreadID,
		"edited":      post.Edited,
		"is_approved": post.IsApproved,
	})
}

// Upload stores one multipart file and returns its descriptor. Images
// come back as media with decoded dimensions, everything else as an
// attachment with its size; the descriptors are passed back verbatim in
// the submission payload.
func (p *PostController) Upload(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "file field missing")
		return
	}
	if header.Size > maxUploadBytes {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file too large")
		return
	}

	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to store file")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := uuid.NewString() + ext
	dst := filepath.Join(p.uploadDir, name)
	if err := ctx.SaveUploadedFile(header, dst); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to store file")
		return
	}
	url := "/uploads/" + name

	if f, err := os.Open(dst); err == nil {
		cfg, _, derr := image.DecodeConfig(f)
		f.Close()
		if derr == nil {
			utils.Success(ctx, gin.H{
				"kind":   "media",
				"path":   dst,
				"url":    url,
				"width":  cfg.Width,
				"height": cfg.Height,
			})
			return
		}
	}

	utils.Success(ctx, gin.H{
		"kind": "attachment",
		"path": dst,
		"url":  url,
		"size": header.Size,
	})
}

type submissionRequest struct {
	Content string `json:"content" binding:"required"`
	Media   []struct {
		Path   string `json:"path"`
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"media"`
	Attachments []struct {
		Path string `json:"path"`
		URL  string `json:"url"`
		Size int64  `json:"size"`
	} `json:"attachments"`
}

func (p *PostController) bindSubmission(ctx *gin.Context) (services.Submission, bool) {
	var req submissionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "invalid request payload")
		return services.Submission{}, false
	}

	sub := services.Submission{Content: req.Content}
	for _, m := range req.Media {
		sub.Media = append(sub.Media, models.Media{
			Path: m.Path, URL: m.URL, Width: m.Width, Height: m.Height,
		})
	}
	for _, a := range req.Attachments {
		sub.Attachments = append(sub.Attachments, models.Attachment{
			Path: a.Path, URL: a.URL, Size: a.Size,
		})
	}
	return sub, true
}

func (p *PostController) submissionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFound(ctx, 40403, "not found")
	case errors.Is(err, services.ErrThreadClosed):
		utils.Error(ctx, http.StatusForbidden, 40302, "thread is closed")
	case errors.Is(err, services.ErrNotEditable):
		utils.Error(ctx, http.StatusForbidden, 40303, "post is no longer editable")
	case errors.Is(err, services.ErrBadCategory):
		utils.NotFound(ctx, 40401, "unknown category")
	case errors.Is(err, services.ErrEmptyContent), errors.Is(err, services.ErrTooManyUploads):
		utils.Error(ctx, http.StatusBadRequest, 40008, err.Error())
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to save post")
	}
}

// postView renders one post for the viewer. Unsanitized posts expose no
// content at all, only processing=true; moderators additionally see the
// raw moderation flags.
func (p *PostController) postView(v services.Viewer, thread *models.Thread, post *models.Post, voteSum int) gin.H {
	author := models.AuthorOf(&post.Author)
	view := gin.H{
		"id":         post.ID,
		"thread_id":  post.ThreadID,
		"parent_id":  post.ParentID,
		"path":       post.PathIn(thread),
		"created_at": post.CreatedAt,
		"edited":     post.Edited,
		"vote_sum":   voteSum,
		"author": gin.H{
			"id":           post.AuthorID,
			"display_name": author.DisplayName(),
			"avatar_url":   author.AvatarURL(),
		},
	}

	if post.ContentCleaned != nil {
		view["content"] = *post.ContentCleaned
		view["processing"] = false
	} else {
		view["processing"] = true
	}

	if len(post.Media) > 0 {
		view["media"] = post.Media
	}
	if len(post.Attachments) > 0 {
		view["attachments"] = post.Attachments
	}

	if v.UserID == post.AuthorID {
		if editable, err := p.svc.IsEditable(post); err == nil {
			view["editable"] = editable
		}
	}
	if v.CanModerate {
		view["is_approved"] = post.IsApproved
		view["is_deleted"] = post.IsDeleted
		view["is_flagged"] = post.IsFlagged
		view["is_spam"] = post.IsSpam
		view["is_highlighted"] = post.IsHighlighted
	}
	return view
}
