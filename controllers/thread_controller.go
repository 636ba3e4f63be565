package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parley-forum/parley/middleware"
	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/services"
	"github.com/parley-forum/parley/utils"
)

const defaultPageSize = 20

// ThreadController serves the per-category thread listings and the
// open/close moderation switch.
type ThreadController struct {
	svc *services.Service
}

func NewThreadController(svc *services.Service) *ThreadController {
	return &ThreadController{svc: svc}
}

// categoryParam maps the plural URL segment (discussions, requests,
// issues) back to the category name.
func categoryParam(ctx *gin.Context) (string, bool) {
	c := strings.TrimSuffix(strings.TrimSpace(ctx.Param("category")), "s")
	if !models.ValidCategory(c) {
		return "", false
	}
	return c, true
}

func pageParams(ctx *gin.Context) (page, pageSize int) {
	page, pageSize = 1, defaultPageSize
	if v := strings.TrimSpace(ctx.Query("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(ctx.Query("page_size")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}

// ListThreads returns one page of a category's threads. The default
// filter lists open threads; ?filter=closed and ?filter=all select the
// other listings. Anonymous responses are cached since they share one
// viewer class; any write path invalidates the cache by prefix.
func (t *ThreadController) ListThreads(ctx *gin.Context) {
	category, ok := categoryParam(ctx)
	if !ok {
		utils.NotFound(ctx, 40401, "unknown category")
		return
	}

	filter := ctx.DefaultQuery("filter", services.FilterOpen)
	switch filter {
	case services.FilterOpen, services.FilterClosed, services.FilterAll:
	default:
		utils.Error(ctx, http.StatusBadRequest, 40005, "filter must be open, closed or all")
		return
	}
	page, pageSize := pageParams(ctx)

	user := middleware.CurrentUser(ctx)
	viewer := services.ViewerFor(user)

	cacheKey := ""
	if user == nil {
		cacheKey = fmt.Sprintf("cache:threads:%s:%s:%d:%d", category, filter, page, pageSize)
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
			return
		}
	}

	threads, total, err := t.svc.ListThreads(viewer, category, filter, page, pageSize)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to list threads")
		return
	}

	items := make([]gin.H, 0, len(threads))
	for i := range threads {
		items = append(items, t.threadView(viewer, &threads[i]))
	}

	payload := utils.JSONResponse{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"items": items,
			"pagination": gin.H{
				"page":        page,
				"page_size":   pageSize,
				"total":       total,
				"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
			},
		},
	}

	if cacheKey != "" {
		if b, err := json.Marshal(payload); err == nil {
			utils.CacheSetBytes(cacheKey, b, 5*time.Minute)
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
			return
		}
	}
	ctx.JSON(http.StatusOK, payload)
}

// CloseThread closes a thread to further replies and edits.
func (t *ThreadController) CloseThread(ctx *gin.Context) {
	t.setClosed(ctx, true)
}

// ReopenThread reopens a previously closed thread.
func (t *ThreadController) ReopenThread(ctx *gin.Context) {
	t.setClosed(ctx, false)
}

func (t *ThreadController) setClosed(ctx *gin.Context, closed bool) {
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

	thread, err := t.svc.SetThreadClosed(ctx.Request.Context(), category, threadID, closed)
	if err != nil {
		if err == services.ErrNotFound {
			utils.NotFound(ctx, 40402, "thread not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to update thread")
		return
	}
	utils.Success(ctx, gin.H{
		"id":        thread.ID,
		"category":  thread.Category,
		"is_closed": thread.IsClosed,
		"path":      thread.Path(),
	})
}

// threadView summarizes a thread for the listing: its first visible post
// provides the excerpt and author.
func (t *ThreadController) threadView(v services.Viewer, thread *models.Thread) gin.H {
	view := gin.H{
		"id":         thread.ID,
		"category":   thread.Category,
		"path":       thread.Path(),
		"is_closed":  thread.IsClosed,
		"created_at": thread.CreatedAt,
		"updated_at": thread.UpdatedAt,
	}

	first, err := t.svc.FirstPost(v, thread.ID)
	if err == nil {
		if first.ContentCleaned != nil {
			view["excerpt"] = utils.Excerpt(*first.ContentCleaned, 200)
		}
		view["first_post_id"] = first.ID
		var author models.User
		if err := t.svc.DB().First(&author, first.AuthorID).Error; err == nil {
			a := models.AuthorOf(&author)
			view["author"] = gin.H{
				"display_name": a.DisplayName(),
				"avatar_url":   a.AvatarURL(),
			}
		}
	}
	return view
}

func uintParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
