package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
)

func TestFirstPostStartsUnapproved(t *testing.T) {
	svc, q, _ := newTestService(t)
	author := createUser(t, svc.DB(), "newcomer", models.RoleUser)

	post, err := svc.CreateThread(context.Background(), author, models.CategoryDiscussion,
		Submission{Content: "first ever post"})
	require.NoError(t, err)

	assert.False(t, post.IsApproved)
	assert.Nil(t, post.ContentCleaned)

	require.Len(t, q.ofType(tasks.TypeCleanContent), 1)
	pending := q.ofType(tasks.TypeModerationPending)
	require.Len(t, pending, 1)
	assert.Equal(t, tasks.ModeApproval, pending[0].Task.Mode)
	assert.Equal(t, post.ID, pending[0].Task.PostID)
}

func TestTrustedAuthorIsAutoApproved(t *testing.T) {
	svc, q, db := newTestService(t)
	author := createUser(t, db, "regular", models.RoleUser)
	seedApprovedPost(t, db, author)
	q.reset()

	post, err := svc.CreateThread(context.Background(), author, models.CategoryRequest,
		Submission{Content: "another post"})
	require.NoError(t, err)

	assert.True(t, post.IsApproved)
	assert.Empty(t, q.ofType(tasks.TypeModerationPending))
	// a root post never triggers reply notifications
	assert.Empty(t, q.ofType(tasks.TypeNewReply))
}

func TestUploadsForceReview(t *testing.T) {
	svc, q, db := newTestService(t)
	author := createUser(t, db, "regular", models.RoleUser)
	seedApprovedPost(t, db, author)
	q.reset()

	post, err := svc.CreateThread(context.Background(), author, models.CategoryDiscussion,
		Submission{
			Content: "look at this",
			Media:   []models.Media{{Path: "/tmp/a.png", URL: "/uploads/a.png", Width: 10, Height: 10}},
		})
	require.NoError(t, err)

	assert.False(t, post.IsApproved, "media must force the post into review even for trusted authors")
	require.Len(t, q.ofType(tasks.TypeModerationPending), 1)
}

func TestUploadCap(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "spammy", models.RoleUser)

	var media []models.Media
	for i := 0; i < models.MaxUploadsPerKind+1; i++ {
		media = append(media, models.Media{Path: "/tmp/x", URL: "/uploads/x"})
	}
	_, err := svc.CreateThread(context.Background(), author, models.CategoryDiscussion,
		Submission{Content: "too many", Media: media})
	assert.ErrorIs(t, err, ErrTooManyUploads)
}

func TestCreateThreadRejectsUnknownCategory(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "someone", models.RoleUser)

	_, err := svc.CreateThread(context.Background(), author, "announcements",
		Submission{Content: "hello"})
	assert.ErrorIs(t, err, ErrBadCategory)
}

func TestReplyIntoClosedThread(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	root := seedApprovedPost(t, db, author)
	require.NoError(t, db.Model(&models.Thread{}).Where("id = ?", root.ThreadID).
		Update("is_closed", true).Error)

	_, err := svc.Reply(context.Background(), author, models.CategoryDiscussion,
		root.ThreadID, root.ID, Submission{Content: "late reply"})
	assert.ErrorIs(t, err, ErrThreadClosed)
}

func TestApprovedReplyNotifiesAncestors(t *testing.T) {
	svc, q, db := newTestService(t)
	op := createUser(t, db, "op", models.RoleUser)
	root := seedApprovedPost(t, db, op)

	replier := createUser(t, db, "replier", models.RoleUser)
	seedApprovedPost(t, db, replier)
	q.reset()

	post, err := svc.Reply(context.Background(), replier, models.CategoryDiscussion,
		root.ThreadID, root.ID, Submission{Content: "agreed"})
	require.NoError(t, err)
	require.True(t, post.IsApproved)

	replies := q.ofType(tasks.TypeNewReply)
	require.Len(t, replies, 1)
	assert.Equal(t, post.ID, replies[0].Task.PostID)
	assert.Empty(t, q.ofType(tasks.TypeModerationPending))
}

func TestUnapprovedReplyHoldsNotification(t *testing.T) {
	svc, q, db := newTestService(t)
	op := createUser(t, db, "op", models.RoleUser)
	root := seedApprovedPost(t, db, op)

	newcomer := createUser(t, db, "newcomer", models.RoleUser)
	q.reset()

	post, err := svc.Reply(context.Background(), newcomer, models.CategoryDiscussion,
		root.ThreadID, root.ID, Submission{Content: "me too"})
	require.NoError(t, err)
	require.False(t, post.IsApproved)

	// the reply notification fires on approval, not on submission
	assert.Empty(t, q.ofType(tasks.TypeNewReply))
	require.Len(t, q.ofType(tasks.TypeModerationPending), 1)
}

func TestEditResetsCleanedContent(t *testing.T) {
	svc, q, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	cleaned := "already cleaned"
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("content_cleaned", &cleaned).Error)
	q.reset()

	edited, err := svc.EditPost(context.Background(), author, models.CategoryDiscussion,
		post.ThreadID, post.ID, Submission{Content: "revised text"})
	require.NoError(t, err)

	got := reloadPost(t, db, edited.ID)
	assert.Nil(t, got.ContentCleaned, "an edit must re-arm the sanitization pipeline")
	assert.NotNil(t, got.Edited)
	assert.Equal(t, "revised text", got.Content)
	require.Len(t, q.ofType(tasks.TypeCleanContent), 1)
}

func TestEditTrustExcludesThePostItself(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "onlyone", models.RoleUser)
	// the author's single approved post is the one being edited
	post := seedApprovedPost(t, db, author)

	edited, err := svc.EditPost(context.Background(), author, models.CategoryDiscussion,
		post.ThreadID, post.ID, Submission{Content: "changed"})
	require.NoError(t, err)

	assert.False(t, reloadPost(t, db, edited.ID).IsApproved,
		"the edited post cannot vouch for its own author")
}

func TestEditWindowExpires(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	old := time.Now().Add(-25 * time.Hour)
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("created_at", old).Error)

	_, err := svc.EditPost(context.Background(), author, models.CategoryDiscussion,
		post.ThreadID, post.ID, Submission{Content: "too late"})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestEditBlockedAfterReply(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	reply := models.Post{ThreadID: post.ThreadID, ParentID: &post.ID, AuthorID: author.ID, Content: "self reply"}
	require.NoError(t, db.Create(&reply).Error)

	_, err := svc.EditPost(context.Background(), author, models.CategoryDiscussion,
		post.ThreadID, post.ID, Submission{Content: "rewriting history"})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestEditBlockedInClosedThread(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	require.NoError(t, db.Model(&models.Thread{}).Where("id = ?", post.ThreadID).
		Update("is_closed", true).Error)

	_, err := svc.EditPost(context.Background(), author, models.CategoryDiscussion,
		post.ThreadID, post.ID, Submission{Content: "sneaky edit"})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestEditSomeoneElsesPost(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	other := createUser(t, db, "other", models.RoleUser)
	post := seedApprovedPost(t, db, author)

	_, err := svc.EditPost(context.Background(), other, models.CategoryDiscussion,
		post.ThreadID, post.ID, Submission{Content: "not mine"})
	assert.ErrorIs(t, err, ErrNotFound)
}
