package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-forum/parley/models"
)

func TestPendingThreadHiddenFromOrdinaryViewers(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "newcomer", models.RoleUser)
	moderator := createUser(t, db, "mod", models.RoleModerator)

	post, err := svc.CreateThread(context.Background(), author, models.CategoryDiscussion,
		Submission{Content: "awaiting approval"})
	require.NoError(t, err)

	anon := Viewer{}
	threads, total, err := svc.ListThreads(anon, models.CategoryDiscussion, FilterOpen, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, threads)
	assert.Zero(t, total)

	_, err = svc.GetThread(anon, models.CategoryDiscussion, post.ThreadID)
	assert.ErrorIs(t, err, ErrNotFound)

	// moderators see the fresh submission for review
	staff := ViewerFor(moderator)
	threads, total, err = svc.ListThreads(staff, models.CategoryDiscussion, FilterOpen, 1, 20)
	require.NoError(t, err)
	assert.Len(t, threads, 1)
	assert.EqualValues(t, 1, total)
}

func TestSpamThreadVisibleToStaffOnlyWhileFresh(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	moderator := createUser(t, db, "mod", models.RoleModerator)
	post := seedApprovedPost(t, db, author)
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("is_spam", true).Error)

	anon := Viewer{}
	_, err := svc.GetThread(anon, models.CategoryDiscussion, post.ThreadID)
	assert.ErrorIs(t, err, ErrNotFound)

	staff := ViewerFor(moderator)
	_, err = svc.GetThread(staff, models.CategoryDiscussion, post.ThreadID)
	assert.NoError(t, err, "fresh spam stays in the staff preview window")

	// age the root post past the preview window
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("updated_at", old).Error)
	_, err = svc.GetThread(staff, models.CategoryDiscussion, post.ThreadID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetThreadUnderMovedCategory(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)

	_, err := svc.GetThread(Viewer{}, models.CategoryIssue, post.ThreadID)
	var moved *ThreadMovedError
	require.ErrorAs(t, err, &moved)
	assert.Equal(t, models.CategoryDiscussion, moved.Thread.Category)
	assert.Equal(t, post.ThreadID, moved.Thread.ID)

	_, err = svc.GetThread(Viewer{}, models.CategoryIssue, post.ThreadID+999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosedFilter(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	open := seedApprovedPost(t, db, author)
	closed := seedApprovedPost(t, db, author)
	require.NoError(t, db.Model(&models.Thread{}).Where("id = ?", closed.ThreadID).
		Update("is_closed", true).Error)

	anon := Viewer{}
	threads, _, err := svc.ListThreads(anon, models.CategoryDiscussion, FilterOpen, 1, 20)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, open.ThreadID, threads[0].ID)

	threads, _, err = svc.ListThreads(anon, models.CategoryDiscussion, FilterClosed, 1, 20)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, closed.ThreadID, threads[0].ID)

	threads, _, err = svc.ListThreads(anon, models.CategoryDiscussion, FilterAll, 1, 20)
	require.NoError(t, err)
	assert.Len(t, threads, 2)
}

func TestListPostsPerViewerClass(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	moderator := createUser(t, db, "mod", models.RoleModerator)
	root := seedApprovedPost(t, db, author)

	hidden := models.Post{ThreadID: root.ThreadID, ParentID: &root.ID, AuthorID: author.ID,
		Content: "pending reply"}
	require.NoError(t, db.Create(&hidden).Error)

	posts, err := svc.ListPosts(Viewer{}, root.ThreadID)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	posts, err = svc.ListPosts(ViewerFor(moderator), root.ThreadID)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestFirstPostPerViewerClass(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "newcomer", models.RoleUser)
	moderator := createUser(t, db, "mod", models.RoleModerator)

	post, err := svc.CreateThread(context.Background(), author, models.CategoryDiscussion,
		Submission{Content: "pending root"})
	require.NoError(t, err)

	_, err = svc.FirstPost(Viewer{}, post.ThreadID)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := svc.FirstPost(ViewerFor(moderator), post.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, first.ID)
}
