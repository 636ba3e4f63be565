package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
)

func voters(t *testing.T, svc *Service, n int) []*models.User {
	t.Helper()
	users := make([]*models.User, n)
	for i := range users {
		users[i] = createUser(t, svc.DB(), fmt.Sprintf("voter%d", i), models.RoleUser)
	}
	return users
}

func TestVoteToggle(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	voter := createUser(t, db, "voter", models.RoleUser)

	res, err := svc.Vote(context.Background(), voter, models.CategoryDiscussion,
		post.ThreadID, post.ID, "up")
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, 1, res.Sum)

	// voting again in any direction removes the existing vote
	res, err = svc.Vote(context.Background(), voter, models.CategoryDiscussion,
		post.ThreadID, post.ID, "down")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 0, res.Sum)

	sum, err := svc.VoteSum(post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sum)
}

func TestFlaggedAtThreshold(t *testing.T) {
	svc, q, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	users := voters(t, svc, 4)
	q.reset()

	for i, u := range users[:3] {
		res, err := svc.Vote(context.Background(), u, models.CategoryDiscussion,
			post.ThreadID, post.ID, "down")
		require.NoError(t, err)
		if i < 2 {
			assert.False(t, res.Post.IsFlagged, "sum %d must not flag", res.Sum)
		} else {
			assert.True(t, res.Post.IsFlagged, "sum -3 must flag")
		}
	}

	notified := q.ofType(tasks.TypeModerationPending)
	require.Len(t, notified, 1, "exactly one notification on the false-to-true edge")
	assert.Equal(t, tasks.ModeFlagged, notified[0].Task.Mode)

	// a fourth downvote keeps the flag and stays silent
	res, err := svc.Vote(context.Background(), users[3], models.CategoryDiscussion,
		post.ThreadID, post.ID, "down")
	require.NoError(t, err)
	assert.True(t, res.Post.IsFlagged)
	assert.Len(t, q.ofType(tasks.TypeModerationPending), 1)
}

func TestHighlightedAtThreshold(t *testing.T) {
	svc, q, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	users := voters(t, svc, 3)
	q.reset()

	for _, u := range users {
		_, err := svc.Vote(context.Background(), u, models.CategoryDiscussion,
			post.ThreadID, post.ID, "up")
		require.NoError(t, err)
	}

	got := reloadPost(t, db, post.ID)
	assert.True(t, got.IsHighlighted)
	assert.False(t, got.IsFlagged)

	notified := q.ofType(tasks.TypeModerationPending)
	require.Len(t, notified, 1)
	assert.Equal(t, tasks.ModeHighlighted, notified[0].Task.Mode)
}

func TestFlagsRecomputedWhenVotesRetract(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	users := voters(t, svc, 3)

	for _, u := range users {
		_, err := svc.Vote(context.Background(), u, models.CategoryDiscussion,
			post.ThreadID, post.ID, "down")
		require.NoError(t, err)
	}
	require.True(t, reloadPost(t, db, post.ID).IsFlagged)

	// one voter retracts; the flag must follow the sum back below threshold
	res, err := svc.Vote(context.Background(), users[0], models.CategoryDiscussion,
		post.ThreadID, post.ID, "down")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, -2, res.Sum)
	assert.False(t, reloadPost(t, db, post.ID).IsFlagged)
}

func TestVoteOnMissingPost(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	post := seedApprovedPost(t, db, author)
	voter := createUser(t, db, "voter", models.RoleUser)

	_, err := svc.Vote(context.Background(), voter, models.CategoryDiscussion,
		post.ThreadID, post.ID+1000, "up")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Vote(context.Background(), voter, models.CategoryDiscussion,
		post.ThreadID, post.ID, "sideways")
	assert.ErrorIs(t, err, ErrBadVoteMode)
}

func TestVoteSums(t *testing.T) {
	svc, _, db := newTestService(t)
	author := createUser(t, db, "author", models.RoleUser)
	a := seedApprovedPost(t, db, author)
	b := seedApprovedPost(t, db, author)
	voter := createUser(t, db, "voter", models.RoleUser)

	_, err := svc.Vote(context.Background(), voter, models.CategoryDiscussion,
		a.ThreadID, a.ID, "up")
	require.NoError(t, err)

	sums, err := svc.VoteSums([]uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, sums[a.ID])
	_, ok := sums[b.ID]
	assert.False(t, ok, "unvoted posts are absent from the map")
}
