package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/models"
)

// memQueue is an in-memory workerQueue for the handler tests.
type memQueue struct {
	mu      sync.Mutex
	ready   []Task
	delayed []Task
}

func (q *memQueue) Enqueue(_ context.Context, t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, t)
	return nil
}

func (q *memQueue) EnqueueIn(_ context.Context, t Task, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, t)
	return nil
}

func (q *memQueue) pop(_ context.Context, _ time.Duration) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil, nil
	}
	t := q.ready[0]
	q.ready = q.ready[1:]
	return &t, nil
}

func (q *memQueue) promoteDue(context.Context) error { return nil }

type sentMail struct {
	To      string
	Subject string
	Body    string
}

var dbSeq int64

func newTestWorker(t *testing.T) (*Worker, *memQueue, *gorm.DB, *[]sentMail) {
	t.Helper()
	dsn := fmt.Sprintf("file:tasks%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Thread{}, &models.Post{},
		&models.Vote{}, &models.Media{}, &models.Attachment{},
	))

	cfg := config.AppConfig{
		JWTSecret:       "test-secret",
		SiteName:        "Parley",
		SiteBaseURL:     "http://example.com",
		TaskRetryDelay:  10 * time.Second,
		TaskMaxAttempts: 2,
		WorkerCount:     1,
	}
	config.SetForTesting(cfg)

	q := &memQueue{}
	var mails []sentMail
	w := &Worker{
		db:    db,
		queue: q,
		cfg:   cfg,
		log:   zap.NewNop().Sugar(),
		sendMail: func(to, subject, body string) error {
			mails = append(mails, sentMail{To: to, Subject: subject, Body: body})
			return nil
		},
	}
	return w, q, db, &mails
}

func seedThreadAndPost(t *testing.T, db *gorm.DB, author *models.User, content string, approved bool) *models.Post {
	t.Helper()
	thread := models.Thread{Category: models.CategoryDiscussion}
	require.NoError(t, db.Create(&thread).Error)
	post := models.Post{
		ThreadID:   thread.ID,
		AuthorID:   author.ID,
		Content:    content,
		IsApproved: approved,
	}
	require.NoError(t, db.Create(&post).Error)
	return &post
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func TestHandleCleanContent(t *testing.T) {
	w, _, db, _ := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	post := seedThreadAndPost(t, db, author,
		"<script>alert(1)</script>hello\nsee https://example.com/x", true)

	require.NoError(t, w.Handle(context.Background(), Task{Type: TypeCleanContent, PostID: post.ID}))

	var got models.Post
	require.NoError(t, db.First(&got, post.ID).Error)
	require.NotNil(t, got.ContentCleaned)
	cleaned := *got.ContentCleaned
	assert.NotContains(t, cleaned, "<script>")
	assert.NotContains(t, cleaned, "alert(1)")
	assert.Contains(t, cleaned, "hello<br/>")
	assert.Contains(t, cleaned, `href="https://example.com/x"`)
	assert.Contains(t, cleaned, `rel="nofollow"`)
}

func TestHandleCleanContentMissingPostIsTransient(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	err := w.Handle(context.Background(), Task{Type: TypeCleanContent, PostID: 12345})
	assert.ErrorIs(t, err, ErrRetry)
}

func TestModerationPendingFansOutToModerators(t *testing.T) {
	w, q, db, _ := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	seedUser(t, db, "plain", models.RoleUser)
	mod := seedUser(t, db, "mod", models.RoleModerator)
	admin := seedUser(t, db, "admin", models.RoleAdmin)
	post := seedThreadAndPost(t, db, author, "pending", false)

	require.NoError(t, w.Handle(context.Background(),
		Task{Type: TypeModerationPending, PostID: post.ID, Mode: ModeApproval}))

	require.Len(t, q.ready, 2, "one per-user task per moderation permission holder")
	recipients := map[uint]bool{}
	for _, task := range q.ready {
		assert.Equal(t, TypeModerationPendingUser, task.Type)
		assert.Equal(t, ModeApproval, task.Mode)
		recipients[task.UserID] = true
	}
	assert.True(t, recipients[mod.ID])
	assert.True(t, recipients[admin.ID])
}

func TestModerationPendingUserMailBySubject(t *testing.T) {
	w, _, db, mails := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	mod := seedUser(t, db, "mod", models.RoleModerator)
	post := seedThreadAndPost(t, db, author, "pending", false)

	cases := map[string]string{
		ModeApproval:    "Parley - Post approval pending",
		ModeFlagged:     "Parley - Post has been flagged",
		ModeHighlighted: "Parley - Post has been highlighted",
	}
	for mode, subject := range cases {
		*mails = (*mails)[:0]
		require.NoError(t, w.Handle(context.Background(),
			Task{Type: TypeModerationPendingUser, PostID: post.ID, UserID: mod.ID, Mode: mode}))
		require.Len(t, *mails, 1)
		assert.Equal(t, mod.Email, (*mails)[0].To)
		assert.Equal(t, subject, (*mails)[0].Subject)
		assert.Contains(t, (*mails)[0].Body,
			fmt.Sprintf("http://example.com/comments/discussions/%d/#post-%d", post.ThreadID, post.ID))
	}
}

func TestPostApprovedMailsAuthor(t *testing.T) {
	w, _, db, mails := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	post := seedThreadAndPost(t, db, author, "finally", true)

	require.NoError(t, w.Handle(context.Background(), Task{Type: TypePostApproved, PostID: post.ID}))

	require.Len(t, *mails, 1)
	assert.Equal(t, author.Email, (*mails)[0].To)
	assert.Equal(t, "Parley - Post approved", (*mails)[0].Subject)
}

func TestPostApprovedDropsWhenDisapprovedAgain(t *testing.T) {
	w, _, db, mails := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	post := seedThreadAndPost(t, db, author, "short lived", false)

	require.NoError(t, w.Handle(context.Background(), Task{Type: TypePostApproved, PostID: post.ID}))
	assert.Empty(t, *mails, "the flag is checked at delivery time, not enqueue time")
}

func TestNewReplyDeduplicatesAncestorAuthors(t *testing.T) {
	w, q, db, _ := newTestWorker(t)
	op := seedUser(t, db, "op", models.RoleUser)
	other := seedUser(t, db, "other", models.RoleUser)

	root := seedThreadAndPost(t, db, op, "root", true)
	mid := models.Post{ThreadID: root.ThreadID, ParentID: &root.ID, AuthorID: op.ID,
		Content: "self reply", IsApproved: true}
	require.NoError(t, db.Create(&mid).Error)
	leaf := models.Post{ThreadID: root.ThreadID, ParentID: &mid.ID, AuthorID: other.ID,
		Content: "reply", IsApproved: true}
	require.NoError(t, db.Create(&leaf).Error)

	require.NoError(t, w.Handle(context.Background(), Task{Type: TypeNewReply, PostID: leaf.ID}))

	// op authored both ancestors but is notified once
	require.Len(t, q.ready, 1)
	assert.Equal(t, TypeNewReplyUser, q.ready[0].Type)
	assert.Equal(t, op.ID, q.ready[0].UserID)
}

func TestNewReplySkipsUnapprovedPost(t *testing.T) {
	w, q, db, _ := newTestWorker(t)
	op := seedUser(t, db, "op", models.RoleUser)
	root := seedThreadAndPost(t, db, op, "root", true)
	reply := models.Post{ThreadID: root.ThreadID, ParentID: &root.ID, AuthorID: op.ID,
		Content: "pending", IsApproved: false}
	require.NoError(t, db.Create(&reply).Error)

	require.NoError(t, w.Handle(context.Background(), Task{Type: TypeNewReply, PostID: reply.ID}))
	assert.Empty(t, q.ready)
}

func TestDeliveryFailureIsRetried(t *testing.T) {
	w, _, db, _ := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	post := seedThreadAndPost(t, db, author, "oops", true)
	w.sendMail = func(string, string, string) error {
		return errors.New("smtp connection refused")
	}

	err := w.Handle(context.Background(), Task{Type: TypePostApproved, PostID: post.ID})
	assert.ErrorIs(t, err, ErrRetry)
}

func TestDispatchRetryPolicy(t *testing.T) {
	w, q, _, _ := newTestWorker(t)

	// missing post: transient, requeued with the attempt bumped
	w.dispatch(context.Background(), Task{Type: TypeCleanContent, PostID: 999})
	require.Len(t, q.delayed, 1)
	assert.Equal(t, 1, q.delayed[0].Attempt)

	// attempts exhausted (TaskMaxAttempts=2): abandoned quietly
	w.dispatch(context.Background(), q.delayed[0])
	assert.Len(t, q.delayed, 1)

	// unknown type: permanent failure, never requeued
	w.dispatch(context.Background(), Task{Type: "bogus"})
	assert.Len(t, q.delayed, 1)
	assert.Empty(t, q.ready)
}

func TestMailBodyCarriesExcerpt(t *testing.T) {
	w, _, db, mails := newTestWorker(t)
	author := seedUser(t, db, "author", models.RoleUser)
	post := seedThreadAndPost(t, db, author, "raw", true)
	cleaned := "a <b>bold</b> statement"
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("content_cleaned", &cleaned).Error)

	require.NoError(t, w.Handle(context.Background(), Task{Type: TypePostApproved, PostID: post.ID}))

	require.Len(t, *mails, 1)
	assert.Contains(t, (*mails)[0].Body, "a bold statement")
}
