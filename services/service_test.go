package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/tasks"
)

// fakeQueue records enqueued tasks instead of touching redis.
type fakeQueue struct {
	mu    sync.Mutex
	calls []enqueueCall
}

type enqueueCall struct {
	Task  tasks.Task
	Delay time.Duration
}

func (f *fakeQueue) Enqueue(_ context.Context, t tasks.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueueCall{Task: t})
	return nil
}

func (f *fakeQueue) EnqueueIn(_ context.Context, t tasks.Task, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueueCall{Task: t, Delay: delay})
	return nil
}

func (f *fakeQueue) ofType(tt tasks.Type) []enqueueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueueCall
	for _, c := range f.calls {
		if c.Task.Type == tt {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeQueue) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func testConfig() config.AppConfig {
	return config.AppConfig{
		JWTSecret:          "test-secret",
		SiteName:           "Parley",
		SiteBaseURL:        "http://example.com",
		StaffPreviewWindow: 24 * time.Hour,
		EditWindow:         24 * time.Hour,
		PurgeAge:           24 * time.Hour,
		PurgeInterval:      time.Hour,
		WorkerCount:        1,
		TaskRetryDelay:     10 * time.Second,
		TaskMaxAttempts:    5,
		RateLimitPerMinute: 60,
	}
}

var dbSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Thread{}, &models.Post{},
		&models.Vote{}, &models.Media{}, &models.Attachment{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *fakeQueue, *gorm.DB) {
	t.Helper()
	cfg := testConfig()
	config.SetForTesting(cfg)
	db := newTestDB(t)
	q := &fakeQueue{}
	return New(db, q, cfg), q, db
}

func createUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	u := models.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

// seedApprovedPost plants an approved post so its author counts as trusted.
func seedApprovedPost(t *testing.T, db *gorm.DB, author *models.User) *models.Post {
	t.Helper()
	thread := models.Thread{Category: models.CategoryDiscussion}
	require.NoError(t, db.Create(&thread).Error)
	post := models.Post{
		ThreadID:   thread.ID,
		AuthorID:   author.ID,
		Content:    "earlier approved post",
		IsApproved: true,
	}
	require.NoError(t, db.Create(&post).Error)
	return &post
}

func reloadPost(t *testing.T, db *gorm.DB, id uint) *models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, db.First(&post, id).Error)
	return &post
}

func reloadThread(t *testing.T, db *gorm.DB, id uint) *models.Thread {
	t.Helper()
	var thread models.Thread
	require.NoError(t, db.First(&thread, id).Error)
	return &thread
}
