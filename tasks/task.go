// Package tasks provides the asynchronous side of the forum: a redis-backed
// task queue with delayed delivery, and the workers that sanitize post
// content and deliver notification mail. Delivery is at-least-once, so
// every handler is written to be idempotent.
package tasks

import (
	"context"
	"errors"
	"time"
)

// Type discriminates queued tasks.
type Type string

const (
	// TypeCleanContent re-derives a post's sanitized content.
	TypeCleanContent Type = "post.clean"
	// TypeModerationPending fans out a moderation event to every user
	// currently holding moderation permission.
	TypeModerationPending Type = "post.moderation_pending"
	// TypeModerationPendingUser mails one moderator about one event.
	TypeModerationPendingUser Type = "post.moderation_pending.user"
	// TypePostApproved mails the author of a freshly approved post.
	TypePostApproved Type = "post.approved"
	// TypeNewReply fans a new approved reply out to its ancestor authors.
	TypeNewReply Type = "post.new_reply"
	// TypeNewReplyUser mails one ancestor author about one reply.
	TypeNewReplyUser Type = "post.new_reply.user"
)

// Moderation event modes carried by pending-moderation tasks.
const (
	ModeApproval    = "approval"
	ModeFlagged     = "flagged"
	ModeHighlighted = "highlighted"
)

// Task is one unit of queued work. UserID and Mode are only meaningful for
// some types. Attempt counts deliveries so retries can give up eventually.
type Task struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	PostID  uint   `json:"post_id"`
	UserID  uint   `json:"user_id,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Attempt int    `json:"attempt"`
}

// ErrRetry marks a transient failure: the task should be redelivered after
// the retry delay until attempts are exhausted.
var ErrRetry = errors.New("transient task failure")

// Enqueuer is the write side of the queue. The request tier only ever
// enqueues; consumption happens in the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
	EnqueueIn(ctx context.Context, t Task, delay time.Duration) error
}
