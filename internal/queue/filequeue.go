package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// Uploader performs the two network effects a file task needs before the
// message-queue commit can be enqueued (spec §4.4).
type Uploader interface {
	UploadThumbnail(ctx context.Context, task model.FileTask) (thumbID string, err error)
	UploadBody(ctx context.Context, task model.FileTask) (remoteURL string, err error)
}

// FileQueueConfig configures the File Send Queue. Workers is the open
// question from spec §9 resolved as explicit, validated configuration
// (2 <= Workers <= 3) rather than a hidden constant.
type FileQueueConfig struct {
	UserID  int64
	Workers int // 2-3, spec §4.4; default 3
	TTL     time.Duration
	Policy  RetryPolicy

	Uploader Uploader
	// EnqueueCommit submits the send-commit for the uploaded file onto
	// the (separate, already-running) message SendQueue, keeping the two
	// queues' persistence and worker pools fully independent (spec
	// §4.4: "must never block the message queue").
	EnqueueCommit func(ctx context.Context, task model.FileTask, remoteURL string) error

	OnSuccess func(model.FileTask)
	OnFailed  func(model.FileTask, FailureReason)
}

func (c FileQueueConfig) validated() FileQueueConfig {
	if c.Workers < 2 || c.Workers > 3 {
		c.Workers = 3
	}
	return c
}

// FileSendQueue is the separate, concurrent pool processing attachment
// uploads (spec §4.4). It is built on the same durable SendQueue engine
// as the message queue but instantiated with its own namespace, so the
// two share no in-memory or persisted state.
type FileSendQueue struct {
	inner *SendQueue
}

// NewFileSendQueue wires a FileSendQueue whose Effect performs the
// thumbnail-then-body-then-commit sequence (spec §4.4).
func NewFileSendQueue(log *slog.Logger, kv KV, cfg FileQueueConfig) *FileSendQueue {
	cfg = cfg.validated()

	effect := func(ctx context.Context, it model.QueueItem) error {
		var task model.FileTask
		if err := json.Unmarshal(it.Data, &task); err != nil {
			return &EffectError{Reason: ReasonUnknown, Err: err}
		}

		thumbID := task.PreUploadedThumbID
		if task.NeedsThumbnail() {
			id, err := cfg.Uploader.UploadThumbnail(ctx, task)
			if err != nil {
				return wrapUploadErr(err)
			}
			thumbID = id
		}
		task.PreUploadedThumbID = thumbID

		remoteURL, err := cfg.Uploader.UploadBody(ctx, task)
		if err != nil {
			return wrapUploadErr(err)
		}

		if err := cfg.EnqueueCommit(ctx, task, remoteURL); err != nil {
			return wrapUploadErr(err)
		}
		return nil
	}

	sq := New(log, kv, Config{
		UserID:    cfg.UserID,
		Namespace: "file",
		Workers:   cfg.Workers,
		TTL:       cfg.TTL,
		Policy:    cfg.Policy,
		Effect:    effect,
		OnSuccess: func(it model.QueueItem) {
			if cfg.OnSuccess == nil {
				return
			}
			var task model.FileTask
			if err := json.Unmarshal(it.Data, &task); err == nil {
				cfg.OnSuccess(task)
			}
		},
		OnFailed: func(it model.QueueItem, reason FailureReason) {
			if cfg.OnFailed == nil {
				return
			}
			var task model.FileTask
			if err := json.Unmarshal(it.Data, &task); err == nil {
				cfg.OnFailed(task, reason)
			}
		},
	})
	return &FileSendQueue{inner: sq}
}

func (q *FileSendQueue) Start(ctx context.Context) error { return q.inner.Start(ctx) }
func (q *FileSendQueue) Shutdown()                       { q.inner.Shutdown() }

// Enqueue submits a file task (spec §4.4 priority class: Low, per the
// message-type priority table in spec §4.3).
func (q *FileSendQueue) Enqueue(ctx context.Context, task model.FileTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return ierr.Wrap(ierr.Generic, err, "encoding file task")
	}
	return q.inner.Enqueue(ctx, model.QueueItem{
		TaskType: model.TaskFileUpload,
		Data:     data,
		Priority: model.FromOperationType(model.TaskFileUpload),
	})
}

func wrapUploadErr(err error) error {
	var ee *EffectError
	if e, ok := err.(*EffectError); ok {
		ee = e
		return ee
	}
	return &EffectError{Reason: ReasonUnknown, Err: err}
}
