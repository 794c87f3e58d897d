package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/storage"
)

// KV is the subset of *storage.Store the queue needs for durability
// (spec §4.3: "Every enqueued task is written to a durable key-value tree
// partitioned by user id before the in-memory signal fires").
type KV interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Delete(ctx context.Context, bucket, key string) error
	ListPrefix(ctx context.Context, bucket, prefix string) ([]storage.KVEntry, error)
}

func pendingBucket(userID int64, namespace string) string {
	return fmt.Sprintf("queue:%s:%d:pending", namespace, userID)
}

func failedBucket(userID int64, namespace string) string {
	return fmt.Sprintf("queue:%s:%d:failed", namespace, userID)
}

// persistedItem is the durable encoding of a model.QueueItem.
type persistedItem struct {
	ID          uuid.UUID      `json:"id"`
	TaskType    model.TaskType `json:"task_type"`
	Data        []byte         `json:"data"`
	Priority    model.Priority `json:"priority"`
	CreatedAt   int64          `json:"created_at"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	NextRetryAt int64          `json:"next_retry_at"`
}

func encodeItem(it model.QueueItem) ([]byte, error) {
	p := persistedItem{
		ID: it.ID, TaskType: it.TaskType, Data: it.Data, Priority: it.Priority,
		CreatedAt: it.CreatedAt.Unix(), RetryCount: it.RetryCount, MaxRetries: it.MaxRetries,
	}
	if !it.NextRetryAt.IsZero() {
		p.NextRetryAt = it.NextRetryAt.Unix()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, ierr.Wrap(ierr.Generic, err, "encoding queue item")
	}
	return b, nil
}

func decodeItem(b []byte) (model.QueueItem, error) {
	var p persistedItem
	if err := json.Unmarshal(b, &p); err != nil {
		return model.QueueItem{}, ierr.Wrap(ierr.Generic, err, "decoding queue item")
	}
	return model.QueueItem{
		ID: p.ID, TaskType: p.TaskType, Data: p.Data, Priority: p.Priority,
		CreatedAt:   unixOrZero(p.CreatedAt),
		RetryCount:  p.RetryCount,
		MaxRetries:  p.MaxRetries,
		NextRetryAt: unixOrZero(p.NextRetryAt),
	}, nil
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
