package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string]map[string][]byte)} }

func (f *fakeKV) Put(_ context.Context, bucket, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[bucket] == nil {
		f.data[bucket] = make(map[string][]byte)
	}
	f.data[bucket][key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeKV) Get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[bucket][key]
	return v, ok, nil
}

func (f *fakeKV) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data[bucket], key)
	return nil
}

func (f *fakeKV) ListPrefix(_ context.Context, bucket, _ string) ([]storage.KVEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.KVEntry
	for k, v := range f.data[bucket] {
		out = append(out, storage.KVEntry{Key: k, Value: v})
	}
	return out, nil
}

func (f *fakeKV) count(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[bucket])
}

func TestSendQueueSucceedsOnFirstAttempt(t *testing.T) {
	kv := newFakeKV()
	var calls int32
	var successes int32

	q := New(slog.Default(), kv, Config{
		UserID:    1,
		Namespace: "message",
		Workers:   2,
		Effect: func(ctx context.Context, it model.QueueItem) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
		OnSuccess: func(it model.QueueItem) { atomic.AddInt32(&successes, 1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Shutdown()

	require.NoError(t, q.Enqueue(ctx, model.QueueItem{
		TaskType: model.TaskSendMessage,
		Priority: model.PriorityHigh,
		Data:     []byte("hello"),
	}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&successes) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, kv.count(pendingBucket(1, "message")))
}

func TestSendQueueRetriesThenSucceeds(t *testing.T) {
	kv := newFakeKV()
	var attempts int32

	q := New(slog.Default(), kv, Config{
		UserID:    1,
		Namespace: "message",
		Workers:   1,
		Policy:    RetryPolicy{Base: time.Millisecond, Factor: 2, Cap: 50 * time.Millisecond},
		Effect: func(ctx context.Context, it model.QueueItem) error {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return &EffectError{Reason: ReasonServerError, HTTPStatus: 503, Err: context.DeadlineExceeded}
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Shutdown()

	require.NoError(t, q.Enqueue(ctx, model.QueueItem{
		TaskType:   model.TaskSendMessage,
		Priority:   model.PriorityHigh,
		MaxRetries: 5,
	}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSendQueueFirstRetryDelayUsesPreIncrementRetryCount(t *testing.T) {
	kv := newFakeKV()
	var attempts int32
	delayCh := make(chan time.Duration, 1)

	q := New(slog.Default(), kv, Config{
		UserID:    1,
		Namespace: "message",
		Workers:   1,
		Policy:    RetryPolicy{Base: time.Second, Factor: 2, Cap: 300 * time.Second},
		Effect: func(ctx context.Context, it model.QueueItem) error {
			n := atomic.AddInt32(&attempts, 1)
			if n == 1 {
				return &EffectError{Reason: ReasonServerError, HTTPStatus: 503, Err: context.DeadlineExceeded}
			}
			return nil
		},
		OnRetry: func(it model.QueueItem, delay time.Duration) { delayCh <- delay },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Shutdown()

	require.NoError(t, q.Enqueue(ctx, model.QueueItem{
		TaskType:   model.TaskSendMessage,
		Priority:   model.PriorityHigh,
		MaxRetries: 5,
	}))

	select {
	case delay := <-delayCh:
		// base=1s, factor=2, ReasonServerError multiplier=1.5: the first
		// retry (retry_count=0 at the time of computation) must come out
		// to base*mult=1.5s, not base*factor*mult=3s.
		require.InDelta(t, 1.5*float64(time.Second), float64(delay), 0.15*float64(time.Second))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retry callback")
	}
}

func TestSendQueueMovesToFailedOnTerminalReason(t *testing.T) {
	kv := newFakeKV()
	failedCh := make(chan FailureReason, 1)

	q := New(slog.Default(), kv, Config{
		UserID:    1,
		Namespace: "message",
		Workers:   1,
		Effect: func(ctx context.Context, it model.QueueItem) error {
			return &EffectError{Reason: ReasonMessageTooLarge, Err: context.Canceled}
		},
		OnFailed: func(it model.QueueItem, reason FailureReason) { failedCh <- reason },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Shutdown()

	require.NoError(t, q.Enqueue(ctx, model.QueueItem{TaskType: model.TaskSendMessage, Priority: model.PriorityLow}))

	select {
	case reason := <-failedCh:
		require.Equal(t, ReasonMessageTooLarge, reason)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure callback")
	}
	require.Equal(t, 1, kv.count(failedBucket(1, "message")))
	require.Equal(t, 0, kv.count(pendingBucket(1, "message")))
}

func TestSendQueueRecoversPendingOnStart(t *testing.T) {
	kv := newFakeKV()
	it := model.QueueItem{TaskType: model.TaskSendMessage, Priority: model.PriorityHigh, CreatedAt: time.Now()}
	it.ID = uuid.New()
	encoded, err := encodeItem(it)
	require.NoError(t, err)
	require.NoError(t, kv.Put(context.Background(), pendingBucket(1, "message"), it.ID.String(), encoded))

	var processed int32
	q := New(slog.Default(), kv, Config{
		UserID:    1,
		Namespace: "message",
		Workers:   1,
		Effect: func(ctx context.Context, it model.QueueItem) error {
			atomic.AddInt32(&processed, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Shutdown()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&processed) == 1 }, time.Second, 5*time.Millisecond)
}
