package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
)

// Effect performs the bound side effect for one queue item (send message,
// issue RPC, update state — spec §4.3 step 1). A non-nil error should be
// an *EffectError so the queue can classify it; any other error is
// treated as ReasonUnknown (conservative retry, spec §4.3).
type Effect func(ctx context.Context, item model.QueueItem) error

// Config configures one SendQueue instance. The message queue and the
// File Send Queue are two independently configured instances that share
// no state (spec §4.3/§4.4: "Two queues coexist and share no state").
type Config struct {
	UserID    int64
	Namespace string // "message" or "file"; partitions the KV buckets
	Workers   int    // default 4 (spec §4.3); File Send Queue overrides to 2-3 (spec §4.4)
	TTL       time.Duration
	Policy    RetryPolicy
	Effect    Effect

	OnSuccess func(model.QueueItem)
	OnFailed  func(model.QueueItem, FailureReason)
	OnRetry   func(model.QueueItem, time.Duration)
	// Reauthenticate is invoked once before the retry of an
	// ReasonAuthFailure item (spec §4.3: "Auth failure -> Retry once
	// after triggering reauth"). Optional.
	Reauthenticate func(ctx context.Context) error
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Policy == (RetryPolicy{}) {
		c.Policy = DefaultRetryPolicy()
	}
	return c
}

// SendQueue is a priority-ordered, persistent outbound queue serviced by a
// small fixed worker pool (spec §4.3).
type SendQueue struct {
	log *slog.Logger
	kv  KV
	cfg Config

	mu   sync.Mutex
	heap itemHeap

	signal chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(log *slog.Logger, kv KV, cfg Config) *SendQueue {
	cfg = cfg.withDefaults()
	return &SendQueue{
		log:    log,
		kv:     kv,
		cfg:    cfg,
		signal: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Start recovers persisted pending tasks into memory before any worker
// begins consuming (spec §4.3: "On startup, the queue recovers pending
// tasks from the tree... before any worker starts consuming"), then
// launches cfg.Workers worker goroutines.
func (q *SendQueue) Start(ctx context.Context) error {
	entries, err := q.kv.ListPrefix(ctx, pendingBucket(q.cfg.UserID, q.cfg.Namespace), "")
	if err != nil {
		return err
	}

	q.mu.Lock()
	for _, e := range entries {
		it, err := decodeItem(e.Value)
		if err != nil {
			q.log.Warn("dropping unreadable persisted queue item", slog.String("key", e.Key))
			continue
		}
		q.heap = append(q.heap, it)
	}
	heapInit(&q.heap)
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx)
	}
	return nil
}

// Enqueue persists it before the in-memory signal fires (spec §4.3) and
// wakes a worker.
func (q *SendQueue) Enqueue(ctx context.Context, it model.QueueItem) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	if it.MaxRetries == 0 {
		it.MaxRetries = it.Priority.MaxRetries()
	}

	encoded, err := encodeItem(it)
	if err != nil {
		return err
	}
	if err := q.kv.Put(ctx, pendingBucket(q.cfg.UserID, q.cfg.Namespace), it.ID.String(), encoded); err != nil {
		return err
	}

	q.mu.Lock()
	heapPush(&q.heap, it)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *SendQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Shutdown stops every worker after its current item completes; queue
// workers check a shutdown signal between tasks (spec §5).
func (q *SendQueue) Shutdown() {
	q.once.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

func (q *SendQueue) workerLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-q.signal:
		case <-ticker.C:
		}

		for {
			it, ok := q.tryPop()
			if !ok {
				break
			}
			q.process(ctx, it)

			select {
			case <-q.stopCh:
				return
			default:
			}
		}
	}
}

// tryPop removes and returns the highest-priority, oldest-FIFO item whose
// NextRetryAt (if any) is due. It leaves not-yet-due items in the heap for
// a later tick.
func (q *SendQueue) tryPop() (model.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return model.QueueItem{}, false
	}
	top := q.heap[0]
	if !top.NextRetryAt.IsZero() && top.NextRetryAt.After(time.Now()) {
		return model.QueueItem{}, false
	}
	return heapPop(&q.heap), true
}

func (q *SendQueue) process(ctx context.Context, it model.QueueItem) {
	if it.Expired(time.Now(), q.cfg.TTL) {
		_ = q.kv.Delete(ctx, pendingBucket(q.cfg.UserID, q.cfg.Namespace), it.ID.String())
		q.log.Debug("queue item expired past ttl", slog.String("id", it.ID.String()))
		return
	}

	effectCtx, cancel := context.WithTimeout(ctx, it.Priority.Timeout())
	err := q.cfg.Effect(effectCtx, it)
	cancel()

	if err == nil {
		_ = q.kv.Delete(ctx, pendingBucket(q.cfg.UserID, q.cfg.Namespace), it.ID.String())
		if q.cfg.OnSuccess != nil {
			q.cfg.OnSuccess(it)
		}
		return
	}

	reason := classify(err)
	if reason == ReasonAuthFailure && q.cfg.Reauthenticate != nil {
		_ = q.cfg.Reauthenticate(ctx)
	}

	delay := q.cfg.Policy.NextDelay(it.RetryCount, reason.Multiplier())

	it.RetryCount++
	if reason == ReasonAuthFailure && it.MaxRetries > it.RetryCount+1 {
		it.MaxRetries = it.RetryCount + 1 // one more attempt after reauth
	}
	terminal := reason.Outcome() == OutcomeFailed || it.RetryCount >= it.MaxRetries
	if terminal {
		q.moveToFailed(ctx, it, reason)
		return
	}

	it.NextRetryAt = time.Now().Add(delay)

	encoded, encErr := encodeItem(it)
	if encErr != nil {
		q.log.Error("failed to re-encode retrying queue item", slog.Any("err", encErr))
		return
	}
	if err := q.kv.Put(ctx, pendingBucket(q.cfg.UserID, q.cfg.Namespace), it.ID.String(), encoded); err != nil {
		q.log.Error("failed to persist retry", slog.Any("err", err))
	}

	q.mu.Lock()
	heapPush(&q.heap, it)
	q.mu.Unlock()

	if q.cfg.OnRetry != nil {
		q.cfg.OnRetry(it, delay)
	}
}

func (q *SendQueue) moveToFailed(ctx context.Context, it model.QueueItem, reason FailureReason) {
	_ = q.kv.Delete(ctx, pendingBucket(q.cfg.UserID, q.cfg.Namespace), it.ID.String())
	if encoded, err := encodeItem(it); err == nil {
		_ = q.kv.Put(ctx, failedBucket(q.cfg.UserID, q.cfg.Namespace), it.ID.String(), encoded)
	}
	if q.cfg.OnFailed != nil {
		q.cfg.OnFailed(it, reason)
	}
}

// classify extracts a FailureReason from an effect error, defaulting to
// ReasonUnknown for anything not wrapped in *EffectError (spec §4.3:
// "Unknown -> Retry (conservative)").
func classify(err error) FailureReason {
	var ee *EffectError
	if errors.As(err, &ee) {
		if ee.Reason == ReasonServerError {
			return ClassifyHTTPStatus(ee.HTTPStatus)
		}
		return ee.Reason
	}
	return ReasonUnknown
}
