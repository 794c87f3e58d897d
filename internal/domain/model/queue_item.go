package model

import (
	"time"

	"github.com/google/uuid"
)

// Priority is decreasing in importance: Critical has the lowest numeric
// value and is serviced first (spec §4.3).
type Priority int32

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Timeout returns the preset per-class RPC timeout (spec §4.3: 5/10/30/60/120s).
func (p Priority) Timeout() time.Duration {
	switch p {
	case PriorityCritical:
		return 5 * time.Second
	case PriorityHigh:
		return 10 * time.Second
	case PriorityNormal:
		return 30 * time.Second
	case PriorityLow:
		return 60 * time.Second
	case PriorityBackground:
		return 120 * time.Second
	default:
		return 30 * time.Second
	}
}

// MaxRetries returns the preset per-class retry budget (spec §4.3: 5/3/3/2/1).
func (p Priority) MaxRetries() int {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 2
	case PriorityBackground:
		return 1
	default:
		return 1
	}
}

// FromMessageType assigns the priority class for a message send, per the
// mapping table in spec §4.3.
func FromMessageType(t CommitType) Priority {
	switch t {
	case CommitRevoke, CommitDelete:
		return PriorityCritical
	case CommitText:
		return PriorityHigh
	case CommitImage, CommitAudio:
		return PriorityNormal
	case CommitVideo, CommitFile:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// TaskType is the closed set of work kinds the send queue executes.
type TaskType string

const (
	TaskSendMessage   TaskType = "send_message"
	TaskRevoke        TaskType = "revoke"
	TaskReadReceipt   TaskType = "read_receipt"
	TaskTypingSync    TaskType = "typing_sync"
	TaskPresenceSync  TaskType = "presence_sync"
	TaskFileUpload    TaskType = "file_upload"
)

// FromOperationType assigns the priority class for non-message operations,
// per the mapping table in spec §4.3 (read-receipts/typing/presence sync
// are Background).
func FromOperationType(t TaskType) Priority {
	switch t {
	case TaskRevoke:
		return PriorityCritical
	case TaskSendMessage:
		return PriorityHigh
	case TaskFileUpload:
		return PriorityLow
	case TaskReadReceipt, TaskTypingSync, TaskPresenceSync:
		return PriorityBackground
	default:
		return PriorityNormal
	}
}

// QueueItem is a single durable unit of work (spec §3).
type QueueItem struct {
	ID          uuid.UUID
	TaskType    TaskType
	Data        []byte
	Priority    Priority
	CreatedAt   time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt time.Time
}

// Expired reports whether the item has outlived its time-to-live (spec
// §4.3: default 24h, configurable per task type).
func (q QueueItem) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(q.CreatedAt) > ttl
}
