package presence

import (
	"sync"
	"time"
)

// TypingAction is the closed set of typing notification kinds a consumer
// may send (spec §4.10).
type TypingAction int32

const (
	TypingStart TypingAction = iota
	TypingStop
)

const (
	defaultDebounceWindow = 3 * time.Second
	defaultAutoClear      = 5 * time.Second
)

// TypingConfig configures the debounce and auto-clear windows (spec
// §4.10: defaults 3s and 5s).
type TypingConfig struct {
	DebounceWindow time.Duration
	AutoClear      time.Duration
}

func (c TypingConfig) withDefaults() TypingConfig {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = defaultDebounceWindow
	}
	if c.AutoClear <= 0 {
		c.AutoClear = defaultAutoClear
	}
	return c
}

type typingState struct {
	startedAt  time.Time
	lastSentAt time.Time
}

// TypingEvent is what an inbound typing notification is surfaced to
// observers as (spec §4.10: "Inbound typing notifications are emitted as
// observable events; no local action is required").
type TypingEvent struct {
	ChannelID uint64
	UserID    int64
	Action    TypingAction
}

// TypingListener receives inbound TypingEvents.
type TypingListener func(TypingEvent)

// TypingManager records active local typing per channel and exposes the
// debounce decision the send pipeline needs before emitting a
// typing_sync task (spec §4.3 Background priority class, §4.10).
type TypingManager struct {
	cfg TypingConfig

	mu     sync.Mutex
	active map[uint64]typingState

	listenersMu sync.Mutex
	listeners   []TypingListener
}

func NewTypingManager(cfg TypingConfig) *TypingManager {
	return &TypingManager{cfg: cfg.withDefaults(), active: make(map[uint64]typingState)}
}

// StartTyping implements spec §4.10/§8 scenario 5: returns true when the
// debounce window has elapsed and the caller must send a notification to
// the server; false otherwise. It does not itself touch the network.
func (t *TypingManager) StartTyping(channelID uint64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked(now)

	st, ok := t.active[channelID]
	if ok && now.Sub(st.lastSentAt) < t.cfg.DebounceWindow {
		return false
	}

	if ok {
		st.lastSentAt = now
		t.active[channelID] = st
		return true
	}

	t.active[channelID] = typingState{startedAt: now, lastSentAt: now}
	return true
}

// Clear removes any active typing state for channelID (e.g. once a
// message is actually sent).
func (t *TypingManager) Clear(channelID uint64) {
	t.mu.Lock()
	delete(t.active, channelID)
	t.mu.Unlock()
}

func (t *TypingManager) evictExpiredLocked(now time.Time) {
	for ch, st := range t.active {
		if now.Sub(st.startedAt) >= t.cfg.AutoClear {
			delete(t.active, ch)
		}
	}
}

// OnTyping registers a callback for inbound typing notifications.
func (t *TypingManager) OnTyping(l TypingListener) {
	t.listenersMu.Lock()
	t.listeners = append(t.listeners, l)
	t.listenersMu.Unlock()
}

// HandleNotification forwards an inbound typing push to registered
// listeners; no local state is updated for inbound notifications (spec
// §4.10).
func (t *TypingManager) HandleNotification(ev TypingEvent) {
	t.listenersMu.Lock()
	listeners := append([]TypingListener(nil), t.listeners...)
	t.listenersMu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}
