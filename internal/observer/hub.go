package observer

import (
	"log/slog"
	"sync"
	"time"
)

const defaultMailboxSize = 256

// Hub is the SDK-wide observer registry, the direct descendant of the
// teacher's registry.Hub: a sync.Map of per-key actors plus a background
// janitor, re-keyed from "user id" to "channel id" and re-purposed from
// gRPC stream fan-out to in-process callback fan-out.
type Hub struct {
	log *slog.Logger

	timelines sync.Map // uint64 (channel id) -> *timelineCell
	// tokenIndex lets Unobserve locate a token's owning cell in O(1)
	// without the caller remembering which channel it subscribed to.
	tokenIndex sync.Map // Token -> *timelineCell

	channelList *channelListCell

	evictionInterval time.Duration
	stopCh           chan struct{}
}

type Option func(*Hub)

func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) { h.evictionInterval = d }
}

func NewHub(log *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		log:              log,
		channelList:      newChannelListCell(defaultMailboxSize),
		evictionInterval: time.Minute,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.runEvictor()
	return h
}

// ObserveTimeline registers cb for diff events on channelID and returns a
// nonzero token (spec §4.9).
func (h *Hub) ObserveTimeline(channelID uint64, cb TimelineCallback) Token {
	val, _ := h.timelines.LoadOrStore(channelID, newTimelineCell(defaultMailboxSize))
	cell := val.(*timelineCell)
	tok := cell.observe(cb)
	h.tokenIndex.Store(tok, cell)
	return tok
}

// UnobserveTimeline is idempotent: true on the first call after
// ObserveTimeline returned tok, false thereafter.
func (h *Hub) UnobserveTimeline(tok Token) bool {
	val, ok := h.tokenIndex.Load(tok)
	if !ok {
		return false
	}
	cell := val.(*timelineCell)
	removed := cell.unobserve(tok)
	if removed {
		h.tokenIndex.Delete(tok)
	}
	return removed
}

// PublishTimeline fans a diff event out to channelID's observers, if any
// are registered; it is a no-op otherwise (no cell is created for
// publishing alone).
func (h *Hub) PublishTimeline(channelID uint64, ev TimelineEvent) {
	if val, ok := h.timelines.Load(channelID); ok {
		val.(*timelineCell).publish(ev)
	}
}

// ObserveChannelList registers cb for channel-list diff events.
func (h *Hub) ObserveChannelList(cb ChannelListCallback) Token {
	return h.channelList.observe(cb)
}

// UnobserveChannelList is idempotent, matching UnobserveTimeline.
func (h *Hub) UnobserveChannelList(tok Token) bool {
	return h.channelList.unobserve(tok)
}

// PublishChannelList fans a diff event out to all channel-list observers.
func (h *Hub) PublishChannelList(ev ChannelListEvent) {
	h.channelList.publish(ev)
}

func (h *Hub) runEvictor() {
	ticker := time.NewTicker(h.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.evictEmpty()
		}
	}
}

func (h *Hub) evictEmpty() {
	reaped := 0
	h.timelines.Range(func(key, value any) bool {
		cell := value.(*timelineCell)
		if cell.isEmpty() {
			cell.stop()
			h.timelines.Delete(key)
			reaped++
		}
		return true
	})
	if reaped > 0 && h.log != nil {
		h.log.Debug("observer hub reclaimed idle timeline cells", slog.Int("count", reaped))
	}
}

// Shutdown stops every cell and the janitor.
func (h *Hub) Shutdown() {
	close(h.stopCh)
	h.timelines.Range(func(_, value any) bool {
		value.(*timelineCell).stop()
		return true
	})
	h.channelList.stop()
}
