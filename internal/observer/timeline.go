package observer

import (
	"sync"
	"time"
)

// timelineCell is one channel's isolated delivery unit, modeled on a
// Cell actor: a buffered mailbox decouples the publishing side
// (Commit Applier / Sync Engine) from potentially slow observer callbacks,
// and a single goroutine per channel guarantees in-order delivery for that
// channel while leaving other channels free to proceed in parallel (spec
// §5 ordering guarantee).
type timelineCell struct {
	mailbox chan TimelineEvent

	mu        sync.RWMutex
	observers map[Token]TimelineCallback

	doneCh chan struct{}
	once   sync.Once
}

func newTimelineCell(bufferSize int) *timelineCell {
	c := &timelineCell{
		mailbox:   make(chan TimelineEvent, bufferSize),
		observers: make(map[Token]TimelineCallback),
		doneCh:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *timelineCell) observe(cb TimelineCallback) Token {
	tok := nextToken()
	c.mu.Lock()
	c.observers[tok] = cb
	c.mu.Unlock()
	return tok
}

// unobserve returns true the first time tok is removed, false thereafter.
func (c *timelineCell) unobserve(tok Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.observers[tok]; !ok {
		return false
	}
	delete(c.observers, tok)
	return true
}

func (c *timelineCell) isEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers) == 0
}

// publish enqueues ev without blocking the caller; a full mailbox drops
// the event rather than stalling the publisher (the same backpressure
// posture as a Cell's Push).
func (c *timelineCell) publish(ev TimelineEvent) bool {
	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

func (c *timelineCell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
			for range 64 {
				select {
				case next := <-c.mailbox:
					c.deliver(next)
				default:
					goto wait
				}
			}
		wait:
		}
	}
}

func (c *timelineCell) deliver(ev TimelineEvent) {
	c.mu.RLock()
	cbs := make([]TimelineCallback, 0, len(c.observers))
	for _, cb := range c.observers {
		cbs = append(cbs, cb)
	}
	c.mu.RUnlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

func (c *timelineCell) stop() {
	c.once.Do(func() { close(c.doneCh) })
}

// idleEvictionGrace is not consulted by the hub's janitor: evictEmpty
// reclaims an emptied cell on its next eviction tick, however long the
// cell has been empty.
const idleEvictionGrace = 5 * time.Minute
