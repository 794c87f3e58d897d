package observer

import "sync"

// channelListCell is the single, un-scoped counterpart of timelineCell for
// the channel-list observer stream (spec §4.9).
type channelListCell struct {
	mailbox chan ChannelListEvent

	mu        sync.RWMutex
	observers map[Token]ChannelListCallback

	doneCh chan struct{}
	once   sync.Once
}

func newChannelListCell(bufferSize int) *channelListCell {
	c := &channelListCell{
		mailbox:   make(chan ChannelListEvent, bufferSize),
		observers: make(map[Token]ChannelListCallback),
		doneCh:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *channelListCell) observe(cb ChannelListCallback) Token {
	tok := nextToken()
	c.mu.Lock()
	c.observers[tok] = cb
	c.mu.Unlock()
	return tok
}

func (c *channelListCell) unobserve(tok Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.observers[tok]; !ok {
		return false
	}
	delete(c.observers, tok)
	return true
}

func (c *channelListCell) publish(ev ChannelListEvent) bool {
	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

func (c *channelListCell) loop() {
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

func (c *channelListCell) deliver(ev ChannelListEvent) {
	c.mu.RLock()
	cbs := make([]ChannelListCallback, 0, len(c.observers))
	for _, cb := range c.observers {
		cbs = append(cbs, cb)
	}
	c.mu.RUnlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

func (c *channelListCell) stop() {
	c.once.Do(func() { close(c.doneCh) })
}
