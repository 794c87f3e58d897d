package model

// ChannelType mirrors spec §3: 1 = direct, 2 = group.
type ChannelType int32

const (
	ChannelDirect ChannelType = 1
	ChannelGroup  ChannelType = 2
)

// Channel is a persistent conversation object, created lazily the first
// time it is referenced by a push, an RPC response, or an explicit create.
type Channel struct {
	ChannelID         uint64
	ChannelType       ChannelType
	DisplayName       string
	Avatar            string
	UnreadCount       int32
	LastMsgPts        uint64
	LastMsgTimestamp  int64
	LastLocalMsgID    uint64
	Muted             bool
	Top               bool
	Saved             bool
	Forbidden         bool
	Following         bool
}

// Identity returns the (channel_id, channel_type) tuple used as primary
// key everywhere else in the SDK (pts cache, message rows, observers).
func (c Channel) Identity() (uint64, ChannelType) { return c.ChannelID, c.ChannelType }
