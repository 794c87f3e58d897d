package model

// MessageStatus tracks a message through the state machine described in
// spec §3/§4.5.
type MessageStatus int32

const (
	MessagePending MessageStatus = iota
	MessageSent
	MessageDelivered
	MessageFailed
)

// Message is identified locally by ID (autoincrement) and on the server by
// ServerMessageID; LocalMessageID is the client-generated idempotency key
// used for dedup of echoes (spec §3, §8 property: exactly-once observable
// effect).
type Message struct {
	ID             uint64
	ServerMsgID    uint64
	LocalMessageID uint64
	FromUID        int64
	ChannelID      uint64
	ChannelType    ChannelType
	Content        string
	MessageType    string
	Pts            uint64
	// OrderSeq is monotone per channel and equals the commit's Pts
	// (spec §3 invariant).
	OrderSeq  uint64
	Status    MessageStatus
	CreatedAt int64
	Extra     string // opaque JSON

	Revoked   bool
	RevokedAt int64
	RevokedBy int64

	IsDeleted bool
	Expires   bool
	ExpireAt  int64
}

// Reaction is a single emoji reaction attached to a message.
type Reaction struct {
	ID        uint64
	MessageID uint64
	UserID    int64
	Emoji     string
	CreatedAt int64
}

// Mention is a single @-mention extracted from a message body.
type Mention struct {
	ID        uint64
	MessageID uint64
	UserID    int64
}

// ReadReceipt records that a user has read up to a given pts in a channel.
type ReadReceipt struct {
	ChannelID   uint64
	ChannelType ChannelType
	UserID      int64
	ReadPts     uint64
	ReadAt      int64
}
