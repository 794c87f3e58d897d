// Package observer implements the two observable streams the SDK exposes
// to its consumer (spec §4.9), adapted from a Hub/Cell actor mailbox
// shape. In its original server-side use the Hub fanned events out to
// many remote users' gRPC streams; here a single
// SDK instance fans diff events out to in-process callbacks registered by
// one local consumer, keyed by channel instead of by user.
package observer

import "github.com/privchat/privchat-sdk-go/internal/domain/model"

// DiffKind is the shape of a Timeline diff event (spec §4.9).
type DiffKind int32

const (
	DiffReset DiffKind = iota
	DiffAppend
	DiffUpdateByItemID
	DiffRemoveByItemID
	DiffError
)

// TimelineEvent is delivered to a Timeline observer.
type TimelineEvent struct {
	Kind   DiffKind
	Items  []model.Message // meaningful for Reset/Append
	ItemID uint64          // meaningful for UpdateByItemID (single item in Items) / RemoveByItemID
	Err    string          // meaningful for DiffError
}

// ChannelListDiffKind is the shape of a channel-list diff event.
type ChannelListDiffKind int32

const (
	ChannelListReset ChannelListDiffKind = iota
	ChannelListUpdate
)

// ChannelListEvent is delivered to a channel-list observer.
type ChannelListEvent struct {
	Kind  ChannelListDiffKind
	Items []model.Channel // meaningful for Reset
	Item  model.Channel   // meaningful for Update
}

// TimelineCallback receives Timeline diff events for one channel.
type TimelineCallback func(TimelineEvent)

// ChannelListCallback receives channel-list diff events.
type ChannelListCallback func(ChannelListEvent)
