package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/internal/observer"
	"github.com/privchat/privchat-sdk-go/internal/presence"
	"github.com/privchat/privchat-sdk-go/internal/rpc"
	"github.com/privchat/privchat-sdk-go/internal/sync"
	"github.com/privchat/privchat-sdk-go/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChannelStore struct {
	pts map[uint64]uint64
}

func (f *fakeChannelStore) GetChannel(_ context.Context, channelID uint64, _ model.ChannelType) (*model.Channel, error) {
	return &model.Channel{ChannelID: channelID, LastMsgPts: f.pts[channelID]}, nil
}
func (f *fakeChannelStore) SetChannelPts(_ context.Context, channelID uint64, _ model.ChannelType, pts uint64) error {
	f.pts[channelID] = pts
	return nil
}

type fakeMessageStore struct{}

func (fakeMessageStore) InsertMessage(context.Context, model.Message) (uint64, bool, error) {
	return 1, true, nil
}
func (fakeMessageStore) FindByChannelAndServerMsgID(context.Context, uint64, uint64) (*model.Message, error) {
	return nil, nil
}
func (fakeMessageStore) MarkRevoked(context.Context, uint64, int64, int64) error { return nil }
func (fakeMessageStore) SoftDelete(context.Context, uint64) error                { return nil }
func (fakeMessageStore) UpdateContent(context.Context, uint64, string) error     { return nil }
func (fakeMessageStore) InsertReaction(context.Context, model.Reaction) error    { return nil }

type noopPublisher struct{}

func (noopPublisher) PublishTimeline(uint64, observer.TimelineEvent) {}

type fakeCaller struct{}

func (fakeCaller) Call(context.Context, string, any, any) error { return nil }

func newTestDispatcher() (*Dispatcher, *fakeChannelStore) {
	store := &fakeChannelStore{pts: map[uint64]uint64{}}
	pts := sync.NewPtsManager(store)
	applier := sync.NewCommitApplier(discardLogger(), fakeMessageStore{}, pts, noopPublisher{})
	engine := sync.NewEngine(discardLogger(), fakeCaller{}, pts, applier)
	presenceMgr := presence.NewManager(discardLogger(), presence.Config{Caller: fakeCaller{}})
	typingMgr := presence.NewTypingManager(presence.TypingConfig{})
	return New(discardLogger(), engine, presenceMgr, typingMgr), store
}

func TestHandleCommitDedupsBySeenKey(t *testing.T) {
	d, store := newTestDispatcher()
	store.pts[7] = 0

	body, err := json.Marshal(model.Commit{ChannelID: 7, ServerMsgID: 1, Pts: 1, MessageType: model.CommitText})
	require.NoError(t, err)
	env := transport.Envelope{BizType: rpc.PushBizTypeCommit, Body: body}

	d.Handle(env)
	d.Handle(env)
	require.Equal(t, uint64(1), store.pts[7])
}

func TestHandleSystemFansOutToListeners(t *testing.T) {
	d, _ := newTestDispatcher()
	var got json.RawMessage
	d.OnSystemEvent(func(b json.RawMessage) { got = b })

	env := transport.Envelope{BizType: -99, Body: []byte(`{"kind":"maintenance"}`)}
	d.Handle(env)
	require.JSONEq(t, `{"kind":"maintenance"}`, string(got))
}

func TestHandlePresenceRoutesToManager(t *testing.T) {
	d, _ := newTestDispatcher()

	var got presence.Entry
	d.presenceMgr.OnPresenceChanged(func(e presence.Entry) { got = e })

	body, err := json.Marshal(presence.OnlineStatusChangeNotification{UserID: 42, Status: presence.StatusOnline, LastSeen: 1, Devices: 1})
	require.NoError(t, err)

	d.Handle(transport.Envelope{BizType: rpc.PushBizTypePresence, Body: body})
	require.Equal(t, int64(42), got.UserID)
}

func TestHandleTypingRoutesToManager(t *testing.T) {
	d, _ := newTestDispatcher()

	var got presence.TypingEvent
	d.typingMgr.OnTyping(func(ev presence.TypingEvent) { got = ev })

	body, err := json.Marshal(struct {
		ChannelID uint64                `json:"channel_id"`
		UserID    int64                 `json:"user_id"`
		Action    presence.TypingAction `json:"action"`
	}{ChannelID: 5, UserID: 9, Action: presence.TypingStart})
	require.NoError(t, err)

	d.Handle(transport.Envelope{BizType: rpc.PushBizTypeTyping, Body: body})
	require.Equal(t, uint64(5), got.ChannelID)
	require.Equal(t, presence.TypingStart, got.Action)
}
