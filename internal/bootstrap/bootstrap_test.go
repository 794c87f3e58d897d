package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/internal/sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCaller struct {
	failOnCall int // 1-indexed; 0 means never fail
	calls      int
}

func (f *fakeCaller) Call(context.Context, string, any, any) error {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return errors.New("rpc failed")
	}
	return nil
}

type fakeStore struct{}

func (fakeStore) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }
func (fakeStore) Put(context.Context, string, string, []byte) error         { return nil }
func (fakeStore) UpsertUser(context.Context, model.User) error              { return nil }
func (fakeStore) UpsertFriend(context.Context, model.Friend) error          { return nil }
func (fakeStore) UpsertGroup(context.Context, model.Group) error            { return nil }
func (fakeStore) UpsertGroupMember(context.Context, model.GroupMember) error { return nil }
func (fakeStore) UpsertUserBlock(context.Context, model.UserBlock) error    { return nil }
func (fakeStore) UpsertChannel(context.Context, model.Channel) error        { return nil }
func (fakeStore) SetUserSetting(context.Context, string, string) error      { return nil }

type fakeChannelStore struct{}

func (fakeChannelStore) GetChannel(context.Context, uint64, model.ChannelType) (*model.Channel, error) {
	return &model.Channel{}, nil
}
func (fakeChannelStore) SetChannelPts(context.Context, uint64, model.ChannelType, uint64) error {
	return nil
}

type fakeFlagStore struct {
	fakeStore
	channels []model.Channel
	puts     map[string][]byte
}

func (f *fakeFlagStore) ListChannels(context.Context) ([]model.Channel, error) { return f.channels, nil }
func (f *fakeFlagStore) Put(_ context.Context, bucket, key string, value []byte) error {
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[bucket+"/"+key] = value
	return nil
}
func (f *fakeFlagStore) Get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	v, ok := f.puts[bucket+"/"+key]
	return v, ok, nil
}

func newTestOrchestrator(caller *fakeCaller) (*Orchestrator, *fakeFlagStore) {
	flags := &fakeFlagStore{}
	pts := sync.NewPtsManager(fakeChannelStore{})
	entity := sync.NewEntityEngine(discardLogger(), caller, flags, fakeStore{})
	engine := sync.NewEngine(discardLogger(), caller, pts, sync.NewCommitApplier(discardLogger(), nil, pts, nil))
	return NewOrchestrator(discardLogger(), entity, engine, flags), flags
}

func TestRunSucceedsAndSetsCompletionFlag(t *testing.T) {
	o, flags := newTestOrchestrator(&fakeCaller{})

	require.NoError(t, o.Run(context.Background(), 7))
	require.Contains(t, flags.puts, bootstrapFlagBucket+"/"+bootstrapFlagKey(7))

	done, err := o.Completed(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, done)
}

func TestCompletedFalseBeforeRun(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeCaller{})

	done, err := o.Completed(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, done)
}

func TestRunAbortsOnFirstStageFailure(t *testing.T) {
	o, flags := newTestOrchestrator(&fakeCaller{failOnCall: 1})

	err := o.Run(context.Background(), 7)
	require.Error(t, err)
	require.NotContains(t, flags.puts, bootstrapFlagBucket+"/"+bootstrapFlagKey(7))
}
