package storage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), slog.Default(), Config{
		DataRoot:     t.TempDir(),
		UserID:       42,
		MasterSecret: []byte("test-master-secret"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := openTestStore(t)
	require.NotNil(t, s.db)
}

func TestKVPutGetDeleteListPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "queue", "a", []byte("1")))
	require.NoError(t, s.Put(ctx, "queue", "b", []byte("2")))

	v, ok, err := s.Get(ctx, "queue", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	entries, err := s.ListPrefix(ctx, "queue", "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.Delete(ctx, "queue", "a"))
	_, ok, err = s.Get(ctx, "queue", "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMessageInsertRoundTripsAndDedupsByLocalID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := model.Message{
		LocalMessageID: 100,
		FromUID:        7,
		ChannelID:      1001,
		ChannelType:    model.ChannelDirect,
		Content:        "hello there",
		MessageType:    "text",
		Pts:            1,
		OrderSeq:       1,
		CreatedAt:      1000,
	}

	id, ok, err := s.InsertMessage(ctx, m)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotZero(t, id)

	// Duplicate echo with the same local_message_id is a no-op insert.
	_, ok, err = s.InsertMessage(ctx, m)
	require.NoError(t, err)
	require.False(t, ok)

	found, err := s.FindByChannelAndLocalID(ctx, 1001, 7, 100)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "hello there", found.Content)

	msgs, err := s.ListByChannel(ctx, 1001, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestChannelUpsertAndPts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := model.Channel{ChannelID: 1001, ChannelType: model.ChannelDirect, DisplayName: "Alice"}
	require.NoError(t, s.UpsertChannel(ctx, c))
	require.NoError(t, s.SetChannelPts(ctx, 1001, model.ChannelDirect, 13))

	got, err := s.GetChannel(ctx, 1001, model.ChannelDirect)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.EqualValues(t, 13, got.LastMsgPts)
}

func TestUpsertUserIgnoresStaleVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 5, Version: 2, Nickname: "v2"}))
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 5, Version: 1, Nickname: "v1-stale"}))

	row := s.db.QueryRowContext(ctx, `SELECT nickname FROM user WHERE user_id = 5`)
	var nickname string
	require.NoError(t, row.Scan(&nickname))
	require.Equal(t, "v2", nickname)
}
