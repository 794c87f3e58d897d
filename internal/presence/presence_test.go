package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCaller struct {
	lastRoute string
	lastReq   any
	err       error
}

func (f *fakeCaller) Call(_ context.Context, route string, payload any, _ any) error {
	f.lastRoute, f.lastReq = route, payload
	return f.err
}

func TestSubscribeRejectsEmptyList(t *testing.T) {
	caller := &fakeCaller{}
	m := NewManager(discardLogger(), Config{Caller: caller})
	defer m.Shutdown()

	err := m.Subscribe(context.Background(), nil)
	require.Error(t, err)
	require.Empty(t, caller.lastRoute)
}

func TestSubscribeCallsPresenceRoute(t *testing.T) {
	caller := &fakeCaller{}
	m := NewManager(discardLogger(), Config{Caller: caller})
	defer m.Shutdown()

	require.NoError(t, m.Subscribe(context.Background(), []int64{1, 2, 3}))
	require.Equal(t, "presence/subscribe", caller.lastRoute)
}

func TestHandleNotificationUpdatesCacheAndFansOut(t *testing.T) {
	m := NewManager(discardLogger(), Config{Caller: &fakeCaller{}})
	defer m.Shutdown()

	var got Entry
	m.OnPresenceChanged(func(e Entry) { got = e })

	m.HandleNotification(OnlineStatusChangeNotification{UserID: 42, Status: StatusOnline, LastSeen: 100, Devices: 2})

	entry, ok := m.Get(42)
	require.True(t, ok)
	require.Equal(t, StatusOnline, entry.Status)
	require.Equal(t, int64(42), got.UserID)
}

func TestGetMissingUser(t *testing.T) {
	m := NewManager(discardLogger(), Config{Caller: &fakeCaller{}})
	defer m.Shutdown()

	_, ok := m.Get(999)
	require.False(t, ok)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "online", StatusOnline.String())
	require.Equal(t, "offline", StatusOffline.String())
}

func TestTypingDebounce(t *testing.T) {
	tm := NewTypingManager(TypingConfig{DebounceWindow: 3 * time.Second, AutoClear: 5 * time.Second})

	base := time.Unix(1000, 0)
	require.True(t, tm.StartTyping(7, base))
	require.False(t, tm.StartTyping(7, base.Add(1*time.Second)))
	require.True(t, tm.StartTyping(7, base.Add(4*time.Second)))
}

func TestTypingAutoClearAnchorsToFirstStart(t *testing.T) {
	tm := NewTypingManager(TypingConfig{DebounceWindow: 3 * time.Second, AutoClear: 5 * time.Second})

	base := time.Unix(1000, 0)
	require.True(t, tm.StartTyping(7, base))
	require.True(t, tm.StartTyping(7, base.Add(4*time.Second)))

	// Auto-clear must anchor to the original start (base), not slide
	// forward to the refresh at t=4. By t=5.5 the channel should already
	// have been evicted and treated as a fresh start, not still
	// debounce-suppressed out to t=9.
	require.True(t, tm.StartTyping(7, base.Add(5500*time.Millisecond)))
}

func TestTypingClearResetsDebounce(t *testing.T) {
	tm := NewTypingManager(TypingConfig{})
	base := time.Now()

	require.True(t, tm.StartTyping(1, base))
	tm.Clear(1)
	require.True(t, tm.StartTyping(1, base.Add(time.Millisecond)))
}

func TestTypingHandleNotificationFansOut(t *testing.T) {
	tm := NewTypingManager(TypingConfig{})
	var got TypingEvent
	tm.OnTyping(func(ev TypingEvent) { got = ev })

	tm.HandleNotification(TypingEvent{ChannelID: 5, UserID: 9, Action: TypingStart})
	require.Equal(t, uint64(5), got.ChannelID)
	require.Equal(t, TypingStart, got.Action)
}
