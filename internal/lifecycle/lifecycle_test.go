package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingHook struct {
	fg, bg int32
	failFG bool
}

func (h *countingHook) OnForeground(context.Context) error {
	atomic.AddInt32(&h.fg, 1)
	if h.failFG {
		return errBoom
	}
	return nil
}

func (h *countingHook) OnBackground(context.Context) error {
	atomic.AddInt32(&h.bg, 1)
	return nil
}

var errBoom = &stubErr{"boom"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnAppForegroundCallsEveryHook(t *testing.T) {
	m := NewManager(discardLogger())
	h1, h2 := &countingHook{}, &countingHook{}
	m.Register(h1)
	m.Register(h2)

	m.OnAppForeground(context.Background())

	require.EqualValues(t, 1, h1.fg)
	require.EqualValues(t, 1, h2.fg)
}

func TestOnAppBackgroundCallsEveryHook(t *testing.T) {
	m := NewManager(discardLogger())
	h1, h2 := &countingHook{}, &countingHook{}
	m.Register(h1)
	m.Register(h2)

	m.OnAppBackground(context.Background())

	require.EqualValues(t, 1, h1.bg)
	require.EqualValues(t, 1, h2.bg)
}

func TestHookFailureDoesNotStopOtherHooks(t *testing.T) {
	m := NewManager(discardLogger())
	failing := &countingHook{failFG: true}
	ok := &countingHook{}
	m.Register(failing)
	m.Register(ok)

	m.OnAppForeground(context.Background())

	require.EqualValues(t, 1, failing.fg)
	require.EqualValues(t, 1, ok.fg)
}
