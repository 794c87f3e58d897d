// Package lifecycle implements the Lifecycle Manager (spec §4, L1): fan-out
// of foreground/background app transitions to registered hooks, using the
// same golang.org/x/sync/errgroup concurrent-fan-out-with-shared-error
// shape a concurrent peer-resolution routine would, re-purposed here from
// "resolve N peers concurrently" to "notify N hooks
// concurrently, keep going on a single hook's error".
package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Hook is a registered lifecycle collaborator (spec §9 "platform-specific
// app lifecycle hooks... only the hook interface is specified").
type Hook interface {
	OnForeground(ctx context.Context) error
	OnBackground(ctx context.Context) error
}

// Manager fans foreground/background transitions out to every registered
// hook. Hooks run concurrently and the caller returns once every hook has
// returned; a single hook's error is logged and does not prevent the
// others from running (the app cannot "half" come to the foreground).
type Manager struct {
	log *slog.Logger

	mu    sync.RWMutex
	hooks []Hook
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{log: log}
}

// Register adds a hook to the fan-out set.
func (m *Manager) Register(h Hook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

func (m *Manager) snapshot() []Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Hook(nil), m.hooks...)
}

// OnAppForeground implements spec §8 scenario 6's on_app_foreground call.
func (m *Manager) OnAppForeground(ctx context.Context) {
	m.fanOut(ctx, "foreground", func(ctx context.Context, h Hook) error { return h.OnForeground(ctx) })
}

// OnAppBackground implements spec §8 scenario 6's on_app_background call.
func (m *Manager) OnAppBackground(ctx context.Context) {
	m.fanOut(ctx, "background", func(ctx context.Context, h Hook) error { return h.OnBackground(ctx) })
}

func (m *Manager) fanOut(ctx context.Context, transition string, call func(context.Context, Hook) error) {
	hooks := m.snapshot()
	if len(hooks) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hooks {
		h := h
		g.Go(func() error {
			if err := call(gctx, h); err != nil {
				m.log.Warn("lifecycle hook failed", slog.String("transition", transition), slog.Any("err", err))
			}
			return nil // a single hook's failure never aborts the others
		})
	}
	_ = g.Wait()
}
