package lifecycle

import (
	"context"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
)

// Caller is the subset of *rpc.Router the push hook needs.
type Caller interface {
	Call(ctx context.Context, route string, payload any, out any) error
}

// SessionSource is the subset of *connection.Manager the push hook needs
// to discover the current device id (spec §9 "connection state
// snapshot... is how PushLifecycleHook in original_source discovers the
// current device id").
type SessionSource interface {
	Session() *model.Session
	IsConnected() bool
}

type updatePushStateRequest struct {
	DeviceID  string `json:"device_id"`
	ApnsArmed bool   `json:"apns_armed"`
}

// PushHook is the self-registering lifecycle Hook that calls
// device/update_push_state on background/foreground (spec §6 route
// table, §8 scenario 6, §9 "Push lifecycle hook auto-registration").
// It is best-effort: a disconnected transport makes it a no-op success,
// not an error, per spec §8 scenario 6's closing sentence.
type PushHook struct {
	caller  Caller
	session SessionSource
}

func NewPushHook(caller Caller, session SessionSource) *PushHook {
	return &PushHook{caller: caller, session: session}
}

func (h *PushHook) OnForeground(ctx context.Context) error { return h.setArmed(ctx, false) }
func (h *PushHook) OnBackground(ctx context.Context) error { return h.setArmed(ctx, true) }

func (h *PushHook) setArmed(ctx context.Context, armed bool) error {
	if !h.session.IsConnected() {
		return nil // best-effort: no side effect, not a failure
	}
	sess := h.session.Session()
	if sess == nil {
		return nil
	}
	return h.caller.Call(ctx, "device/update_push_state",
		updatePushStateRequest{DeviceID: sess.DeviceID.String(), ApnsArmed: armed}, nil)
}
