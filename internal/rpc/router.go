// Package rpc implements the RPC Router (spec §4.2): typed remote calls
// correlated by request id, server error code mapping into the error
// taxonomy, and dispatch of unsolicited server pushes to the Receive
// Dispatcher. Uses the same request/response correlation shape as
// internal/connection's auth/heartbeat exchange (a oneshot channel keyed
// by request id), generalized here to every
// application route.
package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/transport"
)

// Sender is the subset of the Connection Manager the Router needs: submit
// an envelope over the single owned transport, and the connection state
// to reject calls made before authenticate (spec §8: "RPC on an
// unauthenticated session -> Disconnected").
type Sender interface {
	SendEnvelope(ctx context.Context, env transport.Envelope) error
	IsConnected() bool
	SubscribeState() (<-chan model.ConnState, func())
}

// envelopeError is the shape servers use to report a failed RPC; Code is
// the taxonomy mapping input (spec §4.2).
type envelopeError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

type wireResponse struct {
	Error   *envelopeError  `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Router correlates request ids to pending callers and routes unsolicited
// pushes to the Receive Dispatcher via PushHandler.
type Router struct {
	log     *slog.Logger
	sender  Sender
	timeout time.Duration

	mu      sync.Mutex
	reqSeq  uint64
	pending map[uint64]chan transport.Envelope

	pushHandler func(transport.Envelope)
}

// New constructs a Router. defaultTimeout caps every call (spec §4.2:
// default 30s); a caller context deadline that falls sooner shortens it.
func New(log *slog.Logger, sender Sender, defaultTimeout time.Duration) *Router {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Router{
		log:     log,
		sender:  sender,
		timeout: defaultTimeout,
		pending: make(map[uint64]chan transport.Envelope),
	}
}

// SetPushHandler registers the Receive Dispatcher's entrypoint for
// envelopes that carry no matching pending request id.
func (r *Router) SetPushHandler(h func(transport.Envelope)) { r.pushHandler = h }

// bizTypeOf derives a numeric classifier from a slash-separated route, a
// stable hash so both ends of the wire agree without a shared registry.
func bizTypeOf(route string) int32 {
	var h uint32 = 2166136261
	for i := 0; i < len(route); i++ {
		h ^= uint32(route[i])
		h *= 16777619
	}
	v := int32(h)
	if v < 0 {
		v = -v
	}
	return v
}

// Deliver feeds an inbound envelope to the Router. It returns true if the
// envelope completed a pending call; false means it was not claimed
// (either it is a push, in which case pushHandler is invoked, or its
// request id is unknown, e.g. a duplicate/late response).
func (r *Router) Deliver(env transport.Envelope) bool {
	if env.IsPush() {
		if r.pushHandler != nil {
			r.pushHandler(env)
		}
		return false
	}
	r.mu.Lock()
	ch, ok := r.pending[env.RequestID]
	if ok {
		delete(r.pending, env.RequestID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}

// Call issues an RPC over route with payload, correlates the response by
// request id, and unmarshals the payload into out (nil is permitted for
// calls with no meaningful response body).
func (r *Router) Call(ctx context.Context, route string, payload any, out any) error {
	if !r.sender.IsConnected() {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ierr.Wrap(ierr.Generic, err, "encoding RPC payload")
	}

	r.mu.Lock()
	r.reqSeq++
	reqID := r.reqSeq
	respCh := make(chan transport.Envelope, 1)
	r.pending[reqID] = respCh
	r.mu.Unlock()

	cleanup := func() {
		r.mu.Lock()
		delete(r.pending, reqID)
		r.mu.Unlock()
	}

	env := transport.Envelope{RequestID: reqID, BizType: bizTypeOf(route), Body: body}
	if err := r.sender.SendEnvelope(ctx, env); err != nil {
		cleanup()
		return err
	}

	timeout := r.timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		var wr wireResponse
		if err := json.Unmarshal(resp.Body, &wr); err != nil {
			return ierr.Wrap(ierr.Generic, err, "decoding RPC response")
		}
		if wr.Error != nil {
			return mapServerError(wr.Error.Code, wr.Error.Message)
		}
		if out != nil && len(wr.Payload) > 0 {
			if err := json.Unmarshal(wr.Payload, out); err != nil {
				return ierr.Wrap(ierr.Generic, err, "decoding RPC payload")
			}
		}
		return nil

	case <-timer.C:
		cleanup()
		return ierr.NewTimeout(timeout, "rpc "+route+" timed out")

	case <-ctx.Done():
		cleanup()
		return ierr.Wrap(ierr.Timeout, ctx.Err(), "rpc "+route+" cancelled")
	}
}

// CancelAll completes every pending call with Disconnected (spec §8: "Disconnect
// cancels every pending RPC with Disconnected within the next scheduler tick.").
func (r *Router) CancelAll() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uint64]chan transport.Envelope)
	r.mu.Unlock()

	disconnected := ierr.New(ierr.Disconnected, "connection closed")
	for _, ch := range pending {
		env := transport.Envelope{Body: mustJSON(wireResponse{Error: &envelopeError{Code: "Disconnected", Message: disconnected.Error()}})}
		ch <- env
	}
}

// RunCancelOnDisconnect subscribes to the Sender's connection state stream
// and calls CancelAll whenever the connection drops, satisfying the
// inversion-of-control pattern in spec §9 (no direct reference from
// Connection Manager into Router).
func (r *Router) RunCancelOnDisconnect(ctx context.Context) {
	states, unsubscribe := r.sender.SubscribeState()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				if st == model.Disconnected || st == model.Reconnecting || st == model.Failed {
					r.CancelAll()
				}
			}
		}
	}()
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// mapServerError implements the error-code mapping table in spec §4.2.
func mapServerError(code, message string) error {
	switch code {
	case "AuthRequired", "InvalidToken", "TokenExpired", "TokenRevoked":
		return ierr.New(ierr.Authentication, message)
	case "InvalidParams", "MissingRequiredParam", "InvalidParamType":
		return ierr.NewInvalidParameter(strings.ToLower(code), message)
	case "NetworkError", "Timeout":
		return ierr.New(ierr.Network, message)
	case "Disconnected":
		return ierr.New(ierr.Disconnected, message)
	default:
		return ierr.NewNetwork(0, code+": "+message)
	}
}
