// Package connection implements the Connection Manager (spec §4.1): single
// live transport session, endpoint failover, authentication handshake,
// heartbeat. Uses the same guarded-lifecycle shape as a pooled connection
// registry (sync.Once close guard, atomic activity timestamp), extended
// with github.com/sony/gobreaker (a direct
// dependency) to avoid repeatedly retrying an endpoint that just failed.
package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/transport"
	"github.com/sony/gobreaker"
)

// Config configures endpoint iteration and liveness checking.
type Config struct {
	Endpoints         []model.Endpoint
	ConnectTimeout    time.Duration // default 10s, spec §4.1
	HeartbeatInterval time.Duration // default 30s, spec §4.1
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// heartbeatBizType and authBizType are reserved biz_type values for the
// SDK's own control-plane envelopes, distinct from application routes.
const (
	heartbeatBizType int32 = -1
	authBizType      int32 = -2
)

// Manager owns the single live Transport handle (spec §3 ownership rule)
// and the connection state machine.
type Manager struct {
	log *slog.Logger
	cfg Config

	mu        sync.RWMutex
	state     model.ConnState
	tr        transport.Transport
	session   *model.Session
	endpoints []model.Endpoint

	breakers map[string]*gobreaker.CircuitBreaker

	states *stateStream

	lastPongUnix int64

	stopHeartbeat chan struct{}
	pending       sync.Map // requestID uint64 -> chan transport.Envelope
	reqSeq        uint64
	inbound       chan transport.Envelope
}

func NewManager(log *slog.Logger, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		log:      log,
		cfg:      cfg,
		state:    model.Disconnected,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		states:   newStateStream(),
		inbound:  make(chan transport.Envelope, 512),
	}
}

// State returns the current connection state (spec §4.1 is_connected, plus
// richer state for the push-hook's device-id lookup per SPEC_FULL.md).
func (m *Manager) State() model.ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) IsConnected() bool { return m.State() == model.Authenticated }

// Session returns the current session, or nil if unauthenticated.
func (m *Manager) Session() *model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// SubscribeState lets collaborators (Send Queue) observe transitions
// without the Connection Manager holding a reference to them (spec §9
// inversion-of-control design note).
func (m *Manager) SubscribeState() (<-chan model.ConnState, func()) {
	return m.states.Subscribe()
}

func (m *Manager) setState(s model.ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.states.publish(s)
}

func (m *Manager) breakerFor(ep model.Endpoint) *gobreaker.CircuitBreaker {
	key := ep.String()
	if b, ok := m.breakers[key]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	m.breakers[key] = b
	return b
}

// Connect iterates endpoints in order; the first successful
// handshake wins and remaining endpoints are not tried (spec §4.1). An
// empty list is InvalidParameter{field:"endpoints"} (spec §8 boundary).
func (m *Manager) Connect(ctx context.Context, endpoints []model.Endpoint) error {
	if len(endpoints) == 0 {
		return ierr.NewInvalidParameter("endpoints", "endpoint list must not be empty")
	}
	m.endpoints = endpoints
	m.setState(model.Connecting)

	var lastErr error
	for _, ep := range endpoints {
		breaker := m.breakerFor(ep)
		result, err := breaker.Execute(func() (any, error) {
			dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
			defer cancel()
			return transport.Dial(dialCtx, ep)
		})
		if err != nil {
			lastErr = err
			m.log.Warn("endpoint dial failed", slog.String("endpoint", ep.String()), slog.Any("err", err))
			continue
		}

		m.mu.Lock()
		m.tr = result.(transport.Transport)
		m.mu.Unlock()

		m.setState(model.Connected)
		go m.readLoop()
		m.startHeartbeat()
		return nil
	}

	m.setState(model.Disconnected)
	if lastErr == nil {
		lastErr = ierr.New(ierr.Network, "all endpoints refused")
	}
	return lastErr
}

// SendEnvelope implements rpc.Sender, letting the RPC Router write through
// the Connection Manager's owned transport without owning it.
func (m *Manager) SendEnvelope(ctx context.Context, env transport.Envelope) error {
	m.mu.RLock()
	tr := m.tr
	connected := m.state == model.Authenticated || m.state == model.Authenticating
	m.mu.RUnlock()
	if tr == nil || !connected {
		return ierr.New(ierr.Disconnected, "no active transport")
	}
	return tr.Send(ctx, env)
}

// RawEnvelopes exposes the inbound stream for the Receive Dispatcher.
// Control-plane envelopes (heartbeat pong, auth response) are consumed
// internally and never forwarded here.
func (m *Manager) RawEnvelopes() <-chan transport.Envelope { return m.inbound }

func (m *Manager) readLoop() {
	m.mu.RLock()
	tr := m.tr
	m.mu.RUnlock()
	if tr == nil {
		return
	}
	for {
		select {
		case env, ok := <-tr.Recv():
			if !ok {
				m.onTransportLost()
				return
			}
			m.routeInbound(env)
		case <-tr.Disconnected():
			m.onTransportLost()
			return
		}
	}
}

func (m *Manager) routeInbound(env transport.Envelope) {
	switch env.BizType {
	case heartbeatBizType:
		atomic.StoreInt64(&m.lastPongUnix, time.Now().Unix())
		return
	case authBizType:
		if ch, ok := m.pending.LoadAndDelete(env.RequestID); ok {
			ch.(chan transport.Envelope) <- env
		}
		return
	}
	if ch, ok := m.pending.Load(env.RequestID); ok && !env.IsPush() {
		m.pending.Delete(env.RequestID)
		ch.(chan transport.Envelope) <- env
		return
	}
	select {
	case m.inbound <- env:
	default:
		m.log.Warn("dropping inbound envelope, dispatcher not keeping up", slog.Int("biz_type", int(env.BizType)))
	}
}

func (m *Manager) onTransportLost() {
	m.mu.Lock()
	alreadyDown := m.state == model.Disconnected || m.state == model.Reconnecting
	m.mu.Unlock()
	if alreadyDown {
		return
	}
	m.log.Warn("transport connection lost")
	m.setState(model.Reconnecting)
	m.stopHeartbeatLoop()
}

// Disconnect performs a graceful close and releases worker tasks owned by
// the Send Queue via the broadcast state transition (spec §4.1).
func (m *Manager) Disconnect(reason string) error {
	m.stopHeartbeatLoop()
	m.mu.Lock()
	tr := m.tr
	m.tr = nil
	m.session = nil
	m.mu.Unlock()

	m.setState(model.Disconnected)
	m.pending.Range(func(key, value any) bool {
		m.pending.Delete(key)
		close(value.(chan transport.Envelope))
		return true
	})

	if tr == nil {
		return nil
	}
	m.log.Info("disconnecting", slog.String("reason", reason))
	return tr.Close()
}
