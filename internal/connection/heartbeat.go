package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/internal/transport"
)

func pingEnvelope() transport.Envelope {
	return transport.Envelope{BizType: heartbeatBizType}
}

// startHeartbeat issues a ping at cfg.HeartbeatInterval; absence of a pong
// for 2x the interval transitions to Reconnecting and restarts endpoint
// iteration (spec §4.1).
func (m *Manager) startHeartbeat() {
	m.stopHeartbeat = make(chan struct{})
	atomic.StoreInt64(&m.lastPongUnix, time.Now().Unix())

	go func() {
		ticker := time.NewTicker(m.cfg.HeartbeatInterval)
		defer ticker.Stop()
		stop := m.stopHeartbeat

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = m.SendEnvelope(context.Background(), pingEnvelope())

				lastPong := time.Unix(atomic.LoadInt64(&m.lastPongUnix), 0)
				if time.Since(lastPong) > 2*m.cfg.HeartbeatInterval {
					m.log.Warn("heartbeat timeout, reconnecting")
					m.reconnect()
					return
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLoop() {
	if m.stopHeartbeat != nil {
		close(m.stopHeartbeat)
		m.stopHeartbeat = nil
	}
}

func (m *Manager) reconnect() {
	m.setState(model.Reconnecting)
	m.mu.RLock()
	endpoints := m.endpoints
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout*time.Duration(len(endpoints)+1))
	defer cancel()
	if err := m.Connect(ctx, endpoints); err != nil {
		m.log.Error("reconnect failed", slog.Any("err", err))
		m.setState(model.Failed)
	}
}
