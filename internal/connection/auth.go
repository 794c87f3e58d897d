package connection

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/transport"
)

type authRequest struct {
	UserID     int64            `json:"user_id"`
	Token      string           `json:"token"`
	DeviceInfo model.DeviceInfo `json:"device_info"`
}

type authResponse struct {
	ErrorCode string `json:"error_code,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
}

// isAuthErrorCode reports whether code is one of the server error codes
// named in spec §4.2 that map to the Authentication kind; anything else is
// treated as Network.
func isAuthErrorCode(code string) bool {
	switch code {
	case "AuthRequired", "InvalidToken", "TokenExpired", "TokenRevoked":
		return true
	default:
		return false
	}
}

func (m *Manager) nextRequestID() uint64 {
	return atomic.AddUint64(&m.reqSeq, 1)
}

// Authenticate sends the auth handshake and, on success, records the
// session and transitions to Authenticated (spec §4.1). DeviceID must be
// stable across reconnects by the same logical device.
func (m *Manager) Authenticate(ctx context.Context, userID int64, token string, deviceID uuid.UUID, info model.DeviceInfo) error {
	if m.State() != model.Connected {
		return ierr.New(ierr.Disconnected, "connect() must succeed before authenticate()")
	}
	m.setState(model.Authenticating)

	payload, err := json.Marshal(authRequest{UserID: userID, Token: token, DeviceInfo: info})
	if err != nil {
		return ierr.Wrap(ierr.Generic, err, "encoding auth request")
	}

	reqID := m.nextRequestID()
	respCh := make(chan transport.Envelope, 1)
	m.pending.Store(reqID, respCh)
	defer m.pending.Delete(reqID)

	if err := m.SendEnvelope(ctx, transport.Envelope{RequestID: reqID, BizType: authBizType, Body: payload}); err != nil {
		m.setState(model.Disconnected)
		return err
	}

	select {
	case env := <-respCh:
		var resp authResponse
		if err := json.Unmarshal(env.Body, &resp); err != nil {
			m.setState(model.Disconnected)
			return ierr.Wrap(ierr.Generic, err, "decoding auth response")
		}
		if resp.ErrorCode != "" {
			m.setState(model.Disconnected)
			if isAuthErrorCode(resp.ErrorCode) {
				return ierr.New(ierr.Authentication, resp.ErrorCode)
			}
			return ierr.NewNetwork(0, resp.ErrorCode)
		}

		m.mu.Lock()
		m.session = &model.Session{
			UserID:     userID,
			Token:      token,
			DeviceID:   deviceID,
			DeviceInfo: info,
			ExpiresAt:  resp.ExpiresAt,
		}
		m.mu.Unlock()
		m.setState(model.Authenticated)
		return nil

	case <-time.After(30 * time.Second):
		m.setState(model.Disconnected)
		return ierr.NewTimeout(30*time.Second, "authenticate timed out")

	case <-ctx.Done():
		m.setState(model.Disconnected)
		return ierr.Wrap(ierr.Timeout, ctx.Err(), "authenticate cancelled")
	}
}
