package model

import "github.com/google/uuid"

// Session is the bearer-token identity established by authenticate and
// invalidated on disconnect or TokenExpired.
type Session struct {
	UserID   int64
	Token    string
	DeviceID uuid.UUID
	// [STABILITY] DeviceID must remain stable across reconnects by the
	// same logical device; callers are expected to persist and reuse it.
	DeviceInfo DeviceInfo
	ExpiresAt  int64
}

type DeviceInfo struct {
	Platform string
	Model    string
	AppVer   string
}

// ConnState is the Connection Manager's state machine (spec §4.1).
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Authenticating
	Authenticated
	Reconnecting
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanSend reports whether the state machine permits send/RPC traffic.
// Only Authenticated does, per spec §4.1.
func (s ConnState) CanSend() bool { return s == Authenticated }
