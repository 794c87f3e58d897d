// Package transport abstracts the three wire protocols the Connection
// Manager can dial (spec §4.1): QUIC, TCP, and WebSocket. It is deliberately
// thin — connect, send an envelope, receive an envelope, report connection
// loss — leaving framing and protocol-specific detail to each
// implementation file, grounded in the concrete transports the example
// corpus actually imports (gorilla/websocket, quic-go/quic-go); plain TCP
// has no third-party framing library anywhere in the corpus, so it is
// built directly on net.Conn (see DESIGN.md).
package transport

import (
	"context"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
)

// Transport is the pluggable wire protocol contract. Implementations are
// not expected to be safe for concurrent Send calls from multiple
// goroutines without their own internal serialization (spec §5: "the
// transport's own write serialization").
type Transport interface {
	// Connect dials endpoint, performing any protocol-level handshake
	// (TLS, QUIC 0-RTT negotiation, WS upgrade) but not the SDK's own
	// authentication handshake.
	Connect(ctx context.Context, endpoint model.Endpoint) error
	// Send writes env to the wire. Safe to call concurrently with Recv.
	Send(ctx context.Context, env Envelope) error
	// Recv returns a channel of inbound envelopes; it is closed when the
	// transport observes the connection end (graceful or not).
	Recv() <-chan Envelope
	// Disconnected yields a channel that closes exactly once, when the
	// transport detects the connection is no longer usable.
	Disconnected() <-chan struct{}
	// Close tears the transport down; idempotent.
	Close() error
}

// Dial selects and connects the concrete Transport implementation for
// endpoint.Protocol.
func Dial(ctx context.Context, endpoint model.Endpoint) (Transport, error) {
	var t Transport
	switch endpoint.Protocol {
	case model.ProtocolWebSocket:
		t = newWebSocketTransport()
	case model.ProtocolQUIC:
		t = newQUICTransport()
	case model.ProtocolTCP:
		t = newTCPTransport()
	default:
		t = newTCPTransport()
	}
	if err := t.Connect(ctx, endpoint); err != nil {
		return nil, err
	}
	return t, nil
}
