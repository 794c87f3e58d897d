package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// wsTransport implements [Transport] over github.com/gorilla/websocket
// (used server-side for inbound connections elsewhere; here it dials out
// instead of accepting).
//
// Envelope framing on the wire: a single binary message per envelope,
// [request_id:8][biz_type:4][body...]. This is an implementation detail,
// not part of the envelope contract itself.
type wsTransport struct {
	conn *websocket.Conn

	recvCh chan Envelope
	doneCh chan struct{}

	writeMu sync.Mutex
	once    sync.Once
}

func newWebSocketTransport() *wsTransport {
	return &wsTransport{
		recvCh: make(chan Envelope, 256),
		doneCh: make(chan struct{}),
	}
}

func (t *wsTransport) Connect(ctx context.Context, endpoint model.Endpoint) error {
	url := endpoint.String()
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return ierr.Wrap(ierr.Network, err, fmt.Sprintf("websocket dial %s failed", url))
	}
	t.conn = conn
	go t.readLoop()
	return nil
}

func (t *wsTransport) readLoop() {
	defer close(t.recvCh)
	defer t.signalDone()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		env, ok := decodeFrame(data)
		if !ok {
			continue
		}
		select {
		case t.recvCh <- env:
		case <-t.doneCh:
			return
		}
	}
}

func (t *wsTransport) Send(ctx context.Context, env Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, encodeFrame(env)); err != nil {
		return ierr.Wrap(ierr.Network, err, "websocket write failed")
	}
	return nil
}

func (t *wsTransport) Recv() <-chan Envelope          { return t.recvCh }
func (t *wsTransport) Disconnected() <-chan struct{} { return t.doneCh }

func (t *wsTransport) signalDone() {
	t.once.Do(func() { close(t.doneCh) })
}

func (t *wsTransport) Close() error {
	t.signalDone()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func encodeFrame(env Envelope) []byte {
	buf := make([]byte, 12+len(env.Body))
	binary.BigEndian.PutUint64(buf[0:8], env.RequestID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(env.BizType))
	copy(buf[12:], env.Body)
	return buf
}

func decodeFrame(data []byte) (Envelope, bool) {
	if len(data) < 12 {
		return Envelope{}, false
	}
	return Envelope{
		RequestID: binary.BigEndian.Uint64(data[0:8]),
		BizType:   int32(binary.BigEndian.Uint32(data[8:12])),
		Body:      data[12:],
	}, true
}
