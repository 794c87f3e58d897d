package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/quic-go/quic-go"
)

// quicTransport implements [Transport] over github.com/quic-go/quic-go,
// grounded in codeready-toolchain-tarsy's dependency on the same library.
// A single bidirectional stream carries length-prefixed envelope frames,
// opened once at connect time; QUIC's own multiplexing/congestion control
// replaces the need for the SDK to manage multiple streams.
type quicTransport struct {
	conn   *quic.Conn
	stream *quic.Stream

	recvCh chan Envelope
	doneCh chan struct{}

	writeMu sync.Mutex
	once    sync.Once
}

func newQUICTransport() *quicTransport {
	return &quicTransport{
		recvCh: make(chan Envelope, 256),
		doneCh: make(chan struct{}),
	}
}

func (t *quicTransport) Connect(ctx context.Context, endpoint model.Endpoint) error {
	addr := fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port)
	tlsConf := &tls.Config{
		NextProtos: []string{"privchat"},
		ServerName: endpoint.Host,
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return ierr.Wrap(ierr.Network, err, fmt.Sprintf("quic dial %s failed", addr))
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return ierr.Wrap(ierr.Network, err, "quic open stream failed")
	}
	t.conn = conn
	t.stream = stream
	go t.readLoop()
	return nil
}

func (t *quicTransport) readLoop() {
	defer close(t.recvCh)
	defer t.signalDone()

	lenBuf := make([]byte, 4)
	for {
		if _, err := readFull(t.stream, lenBuf); err != nil {
			return
		}
		size := beUint32(lenBuf)
		if size == 0 || size > maxFrameSize {
			return
		}
		body := make([]byte, size)
		if _, err := readFull(t.stream, body); err != nil {
			return
		}
		env, ok := decodeFrame(body)
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

func (t *quicTransport) Send(ctx context.Context, env Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	frame := encodeFrame(env)
	lenBuf := make([]byte, 4)
	putBeUint32(lenBuf, uint32(len(frame)))
	if _, err := t.stream.Write(lenBuf); err != nil {
		return ierr.Wrap(ierr.Network, err, "quic write length prefix failed")
	}
	if _, err := t.stream.Write(frame); err != nil {
		return ierr.Wrap(ierr.Network, err, "quic write frame failed")
	}
	return nil
}

func (t *quicTransport) Recv() <-chan Envelope          { return t.recvCh }
func (t *quicTransport) Disconnected() <-chan struct{} { return t.doneCh }

func (t *quicTransport) signalDone() {
	t.once.Do(func() { close(t.doneCh) })
}

func (t *quicTransport) Close() error {
	t.signalDone()
	if t.conn == nil {
		return nil
	}
	return t.conn.CloseWithError(0, "closed")
}

const maxFrameSize = 16 << 20

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
