package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// tcpTransport implements [Transport] directly on net.Conn. No repo in
// the retrieval pack carries a third-party TCP framing library — gorilla
// and quic-go cover WebSocket and QUIC respectively, but plain TCP framing
// is a one-function concern (a length prefix) that every pack repo that
// touches raw sockets also just writes by hand. Built on the standard
// library net/crypto-tls packages; see DESIGN.md.
type tcpTransport struct {
	conn net.Conn

	recvCh chan Envelope
	doneCh chan struct{}

	writeMu sync.Mutex
	once    sync.Once
}

func newTCPTransport() *tcpTransport {
	return &tcpTransport{
		recvCh: make(chan Envelope, 256),
		doneCh: make(chan struct{}),
	}
}

func (t *tcpTransport) Connect(ctx context.Context, endpoint model.Endpoint) error {
	addr := fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port)
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ierr.Wrap(ierr.Network, err, fmt.Sprintf("tcp dial %s failed", addr))
	}
	if endpoint.UseTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: endpoint.Host})
	}
	t.conn = conn
	go t.readLoop()
	return nil
}

func (t *tcpTransport) readLoop() {
	defer close(t.recvCh)
	defer t.signalDone()

	lenBuf := make([]byte, 4)
	for {
		if _, err := readFull(t.conn, lenBuf); err != nil {
			return
		}
		size := beUint32(lenBuf)
		if size == 0 || size > maxFrameSize {
			return
		}
		body := make([]byte, size)
		if _, err := readFull(t.conn, body); err != nil {
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

func (t *tcpTransport) Send(ctx context.Context, env Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	frame := encodeFrame(env)
	lenBuf := make([]byte, 4)
	putBeUint32(lenBuf, uint32(len(frame)))
	if _, err := t.conn.Write(lenBuf); err != nil {
		return ierr.Wrap(ierr.Network, err, "tcp write length prefix failed")
	}
	if _, err := t.conn.Write(frame); err != nil {
		return ierr.Wrap(ierr.Network, err, "tcp write frame failed")
	}
	return nil
}

func (t *tcpTransport) Recv() <-chan Envelope          { return t.recvCh }
func (t *tcpTransport) Disconnected() <-chan struct{} { return t.doneCh }

func (t *tcpTransport) signalDone() {
	t.once.Do(func() { close(t.doneCh) })
}

func (t *tcpTransport) Close() error {
	t.signalDone()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
