package transport

import "io"

// readFull reads exactly len(buf) bytes from r, the same length-prefixed
// framing helper shared by the stream-oriented transports (QUIC, TCP).
func readFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
