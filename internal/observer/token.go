package observer

import "sync/atomic"

// Token is returned by Observe calls; Unobserve is idempotent on it (spec
// §4.9: first call after registration removes and returns true, every
// subsequent call returns false).
type Token uint64

var tokenSeq uint64

// nextToken returns a nonzero, process-unique token.
func nextToken() Token {
	return Token(atomic.AddUint64(&tokenSeq, 1))
}
