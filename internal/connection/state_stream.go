package connection

import (
	"sync"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
)

// stateStream is the inversion-of-control seam described in SPEC_FULL.md /
// spec.md §9: rather than the Connection Manager holding a direct reference
// to the Send Queue (which would create a cycle — the Send Queue also
// needs the transport the Connection Manager owns), the Connection Manager
// exposes this observable stream and the Send Queue subscribes to it.
// Neither owns the other.
type stateStream struct {
	mu        sync.Mutex
	listeners map[int]chan model.ConnState
	seq       int
}

func newStateStream() *stateStream {
	return &stateStream{listeners: make(map[int]chan model.ConnState)}
}

// Subscribe returns a channel of every subsequent state transition and an
// unsubscribe function. The channel is buffered; a slow subscriber misses
// intermediate states but always sees the latest one eventually enqueued.
func (s *stateStream) Subscribe() (<-chan model.ConnState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.seq
	s.seq++
	ch := make(chan model.ConnState, 8)
	s.listeners[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.listeners[id]; ok {
			delete(s.listeners, id)
			close(c)
		}
	}
}

func (s *stateStream) publish(state model.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- state:
		default:
			// drop for a saturated subscriber; it will observe the next
			// transition instead.
		}
	}
}
