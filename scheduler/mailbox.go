package scheduler

import (
	"sync"

	mandel "github.com/marben/mandel_explorer"
)

// mailbox is a single slot subscriber queue: a surface that was not received
// yet is replaced by a newer one.
type mailbox struct {
	mu     sync.Mutex
	ch     chan *mandel.Surface
	drops  uint64
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan *mandel.Surface, 1)}
}

// put never blocks. put is the only sender, so after draining the slot the
// send below always finds room.
func (m *mailbox) put(s *mandel.Surface) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	select {
	case <-m.ch:
		m.drops++
	default:
	}
	m.ch <- s
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// subscribers is the set of mailboxes surfaces are published to.
// Once closed, new mailboxes are returned closed.
type subscribers struct {
	mu     sync.Mutex
	boxes  map[*mailbox]struct{}
	closed bool
}

func (s *subscribers) add() *mailbox {
	m := newMailbox()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		m.close()
		return m
	}
	if s.boxes == nil {
		s.boxes = make(map[*mailbox]struct{})
	}
	s.boxes[m] = struct{}{}
	return m
}

func (s *subscribers) remove(m *mailbox) {
	s.mu.Lock()
	delete(s.boxes, m)
	s.mu.Unlock()
	m.close()
}

func (s *subscribers) publish(surface *mandel.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.boxes {
		m.put(surface)
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.boxes {
		m.close()
	}
	s.boxes = nil
	s.closed = true
}
