package canvas

import "sync"

// sequencer runs callbacks strictly in ticket order. Tickets are taken under the canvas lock
// so the order matches the order edits hit the grid; the callbacks themselves run after the
// lock is dropped.
type sequencer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	issued uint64
	done   uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) ticket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

func (s *sequencer) run(ticket uint64, fn func()) {
	s.mu.Lock()
	for s.done != ticket-1 {
		s.cond.Wait()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.done = ticket
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
	fn()
}
