package session

import (
	"context"
	"fmt"
	"sync"
)

// turnGate serializes units of work for one session. Each caller chains a
// ticket behind its predecessor's: the predecessor closes its ticket when
// it finishes, waking exactly the next waiter, so admission is FIFO and
// different sessions never block each other. The gate belongs to the
// session record, not the registry, so an evicted session's waiters still
// drain.
type turnGate struct {
	mu   sync.Mutex
	tail chan struct{}
}

// enqueue registers the caller as the next holder. prev is the ticket to
// wait on (nil when the gate is uncontended); mine must be closed when the
// caller's turn ends, on every exit path.
func (g *turnGate) enqueue() (prev <-chan struct{}, mine chan struct{}) {
	mine = make(chan struct{})
	g.mu.Lock()
	prevCh := g.tail
	g.tail = mine
	g.mu.Unlock()
	if prevCh == nil {
		return nil, mine
	}
	return prevCh, mine
}

// Turn runs fn as one exclusive unit of work against the session for id.
// Waiters are admitted in arrival order. After waiting its turn the caller
// re-validates that the session is still registered; a session removed
// mid-wait yields ErrNotFound and fn never runs. The caller's ticket is
// released on every exit path, so a failing fn can never wedge the queue.
func (s *Store) Turn(ctx context.Context, id string, fn func(*Session) error) error {
	sess, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	prev, mine := sess.gate.enqueue()
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Hand the ticket to a goroutine that closes it once the
			// predecessor finishes, so the chain survives the abandoned
			// wait.
			go func() {
				<-prev
				close(mine)
			}()
			return ctx.Err()
		}
	}
	defer close(mine)

	if !s.stillPresent(id, sess) {
		return fmt.Errorf("%w: %q (removed while waiting)", ErrNotFound, id)
	}

	err := fn(sess)
	sess.touch()
	return err
}
