package session

import (
	"log"
	"sync"
	"time"
)

// Removal reasons delivered to the notifier.
const (
	ReasonEvicted = "evicted"
	ReasonExpired = "expired"
	ReasonRemoved = "removed"
	ReasonDrained = "drained"
)

// Notifier observes session removal. It runs on the disposing goroutine and
// must not call back into the store.
type Notifier func(id, reason string)

// Store is a capacity-bounded session registry with idle expiry. One
// instance is constructed at startup and drained at shutdown; tests build
// as many independent instances as they need.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	limit    int
	idleTTL  time.Duration

	sweepStop chan struct{}
	stopOnce  sync.Once

	notify Notifier
}

// New builds a Store holding at most limit sessions. When idleTTL > 0 a
// background sweeper disposes sessions idle longer than idleTTL, checking
// every sweepEvery (defaulting to idleTTL when non-positive). idleTTL == 0
// means sessions never expire and no sweeper runs.
func New(limit int, idleTTL, sweepEvery time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		limit:    limit,
		idleTTL:  idleTTL,
	}
	if idleTTL > 0 {
		if sweepEvery <= 0 {
			sweepEvery = idleTTL
		}
		s.sweepStop = make(chan struct{})
		go s.sweepLoop(sweepEvery)
	}
	return s
}

// SetNotifier registers the removal observer. Call before serving traffic.
func (s *Store) SetNotifier(fn Notifier) {
	s.notify = fn
}

// Has reports existence without counting as a use.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Get returns the live session for id. A hit counts as recent use.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.touch()
	return sess, true
}

// Put admits sess under id. Overwriting an existing id never triggers
// eviction. At capacity with a new id, the non-busy session with the
// smallest lastAccess is evicted to make room; if every session is busy,
// Put returns a CapacityError and the caller keeps ownership of sess.
func (s *Store) Put(id string, sess *Session) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.sessions[id] = sess
		s.mu.Unlock()
		return nil
	}

	var victim *Session
	if len(s.sessions) >= s.limit {
		victim = s.idleVictimLocked()
		if victim == nil {
			limit := s.limit
			s.mu.Unlock()
			return &CapacityError{Limit: limit}
		}
		delete(s.sessions, victim.ID)
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	if victim != nil {
		log.Printf("session %s: evicting to admit %s", victim.ID, id)
		s.dispose(victim, ReasonEvicted)
	}
	return nil
}

// idleVictimLocked picks the non-busy session with the smallest lastAccess.
// Ties break on whichever minimal record the map yields first. Caller holds
// s.mu. Returns nil when every session reports busy.
func (s *Store) idleVictimLocked() *Session {
	var victim *Session
	for _, sess := range s.sessions {
		if sess.Runner.Busy() {
			continue
		}
		if victim == nil || sess.lastAccess.Load() < victim.lastAccess.Load() {
			victim = sess
		}
	}
	return victim
}

// Remove disposes and removes the session for id. Absent ids are a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok {
		s.dispose(sess, ReasonRemoved)
	}
}

// DrainAll stops the sweeper first, then disposes every remaining session
// one at a time, continuing past individual failures. It returns once all
// have been attempted.
func (s *Store) DrainAll() {
	s.stopSweep()

	s.mu.Lock()
	remaining := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		remaining = append(remaining, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range remaining {
		s.dispose(sess, ReasonDrained)
	}
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Views returns a snapshot of all sessions for listing and broadcast.
func (s *Store) Views() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]View, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.view())
	}
	return out
}

func (s *Store) stopSweep() {
	s.stopOnce.Do(func() {
		if s.sweepStop != nil {
			close(s.sweepStop)
		}
	})
}

func (s *Store) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

// sweepExpired disposes every session idle longer than idleTTL. One
// session's disposal failure never stops the scan.
func (s *Store) sweepExpired() {
	cutoff := time.Now().Add(-s.idleTTL).UnixNano()

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.lastAccess.Load() < cutoff {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		log.Printf("session %s: idle-expired", sess.ID)
		s.dispose(sess, ReasonExpired)
	}
}

// dispose is the single cleanup routine behind eviction, removal, expiry
// and drain. The session is already out of the map when it runs. Each
// release step is guarded on its own: a failure is logged and the next step
// still runs. Runs at most once per session.
func (s *Store) dispose(sess *Session, reason string) {
	if !sess.beginDispose() {
		return
	}

	if sess.unsubscribe != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("session %s: unsubscribe panic: %v", sess.ID, r)
				}
			}()
			if err := sess.unsubscribe(); err != nil {
				log.Printf("session %s: unsubscribe: %v", sess.ID, err)
			}
		}()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("session %s: interrupt panic: %v", sess.ID, r)
			}
		}()
		if errc := sess.Runner.Interrupt(); errc != nil {
			id := sess.ID
			// Interrupt settles on its own time; disposal does not wait.
			go func() {
				if err, ok := <-errc; ok && err != nil {
					log.Printf("session %s: interrupt: %v", id, err)
				}
			}()
		}
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("session %s: close panic: %v", sess.ID, r)
			}
		}()
		if err := sess.Runner.Close(); err != nil {
			log.Printf("session %s: close: %v", sess.ID, err)
		}
	}()

	if s.notify != nil {
		s.notify(sess.ID, reason)
	}
}

// stillPresent reports whether id still maps to this exact record. Turn
// calls it after waking from a wait: the session may have been evicted,
// expired or replaced while the caller was queued.
func (s *Store) stillPresent(id string, sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id] == sess
}
