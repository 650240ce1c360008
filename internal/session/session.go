package session

import (
	"sync/atomic"
	"time"

	"github.com/agent-hub/backend/internal/agent"
)

// Session is one admitted long-lived work unit. The registry owns its
// lifecycle; the runner and the event-feed unsubscribe callback are external
// resources released exactly once through the registry's disposal routine.
type Session struct {
	ID    string
	Model string

	Runner agent.Runner

	unsubscribe func() error
	createdAt   time.Time
	lastAccess  atomic.Int64 // unix nanos; set-to-now only, never read-modify-write
	disposed    atomic.Bool
	gate        turnGate
}

// NewSession wraps a runner into a registry record. unsubscribe detaches the
// session's event-feed listener; it may be nil and may fail when invoked.
func NewSession(id, model string, r agent.Runner, unsubscribe func() error) *Session {
	s := &Session{
		ID:          id,
		Model:       model,
		Runner:      r,
		unsubscribe: unsubscribe,
		createdAt:   time.Now(),
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess returns the time of the most recent lookup or completed turn.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// beginDispose flips the disposed flag; it returns true exactly once.
func (s *Session) beginDispose() bool {
	return s.disposed.CompareAndSwap(false, true)
}

// View is the JSON shape of a session exposed to protocol clients.
type View struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	Busy       bool      `json:"busy"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
}

func (s *Session) view() View {
	return View{
		ID:         s.ID,
		Model:      s.Model,
		Busy:       s.Runner.Busy(),
		CreatedAt:  s.createdAt,
		LastAccess: s.LastAccess(),
	}
}
