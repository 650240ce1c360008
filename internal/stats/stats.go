package stats

import (
	"context"
	"log"
	"sync"
	"time"
)

const saveInterval = 30 * time.Second

// Kind classifies one countable lifecycle occurrence.
type Kind int

const (
	SessionCreated Kind = iota
	TurnCompleted
	TurnFailed
	Evicted
	Expired
	Removed
	Retry
	Compaction
)

// Counters are the aggregate totals served at /api/stats and persisted
// across restarts.
type Counters struct {
	SessionsCreated int64 `json:"sessionsCreated"`
	TurnsCompleted  int64 `json:"turnsCompleted"`
	TurnsFailed     int64 `json:"turnsFailed"`
	Evictions       int64 `json:"evictions"`
	Expiries        int64 `json:"expiries"`
	Removals        int64 `json:"removals"`
	Retries         int64 `json:"retries"`
	Compactions     int64 `json:"compactions"`
}

// Tracker accumulates lifecycle counters delivered over a channel and
// periodically persists them while dirty. The caller runs Run in a
// goroutine and uses Record from any other goroutine.
type Tracker struct {
	persist *Store
	events  chan Kind

	mu       sync.Mutex
	counters Counters
	dirty    bool
}

// NewTracker loads persisted counters (a fresh file starts at zero) and
// returns a tracker ready to Run.
func NewTracker(persist *Store) (*Tracker, error) {
	t := &Tracker{
		persist: persist,
		events:  make(chan Kind, 256),
	}
	if persist != nil {
		c, err := persist.Load()
		if err != nil {
			return nil, err
		}
		t.counters = c
	}
	return t, nil
}

// Record registers one occurrence. It never blocks; under sustained
// overload occurrences are dropped rather than stalling the caller.
func (t *Tracker) Record(k Kind) {
	select {
	case t.events <- k:
	default:
	}
}

// Run consumes events and saves dirty counters on an interval. It blocks
// until ctx is cancelled, then drains any buffered events and performs a
// final save before returning. Shutdown must wait for Run to return or
// the final save can be lost.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case k := <-t.events:
					t.apply(k)
				default:
					t.save()
					return
				}
			}
		case k := <-t.events:
			t.apply(k)
		case <-ticker.C:
			t.mu.Lock()
			dirty := t.dirty
			t.mu.Unlock()
			if dirty {
				t.save()
			}
		}
	}
}

// Counters returns a copy of the current totals.
func (t *Tracker) Counters() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

func (t *Tracker) apply(k Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch k {
	case SessionCreated:
		t.counters.SessionsCreated++
	case TurnCompleted:
		t.counters.TurnsCompleted++
	case TurnFailed:
		t.counters.TurnsFailed++
	case Evicted:
		t.counters.Evictions++
	case Expired:
		t.counters.Expiries++
	case Removed:
		t.counters.Removals++
	case Retry:
		t.counters.Retries++
	case Compaction:
		t.counters.Compactions++
	}
	t.dirty = true
}

func (t *Tracker) save() {
	if t.persist == nil {
		return
	}
	t.mu.Lock()
	c := t.counters
	t.dirty = false
	t.mu.Unlock()

	if err := t.persist.Save(c); err != nil {
		log.Printf("stats save: %v", err)
	}
}
