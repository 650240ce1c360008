package agent

import (
	"encoding/json"
	"time"
)

// EventKind classifies runner lifecycle events.
type EventKind int

const (
	WorkStarted       EventKind = iota // a prompt began executing
	WorkEnded                          // the prompt finished (success or failure)
	StepStarted                        // an intermediate step (tool call) began
	StepEnded                          // an intermediate step finished
	CompactionStarted                  // the runner began compacting its context
	RetryStarted                       // the runner is retrying after a transient failure
)

var eventKindNames = map[EventKind]string{
	WorkStarted:       "work_started",
	WorkEnded:         "work_ended",
	StepStarted:       "step_started",
	StepEnded:         "step_ended",
	CompactionStarted: "compaction_started",
	RetryStarted:      "retry_started",
}

var eventKindFromName = map[string]EventKind{
	"work_started":       WorkStarted,
	"work_ended":         WorkEnded,
	"step_started":       StepStarted,
	"step_ended":         StepEnded,
	"compaction_started": CompactionStarted,
	"retry_started":      RetryStarted,
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := eventKindFromName[s]; ok {
		*k = v
	}
	return nil
}

// Event carries one runner lifecycle notification to observers.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	Step      string    `json:"step,omitempty"`    // StepStarted / StepEnded
	OK        bool      `json:"ok"`                // StepEnded
	Reason    string    `json:"reason,omitempty"`  // CompactionStarted
	Attempt   int       `json:"attempt,omitempty"` // RetryStarted
	Limit     int       `json:"limit,omitempty"`   // RetryStarted
	LastErr   string    `json:"lastErr,omitempty"` // RetryStarted
	At        time.Time `json:"at"`
}

// Listener receives runner lifecycle events. Listeners run on the runner's
// goroutine and should hand work off quickly.
type Listener func(Event)
