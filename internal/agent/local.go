package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	errBusy   = errors.New("agent busy: a prompt is already in flight")
	errClosed = errors.New("agent closed")
)

// Step is one scripted intermediate step of a Local run.
type Step struct {
	Name  string
	Delay time.Duration
	Tool  string // non-empty: invoke the named tool during this step
	Input string // input passed to the tool
	Fail  bool   // step reports failure but the run continues
}

// Script drives a Local runner. The zero value completes immediately with
// an "ok" result.
type Script struct {
	Steps      []Step
	Result     string // terminal text; defaults to "ok"
	FailWith   string // non-empty: the prompt fails with this message
	Compaction string // non-empty: emit a compaction event with this reason
	Retries    int    // emit this many retry events before finishing
	RetryLimit int
	RetryErr   string
}

// Local is an in-process scripted runner. It stands in for a real
// provider-backed agent in -mock mode and in tests: same contract, no
// network, deterministic behavior.
type Local struct {
	id     string
	model  string
	script Script
	tools  map[string]Tool

	mu        sync.Mutex
	busy      bool
	closed    bool
	last      string
	hasLast   bool
	cancel    context.CancelFunc
	listeners map[int]Listener
	nextSub   int
}

func NewLocal(sessionID, model string, script Script, tools ...Tool) *Local {
	if script.Result == "" {
		script.Result = "ok"
	}
	l := &Local{
		id:        sessionID,
		model:     model,
		script:    script,
		tools:     make(map[string]Tool, len(tools)),
		listeners: make(map[int]Listener),
	}
	for _, tl := range tools {
		l.tools[tl.Name()] = tl
	}
	return l
}

func (l *Local) Model() string { return l.model }

func (l *Local) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

func (l *Local) Prompt(ctx context.Context, text string) (string, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", errClosed
	}
	if l.busy {
		l.mu.Unlock()
		return "", errBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	l.busy = true
	l.cancel = cancel
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		l.busy = false
		l.cancel = nil
		l.mu.Unlock()
	}()

	l.emit(Event{Kind: WorkStarted})
	if l.script.Compaction != "" {
		l.emit(Event{Kind: CompactionStarted, Reason: l.script.Compaction})
	}

	for _, step := range l.script.Steps {
		l.emit(Event{Kind: StepStarted, Step: step.Name})
		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				l.emit(Event{Kind: StepEnded, Step: step.Name, OK: false})
				l.emit(Event{Kind: WorkEnded})
				return "", fmt.Errorf("prompt interrupted: %w", ctx.Err())
			}
		}
		ok := !step.Fail
		if step.Tool != "" {
			if _, err := l.runTool(ctx, step.Tool, step.Input); err != nil {
				ok = false
			}
		}
		l.emit(Event{Kind: StepEnded, Step: step.Name, OK: ok})
	}

	for i := 1; i <= l.script.Retries; i++ {
		l.emit(Event{Kind: RetryStarted, Attempt: i, Limit: l.script.RetryLimit, LastErr: l.script.RetryErr})
	}

	l.emit(Event{Kind: WorkEnded})

	if l.script.FailWith != "" {
		return "", errors.New(l.script.FailWith)
	}

	l.mu.Lock()
	l.last = l.script.Result
	l.hasLast = true
	l.mu.Unlock()
	return l.script.Result, nil
}

func (l *Local) runTool(ctx context.Context, name, input string) (string, error) {
	tl, found := l.tools[name]
	if !found {
		return "", fmt.Errorf("no such tool: %q", name)
	}
	return tl.Run(ctx, input)
}

func (l *Local) LastResult() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.hasLast
}

func (l *Local) Interrupt() <-chan error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	ch := make(chan error, 1)
	if cancel != nil {
		cancel()
	}
	close(ch)
	return ch
}

func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (l *Local) Subscribe(fn Listener) func() error {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() error {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
		return nil
	}
}

// emit delivers an event to all current listeners outside the lock.
func (l *Local) emit(ev Event) {
	ev.SessionID = l.id
	ev.At = time.Now()

	l.mu.Lock()
	fns := make([]Listener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// LocalFactory produces Local runners. Used by -mock mode and tests.
type LocalFactory struct {
	Resolver Resolver
	Script   Script
	Tools    []Tool
}

func (f *LocalFactory) New(opts Options) (Runner, string, error) {
	model, warning := f.Resolver.Resolve(opts.Model)
	tools := make([]Tool, 0, len(f.Tools)+len(opts.Tools))
	tools = append(tools, f.Tools...)
	tools = append(tools, opts.Tools...)
	return NewLocal(opts.SessionID, model, f.Script, tools...), warning, nil
}
