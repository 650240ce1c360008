package agent

import "context"

// Runner is one long-lived unit of work: it accepts prompts one at a time,
// produces terminal text results, and can be interrupted and released.
// Implementations must be safe for concurrent use; callers serialize prompts
// per session above this interface.
type Runner interface {
	// Busy reports whether a prompt is currently executing.
	Busy() bool

	// Prompt runs one unit of work to completion and returns its terminal
	// text result. It fails if the runner is already busy or closed.
	Prompt(ctx context.Context, text string) (string, error)

	// LastResult returns the result of the most recent completed prompt.
	LastResult() (string, bool)

	// Interrupt requests a best-effort abort of the in-flight prompt. The
	// returned channel delivers at most one error and is closed when the
	// interrupt settles. Interrupt never blocks and never panics.
	Interrupt() <-chan error

	// Close releases the runner's resources. Safe to call more than once.
	Close() error

	// Subscribe registers a lifecycle event listener and returns a cancel
	// function that removes it. The cancel function may fail.
	Subscribe(fn Listener) func() error
}

// Factory produces runners for newly created sessions. The warning string,
// when non-empty, is a human-readable note for the caller (for example a
// model fallback), not an error.
type Factory interface {
	New(opts Options) (Runner, string, error)
}

// Options describes the runner a caller wants.
type Options struct {
	SessionID    string
	Model        string
	SystemPrompt string
	Tools        []Tool
}

// Tool is one capability a runner may invoke during a step.
type Tool interface {
	Name() string
	Run(ctx context.Context, input string) (string, error)
}
