package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellTool runs allowlisted commands on behalf of a runner step. Input is a
// command line; the first field must name an allowed binary. Commands run in
// a fixed working directory under a hard timeout.
type ShellTool struct {
	Allowed []string
	WorkDir string
	Timeout time.Duration
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Run(ctx context.Context, input string) (string, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", fmt.Errorf("shell: empty command")
	}

	if !t.allowed(fields[0]) {
		return "", fmt.Errorf("shell: command %q not in allowlist", fields[0])
	}

	path, err := exec.LookPath(fields[0])
	if err != nil {
		return "", fmt.Errorf("shell: %w", err)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, fields[1:]...)
	cmd.Dir = t.WorkDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("shell: %s: %w", fields[0], err)
	}
	return string(out), nil
}

func (t *ShellTool) allowed(name string) bool {
	for _, a := range t.Allowed {
		if a == name {
			return true
		}
	}
	return false
}
