package agent

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestShellToolAllowlist(t *testing.T) {
	tool := &ShellTool{Allowed: []string{"echo"}}

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty command", "", "empty command"},
		{"blocked command", "rm -rf /", "not in allowlist"},
		{"blocked despite args", "curl http://example.com", "not in allowlist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Run(context.Background(), tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestShellToolRunsAllowedCommand(t *testing.T) {
	tool := &ShellTool{Allowed: []string{"echo"}, Timeout: 5 * time.Second}

	out, err := tool.Run(context.Background(), "echo hello world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out) != "hello world" {
		t.Errorf("output = %q, want %q", strings.TrimSpace(out), "hello world")
	}
}

func TestShellToolName(t *testing.T) {
	tool := &ShellTool{}
	if tool.Name() != "shell" {
		t.Errorf("Name() = %q, want shell", tool.Name())
	}
}
