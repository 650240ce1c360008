package agent

import "testing"

func TestResolve(t *testing.T) {
	r := Resolver{
		Aliases: map[string]string{
			"opus":   "claude-opus-4-5",
			"sonnet": "claude-sonnet-4-5",
		},
		Default: "claude-sonnet-4-5",
	}

	tests := []struct {
		name        string
		requested   string
		wantModel   string
		wantWarning bool
	}{
		{"empty uses default", "", "claude-sonnet-4-5", false},
		{"alias hit", "opus", "claude-opus-4-5", false},
		{"concrete name passes through", "claude-opus-4-5", "claude-opus-4-5", false},
		{"unknown falls back", "gpt-99", "claude-sonnet-4-5", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, warning := r.Resolve(tt.requested)
			if model != tt.wantModel {
				t.Errorf("model = %q, want %q", model, tt.wantModel)
			}
			if (warning != "") != tt.wantWarning {
				t.Errorf("warning = %q, wantWarning = %v", warning, tt.wantWarning)
			}
		})
	}
}
