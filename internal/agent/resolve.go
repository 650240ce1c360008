package agent

import "fmt"

// Resolver maps caller-facing model aliases to concrete model names.
type Resolver struct {
	Aliases map[string]string // alias -> concrete model name
	Default string
}

// Resolve returns the concrete model for a requested alias. An empty request
// resolves to the default. An unknown request falls back to the default and
// returns a human-readable warning instead of an error.
func (r Resolver) Resolve(requested string) (model, warning string) {
	if requested == "" {
		return r.Default, ""
	}
	if m, ok := r.Aliases[requested]; ok {
		return m, ""
	}
	for _, m := range r.Aliases {
		if m == requested {
			return requested, ""
		}
	}
	return r.Default, fmt.Sprintf("unknown model %q, falling back to %q", requested, r.Default)
}
