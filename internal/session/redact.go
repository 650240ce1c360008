package session

import (
	"crypto/sha256"
	"fmt"
)

// RedactFilter masks session fields before they are broadcast to protocol
// clients. The zero value is a no-op filter.
type RedactFilter struct {
	MaskIDs    bool
	MaskModels bool
}

// Apply returns a copy of the view with sensitive fields masked according
// to the filter configuration. The original view is never modified.
func (f *RedactFilter) Apply(v View) View {
	if f.MaskIDs && v.ID != "" {
		v.ID = shortHash(v.ID)
	}
	if f.MaskModels && v.Model != "" {
		v.Model = "masked"
	}
	return v
}

// FilterSlice returns a new slice with masking applied to each view.
func (f *RedactFilter) FilterSlice(views []View) []View {
	if f.IsNoop() {
		return views
	}
	out := make([]View, 0, len(views))
	for _, v := range views {
		out = append(out, f.Apply(v))
	}
	return out
}

// IsNoop reports whether the filter does nothing.
func (f *RedactFilter) IsNoop() bool {
	return !f.MaskIDs && !f.MaskModels
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
