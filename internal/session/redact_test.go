package session

import "testing"

func TestRedactNoop(t *testing.T) {
	f := &RedactFilter{}
	v := View{ID: "abc", Model: "claude-opus-4-5"}
	got := f.Apply(v)
	if got != v {
		t.Errorf("zero-value filter changed the view: %+v", got)
	}
	if !f.IsNoop() {
		t.Error("zero-value filter reports IsNoop() = false")
	}
}

func TestRedactMasksFields(t *testing.T) {
	tests := []struct {
		name   string
		filter RedactFilter
		wantID bool // true when the id should be masked
		wantModel bool
	}{
		{"ids only", RedactFilter{MaskIDs: true}, true, false},
		{"models only", RedactFilter{MaskModels: true}, false, true},
		{"both", RedactFilter{MaskIDs: true, MaskModels: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View{ID: "session-1", Model: "claude-opus-4-5"}
			got := tt.filter.Apply(v)
			if masked := got.ID != v.ID; masked != tt.wantID {
				t.Errorf("id masked = %v, want %v", masked, tt.wantID)
			}
			if masked := got.Model != v.Model; masked != tt.wantModel {
				t.Errorf("model masked = %v, want %v", masked, tt.wantModel)
			}
		})
	}
}

func TestRedactHashStable(t *testing.T) {
	f := &RedactFilter{MaskIDs: true}
	a := f.Apply(View{ID: "session-1"})
	b := f.Apply(View{ID: "session-1"})
	c := f.Apply(View{ID: "session-2"})
	if a.ID != b.ID {
		t.Error("same id hashed to different values")
	}
	if a.ID == c.ID {
		t.Error("different ids hashed to the same value")
	}
	if a.ID == "session-1" {
		t.Error("id not masked")
	}
}

func TestRedactFilterSlice(t *testing.T) {
	f := &RedactFilter{MaskIDs: true}
	views := []View{{ID: "a"}, {ID: "b"}}
	got := f.FilterSlice(views)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if views[0].ID != "a" {
		t.Error("FilterSlice mutated its input")
	}
	if got[0].ID == "a" {
		t.Error("FilterSlice did not mask")
	}
}
