package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agent-hub/backend/internal/agent"
	"github.com/agent-hub/backend/internal/session"
)

func newTestServer(t *testing.T, store *session.Store, authToken string) *httptest.Server {
	t.Helper()
	broadcaster := NewBroadcaster(store, nil, 10*time.Millisecond, time.Minute)
	t.Cleanup(broadcaster.Close)

	factory := &agent.LocalFactory{
		Resolver: agent.Resolver{
			Aliases: map[string]string{"sonnet": "claude-sonnet-4-5"},
			Default: "claude-sonnet-4-5",
		},
		Script: agent.Script{Result: "turn complete"},
	}

	srv := NewServer(store, broadcaster, factory, nil, authToken)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateSession(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions", CreateRequest{Model: "sonnet"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var created CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Error("no id assigned")
	}
	if created.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q, want resolved alias", created.Model)
	}
	if created.Warning != "" {
		t.Errorf("unexpected warning: %q", created.Warning)
	}
	if store.Count() != 1 {
		t.Errorf("store count = %d, want 1", store.Count())
	}
}

func TestCreateUnknownModelWarns(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions", CreateRequest{Model: "gpt-99"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created CreateResponse
	json.NewDecoder(resp.Body).Decode(&created)
	if created.Warning == "" {
		t.Error("unknown model produced no warning")
	}
	if created.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q, want fallback", created.Model)
	}
}

func TestPromptRoundtrip(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions", CreateRequest{ID: "s1"})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/sessions/s1/prompt", PromptRequest{Prompt: "do the thing"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var pr PromptResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		t.Fatal(err)
	}
	if pr.Result != "turn complete" {
		t.Errorf("result = %q, want %q", pr.Result, "turn complete")
	}
}

func TestPromptMissingSession(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	resp := postJSON(t, ts.URL+"/api/sessions/ghost/prompt", PromptRequest{Prompt: "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "session not found") {
		t.Errorf("body = %q, want 'session not found'", buf.String())
	}
}

func TestDeleteSession(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	postJSON(t, ts.URL+"/api/sessions", CreateRequest{ID: "s1"}).Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/s1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if store.Has("s1") {
		t.Error("session still present after delete")
	}

	// Deleting again is a no-op, not an error.
	resp, err = http.DefaultClient.Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("repeat delete status = %d, want 204", resp.StatusCode)
	}
}

// busyRunner reports busy forever so admission can never evict it.
type busyRunner struct{}

func (busyRunner) Busy() bool                                     { return true }
func (busyRunner) Prompt(context.Context, string) (string, error) { return "", nil }
func (busyRunner) LastResult() (string, bool)                     { return "", false }
func (busyRunner) Interrupt() <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}
func (busyRunner) Close() error { return nil }
func (busyRunner) Subscribe(agent.Listener) func() error {
	return func() error { return nil }
}

func TestCreateAtCapacity(t *testing.T) {
	store := session.New(1, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	if err := store.Put("busy", session.NewSession("busy", "m", busyRunner{}, nil)); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, ts.URL+"/api/sessions", CreateRequest{ID: "s2"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "maximum sessions reached (limit 1)") {
		t.Errorf("body = %q, want capacity message naming the limit", buf.String())
	}
	if store.Count() != 1 {
		t.Errorf("store count = %d, want 1", store.Count())
	}
	if store.Has("s2") {
		t.Error("rejected session admitted")
	}
}

func TestListSessions(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "")

	for i := 0; i < 3; i++ {
		postJSON(t, ts.URL+"/api/sessions", CreateRequest{ID: fmt.Sprintf("s%d", i)}).Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var views []session.View
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 3 {
		t.Errorf("listed %d sessions, want 3", len(views))
	}
}

func TestAuthToken(t *testing.T) {
	store := session.New(5, 0, 0)
	defer store.DrainAll()
	ts := newTestServer(t, store, "hunter2")

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	tests := []struct {
		name  string
		apply func(*http.Request)
	}{
		{"query param", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "hunter2")
			r.URL.RawQuery = q.Encode()
		}},
		{"custom header", func(r *http.Request) { r.Header.Set("X-Agent-Hub-Token", "hunter2") }},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer hunter2") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", nil)
			tt.apply(req)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
		})
	}
}
