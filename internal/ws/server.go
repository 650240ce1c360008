package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agent-hub/backend/internal/agent"
	"github.com/agent-hub/backend/internal/health"
	"github.com/agent-hub/backend/internal/session"
	"github.com/agent-hub/backend/internal/stats"
)

// Server exposes the session registry over HTTP and websocket. All session
// mutation funnels through the registry's Put/Remove/Turn operations; the
// server never touches registry internals.
type Server struct {
	store       *session.Store
	broadcaster *Broadcaster
	factory     agent.Factory

	tracker *stats.Tracker
	probe   *health.Probe

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(store *session.Store, broadcaster *Broadcaster, factory agent.Factory, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		store:          store,
		broadcaster:    broadcaster,
		factory:        factory,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetStatsTracker configures the tracker behind /api/stats.
// Must be called before SetupRoutes.
func (s *Server) SetStatsTracker(tracker *stats.Tracker) {
	s.tracker = tracker
}

// SetHealthProbe configures the probe behind /api/health.
// Must be called before SetupRoutes.
func (s *Server) SetHealthProbe(probe *health.Probe) {
	s.probe = probe
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.broadcaster.redact.FilterSlice(s.store.Views()))
	case http.MethodPost:
		s.handleCreate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	runner, warning, err := s.factory.New(agent.Options{
		SessionID:    id,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("creating agent: %v", err), http.StatusInternalServerError)
		return
	}

	// Forward runner events to the broadcast sink. A sink failure must
	// never leak back into the runner, so the listener recovers.
	unsubscribe := runner.Subscribe(func(ev agent.Event) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("session %s: event sink panic: %v", id, r)
			}
		}()
		s.broadcaster.QueueAgentEvent(ev)
		if s.tracker != nil {
			switch ev.Kind {
			case agent.RetryStarted:
				s.tracker.Record(stats.Retry)
			case agent.CompactionStarted:
				s.tracker.Record(stats.Compaction)
			}
		}
	})

	sess := session.NewSession(id, modelOf(runner, req.Model), runner, unsubscribe)
	if err := s.store.Put(id, sess); err != nil {
		// The registry refused the record; the resources are still ours
		// to release.
		disposeUnadmitted(id, runner, unsubscribe)
		if errors.Is(err, session.ErrCapacity) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.tracker != nil {
		s.tracker.Record(stats.SessionCreated)
	}
	s.broadcaster.QueueLifecycle(id, "created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResponse{ID: id, Model: sess.Model, Warning: warning})
}

// modelOf prefers the runner's own resolved model name when it exposes one.
func modelOf(r agent.Runner, requested string) string {
	if m, ok := r.(interface{ Model() string }); ok {
		return m.Model()
	}
	return requested
}

// disposeUnadmitted releases a runner the registry never accepted. Failures
// are logged, never propagated.
func disposeUnadmitted(id string, r agent.Runner, unsubscribe func() error) {
	if unsubscribe != nil {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("session %s: unsubscribe panic: %v", id, p)
				}
			}()
			if err := unsubscribe(); err != nil {
				log.Printf("session %s: unsubscribe: %v", id, err)
			}
		}()
	}
	func() {
		defer func() {
			if p := recover(); p != nil {
				log.Printf("session %s: close panic: %v", id, p)
			}
		}()
		if err := r.Close(); err != nil {
			log.Printf("session %s: close: %v", id, err)
		}
	}()
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Parse: /api/sessions/{id} or /api/sessions/{id}/prompt
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)

	id, err := url.PathUnescape(parts[0])
	if err != nil || id == "" {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDelete(w, r, id)
	case len(parts) == 2 && parts[1] == "prompt" && r.Method == http.MethodPost:
		s.handlePrompt(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request, id string) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var result string
	err := s.store.Turn(r.Context(), id, func(sess *session.Session) error {
		out, err := sess.Runner.Prompt(r.Context(), req.Prompt)
		if err != nil {
			return err
		}
		result = out
		return nil
	})

	if err != nil {
		if s.tracker != nil {
			s.tracker.Record(stats.TurnFailed)
		}
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	if s.tracker != nil {
		s.tracker.Record(stats.TurnCompleted)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PromptResponse{Result: result})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	s.store.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.probe == nil {
		http.Error(w, "health not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.probe.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.tracker == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.tracker.Counters())
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Agent-Hub-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Host
	if host == r.Host {
		return true
	}
	if host == "localhost" || strings.HasPrefix(host, "localhost:") {
		return true
	}
	if host == "127.0.0.1" || strings.HasPrefix(host, "127.0.0.1:") {
		return true
	}
	if host == "::1" || strings.HasPrefix(host, "[::1]:") {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
