package ws

import (
	"github.com/agent-hub/backend/internal/agent"
	"github.com/agent-hub/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot   MessageType = "snapshot"
	MsgAgentEvent MessageType = "agent_event"
	MsgLifecycle  MessageType = "lifecycle"
	MsgError      MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []session.View `json:"sessions"`
}

type AgentEventPayload struct {
	Event agent.Event `json:"event"`
}

// LifecyclePayload announces a session joining or leaving the registry.
// Reason is "created" on admission, otherwise one of the registry's
// removal reasons (evicted, expired, removed, drained).
type LifecyclePayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// CreateRequest is the body of POST /api/sessions.
type CreateRequest struct {
	ID           string `json:"id,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// CreateResponse echoes the admitted session. Warning carries a model
// fallback note when the requested model was unknown.
type CreateResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Warning string `json:"warning,omitempty"`
}

// PromptRequest is the body of POST /api/sessions/{id}/prompt.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

type PromptResponse struct {
	Result string `json:"result"`
}
