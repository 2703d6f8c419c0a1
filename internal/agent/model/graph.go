package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// RunState stores per-invocation bookkeeping for the Eino graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState.
//   - Read and written only inside state handlers or compose.ProcessState,
//     which Eino serialises, so no extra locking is needed.
//   - It is NOT persisted; anything that must survive a suspension lives on
//     ConversationState.
type RunState struct {
	RunID      string
	Stages     []string
	StartedAt  time.Time
	LastStage  string
	StageCount int
}

// RunStatus is the externally visible outcome of one graph invocation.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunSuspended RunStatus = "suspended"
	RunFailed    RunStatus = "failed"
)

// RunInput starts a new run, optionally continuing an existing conversation.
type RunInput struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Messages       []InputMessage `json:"messages"`
	// AdminAgentKey is the request-scoped credential for the external admin agent.
	AdminAgentKey string `json:"-"`
}

// RunResult is returned by Start and Resume.
type RunResult struct {
	RunID  string             `json:"run_id"`
	Status RunStatus          `json:"status"`
	Review *ReviewRequest     `json:"review,omitempty"`
	Reply  string             `json:"reply,omitempty"`
	State  *ConversationState `json:"state"`
}

// StageTransition is one audit record emitted after a stage finished.
type StageTransition struct {
	RunID             string    `json:"run_id"`
	Seq               int       `json:"seq"`
	Stage             string    `json:"stage"`
	Routing           string    `json:"routing,omitempty"`
	OverallConfidence float64   `json:"overall_confidence"`
	Pending           bool      `json:"pending_human_review"`
	Error             string    `json:"error,omitempty"`
	At                time.Time `json:"at"`
}

// InputMessage is a turn as accepted at the system boundary. Content may be
// a plain string or a list of {type|kind: "text", text} parts.
type InputMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type inputPart struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Normalize converts the boundary shape into the single message shape used by
// the core. Tool turns cannot be injected from outside.
func (m InputMessage) Normalize() (*schema.Message, error) {
	text, err := m.text()
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(m.Role)) {
	case "", "user", "human":
		return schema.UserMessage(text), nil
	case "assistant", "ai":
		return schema.AssistantMessage(text, nil), nil
	case "system":
		return schema.SystemMessage(text), nil
	default:
		return nil, fmt.Errorf("unsupported message role %q", m.Role)
	}
}

func (m InputMessage) text() (string, error) {
	raw := strings.TrimSpace(string(m.Content))
	if raw == "" || raw == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s, nil
	}

	var parts []inputPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return "", fmt.Errorf("content must be a string or a list of text parts: %w", err)
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		kind := p.Type
		if kind == "" {
			kind = p.Kind
		}
		if kind != "" && kind != "text" {
			continue
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n"), nil
}

// TextInput is a convenience constructor for a plain user turn.
func TextInput(text string) InputMessage {
	b, _ := json.Marshal(text)
	return InputMessage{Role: "user", Content: b}
}
