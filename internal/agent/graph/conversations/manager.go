package conversations

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-triage/server/internal/core/error"
)

const (
	DefaultHistoryTurns = 10
	maxTurnChars        = 300
	toolLookback        = 10
)

type MessagesManager struct {
	historyTurns int
}

func NewMessagesManager(historyTurns int) *MessagesManager {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &MessagesManager{historyTurns: historyTurns}
}

// ClassifierContext is what the classifier sees: prior turns and the message to classify.
type ClassifierContext struct {
	History string
	Latest  string
}

// BuildClassifierContext extracts the latest user message and formats up to
// historyTurns earlier turns. It fails with ErrNoUserMessage when there is
// no user text to classify.
func (cm *MessagesManager) BuildClassifierContext(messages []*schema.Message) (ClassifierContext, error) {
	idx := LatestUserIndex(messages)
	if idx < 0 {
		return ClassifierContext{}, errx.ErrNoUserMessage
	}
	latest := TextOf(messages[idx])
	if latest == "" {
		return ClassifierContext{}, errx.ErrNoUserMessage
	}
	return ClassifierContext{
		History: FormatHistory(messages[:idx], cm.historyTurns),
		Latest:  latest,
	}, nil
}

// TextOf is the single place that reads the text of a turn.
func TextOf(m *schema.Message) string {
	if m == nil {
		return ""
	}
	if s := strings.TrimSpace(m.Content); s != "" {
		return s
	}
	var parts []string
	for _, p := range m.MultiContent {
		if p.Type == schema.ChatMessagePartTypeText && strings.TrimSpace(p.Text) != "" {
			parts = append(parts, strings.TrimSpace(p.Text))
		}
	}
	return strings.Join(parts, "\n")
}

// LatestUserIndex returns the index of the last user turn with text, or -1.
func LatestUserIndex(messages []*schema.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m != nil && m.Role == schema.User && TextOf(m) != "" {
			return i
		}
	}
	return -1
}

// LatestUserText returns the last user text, or "".
func LatestUserText(messages []*schema.Message) string {
	if i := LatestUserIndex(messages); i >= 0 {
		return TextOf(messages[i])
	}
	return ""
}

// LastMessage returns the final turn, or nil.
func LastMessage(messages []*schema.Message) *schema.Message {
	if len(messages) == 0 {
		return nil
	}
	return messages[len(messages)-1]
}

// PendingToolCalls returns the tool calls of the last turn when it is an
// assistant turn requesting tools.
func PendingToolCalls(messages []*schema.Message) []schema.ToolCall {
	last := LastMessage(messages)
	if last == nil || last.Role != schema.Assistant {
		return nil
	}
	return last.ToolCalls
}

// LatestDraft returns the text of the last assistant turn that carries text.
func LatestDraft(messages []*schema.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m != nil && m.Role == schema.Assistant {
			if t := TextOf(m); t != "" {
				return t
			}
		}
	}
	return ""
}

// FormatHistory renders up to maxMessages user/assistant turns as
// "User: ..." / "Assistant: ..." lines, truncating long turns.
func FormatHistory(messages []*schema.Message, maxMessages int) string {
	var lines []string
	for _, m := range trimTail(messages, maxMessages) {
		if m == nil {
			continue
		}
		text := TextOf(m)
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > maxTurnChars {
			text = string(r[:maxTurnChars-3]) + "..."
		}
		switch m.Role {
		case schema.User:
			lines = append(lines, "User: "+text)
		case schema.Assistant:
			lines = append(lines, "Assistant: "+text)
		}
	}
	return strings.Join(lines, "\n")
}

// FindToolResponseAndQuery looks through the recent turns for the latest
// result of toolName and the query that produced it. The query is read from
// the matching call's "query" or "text" argument, falling back to the
// closest preceding user turn.
func FindToolResponseAndQuery(messages []*schema.Message, toolName string) (response, query string, ok bool) {
	start := max(len(messages)-toolLookback, 0)

	for i := len(messages) - 1; i >= start; i-- {
		m := messages[i]
		if m == nil || m.Role != schema.Tool {
			continue
		}
		call, found := findCall(messages[:i], m.ToolCallID)
		if !found || (toolName != "" && call.Function.Name != toolName) {
			continue
		}
		response = m.Content
		query = queryFromArguments(call.Function.Arguments)
		if query == "" {
			query = LatestUserText(messages[:i])
		}
		return response, query, true
	}
	return "", "", false
}

func findCall(messages []*schema.Message, id string) (schema.ToolCall, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m == nil || m.Role != schema.Assistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == id {
				return tc, true
			}
		}
	}
	return schema.ToolCall{}, false
}

func queryFromArguments(arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}
	for _, k := range []string{"query", "text"} {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
