package nodes

import (
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Chative-triage/server/internal/agent/model"
	logx "github.com/Chative-triage/server/pkg/logger"
)

// ===== Small helpers to keep handlers simple/readable =====

// recordUsage prices the response and accumulates its cost on the state.
func recordUsage(state *model.ConversationState, node, modelName string, out *schema.Message) {
	cost, ok := model.CostOf(modelName, out)
	if !ok {
		return
	}
	state.UsageCostUSD += cost.Total
	logx.Debug().
		Str("run_id", state.RunID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", cost.PromptTokens).
		Int("completion_tokens", cost.CompletionTokens).
		Float64("input_cost_usd", cost.InputCost).
		Float64("output_cost_usd", cost.OutputCost).
		Float64("total_cost_usd", cost.Total).
		Float64("run_cost_usd", state.UsageCostUSD).
		Msg("LLM usage")
}

// newToolCallID returns a provider-neutral tool call id.
func newToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ensureToolCallIDs fills ids some providers omit so results can be correlated.
func ensureToolCallIDs(msg *schema.Message) {
	if msg == nil {
		return
	}
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			msg.ToolCalls[i].ID = newToolCallID()
		}
		if msg.ToolCalls[i].Type == "" {
			msg.ToolCalls[i].Type = "function"
		}
	}
}

// isEmptyReply reports a model turn without text and without tool calls.
func isEmptyReply(msg *schema.Message) bool {
	return msg == nil || (strings.TrimSpace(msg.Content) == "" && len(msg.ToolCalls) == 0)
}

// nodeLogger returns a logger carrying the run and node fields.
func nodeLogger(state *model.ConversationState, node string) zerolog.Logger {
	return logx.With(map[string]string{
		"run_id":          state.RunID,
		"conversation_id": state.ConversationID,
		"node":            node,
	})
}
