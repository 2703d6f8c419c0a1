package nodes

import (
	"context"
	"fmt"
	"slices"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/tools"
	"github.com/Chative-triage/server/internal/agent/model"
	"github.com/Chative-triage/server/internal/metrics"
	logx "github.com/Chative-triage/server/pkg/logger"
)

// ToolExecutor runs the pending tool calls of the last assistant turn for one
// agent and appends one result per call, in call order.
type ToolExecutor struct {
	agent    string
	node     string
	registry *tools.Registry
	metrics  *metrics.Metrics
}

func NewToolExecutor(agent, node string, reg *tools.Registry, mt *metrics.Metrics) *ToolExecutor {
	return &ToolExecutor{agent: agent, node: node, registry: reg, metrics: mt}
}

func (e *ToolExecutor) Invoke(ctx context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	log := nodeLogger(st, e.node)

	if len(conversations.PendingToolCalls(st.Messages)) == 0 {
		log.Debug().Msg("no pending tool calls")
		return st, nil
	}
	// copy before filling ids; earlier states share the message
	last := *conversations.LastMessage(st.Messages)
	last.ToolCalls = slices.Clone(last.ToolCalls)
	ensureToolCallIDs(&last)
	st.Messages[len(st.Messages)-1] = &last
	calls := last.ToolCalls

	st.ToolCallCounts[e.agent]++
	log.Debug().
		Int("tool_call_count", st.ToolCallCounts[e.agent]).
		Int("calls", len(calls)).
		Msg("Tool execution attempt")

	results, err := e.execute(ctx, &last)
	if err != nil {
		if e.agent == model.AgentAdministration {
			log.Error().Err(err).Msg("administrative tool failed")
			st.Fail(fmt.Errorf("administrative tool: %w", err))
			return st, nil
		}
		log.Warn().Err(err).Msg("tool execution failed, reporting failure to the model")
		results = failedResults(calls, err)
	}
	st.AppendMessages(results...)
	for _, c := range calls {
		e.metrics.ObserveToolCall(e.agent, c.Function.Name)
	}

	if e.agent == model.AgentAdministration {
		resp, query, ok := conversations.FindToolResponseAndQuery(st.Messages, tools.AdminAgentToolName)
		if ok {
			st.AdminToolResponse = resp
			st.AdminOriginalQuery = query
		}
		if !st.AdminConfirmationProcessed {
			st.AdminConfirmationPending = true
		}
	}
	return st, nil
}

func (e *ToolExecutor) execute(ctx context.Context, msg *schema.Message) ([]*schema.Message, error) {
	ts, err := e.registry.ForAgent(ctx, e.agent)
	if err != nil {
		return nil, err
	}
	tn, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools: ts,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// hallucinated or malformed tool calls get a result the model can read
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}
	return tn.Invoke(ctx, msg)
}

func failedResults(calls []schema.ToolCall, err error) []*schema.Message {
	out := make([]*schema.Message, 0, len(calls))
	for _, c := range calls {
		out = append(out, schema.ToolMessage(fmt.Sprintf("Tool %s failed: %v", c.Function.Name, err), c.ID))
	}
	return out
}
