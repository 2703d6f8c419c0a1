package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/prompts"
	"github.com/Chative-triage/server/internal/agent/graph/tools"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
)

const (
	// EmptyReplyFallback replaces a model turn that carried neither text nor tool calls.
	EmptyReplyFallback = "I couldn't find specific information about your request. " +
		"Could you share a few more details? If it's urgent, our support team can also be reached directly."

	toolLimitNotice = "SYSTEM NOTICE: You have reached the maximum number of tool calls for this request. " +
		"Write the reply to the customer using only the information below. " +
		"Acknowledge any limitations if the information is incomplete."

	adminReplyNotice = "Write the reply to the customer based on the administrative agent's response above. " +
		"Do not add actions the agent did not report."
)

// Responder drafts the reply for one ticket category, optionally through tools.
type Responder struct {
	agent        string
	node         string
	model        AgentModel
	systemPrompt string
	tools        *tools.Registry
}

func NewResponder(agent string, m AgentModel, systemPrompt string, reg *tools.Registry) *Responder {
	return &Responder{
		agent:        agent,
		node:         agent,
		model:        m,
		systemPrompt: prompts.SystemTemplate(agent, systemPrompt),
		tools:        reg,
	}
}

func (r *Responder) Invoke(ctx context.Context, in *model.ConversationState) (*model.ConversationState, error) {
	st := in.Clone()
	if st.CurrentTicket == nil {
		st.Fail(errx.ErrNoTicketContext)
		return st, nil
	}
	if r.agent == model.AgentAdministration {
		return r.administration(ctx, st)
	}

	log := nodeLogger(st, r.node)
	pendingResults := lastIsToolResult(st)

	if st.ToolLimitReached(r.agent) {
		if !pendingResults {
			log.Warn().Int("tool_calls", st.ToolCallCounts[r.agent]).Msg("tool call limit reached, skipping")
			return st, nil
		}
		log.Info().Int("tool_calls", st.ToolCallCounts[r.agent]).Msg("tool call limit reached, composing reply without tools")
		reply := r.synthesize(ctx, st, toolResultsText(st.Messages), toolLimitNotice, EmptyReplyFallback)
		st.AppendMessages(schema.AssistantMessage(reply, nil))
		return st, nil
	}

	ts, err := r.tools.ForAgent(ctx, r.agent)
	if err != nil {
		st.Fail(fmt.Errorf("%s responder: %w", r.agent, err))
		return st, nil
	}
	system, err := r.renderSystem(ctx, st, ts)
	if err != nil {
		st.Fail(err)
		return st, nil
	}

	cm := r.model.Model
	if cm == nil {
		st.Fail(fmt.Errorf("%s responder: no chat model configured", r.agent))
		return st, nil
	}
	if len(ts) > 0 {
		infos, err := tools.Infos(ctx, ts)
		if err != nil {
			st.Fail(fmt.Errorf("%s responder: %w", r.agent, err))
			return st, nil
		}
		if cm, err = cm.WithTools(infos); err != nil {
			st.Fail(fmt.Errorf("%s responder: bind tools: %w", r.agent, err))
			return st, nil
		}
	}

	msgs := append([]*schema.Message{system}, st.Messages...)
	out, err := cm.Generate(ctx, msgs)
	if err != nil {
		log.Error().Err(err).Msg("responder model call failed")
		st.Fail(fmt.Errorf("%s responder: %w", r.agent, err))
		return st, nil
	}
	recordUsage(st, r.node, r.model.Name, out)

	if isEmptyReply(out) {
		log.Warn().Msg("empty model reply, using fallback")
		out = schema.AssistantMessage(EmptyReplyFallback, nil)
	}
	ensureToolCallIDs(out)
	out.Role = schema.Assistant

	if len(out.ToolCalls) > 0 {
		log.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
	} else {
		log.Debug().Msg("draft reply ready")
	}
	st.AppendMessages(out)
	return st, nil
}

// administration runs the two-pass confirmation protocol. The first pass of
// each round synthesises the tool call itself; once a confirmed call has
// returned, the tool result is turned into the customer reply.
func (r *Responder) administration(ctx context.Context, st *model.ConversationState) (*model.ConversationState, error) {
	log := nodeLogger(st, r.node)

	if st.AdminConfirmationProcessed && lastIsToolResult(st) {
		resp, query, _ := conversations.FindToolResponseAndQuery(st.Messages, tools.AdminAgentToolName)
		details, err := prompts.AdminConfirmationDetails(ctx, query, resp)
		if err != nil {
			details = resp
		}
		reply := r.synthesize(ctx, st, details, adminReplyNotice, resp)
		st.AppendMessages(schema.AssistantMessage(reply, nil))
		log.Info().Msg("administrative action completed")
		return st, nil
	}

	if st.ToolLimitReached(r.agent) {
		log.Warn().Int("tool_calls", st.ToolCallCounts[r.agent]).Msg("tool call limit reached, skipping")
		return st, nil
	}

	query := conversations.LatestUserText(st.Messages)
	if query == "" {
		st.Fail(errx.ErrNoUserMessage)
		return st, nil
	}
	args, err := json.Marshal(model.AdminAgentInput{Query: query})
	if err != nil {
		st.Fail(err)
		return st, nil
	}
	st.AppendMessages(schema.AssistantMessage("", []schema.ToolCall{{
		ID:   newToolCallID(),
		Type: "function",
		Function: schema.FunctionCall{
			Name:      tools.AdminAgentToolName,
			Arguments: string(args),
		},
	}}))
	log.Info().Bool("confirmed", st.AdminConfirmationProcessed).Msg("forwarding request to administrative agent")
	return st, nil
}

// synthesize asks the model, without tools, for a reply grounded on material.
// Any failure returns fallback.
func (r *Responder) synthesize(ctx context.Context, st *model.ConversationState, material, notice, fallback string) string {
	log := nodeLogger(st, r.node)
	if r.model.Model == nil {
		return fallbackText(fallback)
	}
	system, err := r.renderSystem(ctx, st, nil)
	if err != nil {
		log.Warn().Err(err).Msg("system prompt render failed")
		return fallbackText(fallback)
	}

	var b strings.Builder
	b.WriteString("Customer message:\n")
	b.WriteString(conversations.LatestUserText(st.Messages))
	if strings.TrimSpace(material) != "" {
		b.WriteString("\n\nInformation gathered:\n")
		b.WriteString(material)
	}
	b.WriteString("\n\n")
	b.WriteString(notice)

	out, err := r.model.Model.Generate(ctx, []*schema.Message{system, schema.UserMessage(b.String())})
	if err != nil {
		log.Warn().Err(err).Msg("reply synthesis failed, using fallback")
		return fallbackText(fallback)
	}
	recordUsage(st, r.node, r.model.Name, out)
	if text := conversations.TextOf(out); text != "" {
		return text
	}
	return fallbackText(fallback)
}

func (r *Responder) renderSystem(ctx context.Context, st *model.ConversationState, ts []einotool.BaseTool) (*schema.Message, error) {
	vars := map[string]any{
		"Subject":  st.CurrentTicket.Subject,
		"Priority": string(st.CurrentTicket.Priority),
	}
	switch r.agent {
	case model.AgentTechnical:
		vars["KnowledgeTool"] = tools.SearchTechnicalKBToolName
		var extra []string
		for _, name := range tools.Names(ctx, ts) {
			if name != tools.SearchTechnicalKBToolName {
				extra = append(extra, name)
			}
		}
		vars["ExtraTools"] = strings.Join(extra, ", ")
	case model.AgentBilling:
		vars["KnowledgeTool"] = tools.SearchBillingKBToolName
	case model.AgentAdministration:
		vars["AdminTool"] = tools.AdminAgentToolName
	}
	msg, err := prompts.RenderSystem(ctx, r.systemPrompt, vars)
	if err != nil {
		return nil, fmt.Errorf("%s responder: %w", r.agent, err)
	}
	return msg, nil
}

func fallbackText(s string) string {
	if strings.TrimSpace(s) == "" {
		return EmptyReplyFallback
	}
	return s
}

func lastIsToolResult(st *model.ConversationState) bool {
	last := conversations.LastMessage(st.Messages)
	return last != nil && last.Role == schema.Tool
}

// toolResultsText joins the trailing run of tool results.
func toolResultsText(msgs []*schema.Message) string {
	var parts []string
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil || m.Role != schema.Tool {
			break
		}
		parts = append([]string{m.Content}, parts...)
	}
	return strings.Join(parts, "\n\n")
}
