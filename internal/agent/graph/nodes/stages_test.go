package nodes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-triage/server/internal/agent/graph/conversations"
	"github.com/Chative-triage/server/internal/agent/graph/graphtest"
	"github.com/Chative-triage/server/internal/agent/graph/prompts"
	"github.com/Chative-triage/server/internal/agent/graph/tools"
	"github.com/Chative-triage/server/internal/agent/model"
	errx "github.com/Chative-triage/server/internal/core/error"
)

func userState(text string) *model.ConversationState {
	st := model.NewConversationState("run-1", "conv-1")
	st.AppendMessages(schema.UserMessage(text))
	st.ToolCallLimits = map[string]int{model.AgentAdministration: 1}
	return st
}

func ticketState(text string, category model.Category) *model.ConversationState {
	st := userState(text)
	st.ApplyClassification(model.TicketClassification{Category: category, Priority: model.PriorityMedium, Intent: text}, text)
	return st
}

func newSupervisor(m *graphtest.ScriptedModel) *Supervisor {
	return NewSupervisor(AgentModel{Name: "gemini-2.5-flash", Model: m}, "", conversations.NewMessagesManager(10), nil)
}

func TestSupervisorClassifies(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.Text(`{"category":"technical","priority":"high","intent":"cannot log in","keywords":["login"],"confidence":0.91,"needs_human_review":false}`))
	in := userState("I can't log in")
	in.ToolCallCounts[model.AgentTechnical] = 3

	out, err := newSupervisor(m).Invoke(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, out.CurrentTicket)
	assert.Equal(t, model.CategoryTechnical, out.CurrentTicket.Category)
	assert.Equal(t, "cannot log in", out.CurrentTicket.Subject)
	assert.Equal(t, []string{"supervisor: classified as technical (priority: high, confidence: 0.91)"}, out.RoutingHistory)
	require.Len(t, out.AgentContexts, 1)
	assert.Equal(t, model.RiskLow, out.AgentContexts[0].RiskLevel)
	assert.InDelta(t, 0.91, out.OverallConfidence, 1e-9)
	assert.Empty(t, out.ToolCallCounts)
	assert.False(t, out.Complete)

	// input untouched
	assert.Nil(t, in.CurrentTicket)
	assert.Equal(t, 3, in.ToolCallCounts[model.AgentTechnical])

	// history goes into the classifier prompt, the latest turn is classified
	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[1].Content, "I can't log in")
}

func TestSupervisorKeepsTicketID(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.Text(`{"category":"billing","priority":"low","intent":"refund","keywords":[],"confidence":0.8,"needs_human_review":true}`))
	in := userState("refund please")
	in.CurrentTicket = &model.Ticket{TicketID: "T-42"}

	out, err := newSupervisor(m).Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "T-42", out.CurrentTicket.TicketID)
	assert.Equal(t, model.RiskHigh, out.AgentContexts[0].RiskLevel)
	assert.True(t, out.AgentContexts[0].RequiresHumanReview)
}

func TestSupervisorFallbacks(t *testing.T) {
	for name, reply := range map[string]graphtest.Reply{
		"service error": graphtest.Fail(errors.New("quota exceeded")),
		"malformed":     graphtest.Text("this is billing I think"),
		"bad enum":      graphtest.Text(`{"category":"sales","priority":"low","confidence":0.9}`),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := newSupervisor(graphtest.NewScriptedModel(reply)).Invoke(context.Background(), userState("hello"))
			require.NoError(t, err)

			assert.True(t, out.Complete)
			assert.Empty(t, out.ErrorMessage)
			assert.Nil(t, out.CurrentTicket)
			assert.Equal(t, prompts.UnclassifiableResponse(), conversations.LatestDraft(out.Messages))
			assert.Equal(t, []string{"supervisor: classified as unclassifiable (not within scope)"}, out.RoutingHistory)
			require.Len(t, out.AgentContexts, 1)
			assert.Equal(t, model.RiskLow, out.AgentContexts[0].RiskLevel)
			assert.False(t, out.AgentContexts[0].RequiresHumanReview)
			assert.Zero(t, out.OverallConfidence)
		})
	}
}

func TestSupervisorWithoutUserMessage(t *testing.T) {
	m := graphtest.NewScriptedModel()
	st := model.NewConversationState("run-1", "conv-1")
	st.AppendMessages(schema.AssistantMessage("hi", nil))

	out, err := newSupervisor(m).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, errx.ErrNoUserMessage.Error(), out.ErrorMessage)
	assert.Empty(t, out.AgentContexts)
	assert.Empty(t, m.Calls())
}

func registry(admin tools.AdminAgent, searcher model.KnowledgeSearcher) *tools.Registry {
	return tools.NewRegistry(tools.RegistryConfig{Searcher: searcher, AdminAgent: admin})
}

func TestResponderAppendsToolCallWithID(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.ToolCall("", tools.SearchBillingKBToolName, `{"query":"refund"}`))
	r := NewResponder(model.AgentBilling, AgentModel{Model: m}, "", registry(nil, graphtest.Searcher{}))

	out, err := r.Invoke(context.Background(), ticketState("refund please", model.CategoryBilling))
	require.NoError(t, err)

	last := conversations.LastMessage(out.Messages)
	require.Len(t, last.ToolCalls, 1)
	assert.NotEmpty(t, last.ToolCalls[0].ID)
	assert.Equal(t, NodeBillingTools, ShouldContinue(out, NodeBillingTools))

	calls := m.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, tools.SearchBillingKBToolName, calls[0].Tools[0].Name)
	assert.Equal(t, schema.System, calls[0].Messages[0].Role)
	assert.Contains(t, calls[0].Messages[0].Content, tools.SearchBillingKBToolName)
}

func TestResponderEmptyReplyFallback(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.Text("   "))
	r := NewResponder(model.AgentTechnical, AgentModel{Model: m}, "", registry(nil, graphtest.Searcher{}))

	out, err := r.Invoke(context.Background(), ticketState("vpn broken", model.CategoryTechnical))
	require.NoError(t, err)
	assert.Equal(t, EmptyReplyFallback, conversations.LatestDraft(out.Messages))
}

func TestResponderWithoutTicket(t *testing.T) {
	r := NewResponder(model.AgentTechnical, AgentModel{Model: graphtest.NewScriptedModel()}, "", registry(nil, nil))
	out, err := r.Invoke(context.Background(), userState("vpn broken"))
	require.NoError(t, err)
	assert.Equal(t, errx.ErrNoTicketContext.Error(), out.ErrorMessage)
}

func TestResponderLimitReached(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.Text("Summary from the article."))
	r := NewResponder(model.AgentTechnical, AgentModel{Model: m}, "", registry(nil, graphtest.Searcher{}))

	st := ticketState("vpn broken", model.CategoryTechnical)
	st.ToolCallLimits[model.AgentTechnical] = 1
	st.ToolCallCounts[model.AgentTechnical] = 1

	// nothing to synthesise: unchanged
	out, err := r.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, out.Messages, len(st.Messages))
	assert.Empty(t, m.Calls())

	// pending tool results are turned into a reply without tools
	st.AppendMessages(
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: tools.SearchTechnicalKBToolName, Arguments: `{"query":"vpn"}`}}}),
		schema.ToolMessage("Article 1: reinstall the VPN client", "c1"),
	)
	out, err = r.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Summary from the article.", conversations.LatestDraft(out.Messages))
	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Tools)
	assert.Contains(t, calls[0].Messages[1].Content, "reinstall the VPN client")
}

func TestAdministrationForcesToolCall(t *testing.T) {
	m := graphtest.NewScriptedModel()
	r := NewResponder(model.AgentAdministration, AgentModel{Model: m}, "", registry(&graphtest.AdminAgent{}, nil))

	out, err := r.Invoke(context.Background(), ticketState("I need to delete my account", model.CategoryAdministration))
	require.NoError(t, err)

	last := conversations.LastMessage(out.Messages)
	require.Len(t, last.ToolCalls, 1)
	call := last.ToolCalls[0]
	assert.Equal(t, tools.AdminAgentToolName, call.Function.Name)
	assert.JSONEq(t, `{"query":"I need to delete my account"}`, call.Function.Arguments)
	assert.True(t, strings.HasPrefix(call.ID, "call_"))
	assert.Empty(t, m.Calls(), "first pass must not consult the model")
}

func TestAdministrationLimitReached(t *testing.T) {
	r := NewResponder(model.AgentAdministration, AgentModel{Model: graphtest.NewScriptedModel()}, "", registry(&graphtest.AdminAgent{}, nil))
	st := ticketState("I need to delete my account", model.CategoryAdministration)
	st.ToolCallCounts[model.AgentAdministration] = 1

	out, err := r.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, out.Messages, 1)
}

func TestAdministrationFinalReplyFallsBackToToolText(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.Fail(errors.New("unavailable")))
	r := NewResponder(model.AgentAdministration, AgentModel{Model: m}, "", registry(&graphtest.AdminAgent{}, nil))

	st := ticketState("delete my account\n\nUser confirmed: yes", model.CategoryAdministration)
	st.AdminConfirmationProcessed = true
	st.AppendMessages(
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c2", Function: schema.FunctionCall{Name: tools.AdminAgentToolName, Arguments: `{"query":"delete my account"}`}}}),
		schema.ToolMessage("Account deleted.", "c2"),
	)

	out, err := r.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Account deleted.", conversations.LatestDraft(out.Messages))
	assert.Equal(t, NodeAssessment, RouteAdministration(out))
}

func TestToolExecutorAdminRecordsResult(t *testing.T) {
	admin := &graphtest.AdminAgent{Reply: func(string) (string, error) { return "Deletion scheduled for acct 7", nil }}
	e := NewToolExecutor(model.AgentAdministration, NodeAdminTools, registry(admin, nil), nil)

	st := ticketState("I need to delete my account", model.CategoryAdministration)
	st.AppendMessages(schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: tools.AdminAgentToolName, Arguments: `{"query":"I need to delete my account"}`}}}))

	out, err := e.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ToolCallCounts[model.AgentAdministration])
	assert.Equal(t, "Deletion scheduled for acct 7", out.AdminToolResponse)
	assert.Equal(t, "I need to delete my account", out.AdminOriginalQuery)
	assert.True(t, out.AdminConfirmationPending)
	assert.Equal(t, NodeHumanReview, RouteAfterAdminTools(out))

	last := conversations.LastMessage(out.Messages)
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, []string{"I need to delete my account"}, admin.Queries())
}

func TestToolExecutorAdminFailureIsFatal(t *testing.T) {
	admin := &graphtest.AdminAgent{Reply: func(string) (string, error) { return "", errx.ErrAgentDiscovery }}
	e := NewToolExecutor(model.AgentAdministration, NodeAdminTools, registry(admin, nil), nil)

	st := ticketState("delete", model.CategoryAdministration)
	st.AppendMessages(schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: tools.AdminAgentToolName, Arguments: `{"query":"delete"}`}}}))

	out, err := e.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Contains(t, out.ErrorMessage, errx.ErrAgentDiscovery.Error())
	assert.True(t, out.Complete)
}

func TestToolExecutorKnowledgeBase(t *testing.T) {
	e := NewToolExecutor(model.AgentBilling, NodeBillingTools, registry(nil, graphtest.Searcher{}), nil)
	st := ticketState("refund", model.CategoryBilling)
	st.AppendMessages(schema.AssistantMessage("", []schema.ToolCall{
		{ID: "a", Function: schema.FunctionCall{Name: tools.SearchBillingKBToolName, Arguments: `{"query":"refund"}`}},
		{ID: "b", Function: schema.FunctionCall{Name: "made_up_tool", Arguments: `{}`}},
	}))

	out, err := e.Invoke(context.Background(), st)
	require.NoError(t, err)
	results := out.Messages[len(out.Messages)-2:]
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, tools.NoArticlesFound, results[0].Content)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Contains(t, results[1].Content, "unknown_tool")
	assert.Equal(t, NodeBilling, RouteSupervisor(out))
}

func TestAssessorRecordsContext(t *testing.T) {
	m := graphtest.NewScriptedModel(graphtest.Text(`{"confidence_score":0.55,"risk_level":"medium","compliance_risks":"","requires_human_review":false,"reasoning":"vague"}`))
	a := NewAssessor(AgentModel{Model: m}, "", nil)

	st := ticketState("vpn broken", model.CategoryTechnical)
	st.RecordAgentContext(model.AgentContext{AgentName: "supervisor", ConfidenceScore: 0.9})
	st.AppendMessages(schema.AssistantMessage("Reinstall the client.", nil))

	out, err := a.Invoke(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, out.AgentContexts, 2)
	assert.Equal(t, model.AgentAssessment, out.AgentContexts[1].AgentName)
	assert.InDelta(t, 0.55, out.OverallConfidence, 1e-9)
	assert.Equal(t, model.RiskMedium, out.RiskAssessment)
	assert.False(t, out.PendingHumanReview)
	assert.Equal(t, "assessment: routed to human_review (confidence: 0.55, risk: medium)", out.RoutingHistory[len(out.RoutingHistory)-1])

	human := m.Calls()[0].Messages[1].Content
	assert.Contains(t, human, "Reinstall the client.")
	assert.Contains(t, human, "vpn broken")
}

func TestAssessorComplianceAndFailures(t *testing.T) {
	st := ticketState("charge question", model.CategoryBilling)
	st.AppendMessages(schema.AssistantMessage("We charged card 4111 1111 1111 1111.", nil))

	m := graphtest.NewScriptedModel(graphtest.Text(`{"confidence_score":0.95,"risk_level":"low","requires_human_review":false,"reasoning":"fine"}`))
	out, err := NewAssessor(AgentModel{Model: m}, "", nil).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, out.AgentContexts[0].RequiresHumanReview)
	assert.Equal(t, RouteHumanReview, DetermineRoute(out))

	m = graphtest.NewScriptedModel(graphtest.Fail(errors.New("down")))
	st = ticketState("vpn", model.CategoryTechnical)
	st.AppendMessages(schema.AssistantMessage("Try again later.", nil))
	out, err = NewAssessor(AgentModel{Model: m}, "", nil).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Zero(t, out.OverallConfidence)
	assert.Equal(t, model.RiskHigh, out.RiskAssessment)

	out, err = NewAssessor(AgentModel{Model: m}, "", nil).Invoke(context.Background(), ticketState("vpn", model.CategoryTechnical))
	require.NoError(t, err)
	assert.Equal(t, errx.ErrNoAgentResponse.Error(), out.ErrorMessage)

	out, err = NewAssessor(AgentModel{Model: m}, "", nil).Invoke(context.Background(), userState("vpn"))
	require.NoError(t, err)
	assert.Equal(t, errx.ErrNoTicketContext.Error(), out.ErrorMessage)
}

var reviewCfg = model.ReviewConfig{AdminQuestion: "Proceed?", GenericQuestion: "Approve?"}

func TestReviewGateAdminSummary(t *testing.T) {
	st := ticketState("I need to delete my account", model.CategoryAdministration)
	st.AdminConfirmationPending = true
	st.AdminOriginalQuery = "I need to delete my account"
	st.AdminToolResponse = "Deletion requires confirmation of acct 7"

	out, err := NewReviewGate(reviewCfg, nil).Invoke(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, out.Review)
	assert.Equal(t, "Proceed?", out.Review.Question)
	assert.Contains(t, out.Review.Details, "I need to delete my account")
	assert.Contains(t, out.Review.Details, "Deletion requires confirmation of acct 7")
	assert.True(t, out.Suspended())
	assert.False(t, st.PendingHumanReview)
}

func TestReviewGateGenericSummary(t *testing.T) {
	st := ticketState("refund", model.CategoryBilling)
	st.RecordAgentContext(model.AgentContext{AgentName: "assessment", ConfidenceScore: 0.4, RiskLevel: model.RiskMedium, Reasoning: "unsure"})
	st.AppendMessages(schema.AssistantMessage("Refunds take 5 days.", nil))

	out, err := NewReviewGate(reviewCfg, nil).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Approve?", out.Review.Question)
	assert.Contains(t, out.Review.Details, "Refunds take 5 days.")
	assert.Contains(t, out.Review.Details, "assessment: confidence 0.40")
	assert.Contains(t, out.Review.Details, "Overall confidence: 0.40")
}

func resumed(st *model.ConversationState, decision string) *model.ConversationState {
	st.HumanFeedback = &decision
	st.PendingHumanReview = true
	st.ReviewPhase = model.ReviewResumed
	return st
}

func TestFeedbackProcessorAdmin(t *testing.T) {
	base := func() *model.ConversationState {
		st := ticketState("I need to delete my account", model.CategoryAdministration)
		st.AdminConfirmationPending = true
		st.AdminOriginalQuery = "I need to delete my account"
		st.ToolCallCounts[model.AgentAdministration] = 1
		return st
	}

	out, err := NewFeedbackProcessor(nil).Invoke(context.Background(), resumed(base(), "No, cancel"))
	require.NoError(t, err)
	assert.Equal(t, CancellationMessage, conversations.LatestDraft(out.Messages))
	assert.False(t, out.AdminConfirmationPending)
	assert.False(t, out.AdminConfirmationProcessed)
	assert.Equal(t, model.ReviewDone, out.ReviewPhase)
	assert.False(t, out.PendingHumanReview)

	out, err = NewFeedbackProcessor(nil).Invoke(context.Background(), resumed(base(), "Yes, confirm. Email: user@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "I need to delete my account\n\nUser confirmed: Yes, confirm. Email: user@example.com", conversations.LatestUserText(out.Messages))
	assert.True(t, out.AdminConfirmationProcessed)
	assert.False(t, out.AdminConfirmationPending)
	assert.Zero(t, out.ToolCallCounts[model.AgentAdministration])
	assert.Equal(t, model.ReviewRetry, out.ReviewPhase)
	assert.NotNil(t, out.HumanFeedback)
	assert.Equal(t, NodeAdministration, RouteAfterFeedback(out))

	out, err = NewFeedbackProcessor(nil).Invoke(context.Background(), resumed(base(), "use my work email"))
	require.NoError(t, err)
	assert.Equal(t, "I need to delete my account\n\nUser response: use my work email", conversations.LatestUserText(out.Messages))
	assert.True(t, out.AdminConfirmationProcessed)
}

func TestFeedbackProcessorGeneric(t *testing.T) {
	st := resumed(ticketState("refund", model.CategoryBilling), "Refunds take 3 business days.")
	out, err := NewFeedbackProcessor(nil).Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 3 business days.", conversations.LatestDraft(out.Messages))
	assert.Nil(t, out.HumanFeedback)
	assert.Equal(t, model.ReviewDone, out.ReviewPhase)
	assert.True(t, out.Complete)
}
